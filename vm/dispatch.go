package vm

import (
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/v4xyz/duktape/bytecode"
	"github.com/v4xyz/duktape/object"
	"github.com/v4xyz/duktape/value"
)

// enumState is the payload of an enumerator object.  The key snapshot
// is taken at INITENUM; NEXTENUM skips keys deleted since.
type enumState struct {
	target *object.Object
	keys   []string
	idx    int
}

// executeBytecode resumes execution of the current thread from its
// current activation and returns when the entry-level activation
// returns, leaving the return value on top of the entry thread's value
// stack.  Compiled-to-compiled calls and coroutine switches are
// handled inside the loop without growing the Go stack; an uncaught
// error re-raises to the enclosing catchpoint.
func (h *Heap) executeBytecode(entry *Thread) {
	if h.cfg.Checks {
		if len(entry.callstack) == 0 || entry.topAct().Template == nil {
			h.internalError("executor entered without a compiled activation")
		}
	}
	entryDepth := len(entry.callstack)
	entryCallDepth := h.callDepth

	for {
		switch h.dispatchOnce(entry, entryDepth, entryCallDepth) {
		case outcomeRestart:
			// Possibly with a changed current thread.
		case outcomeFinished:
			return
		case outcomeRethrow:
			panic(ljSignal{})
		}
	}
}

// dispatchOnce runs the dispatch loop until it traps, then lets the
// transfer handler decide what happens.  The recover here is the
// executor's catchpoint; errors raised while handling a transfer
// propagate to the next catchpoint out, never back into this one.
func (h *Heap) dispatchOnce(entry *Thread, entryDepth, entryCallDepth int) (oc int) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if _, ok := r.(ljSignal); !ok {
			panic(r)
		}
		h.callDepth = entryCallDepth
		oc = h.handleTransfer(entry, entryDepth)
	}()
	h.dispatch()
	return outcomeFinished // not reached: dispatch exits only by trapping
}

// regConst resolves a B/C operand: below the threshold it indexes the
// register window, at or above it the constant pool (biased).
func regConst(t *Thread, fun *bytecode.Function, x int) value.Value {
	if x < bytecode.RegLimit {
		return t.reg(x)
	}
	return fun.Consts[x-bytecode.RegLimit]
}

// indirectIndex reads a base register index from another register (the
// I-suffixed opcode variants).
func (h *Heap) indirectIndex(t *Thread, idx int) int {
	tv := t.reg(idx)
	if !tv.IsNumber() {
		h.internalError("indirect operand is not a number")
	}
	return int(tv.Num())
}

// dispatch is the fetch-decode-execute loop.  Activation, function and
// register state are re-derived each iteration: any value mutation can
// run finalizers and any call can replace the top activation, so no
// pointer is trusted across an instruction.
func (h *Heap) dispatch() {
	for {
		thr := h.curThread
		actIdx := len(thr.callstack) - 1
		act := &thr.callstack[actIdx]
		fun := act.Template

		if h.cfg.Checks {
			if fun == nil {
				h.internalError("top activation is not a compiled function")
			}
			if thr.top() != fun.NRegs {
				h.internalErrorf("stack top %d does not match nregs %d", thr.top(), fun.NRegs)
			}
			if act.PC < 0 || act.PC >= len(fun.Code) {
				h.internalErrorf("pc %d outside code range", act.PC)
			}
			if h.lj.Type != LJUnknown {
				h.internalError("longjmp state not idle between instructions")
			}
		}

		if thr.interruptCounter > 0 {
			thr.interruptCounter--
		} else {
			h.executorInterrupt(thr)
			act = &thr.callstack[len(thr.callstack)-1]
		}

		ins := fun.Code[act.PC]
		act.PC++

		if log.IsLevelEnabled(log.TraceLevel) {
			log.WithFields(log.Fields{"pc": act.PC - 1, "ins": ins.String()}).Trace("executing")
		}

		op := ins.Op()
		switch op {

		case bytecode.OpLdReg:
			thr.setReg(ins.A(), thr.reg(ins.BC()))

		case bytecode.OpStReg:
			thr.setReg(ins.BC(), thr.reg(ins.A()))

		case bytecode.OpLdConst:
			thr.setReg(ins.A(), fun.Consts[ins.BC()])

		case bytecode.OpLdInt:
			thr.setReg(ins.A(), value.Number(float64(ins.BC()-bytecode.LDIntBias)))

		case bytecode.OpLdIntX:
			a := ins.A()
			tv := thr.reg(a)
			if !tv.IsNumber() {
				h.internalError("LDINTX target not a number")
			}
			val := tv.Num()*float64(int64(1)<<bytecode.LDIntXShift) + float64(ins.BC())
			thr.setReg(a, value.Number(val))

		case bytecode.OpMPutObj, bytecode.OpMPutObjI:
			tv := thr.reg(ins.A())
			if !tv.IsObject() {
				h.internalError("MPUTOBJ target not an object")
			}
			obj := object.FromValue(tv)
			idx := ins.B()
			if op == bytecode.OpMPutObjI {
				idx = h.indirectIndex(thr, idx)
			}
			count := ins.C()
			if idx < 0 || idx+count*2 > thr.top() {
				h.internalError("MPUTOBJ out of bounds")
			}
			for count > 0 {
				key := thr.reg(idx)
				if !key.IsString() {
					h.internalError("MPUTOBJ key not a string")
				}
				obj.Define(key.Str(), thr.reg(idx+1), object.FlagsWEC)
				count--
				idx += 2
			}

		case bytecode.OpMPutArr, bytecode.OpMPutArrI:
			tv := thr.reg(ins.A())
			if !tv.IsObject() {
				h.internalError("MPUTARR target not an object")
			}
			obj := object.FromValue(tv)
			idx := ins.B()
			if op == bytecode.OpMPutArrI {
				idx = h.indirectIndex(thr, idx)
			}
			count := ins.C()
			if idx < 0 || idx+count+1 > thr.top() {
				h.internalError("MPUTARR out of bounds")
			}
			start := thr.reg(idx)
			if !start.IsNumber() {
				h.internalError("MPUTARR start index not a number")
			}
			// The running index is a uint32, so the final length
			// written below wraps past 2^32-1 (ToUint32 semantics).
			arrIdx := uint32(start.Num())
			idx++
			for count > 0 {
				obj.Define(strconv.FormatUint(uint64(arrIdx), 10), thr.reg(idx), object.FlagsWEC)
				count--
				idx++
				arrIdx++
			}
			obj.Define("length", value.Number(float64(arrIdx)), object.FlagWritable)

		case bytecode.OpNew, bytecode.OpNewI:
			c := ins.C()
			idx := ins.B()
			if op == bytecode.OpNewI {
				idx = h.indirectIndex(thr, idx)
			}
			if idx < 0 || idx+c+1 > thr.top() {
				h.internalError("NEW out of bounds")
			}
			thr.requireStack(c + 2)
			thr.push(thr.reg(idx))
			thr.push(value.Undefined())
			for i := 0; i < c; i++ {
				thr.push(thr.reg(idx + 1 + i))
			}
			h.handleCall(thr, c, callFlagConstructor)
			thr.replace(idx)

		case bytecode.OpRegexp:
			pattern := h.ToString(regConst(thr, fun, ins.C()))
			flags := h.ToString(regConst(thr, fun, ins.B()))
			thr.setReg(ins.A(), h.newRegexpInstance(pattern, flags))

		case bytecode.OpCSReg, bytecode.OpCSRegI:
			// A declarative binding always gets an undefined 'this'.
			fnv := thr.reg(ins.B())
			idx := ins.A()
			if op == bytecode.OpCSRegI {
				idx = h.indirectIndex(thr, idx)
			}
			if idx < 0 || idx+2 > thr.top() {
				h.internalError("CSREG out of bounds")
			}
			thr.setReg(idx, fnv)
			thr.setReg(idx+1, value.Undefined())

		case bytecode.OpGetVar:
			tv := fun.Consts[ins.BC()]
			if !tv.IsString() {
				h.internalError("GETVAR name not a string")
			}
			val, _, _ := h.getVar(thr, actIdx, tv.Str(), true)
			thr.setReg(ins.A(), val)

		case bytecode.OpPutVar:
			tv := fun.Consts[ins.BC()]
			if !tv.IsString() {
				h.internalError("PUTVAR name not a string")
			}
			h.putVar(thr, actIdx, tv.Str(), thr.reg(ins.A()), fun.Strict)

		case bytecode.OpDeclVar:
			a := ins.A()
			tv := regConst(thr, fun, ins.B())
			if !tv.IsString() {
				h.internalError("DECLVAR name not a string")
			}
			v := value.Undefined()
			hasValue := a&bytecode.DeclVarFlagUndefValue == 0
			if hasValue {
				v = regConst(thr, fun, ins.C())
			}
			writable := a&bytecode.DeclVarFlagWritable != 0
			deletable := a&bytecode.DeclVarFlagConfigurable != 0
			h.declVar(thr, actIdx, tv.Str(), v, writable, deletable, hasValue, fun.Strict)

		case bytecode.OpDelVar:
			tv := regConst(thr, fun, ins.B())
			if !tv.IsString() {
				h.internalError("DELVAR name not a string")
			}
			rc := h.deleteVar(thr, actIdx, tv.Str())
			thr.setReg(ins.A(), value.Boolean(rc))

		case bytecode.OpCSVar, bytecode.OpCSVarI:
			tv := regConst(thr, fun, ins.B())
			if !tv.IsString() {
				h.internalError("CSVAR name not a string")
			}
			val, this, _ := h.getVar(thr, actIdx, tv.Str(), true)
			idx := ins.A()
			if op == bytecode.OpCSVarI {
				idx = h.indirectIndex(thr, idx)
			}
			if idx < 0 || idx+2 > thr.top() {
				h.internalError("CSVAR out of bounds")
			}
			thr.setReg(idx, val)
			thr.setReg(idx+1, this)

		case bytecode.OpClosure:
			bc := ins.BC()
			if bc >= len(fun.Funcs) {
				h.internalError("CLOSURE function index out of range")
			}
			h.activationEnv(thr, actIdx)
			act = &thr.callstack[actIdx]
			clos := h.NewClosure(fun.Funcs[bc], act.LexEnv, act.VarEnv)
			thr.setReg(ins.A(), object.ToValue(clos))

		case bytecode.OpGetProp:
			val := h.getProp(regConst(thr, fun, ins.B()), regConst(thr, fun, ins.C()))
			thr.setReg(ins.A(), val)

		case bytecode.OpPutProp:
			h.putProp(thr.reg(ins.A()), regConst(thr, fun, ins.B()), regConst(thr, fun, ins.C()), fun.Strict)

		case bytecode.OpDelProp:
			rc := h.delProp(thr.reg(ins.B()), regConst(thr, fun, ins.C()), fun.Strict)
			thr.setReg(ins.A(), value.Boolean(rc))

		case bytecode.OpCSProp, bytecode.OpCSPropI:
			b := ins.B()
			val := h.getProp(thr.reg(b), regConst(thr, fun, ins.C()))
			idx := ins.A()
			if op == bytecode.OpCSPropI {
				idx = h.indirectIndex(thr, idx)
			}
			if idx < 0 || idx+2 > thr.top() {
				h.internalError("CSPROP out of bounds")
			}
			thr.setReg(idx+1, thr.reg(b)) // receiver becomes 'this'
			thr.setReg(idx, val)

		case bytecode.OpAdd:
			h.arithAdd(thr, regConst(thr, fun, ins.B()), regConst(thr, fun, ins.C()), ins.A())

		case bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod:
			h.arithBinary(thr, regConst(thr, fun, ins.B()), regConst(thr, fun, ins.C()), ins.A(), op)

		case bytecode.OpBAnd, bytecode.OpBOr, bytecode.OpBXor,
			bytecode.OpBASL, bytecode.OpBLSR, bytecode.OpBASR:
			h.bitwiseBinary(thr, regConst(thr, fun, ins.B()), regConst(thr, fun, ins.C()), ins.A(), op)

		case bytecode.OpBNot:
			h.bitwiseNot(thr, regConst(thr, fun, ins.B()), ins.A())

		case bytecode.OpLNot:
			h.logicalNot(thr, regConst(thr, fun, ins.B()), ins.A())

		case bytecode.OpEq, bytecode.OpNeq:
			tmp := h.equals(regConst(thr, fun, ins.B()), regConst(thr, fun, ins.C()))
			if op == bytecode.OpNeq {
				tmp = !tmp
			}
			thr.setReg(ins.A(), value.Boolean(tmp))

		case bytecode.OpSeq, bytecode.OpSneq:
			tmp := strictEquals(regConst(thr, fun, ins.B()), regConst(thr, fun, ins.C()))
			if op == bytecode.OpSneq {
				tmp = !tmp
			}
			thr.setReg(ins.A(), value.Boolean(tmp))

		// The relational opcodes are defined via the shared comparator
		// so that NaN on either side yields false for all of them, and
		// the evaluation-order flag keeps left-first coercion order
		// observable.
		case bytecode.OpGT:
			// x > y  -->  y < x
			tmp := h.compare(regConst(thr, fun, ins.C()), regConst(thr, fun, ins.B()), 0)
			thr.setReg(ins.A(), value.Boolean(tmp))

		case bytecode.OpGE:
			// x >= y  -->  not (x < y)
			tmp := h.compare(regConst(thr, fun, ins.B()), regConst(thr, fun, ins.C()),
				compareEvalLeftFirst|compareNegate)
			thr.setReg(ins.A(), value.Boolean(tmp))

		case bytecode.OpLT:
			tmp := h.compare(regConst(thr, fun, ins.B()), regConst(thr, fun, ins.C()),
				compareEvalLeftFirst)
			thr.setReg(ins.A(), value.Boolean(tmp))

		case bytecode.OpLE:
			// x <= y  -->  not (y < x)
			tmp := h.compare(regConst(thr, fun, ins.C()), regConst(thr, fun, ins.B()),
				compareNegate)
			thr.setReg(ins.A(), value.Boolean(tmp))

		case bytecode.OpIf:
			tmp := ToBoolean(regConst(thr, fun, ins.B()))
			if tmp == (ins.A() != 0) {
				act.PC++
			}

		case bytecode.OpInstOf:
			tmp := h.instanceofOp(regConst(thr, fun, ins.B()), regConst(thr, fun, ins.C()))
			thr.setReg(ins.A(), value.Boolean(tmp))

		case bytecode.OpIn:
			tmp := h.inOp(regConst(thr, fun, ins.B()), regConst(thr, fun, ins.C()))
			thr.setReg(ins.A(), value.Boolean(tmp))

		case bytecode.OpJump:
			act.PC += ins.ABC() - bytecode.JumpBias

		case bytecode.OpReturn:
			v := value.Undefined()
			if ins.A()&bytecode.ReturnFlagHaveRetval != 0 {
				v = regConst(thr, fun, ins.B())
			}
			// All returns take the slow path through the transfer
			// handler; the fast-return flag is accepted but ignored.
			h.setupLj(LJReturn, v, value.Unused())
			h.longjmp()

		case bytecode.OpCall, bytecode.OpCallI:
			a := ins.A()
			nargs := ins.C()
			idx := ins.B()
			if op == bytecode.OpCallI {
				idx = h.indirectIndex(thr, idx)
			}
			if idx < 0 || idx >= thr.top() {
				h.internalError("CALL out of bounds")
			}

			// Direct eval is decided on the pre-bound-resolution
			// target together with the compiler's evalcall flag.
			evalcall := a&bytecode.CallFlagEvalcall != 0 &&
				thr.reg(idx).IsObject() &&
				object.FromValue(thr.reg(idx)) == h.builtinEval

			thr.requireStack(idx + nargs + 2 - thr.top())
			thr.setTop(idx + nargs + 2)
			base := thr.valstackBottom + idx

			callFlags := 0
			if a&bytecode.CallFlagTailcall != 0 {
				callFlags |= callFlagTailcall
			}
			if h.ecmaCallSetup(thr, base, nargs, callFlags) {
				// Compiled-to-compiled: re-enter dispatch with
				// refreshed activation state.
				continue
			}

			// Native (or light) callee: host-call path with Go-stack
			// recursion.  Bound-chain resolution may have shifted
			// the argument count.
			numArgs := len(thr.valstack) - (base + 2)
			hostFlags := 0
			if evalcall {
				hostFlags |= callFlagDirectEval
			}
			h.handleCall(thr, numArgs, hostFlags)
			thr.requireStack(fun.NRegs + h.cfg.ValstackSpare)
			thr.setTop(fun.NRegs)

		case bytecode.OpLabel:
			abc := ins.ABC()
			thr.pushCatcher(Catcher{
				Type:           CatLabel,
				Label:          abc,
				CallstackIndex: actIdx,
				PCBase:         act.PC, // first jump slot
			})
			act.PC += 2 // skip the jump slot pair

		case bytecode.OpEndLabel:
			if h.cfg.Checks {
				if len(thr.catchstack) == 0 || thr.catchstack[len(thr.catchstack)-1].Type != CatLabel {
					h.internalError("ENDLABEL without label catcher")
				}
			}
			thr.catchstackUnwind(len(thr.catchstack) - 1)

		case bytecode.OpBreak:
			h.setupLj(LJBreak, value.Number(float64(ins.ABC())), value.Unused())
			h.longjmp()

		case bytecode.OpContinue:
			h.setupLj(LJContinue, value.Number(float64(ins.ABC())), value.Unused())
			h.longjmp()

		case bytecode.OpTryCatch:
			a := ins.A()
			b := ins.B()
			c := ins.C()

			if a&bytecode.TryCatchFlagWithBinding != 0 {
				// The with target is created first so an allocation
				// failure leaves no half-installed catcher.
				h.activationEnv(thr, actIdx)
				target := h.ToObject(regConst(thr, fun, c))
				act = &thr.callstack[actIdx]
				env := object.NewObjEnv(act.LexEnv, target, true) // always provides 'this'
				old := act.LexEnv
				act.LexEnv = env
				env.Acquire()
				if old != nil {
					old.Release()
				}
			}

			cat := Catcher{
				Type:           CatTCF,
				CallstackIndex: actIdx,
				PCBase:         act.PC, // first jump slot
				IdxBase:        thr.valstackBottom + b,
			}
			if a&bytecode.TryCatchFlagHaveCatch != 0 {
				cat.Flags |= CatCatchEnabled
			}
			if a&bytecode.TryCatchFlagHaveFinally != 0 {
				cat.Flags |= CatFinallyEnabled
			}
			if a&bytecode.TryCatchFlagCatchBinding != 0 {
				tv := fun.Consts[c]
				if !tv.IsString() {
					h.internalError("TRYCATCH catch variable name not a string")
				}
				cat.Flags |= CatCatchBindingEnabled
				cat.VarName = tv.Str()
			} else if a&bytecode.TryCatchFlagWithBinding != 0 {
				cat.Flags |= CatLexEnvActive
			}
			thr.pushCatcher(cat)
			act = &thr.callstack[actIdx]
			act.PC += 2 // skip the jump slot pair

		case bytecode.OpExtra:
			h.dispatchExtra(thr, actIdx, fun, ins)

		case bytecode.OpInvalid:
			h.internalErrorf("INVALID opcode (%d)", ins.ABC())

		default:
			h.internalErrorf("invalid opcode %d", uint8(op))
		}
	}
}

// dispatchExtra executes the secondary opcode space (EXTRA).
func (h *Heap) dispatchExtra(thr *Thread, actIdx int, fun *bytecode.Function, ins bytecode.Instr) {
	sub := bytecode.ExtraOp(ins.A())
	switch sub {

	case bytecode.ExNop:

	case bytecode.ExLdThis:
		// The 'this' binding sits just under the register window.
		thr.setReg(ins.B(), thr.valstack[thr.valstackBottom-1])

	case bytecode.ExLdUndef:
		thr.setReg(ins.BC(), value.Undefined())

	case bytecode.ExLdNull:
		thr.setReg(ins.BC(), value.Null())

	case bytecode.ExLdTrue:
		thr.setReg(ins.BC(), value.Boolean(true))

	case bytecode.ExLdFalse:
		thr.setReg(ins.BC(), value.Boolean(false))

	case bytecode.ExNewObj:
		thr.setReg(ins.B(), object.ToValue(object.New(object.ClassObject, h.objectProto)))

	case bytecode.ExNewArr:
		arr := object.New(object.ClassArray, h.arrayProto)
		arr.Define("length", value.Number(0), object.FlagWritable)
		thr.setReg(ins.B(), object.ToValue(arr))

	case bytecode.ExSetALen:
		tv := thr.reg(ins.B())
		if !tv.IsObject() {
			h.internalError("SETALEN target not an object")
		}
		ln := thr.reg(ins.C())
		if !ln.IsNumber() {
			h.internalError("SETALEN length not a number")
		}
		object.FromValue(tv).Define("length", value.Number(float64(uint32(ln.Num()))), object.FlagWritable)

	case bytecode.ExTypeof:
		thr.setReg(ins.B(), value.String(Typeof(regConst(thr, fun, ins.C()))))

	case bytecode.ExTypeofID:
		// Must not throw on an unresolvable identifier.
		tv := regConst(thr, fun, ins.C())
		if !tv.IsString() {
			h.internalError("TYPEOFID name not a string")
		}
		val, _, ok := h.getVar(thr, actIdx, tv.Str(), false)
		if ok {
			thr.setReg(ins.B(), value.String(Typeof(val)))
		} else {
			thr.setReg(ins.B(), value.String("undefined"))
		}

	case bytecode.ExToNum:
		thr.setReg(ins.B(), value.Number(h.ToNumber(thr.reg(ins.C()))))

	case bytecode.ExInitEnum:
		// INITENUM of null/undefined yields the null enumerator,
		// special cased in NEXTENUM.  For-in semantics, E5 12.6.4.
		cv := thr.reg(ins.C())
		if cv.IsNullOrUndefined() {
			thr.setReg(ins.B(), value.Null())
		} else {
			target := h.ToObject(cv)
			e := object.New(object.ClassEnumerator, nil)
			e.Data = &enumState{target: target, keys: target.EnumKeys()}
			thr.setReg(ins.B(), object.ToValue(e))
		}

	case bytecode.ExNextEnum:
		// Skips the following instruction while keys remain; falls
		// through to it on exhaustion.
		cv := thr.reg(ins.C())
		if cv.IsObject() {
			es, ok := object.FromValue(cv).Data.(*enumState)
			if !ok {
				h.internalError("NEXTENUM source is not an enumerator")
			}
			delivered := false
			for es.idx < len(es.keys) {
				key := es.keys[es.idx]
				es.idx++
				if !es.target.HasProperty(key) {
					continue // deleted during enumeration
				}
				thr.setReg(ins.B(), value.String(key))
				act := &thr.callstack[actIdx]
				act.PC++
				delivered = true
				break
			}
			if !delivered {
				thr.setReg(ins.B(), value.Undefined())
			}
		} else if !cv.IsNull() {
			h.internalError("NEXTENUM source is neither enumerator nor null")
		}

	case bytecode.ExInitSet, bytecode.ExInitSetI, bytecode.ExInitGet, bytecode.ExInitGetI:
		isSet := sub == bytecode.ExInitSet || sub == bytecode.ExInitSetI
		tv := thr.reg(ins.B())
		if !tv.IsObject() {
			h.internalError("INITSET/INITGET target not an object")
		}
		obj := object.FromValue(tv)
		idx := ins.C()
		if sub == bytecode.ExInitSetI || sub == bytecode.ExInitGetI {
			idx = h.indirectIndex(thr, idx)
		}
		if idx < 0 || idx+2 > thr.top() {
			h.internalError("INITSET/INITGET out of bounds")
		}
		key := h.ToString(thr.reg(idx))
		fnv := thr.reg(idx + 1)
		if !fnv.IsObject() || !isCallable(fnv) {
			h.internalError("INITSET/INITGET function not callable")
		}
		accessor := object.FromValue(fnv)
		flags := object.FlagEnumerable | object.FlagConfigurable
		if isSet {
			obj.DefineAccessor(key, nil, accessor, flags)
		} else {
			obj.DefineAccessor(key, accessor, nil, flags)
		}

	case bytecode.ExEndTry:
		ci := len(thr.catchstack) - 1
		if h.cfg.Checks && (ci < 0 || thr.catchstack[ci].CallstackIndex != actIdx) {
			h.internalError("ENDTRY without matching catcher")
		}
		pcBase := thr.catchstack[ci].PCBase
		idxBase := thr.catchstack[ci].IdxBase
		thr.catchstack[ci].Flags &^= CatCatchEnabled
		if thr.catchstack[ci].Flags&CatFinallyEnabled != 0 {
			// Jump to the finally with a 'normal' completion.
			thr.writeSlot(idxBase, value.Undefined())
			thr.writeSlot(idxBase+1, value.Number(float64(LJNormal)))
			thr.catchstack[ci].Flags &^= CatFinallyEnabled
		} else {
			thr.catchstackUnwind(ci)
		}
		thr.callstack[actIdx].PC = pcBase + 1

	case bytecode.ExEndCatch:
		ci := len(thr.catchstack) - 1
		if h.cfg.Checks && (ci < 0 || thr.catchstack[ci].CallstackIndex != actIdx) {
			h.internalError("ENDCATCH without matching catcher")
		}
		if thr.catchstack[ci].Flags&CatLexEnvActive != 0 {
			act := &thr.callstack[actIdx]
			old := act.LexEnv
			act.LexEnv = old.OuterEnv()
			if act.LexEnv != nil {
				act.LexEnv.Acquire()
			}
			thr.catchstack[ci].Flags &^= CatLexEnvActive
			old.Release()
		}
		pcBase := thr.catchstack[ci].PCBase
		idxBase := thr.catchstack[ci].IdxBase
		if thr.catchstack[ci].Flags&CatFinallyEnabled != 0 {
			thr.writeSlot(idxBase, value.Undefined())
			thr.writeSlot(idxBase+1, value.Number(float64(LJNormal)))
			thr.catchstack[ci].Flags &^= CatFinallyEnabled
		} else {
			thr.catchstackUnwind(ci)
		}
		thr.callstack[actIdx].PC = pcBase + 1

	case bytecode.ExEndFin:
		ci := len(thr.catchstack) - 1
		if h.cfg.Checks && (ci < 0 || thr.catchstack[ci].CallstackIndex != actIdx) {
			h.internalError("ENDFIN without matching catcher")
		}
		idxBase := thr.catchstack[ci].IdxBase
		kind := thr.valstack[idxBase+1]
		if !kind.IsNumber() {
			h.internalError("ENDFIN completion kind not a number")
		}
		contType := int(kind.Num())
		if contType == LJNormal {
			thr.catchstackUnwind(ci)
			// Continue execution after the ENDFIN.
			return
		}
		// Abrupt completion: repackage the saved value as a fresh
		// transfer of the recorded kind.  No error re-augmentation.
		h.setupLj(contType, thr.valstack[idxBase], value.Unused())
		h.lj.IsError = contType == LJThrow
		h.longjmp()

	case bytecode.ExThrow:
		v := thr.reg(ins.B())
		if h.AugmentError != nil {
			v = h.AugmentError(h, v)
		}
		h.setupLj(LJThrow, v, value.Unused())
		h.lj.IsError = true
		h.longjmp()

	case bytecode.ExInvLHS:
		h.throwReferenceError("invalid lvalue")

	case bytecode.ExUnm, bytecode.ExUnp, bytecode.ExInc, bytecode.ExDec:
		h.arithUnary(thr, regConst(thr, fun, ins.C()), ins.B(), sub)

	case bytecode.ExDumpReg:
		log.Debugf("DUMPREG: r%d -> %s", ins.BC(), thr.reg(ins.BC()))

	case bytecode.ExDumpRegs:
		for i := 0; i < thr.top(); i++ {
			log.Debugf("DUMPREGS: r%d -> %s", i, thr.reg(i))
		}

	case bytecode.ExLogMark:
		log.Debugf("LOGMARK: mark %d at pc %d", ins.BC(), thr.callstack[actIdx].PC-1)

	default:
		h.internalErrorf("invalid extra opcode %d", uint8(sub))
	}
}
