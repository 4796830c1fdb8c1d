package vm

import (
	"regexp"

	"github.com/v4xyz/duktape/object"
	"github.com/v4xyz/duktape/value"
)

// regexpData is the payload of a regexp instance.
type regexpData struct {
	re     *regexp.Regexp
	source string
	flags  string
}

// compileRegexp returns a compiled pattern, going through the heap's
// LRU cache so repeated literals share one instance.
func (h *Heap) compileRegexp(source, flags string) *regexp.Regexp {
	key := flags + "/" + source
	if cached, ok := h.regexpCache.Get(key); ok {
		return cached.(*regexp.Regexp)
	}
	pat := source
	if hasFlag(flags, 'i') {
		pat = "(?i)" + pat
	}
	if hasFlag(flags, 'm') {
		pat = "(?m)" + pat
	}
	re, err := regexp.Compile(pat)
	if err != nil {
		h.Throw(h.makeError("SyntaxError", "invalid regexp: "+err.Error()))
	}
	h.regexpCache.Add(key, re)
	return re
}

func hasFlag(flags string, f byte) bool {
	for i := 0; i < len(flags); i++ {
		if flags[i] == f {
			return true
		}
	}
	return false
}

// newRegexpInstance materializes a regexp literal object.
func (h *Heap) newRegexpInstance(source, flags string) value.Value {
	re := h.compileRegexp(source, flags)
	o := object.New(object.ClassRegExp, h.objectProto)
	o.Data = &regexpData{re: re, source: source, flags: flags}
	o.Define("source", value.String(source), 0)
	o.Define("flags", value.String(flags), 0)
	o.Define("global", value.Boolean(hasFlag(flags, 'g')), 0)
	o.Define("lastIndex", value.Number(0), object.FlagWritable)
	return object.ToValue(o)
}
