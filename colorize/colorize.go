// Package colorize decides row highlighting from dissected field
// values. The engine hooks into a dissection via Prime and writes its
// verdict onto the record metadata, mirroring how the rest of the
// pipeline treats colorization as a dissection side effect.
package colorize

import (
	"github.com/packline/packline/capture"
	"github.com/packline/packline/dissect"
)

// Rule matches one extracted field against a literal value. First
// matching rule wins.
type Rule struct {
	Name  string
	Class string // color class written to the record metadata
	Field string
	Value string
}

func (r Rule) matches(res *dissect.Result) bool {
	if r.Field == "" {
		return false
	}
	v, ok := res.Fields[r.Field]
	return ok && v == r.Value
}

type Engine struct {
	enabled bool
	rules   []Rule
}

func NewEngine(rules ...Rule) *Engine {
	return &Engine{enabled: true, rules: rules}
}

// RulesActive reports whether a dissection needs to consult the
// engine at all. Inactive rules keep the cheap no-tree dissect path.
func (e *Engine) RulesActive() bool {
	return e.enabled && len(e.rules) > 0
}

func (e *Engine) SetEnabled(enabled bool) {
	e.enabled = enabled
}

func (e *Engine) Enabled() bool {
	return e.enabled
}

func (e *Engine) Rules() []Rule {
	return e.rules
}

func (e *Engine) SetRules(rules []Rule) {
	e.rules = rules
}

// Prime registers the engine on a dissection about to run. When the
// dissector completes, the first matching rule's class is written to
// the record metadata; no match clears it.
func (e *Engine) Prime(dctx *dissect.Context, meta *capture.RecordMeta) {
	dctx.OnComplete(func(res *dissect.Result) {
		meta.ColorClass = e.classFor(res)
	})
}

func (e *Engine) classFor(res *dissect.Result) string {
	if !e.RulesActive() {
		return ""
	}
	for _, r := range e.rules {
		if r.matches(res) {
			return r.Class
		}
	}
	return ""
}
