// Package dissect defines the structured-record parser driven by the
// packet list, plus the built-in dissector for TLV-framed records.
package dissect

import (
	"github.com/packline/packline/columns"
)

// Context carries per-dissection options and completion hooks. The
// colorizer primes a hook before the dissection runs; the dissector
// fires all hooks with the finished Result.
type Context struct {
	// BuildTree requests a full field tree. Only set when a custom
	// column or an active highlighting rule needs field values.
	BuildTree bool

	hooks []func(*Result)
}

func (dctx *Context) OnComplete(hook func(*Result)) {
	dctx.hooks = append(dctx.hooks, hook)
}

// Complete fires the primed hooks. Dissector implementations must call
// it once, after the Result is fully built.
func (dctx *Context) Complete(res *Result) {
	for _, hook := range dctx.hooks {
		hook(res)
	}
}

// Result of one dissection. Cols and Raw are indexed by display
// column; metadata columns stay empty, the core fills those itself.
type Result struct {
	Cols []string // resolved column text
	Raw  []string // unresolved representation, where one exists
	// Fields holds extracted name/value pairs. Nil unless the tree
	// was built.
	Fields map[string]string
	// Flow is the record's flow key for conversation lookup.
	Flow uint64
}

func NewResult(ncols int) *Result {
	return &Result{
		Cols: make([]string, ncols),
		Raw:  make([]string, ncols),
	}
}

// Dissector is the structured parser the packet list drives. One
// record in, column text and a flow identity out. Implementations
// are not required to be safe for concurrent use.
type Dissector interface {
	Dissect(payload []byte, desc columns.Descriptor, dctx *Context) (*Result, error)
}
