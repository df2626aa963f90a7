// Package registry holds the ordered set of registered stubs and serves
// concurrent matching against it.
//
// The entry list is copy-on-write: writers build a new slice and publish it
// with an atomic pointer swap, so a match always iterates a complete,
// point-in-time view and never blocks on writers.
package registry

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/sophialabs/stubkit/internal/domain/match"
	"github.com/sophialabs/stubkit/internal/domain/stub"
)

// ErrCallCountMismatch is matched by every *CallCountMismatchError via errors.Is.
var ErrCallCountMismatch = errors.New("call count mismatch")

// CallCountMismatchError reports an assertion on a stub's call count that did not hold.
type CallCountMismatchError struct {
	Method string
	Path   string
	Want   int64
	Got    int64
}

func (e *CallCountMismatchError) Error() string {
	return fmt.Sprintf("%s for %s %s: expected %d, got %d", ErrCallCountMismatch, e.Method, e.Path, e.Want, e.Got)
}

func (e *CallCountMismatchError) Is(target error) bool {
	return target == ErrCallCountMismatch
}

// EntryFactory compiles a definition into a stateful entry.
type EntryFactory func(def *stub.Definition) (*match.Entry, error)

// view is an immutable list of entries in registration order.
type view struct {
	entries []*match.Entry
}

var emptyView = &view{}

// Registry is the concurrent container of stateful entries.
type Registry struct {
	current   atomic.Pointer[view]
	factory   EntryFactory
	evaluator *match.Evaluator
}

// New creates an empty registry. A nil factory compiles entries with match.NewEntry.
func New(factory EntryFactory) *Registry {
	if factory == nil {
		factory = func(def *stub.Definition) (*match.Entry, error) { return match.NewEntry(def) }
	}
	r := &Registry{
		factory:   factory,
		evaluator: match.NewEvaluator(),
	}
	r.current.Store(emptyView)
	return r
}

// Add appends a new entry built from def after every existing entry.
// It is safe to call while matches are in flight.
func (r *Registry) Add(def *stub.Definition) (*match.Entry, error) {
	e, err := r.factory(def)
	if err != nil {
		return nil, err
	}
	r.appendEntries(e)
	return e, nil
}

// AddAll compiles every definition and appends them together, preserving
// their order. Nothing is appended when any definition fails to compile.
func (r *Registry) AddAll(defs []*stub.Definition) ([]*match.Entry, error) {
	entries, err := r.compile(defs)
	if err != nil {
		return nil, err
	}
	r.appendEntries(entries...)
	return entries, nil
}

// Replace swaps the whole collection for entries built from defs. Counters
// of the previous entries are discarded with them.
func (r *Registry) Replace(defs []*stub.Definition) ([]*match.Entry, error) {
	entries, err := r.compile(defs)
	if err != nil {
		return nil, err
	}
	r.current.Store(&view{entries: entries})
	return entries, nil
}

// Clear removes every stub. Because counters live on the entries, this also
// discards every call count.
func (r *Registry) Clear() {
	r.current.Store(emptyView)
}

// Reset sets every current entry's call counter back to zero. Stubs stay registered.
func (r *Registry) Reset() {
	for _, e := range r.current.Load().entries {
		e.ResetCounter()
	}
}

// Entries returns the current entries in registration order.
func (r *Registry) Entries() []*match.Entry {
	v := r.current.Load()
	out := make([]*match.Entry, len(v.entries))
	copy(out, v.entries)
	return out
}

// Len returns the number of registered stubs.
func (r *Registry) Len() int {
	return len(r.current.Load().entries)
}

// Match builds a snapshot of h and evaluates it against a stable view of the
// entries. The body is read only when an entry of that same view needs it.
func (r *Registry) Match(h match.RequestHandle) (*match.Snapshot, match.EvalResult) {
	v := r.current.Load()
	s := match.NewSnapshot(h, needsBody(v.entries))
	return s, r.evaluator.Evaluate(s, v.entries)
}

// CallCount returns the counter of the first entry whose method and exact
// path equal the arguments. Entries declared with a path pattern never
// qualify. Unknown stubs report 0.
func (r *Registry) CallCount(method, path string) int64 {
	for _, e := range r.current.Load().entries {
		req := e.Definition().Request
		if req.PathPattern != "" || req.Path == "" {
			continue
		}
		if strings.EqualFold(req.Method, method) && req.Path == path {
			return e.CallCount()
		}
	}
	return 0
}

// CallCountByID returns the counter of the first entry with the given stub ID.
func (r *Registry) CallCountByID(id string) (int64, bool) {
	for _, e := range r.current.Load().entries {
		if e.ID() == id {
			return e.CallCount(), true
		}
	}
	return 0, false
}

// AssertCallCount returns a *CallCountMismatchError unless CallCount(method, path) equals want.
func (r *Registry) AssertCallCount(method, path string, want int64) error {
	got := r.CallCount(method, path)
	if got != want {
		return &CallCountMismatchError{Method: strings.ToUpper(method), Path: path, Want: want, Got: got}
	}
	return nil
}

func (r *Registry) appendEntries(entries ...*match.Entry) {
	if len(entries) == 0 {
		return
	}
	for {
		old := r.current.Load()
		next := make([]*match.Entry, 0, len(old.entries)+len(entries))
		next = append(next, old.entries...)
		next = append(next, entries...)
		if r.current.CompareAndSwap(old, &view{entries: next}) {
			return
		}
	}
}

func (r *Registry) compile(defs []*stub.Definition) ([]*match.Entry, error) {
	entries := make([]*match.Entry, 0, len(defs))
	for _, def := range defs {
		e, err := r.factory(def)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func needsBody(entries []*match.Entry) bool {
	for _, e := range entries {
		if e.NeedsBody() {
			return true
		}
	}
	return false
}
