// Package registry implements the method registry and dispatch layer: a
// name -> handler table plus the typed adapter that turns an S-expression
// argument list into handler inputs and a handler's return value back into
// an S-expression, the way the reference codebase's command tables turn raw
// input into a typed Handler invocation.
package registry

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/sandia-minimega/epc/pkg/epclog"
	"github.com/sandia-minimega/epc/pkg/sexp"
)

// ApplicationError is the structured application-level failure a handler
// may return. It crosses the wire unchanged as a return-error frame's
// (class message backtrace) triple.
type ApplicationError struct {
	Class     string
	Message   string
	Backtrace []string
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Class, e.Message)
}

// AsApplicationError extracts an *ApplicationError from err, synthesizing a
// generic one for plain errors so every handler failure -- typed or not --
// always becomes a class/message/backtrace triple on the wire.
func AsApplicationError(err error) *ApplicationError {
	if err == nil {
		return nil
	}
	var appErr *ApplicationError
	if errors.As(err, &appErr) {
		return appErr
	}
	return &ApplicationError{Class: "error", Message: err.Error()}
}

// HandlerFunc is the untyped handler shape: accept the call's argument list
// as parsed Values and return either a result Value or an error (wrapped
// into an ApplicationError if it isn't already one).
type HandlerFunc func(ctx context.Context, args []sexp.Value) (sexp.Value, error)

// MethodInfo describes one registered method, as returned by a `methods`
// query and by List.
type MethodInfo struct {
	Name    string
	ArgSpec string
	Doc     string
}

type entry struct {
	info    MethodInfo
	handler HandlerFunc
}

// Registry is a name -> handler table. It is shared by reference across a
// Session's reader and all of its transient dispatch goroutines, so every
// operation is guarded by a single RWMutex: registration is rare, dispatch
// (read-only lookup) is frequent and may happen concurrently for many
// in-flight calls.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register installs handler under name, argSpec and doc are purely
// descriptive metadata returned by a `methods` query. Registering over an
// existing name replaces it.
func (r *Registry) Register(name string, handler HandlerFunc, argSpec, doc string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[name] = &entry{
		info:    MethodInfo{Name: name, ArgSpec: argSpec, Doc: doc},
		handler: handler,
	}
}

// Deregister removes name, if present.
func (r *Registry) Deregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// Lookup returns the handler registered under name, if any.
func (r *Registry) Lookup(name string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.handler, true
}

// List returns the metadata for every registered method, sorted by name for
// deterministic `methods` responses.
func (r *Registry) List() []MethodInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]MethodInfo, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Invoke looks up name and calls its handler, recovering any panic and
// translating it into an internal-error ApplicationError so a misbehaving
// handler can never take down the session. It never returns a plain Go
// error -- callers get either a Value or an *ApplicationError.
func (r *Registry) Invoke(ctx context.Context, name string, args []sexp.Value) (result sexp.Value, appErr *ApplicationError) {
	handler, ok := r.Lookup(name)
	if !ok {
		return sexp.Nil, &ApplicationError{
			Class:   "no-such-method",
			Message: name,
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			stack := string(debug.Stack())
			epclog.Error("dispatch panic in method %q: %v", name, rec)
			appErr = &ApplicationError{
				Class:     "internal-error",
				Message:   fmt.Sprintf("%v", rec),
				Backtrace: splitLines(stack),
			}
		}
	}()

	v, err := handler(ctx, args)
	if err != nil {
		return sexp.Nil, AsApplicationError(err)
	}
	return v, nil
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
