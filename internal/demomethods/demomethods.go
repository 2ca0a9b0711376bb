// Package demomethods registers a small set of sample EPC methods used by
// cmd/epcd's --demo flag.
// Nothing here is part of the core; it exists only to give the surrounding
// binaries something real to dial against.
package demomethods

import (
	"context"

	"github.com/sandia-minimega/epc/internal/registry"
	"github.com/sandia-minimega/epc/pkg/sexp"
)

// addArgs is the typed argument struct for the "add" demo method.
type addArgs struct {
	A int64 `epc:"a"`
	B int64 `epc:"b"`
}

// Register installs the demo methods ("echo", "add") on reg.
func Register(reg *registry.Registry) {
	reg.Register("echo", func(ctx context.Context, args []sexp.Value) (sexp.Value, error) {
		return sexp.List(args...), nil
	}, "args", "returns its arguments unchanged")

	registry.RegisterTyped(reg, "add", func(ctx context.Context, in addArgs) (int64, error) {
		return in.A + in.B, nil
	}, "a b", "returns the sum of two integers")
}
