package session

import (
	"github.com/sandia-minimega/epc/internal/registry"
	"github.com/sandia-minimega/epc/pkg/sexp"
)

const (
	tagCall        = "call"
	tagReturn      = "return"
	tagReturnError = "return-error"
	tagEpcError    = "epc-error"
	tagMethods     = "methods"
)

func buildCall(uid int64, method string, args sexp.Value) sexp.Value {
	return sexp.List(sexp.Sym(tagCall), sexp.Int64(uid), sexp.Sym(method), args)
}

func buildReturn(uid int64, value sexp.Value) sexp.Value {
	return sexp.List(sexp.Sym(tagReturn), sexp.Int64(uid), value)
}

func buildReturnError(uid int64, class, message string, backtrace []string) sexp.Value {
	return sexp.List(sexp.Sym(tagReturnError), sexp.Int64(uid),
		sexp.List(sexp.Sym(class), sexp.Str(message), stringsToList(backtrace)))
}

func buildEpcError(uid int64, message string) sexp.Value {
	return sexp.List(sexp.Sym(tagEpcError), sexp.Int64(uid), sexp.Str(message))
}

func buildMethodsQuery(uid int64) sexp.Value {
	return sexp.List(sexp.Sym(tagMethods), sexp.Int64(uid))
}

func buildMethodsReturn(uid int64, methods []registry.MethodInfo) sexp.Value {
	items := make([]sexp.Value, len(methods))
	for i, m := range methods {
		items[i] = sexp.List(sexp.Sym(m.Name), sexp.Str(m.ArgSpec), sexp.Str(m.Doc))
	}
	return buildReturn(uid, sexp.List(items...))
}

func stringsToList(strs []string) sexp.Value {
	items := make([]sexp.Value, len(strs))
	for i, s := range strs {
		items[i] = sexp.Str(s)
	}
	return sexp.List(items...)
}

func listToStrings(v sexp.Value) []string {
	items, ok := v.Slice()
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.Text(); ok {
			out = append(out, s)
		} else if s, ok := item.Symbol(); ok {
			out = append(out, s)
		}
	}
	return out
}

// parseMethodsResult decodes a methods-query return payload (a list of
// (name arg-spec doc) triples) into MethodInfo records.
func parseMethodsResult(v sexp.Value) ([]registry.MethodInfo, bool) {
	items, ok := v.Slice()
	if !ok {
		return nil, false
	}

	out := make([]registry.MethodInfo, 0, len(items))
	for _, item := range items {
		triple, ok := item.Slice()
		if !ok || len(triple) < 1 {
			return nil, false
		}
		name, ok := triple[0].Symbol()
		if !ok {
			if s, ok := triple[0].Text(); ok {
				name = s
			} else {
				return nil, false
			}
		}
		var argSpec, doc string
		if len(triple) > 1 {
			argSpec, _ = triple[1].Text()
		}
		if len(triple) > 2 {
			doc, _ = triple[2].Text()
		}
		out = append(out, registry.MethodInfo{Name: name, ArgSpec: argSpec, Doc: doc})
	}
	return out, true
}

// parseReturnErrorPayload decodes a return-error frame's error payload,
// accepting both the (class message backtrace) triple and the simplified
// bare-string shape some EPC peers send.
func parseReturnErrorPayload(v sexp.Value) (class, message string, backtrace []string) {
	if s, ok := v.Text(); ok {
		return "error", s, nil
	}

	items, ok := v.Slice()
	if !ok || len(items) == 0 {
		return "error", v.GoString(), nil
	}

	if sym, ok := items[0].Symbol(); ok {
		class = sym
	} else if s, ok := items[0].Text(); ok {
		class = s
	}
	if len(items) > 1 {
		if s, ok := items[1].Text(); ok {
			message = s
		} else if s, ok := items[1].Symbol(); ok {
			message = s
		}
	}
	if len(items) > 2 {
		backtrace = listToStrings(items[2])
	}
	return class, message, backtrace
}
