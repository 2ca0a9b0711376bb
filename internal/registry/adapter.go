package registry

import (
	"context"
	"fmt"
	"reflect"

	"github.com/sandia-minimega/epc/pkg/sexp"
)

// epcTag is the struct tag key used to name a field's position in an
// association list: `epc:"name"`. A field with no tag falls back to its Go
// name with the first letter lower-cased, matching how the reference codebase's config structs
// default an unset tag to the field name.
const epcTag = "epc"

// RegisterTyped registers a handler that takes a single decoded In value
// and returns a single Out value, generalizing Register's raw []sexp.Value
// signature so most methods never touch sexp directly. The argument list is
// decoded into In via decodeInto; the handler's Out return is encoded back
// with EncodeValue.
//
// A struct In is filled from a single association-list argument (keys
// matched using the epc tag, or the field name with its first letter
// lower-cased if the tag is absent) or else positionally in field order;
// any other In is decoded from args[0]. Out may be any type EncodeValue
// supports.
func RegisterTyped[In any, Out any](r *Registry, name string, fn func(ctx context.Context, in In) (Out, error), argSpec, doc string) {
	r.Register(name, func(ctx context.Context, args []sexp.Value) (sexp.Value, error) {
		var in In
		if err := decodeInto(args, &in); err != nil {
			return sexp.Nil, &ApplicationError{Class: "wrong-type-argument", Message: err.Error()}
		}

		out, err := fn(ctx, in)
		if err != nil {
			return sexp.Nil, err
		}

		v, err := EncodeValue(out)
		if err != nil {
			return sexp.Nil, &ApplicationError{Class: "wrong-type-argument", Message: err.Error()}
		}
		return v, nil
	}, argSpec, doc)
}

// decodeInto fills dst (a pointer to a struct, or a pointer to a
// non-struct) from args. A non-struct dst decodes from args[0] directly; a
// struct dst is filled either from a single leading association-list
// argument, or, failing that, positionally from args in field order.
func decodeInto(args []sexp.Value, dst interface{}) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("epc: decode target must be a non-nil pointer")
	}
	elem := rv.Elem()

	if elem.Kind() != reflect.Struct {
		if len(args) == 0 {
			return nil
		}
		return DecodeValue(args[0], elem)
	}

	if len(args) == 1 && args[0].IsList() {
		if alist, ok := asAssocList(args[0]); ok {
			return decodeStructFromAlist(alist, elem)
		}
	}
	return decodeStructPositional(args, elem)
}

// asAssocList reports whether v looks like an association list -- a
// (possibly empty) list of (key . value) or (key value...) pairs whose
// first element of each entry is a Symbol.
func asAssocList(v sexp.Value) ([]sexp.Value, bool) {
	items, ok := v.Slice()
	if !ok {
		return nil, false
	}
	for _, item := range items {
		var head sexp.Value
		if car, _, ok := item.Pair(); ok {
			head = car
		} else if entryItems, ok := item.Slice(); ok && len(entryItems) > 0 {
			head = entryItems[0]
		} else {
			return nil, false
		}
		if _, ok := head.Symbol(); !ok {
			return nil, false
		}
	}
	return items, true
}

func decodeStructFromAlist(alist []sexp.Value, structVal reflect.Value) error {
	byKey := make(map[string]sexp.Value, len(alist))
	for _, entry := range alist {
		var key string
		var val sexp.Value
		if items, ok := entry.Slice(); ok && len(items) > 0 {
			// Proper list entry: (key value) or (key v1 v2 ...).
			sym, _ := items[0].Symbol()
			key = sym
			if len(items) == 2 {
				val = items[1]
			} else {
				val = sexp.List(items[1:]...)
			}
		} else if car, cdr, ok := entry.Pair(); ok {
			// Dotted pair entry: (key . value).
			sym, _ := car.Symbol()
			key = sym
			val = cdr
		} else {
			continue
		}
		byKey[key] = val
	}

	t := structVal.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" {
			continue
		}
		name := fieldTagName(field)
		val, ok := byKey[name]
		if !ok {
			continue
		}
		if err := DecodeValue(val, structVal.Field(i)); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
	}
	return nil
}

func decodeStructPositional(args []sexp.Value, structVal reflect.Value) error {
	t := structVal.Type()
	pos := 0
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" {
			continue
		}
		if pos >= len(args) {
			break
		}
		if err := DecodeValue(args[pos], structVal.Field(i)); err != nil {
			return fmt.Errorf("field %q: %w", fieldTagName(field), err)
		}
		pos++
	}
	return nil
}

func fieldTagName(field reflect.StructField) string {
	if tag, ok := field.Tag.Lookup(epcTag); ok && tag != "" {
		return tag
	}
	return toLowerFirst(field.Name)
}

func toLowerFirst(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'A' && b[0] <= 'Z' {
		b[0] += 'a' - 'A'
	}
	return string(b)
}

// DecodeValue coerces v into dst, dst must be an addressable, settable
// reflect.Value (typically obtained from reflect.ValueOf(ptr).Elem() or a
// struct field).
func DecodeValue(v sexp.Value, dst reflect.Value) error {
	switch dst.Kind() {
	case reflect.String:
		s, ok := v.Text()
		if !ok {
			sym, ok := v.Symbol()
			if !ok {
				return fmt.Errorf("expected string, got %s", v.GoString())
			}
			s = sym
		}
		dst.SetString(s)
		return nil

	case reflect.Bool:
		if v.IsNil() {
			dst.SetBool(false)
			return nil
		}
		if sym, ok := v.Symbol(); ok && sym == "t" {
			dst.SetBool(true)
			return nil
		}
		dst.SetBool(true)
		return nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := v.Integer()
		if !ok {
			f, ok := v.Float()
			if !ok {
				return fmt.Errorf("expected integer, got %s", v.GoString())
			}
			n = int64(f)
		}
		dst.SetInt(n)
		return nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, ok := v.Integer()
		if !ok {
			return fmt.Errorf("expected integer, got %s", v.GoString())
		}
		if n < 0 {
			return fmt.Errorf("expected non-negative integer, got %d", n)
		}
		dst.SetUint(uint64(n))
		return nil

	case reflect.Float32, reflect.Float64:
		f, ok := v.Float()
		if !ok {
			n, ok := v.Integer()
			if !ok {
				return fmt.Errorf("expected number, got %s", v.GoString())
			}
			f = float64(n)
		}
		dst.SetFloat(f)
		return nil

	case reflect.Slice:
		if dst.Type().Elem().Kind() == reflect.Uint8 {
			s, ok := v.Text()
			if !ok {
				return fmt.Errorf("expected string, got %s", v.GoString())
			}
			dst.SetBytes([]byte(s))
			return nil
		}
		items, ok := v.Slice()
		if !ok {
			return fmt.Errorf("expected list, got %s", v.GoString())
		}
		out := reflect.MakeSlice(dst.Type(), len(items), len(items))
		for i, item := range items {
			if err := DecodeValue(item, out.Index(i)); err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
		}
		dst.Set(out)
		return nil

	case reflect.Ptr:
		if v.IsNil() {
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		elem := reflect.New(dst.Type().Elem())
		if err := DecodeValue(v, elem.Elem()); err != nil {
			return err
		}
		dst.Set(elem)
		return nil

	case reflect.Struct:
		alist, ok := asAssocList(v)
		if !ok {
			return fmt.Errorf("expected association list for %s, got %s", dst.Type(), v.GoString())
		}
		return decodeStructFromAlist(alist, dst)

	case reflect.Interface:
		dst.Set(reflect.ValueOf(toInterface(v)))
		return nil

	default:
		return fmt.Errorf("epc: unsupported decode kind %s", dst.Kind())
	}
}

// toInterface converts v to a plain Go value for an `interface{}` target:
// strings (for both strings and symbols), int64s, float64s, nil, or
// []interface{} for proper lists; anything else becomes its GoString form.
func toInterface(v sexp.Value) interface{} {
	if v.IsNil() {
		return nil
	}
	if s, ok := v.Text(); ok {
		return s
	}
	if n, ok := v.Integer(); ok {
		return n
	}
	if f, ok := v.Float(); ok {
		return f
	}
	if sym, ok := v.Symbol(); ok {
		return sym
	}
	if items, ok := v.Slice(); ok {
		out := make([]interface{}, len(items))
		for i, item := range items {
			out[i] = toInterface(item)
		}
		return out
	}
	return v.GoString()
}

// EncodeValue converts a Go value into a sexp.Value for the wire, the
// inverse of DecodeValue. Structs encode as association lists keyed by
// their epc tag (or the field name with its first letter lower-cased).
func EncodeValue(goVal interface{}) (sexp.Value, error) {
	return encodeReflect(reflect.ValueOf(goVal))
}

func encodeReflect(rv reflect.Value) (sexp.Value, error) {
	if !rv.IsValid() {
		return sexp.Nil, nil
	}

	switch rv.Kind() {
	case reflect.String:
		return sexp.Str(rv.String()), nil
	case reflect.Bool:
		return sexp.Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return sexp.Int64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return sexp.Int64(int64(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return sexp.Float64(rv.Float()), nil
	case reflect.Ptr:
		if rv.IsNil() {
			return sexp.Nil, nil
		}
		return encodeReflect(rv.Elem())
	case reflect.Interface:
		if rv.IsNil() {
			return sexp.Nil, nil
		}
		return encodeReflect(rv.Elem())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return sexp.Str(string(rv.Bytes())), nil
		}
		n := rv.Len()
		items := make([]sexp.Value, n)
		for i := 0; i < n; i++ {
			v, err := encodeReflect(rv.Index(i))
			if err != nil {
				return sexp.Nil, fmt.Errorf("index %d: %w", i, err)
			}
			items[i] = v
		}
		return sexp.List(items...), nil
	case reflect.Map:
		entries := make([]sexp.Value, 0, rv.Len())
		for _, key := range rv.MapKeys() {
			v, err := encodeReflect(rv.MapIndex(key))
			if err != nil {
				return sexp.Nil, err
			}
			entries = append(entries, sexp.Cons(sexp.Sym(fmt.Sprint(key.Interface())), v))
		}
		return sexp.List(entries...), nil
	case reflect.Struct:
		t := rv.Type()
		entries := make([]sexp.Value, 0, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if field.PkgPath != "" {
				continue
			}
			v, err := encodeReflect(rv.Field(i))
			if err != nil {
				return sexp.Nil, fmt.Errorf("field %q: %w", field.Name, err)
			}
			entries = append(entries, sexp.Cons(sexp.Sym(fieldTagName(field)), v))
		}
		return sexp.List(entries...), nil
	default:
		return sexp.Nil, fmt.Errorf("epc: unsupported encode kind %s", rv.Kind())
	}
}
