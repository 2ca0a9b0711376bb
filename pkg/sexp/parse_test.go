package sexp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAtoms(t *testing.T) {
	cases := []struct {
		in   string
		want Value
	}{
		{"nil", Nil},
		{"()", Nil},
		{"foo", Sym("foo")},
		{"echo", Sym("echo")},
		{"42", Int64(42)},
		{"-7", Int64(-7)},
		{"+3", Int64(3)},
		{"3.14", Float64(3.14)},
		{".5", Float64(.5)},
		{"5.", Float64(5)},
		{"1e10", Float64(1e10)},
		{`"hi"`, Str("hi")},
		{`"a\nb"`, Str("a\nb")},
		{`"a\"b"`, Str(`a"b`)},
		{`"a\x01b"`, Str("a\x01b")},
		{`"a\x1bb"`, Str("a\x1bb")},
		{"#t", Sym("#t")},
		{"#f", Sym("#f")},
	}

	for _, c := range cases {
		got, err := Parse(c.in)
		require.NoError(t, err, c.in)
		assert.True(t, Equal(c.want, got), "parse(%q) = %#v, want %#v", c.in, got, c.want)
	}
}

func TestParseLists(t *testing.T) {
	got, err := Parse(`(call 1 echo ("hi"))`)
	require.NoError(t, err)

	want := List(Sym("call"), Int64(1), Sym("echo"), List(Str("hi")))
	assert.True(t, Equal(want, got))
}

func TestParseDottedPair(t *testing.T) {
	got, err := Parse(`(a . b)`)
	require.NoError(t, err)

	want := Cons(Sym("a"), Sym("b"))
	assert.True(t, Equal(want, got))

	_, cdr, ok := got.Pair()
	require.True(t, ok)
	sym, ok := cdr.Symbol()
	require.True(t, ok)
	assert.Equal(t, "b", sym)
}

func TestParseAssocList(t *testing.T) {
	got, err := Parse(`((name . "echo") (args . "args"))`)
	require.NoError(t, err)

	items, ok := got.Slice()
	require.True(t, ok)
	require.Len(t, items, 2)

	car, cdr, ok := items[0].Pair()
	require.True(t, ok)
	sym, _ := car.Symbol()
	assert.Equal(t, "name", sym)
	str, _ := cdr.Text()
	assert.Equal(t, "echo", str)
}

func TestParseVector(t *testing.T) {
	got, err := Parse(`[1 2 "three"]`)
	require.NoError(t, err)

	items, ok := got.Vector()
	require.True(t, ok)
	require.Len(t, items, 3)
}

func TestParseErrors(t *testing.T) {
	cases := []string{
		`(`,
		`"unterminated`,
		`)`,
		`#z`,
	}
	for _, in := range cases {
		_, err := Parse(in)
		assert.Error(t, err, in)
	}
}

func TestRoundTripParsePrintParse(t *testing.T) {
	inputs := []string{
		"nil",
		"foo",
		"-42",
		"3.5",
		`"quoted \"string\" with \\ and \n newline"`,
		"(call 7 echo (\"hello\"))",
		"(a . b)",
		"(return-error 13 (wrong-type-argument \"bad arg 1: x\" ()))",
		"[1 2 3]",
	}

	for _, in := range inputs {
		v1, err := Parse(in)
		require.NoError(t, err, in)

		printed := Print(v1)
		v2, err := Parse(printed)
		require.NoError(t, err, printed)

		assert.True(t, Equal(v1, v2), "round trip mismatch for %q: printed=%q", in, printed)
	}
}

func TestRoundTripValuePrintParse(t *testing.T) {
	values := []Value{
		Nil,
		Sym("echo"),
		Int64(0),
		Int64(-1),
		Float64(2.0),
		Str("a\tb\rc"),
		Str("a\x01b\x1bc"),
		List(Int64(1), Int64(2), Int64(3)),
		Cons(Sym("a"), Int64(5)),
		Vec([]Value{Int64(1), Str("x")}),
	}

	for _, v := range values {
		printed := Print(v)
		got, err := Parse(printed)
		require.NoError(t, err, printed)
		assert.True(t, Equal(v, got), "printed=%q", printed)
	}
}
