package sexp

import (
	"strconv"
	"strings"
)

// Print renders v in canonical form: no unnecessary whitespace, strings
// double-quoted with escapes for '"', '\\' and control characters, proper
// lists in list notation, improper lists using a dotted tail.
func Print(v Value) string {
	var b strings.Builder
	writeValue(&b, v)
	return b.String()
}

func writeValue(b *strings.Builder, v Value) {
	switch v.kind {
	case KindNil:
		b.WriteString("nil")
	case KindSymbol:
		b.WriteString(v.sym)
	case KindInteger:
		b.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		writeFloat(b, v.f)
	case KindString:
		writeString(b, v.str)
	case KindCons:
		writeCons(b, v)
	case KindVector:
		writeVector(b, v)
	}
}

func writeFloat(b *strings.Builder, f float64) {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	// Force a decimal point so round-tripping never turns a Float into an
	// Integer on re-parse (e.g. 5.0 must not print as "5").
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	b.WriteString(s)
}

func writeString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			if c < 0x20 {
				b.WriteString(`\x`)
				const hex = "0123456789abcdef"
				b.WriteByte(hex[c>>4])
				b.WriteByte(hex[c&0xf])
			} else {
				b.WriteByte(c)
			}
		}
	}
	b.WriteByte('"')
}

func writeCons(b *strings.Builder, v Value) {
	b.WriteByte('(')
	first := true
	for {
		if !first {
			b.WriteByte(' ')
		}
		first = false

		writeValue(b, *v.car)

		switch v.cdr.kind {
		case KindNil:
			b.WriteByte(')')
			return
		case KindCons:
			v = *v.cdr
			continue
		default:
			b.WriteString(" . ")
			writeValue(b, *v.cdr)
			b.WriteByte(')')
			return
		}
	}
}

func writeVector(b *strings.Builder, v Value) {
	b.WriteByte('[')
	for i, item := range v.vec {
		if i > 0 {
			b.WriteByte(' ')
		}
		writeValue(b, item)
	}
	b.WriteByte(']')
}
