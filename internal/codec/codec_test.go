package codec

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandia-minimega/epc/pkg/sexp"
)

func TestEncodeTrivialCall(t *testing.T) {
	v := sexp.List(sexp.Sym("call"), sexp.Int64(1), sexp.Sym("echo"), sexp.List(sexp.Str("hi")))

	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(v))

	assert.Equal(t, `000014(call 1 echo ("hi"))`, buf.String())
}

func TestDecodeMatchesEncode(t *testing.T) {
	v := sexp.List(sexp.Sym("call"), sexp.Int64(1), sexp.Sym("echo"), sexp.List(sexp.Str("hi")))

	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(v))

	got, err := NewDecoder(&buf).Decode()
	require.NoError(t, err)
	assert.True(t, sexp.Equal(v, got))
}

func TestEncodeDecodeRoundTripMultipleFrames(t *testing.T) {
	values := []sexp.Value{
		sexp.List(sexp.Sym("return"), sexp.Int64(7), sexp.List(sexp.Str("hello"))),
		sexp.List(sexp.Sym("methods"), sexp.Int64(2)),
		sexp.Nil,
	}

	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for _, v := range values {
		require.NoError(t, enc.Encode(v))
	}

	dec := NewDecoder(&buf)
	for _, want := range values {
		got, err := dec.Decode()
		require.NoError(t, err)
		assert.True(t, sexp.Equal(want, got))
	}
}

func TestFrameTooLarge(t *testing.T) {
	huge := strings.Repeat("a", MaxPayload+1)
	var buf bytes.Buffer
	err := NewEncoder(&buf).Encode(sexp.Str(huge))
	require.Error(t, err)

	var tooLarge *FrameTooLarge
	assert.ErrorAs(t, err, &tooLarge)
}

func TestDecodeFramingError(t *testing.T) {
	r := strings.NewReader("zzzzzz()")
	_, err := NewDecoder(r).Decode()
	require.Error(t, err)

	var framing *FramingError
	assert.ErrorAs(t, err, &framing)
}

func TestDecodeConnectionClosedShortPrefix(t *testing.T) {
	r := strings.NewReader("00001")
	_, err := NewDecoder(r).Decode()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnectionClosed))
}

func TestDecodeConnectionClosedShortPayload(t *testing.T) {
	r := strings.NewReader("00000a(")
	_, err := NewDecoder(r).Decode()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnectionClosed))
}

func TestDecodeParseError(t *testing.T) {
	r := strings.NewReader("000001(")
	_, err := NewDecoder(r).Decode()
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrConnectionClosed))
}

func TestDecodeEOFAtFrameBoundary(t *testing.T) {
	// A clean EOF exactly between frames is a normal connection close, not
	// a framing error.
	r := strings.NewReader("")
	_, err := NewDecoder(r).Decode()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnectionClosed) || errors.Is(err, io.EOF))
}
