// Package codec implements the EPC wire framing: a six lowercase hex digit
// length prefix followed by exactly that many bytes of UTF-8 S-expression
// payload. It is the lowest layer of the runtime -- stateless beyond the
// underlying stream, with no buffering that crosses frame boundaries, the
// same way the reference codebase's meshage client drives a raw net.Conn
// with one encoder and one decoder per direction.
package codec

import (
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/sandia-minimega/epc/pkg/epclog"
	"github.com/sandia-minimega/epc/pkg/sexp"
)

// MaxPayload is the largest payload a frame may carry: a six hex digit
// length prefix can address at most 0xFFFFFF bytes.
const MaxPayload = 0xFFFFFF

const prefixLen = 6

// FrameTooLarge is returned by Encode when the printed payload would not fit
// in the six hex digit length prefix.
type FrameTooLarge struct {
	Len int
}

func (e *FrameTooLarge) Error() string {
	return fmt.Sprintf("frame too large: %d bytes exceeds max %d", e.Len, MaxPayload)
}

// FramingError reports that the six byte length prefix was not valid lower
// case hex.
type FramingError struct {
	Prefix string
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("invalid frame length prefix %q", e.Prefix)
}

// ErrConnectionClosed is returned (wrapped) when the peer closes the stream
// cleanly or unexpectedly while a frame is only partially read.
var ErrConnectionClosed = errors.New("codec: connection closed")

// Encoder writes frames to an underlying stream. A single Encoder must not
// be used concurrently from multiple goroutines -- the session's writer
// goroutine is the only caller, which is what makes frame writes atomic.
type Encoder struct {
	w io.Writer
}

// NewEncoder wraps w as a frame encoder.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode prints v, checks its length fits the frame's length prefix, and
// writes the length-prefixed frame to the stream in a single Write call so
// that a concurrent reader never observes a partial frame.
func (e *Encoder) Encode(v sexp.Value) error {
	payload := []byte(sexp.Print(v))
	if len(payload) > MaxPayload {
		return &FrameTooLarge{Len: len(payload)}
	}

	buf := make([]byte, 0, prefixLen+len(payload))
	buf = appendHexLen(buf, len(payload))
	buf = append(buf, payload...)

	if epclog.WillLog(epclog.DEBUG) {
		epclog.Debug("codec encode: %s", payload)
	}

	if _, err := e.w.Write(buf); err != nil {
		return errors.Wrap(err, "codec: write frame")
	}
	return nil
}

const hexDigits = "0123456789abcdef"

func appendHexLen(buf []byte, n int) []byte {
	var tmp [prefixLen]byte
	for i := prefixLen - 1; i >= 0; i-- {
		tmp[i] = hexDigits[n&0xf]
		n >>= 4
	}
	return append(buf, tmp[:]...)
}

// Decoder reads frames from an underlying stream. Like Encoder, a single
// Decoder must only be driven by one goroutine at a time; the session's
// reader goroutine is the sole caller.
type Decoder struct {
	r io.Reader
}

// NewDecoder wraps r as a frame decoder.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Decode reads one length-prefixed frame and parses its payload.
func (d *Decoder) Decode() (sexp.Value, error) {
	var prefix [prefixLen]byte
	if _, err := io.ReadFull(d.r, prefix[:]); err != nil {
		return sexp.Nil, wrapReadErr(err)
	}

	n, ok := parseHexLen(prefix[:])
	if !ok {
		return sexp.Nil, &FramingError{Prefix: string(prefix[:])}
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(d.r, payload); err != nil {
		return sexp.Nil, wrapReadErr(err)
	}

	v, err := sexp.Parse(string(payload))
	if err != nil {
		return sexp.Nil, errors.Wrap(err, "codec: parse payload")
	}

	if epclog.WillLog(epclog.DEBUG) {
		epclog.Debug("codec decode: %s", payload)
	}

	return v, nil
}

func wrapReadErr(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return errors.Wrap(ErrConnectionClosed, err.Error())
	}
	return errors.Wrap(err, "codec: read frame")
}

func parseHexLen(prefix []byte) (int, bool) {
	n := 0
	for _, c := range prefix {
		n <<= 4
		switch {
		case c >= '0' && c <= '9':
			n |= int(c - '0')
		case c >= 'a' && c <= 'f':
			n |= int(c-'a') + 10
		default:
			return 0, false
		}
	}
	return n, true
}
