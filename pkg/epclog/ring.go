package epclog

import (
	"container/ring"
	"io"
	"sync"
)

// Ring is an io.Writer that keeps only the last size lines written to it.
// cmd/epcd registers one alongside the normal stderr logger so a running
// server can expose its recent log history over its epcd-log-history
// method without growing without bound.
type Ring struct {
	size int

	mu sync.Mutex
	r  *ring.Ring
}

// NewRing allocates a Ring holding up to size lines.
func NewRing(size int) *Ring {
	return &Ring{r: ring.New(size), size: size}
}

// Write implements io.Writer, storing p as one entry regardless of whether
// it contains embedded newlines -- callers should write one log line at a
// time, which is how golog.Logger uses its output.
func (l *Ring) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.r = l.r.Next()
	l.r.Value = string(p)
	return len(p), nil
}

// Dump returns the stored lines, oldest first.
func (l *Ring) Dump() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	res := make([]string, 0, l.size)
	l.r.Next().Do(func(v interface{}) {
		if v == nil {
			return
		}
		res = append(res, v.(string))
	})
	return res
}

var _ io.Writer = (*Ring)(nil)
