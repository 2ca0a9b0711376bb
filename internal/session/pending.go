package session

import (
	"sync"

	"github.com/sandia-minimega/epc/pkg/sexp"
)

// pendingCall tracks one outstanding locally-issued call, keyed by UID in
// the session's pending table. It is completed at most once, either by the
// reader on a matching response or by session shutdown; a caller that gives
// up on timeout or cancellation only removes it from the table.
type pendingCall struct {
	uid  int64
	done chan struct{}

	once  sync.Once
	value sexp.Value
	err   error
}

func newPendingCall(uid int64) *pendingCall {
	return &pendingCall{uid: uid, done: make(chan struct{})}
}

func (pc *pendingCall) complete(value sexp.Value, err error) {
	pc.once.Do(func() {
		pc.value = value
		pc.err = err
		close(pc.done)
	})
}

// pendingTable is the UID -> pendingCall map shared between the reader
// goroutine (completes entries on response) and callers (insert on issue,
// remove on timeout/cancel/close). Lookup and mutation are O(1) under a
// single mutex; holds never span I/O.
type pendingTable struct {
	mu      sync.Mutex
	entries map[int64]*pendingCall
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[int64]*pendingCall)}
}

func (t *pendingTable) add(pc *pendingCall) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[pc.uid] = pc
}

// take removes and returns the pending entry for uid, if present. A
// second completion attempt for the same UID (a late duplicate response)
// finds nothing and is silently discarded.
func (t *pendingTable) take(uid int64) (*pendingCall, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pc, ok := t.entries[uid]
	if ok {
		delete(t.entries, uid)
	}
	return pc, ok
}

func (t *pendingTable) remove(uid int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, uid)
}

// drain removes every pending entry and returns them, used on session
// shutdown to fail every outstanding call.
func (t *pendingTable) drain() []*pendingCall {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*pendingCall, 0, len(t.entries))
	for uid, pc := range t.entries {
		out = append(out, pc)
		delete(t.entries, uid)
	}
	return out
}
