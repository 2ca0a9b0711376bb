// Package session implements the per-connection EPC peer: a full-duplex
// loop that multiplexes concurrent outgoing calls and incoming method
// invocations over a single io.ReadWriteCloser, the way the reference
// codebase's meshage client drives one net.Conn with paired reader/writer
// goroutines and a UID-keyed transaction table.
package session

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/sandia-minimega/epc/internal/codec"
	"github.com/sandia-minimega/epc/internal/registry"
	"github.com/sandia-minimega/epc/pkg/epclog"
	"github.com/sandia-minimega/epc/pkg/sexp"
)

// outboundQueueSize bounds how many frames may be buffered waiting for the
// writer goroutine before a sender blocks.
const outboundQueueSize = 256

// Session drives one EPC connection. Client and server are structurally
// identical past connection establishment: either side may Call the other
// and either side may serve inbound calls against its Registry.
type Session struct {
	id uuid.UUID

	stream io.ReadWriteCloser
	enc    *codec.Encoder
	dec    *codec.Decoder

	registry *registry.Registry

	uidCounter int64
	pending    *pendingTable

	outbound chan sexp.Value

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error

	onClose func(error)

	dispatchWG sync.WaitGroup
}

// New creates a Session over stream, dispatching inbound calls against reg.
// reg is shared by reference -- registering methods on it after New (but
// before or during Start) is safe and takes effect for subsequent calls.
func New(stream io.ReadWriteCloser, reg *registry.Registry) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:       uuid.New(),
		stream:   stream,
		enc:      codec.NewEncoder(stream),
		dec:      codec.NewDecoder(stream),
		registry: reg,
		pending:  newPendingTable(),
		outbound: make(chan sexp.Value, outboundQueueSize),
		ctx:      ctx,
		cancel:   cancel,
		closed:   make(chan struct{}),
	}
}

// ID returns a per-process-lifetime identifier for this session, used only
// in log lines -- it never appears on the wire.
func (s *Session) ID() uuid.UUID { return s.id }

// Registry returns the session's method registry.
func (s *Session) Registry() *registry.Registry { return s.registry }

// OnClose installs a callback invoked exactly once when the session
// terminates, with the error that caused shutdown (nil for a caller-
// initiated Close). Must be called before Start to avoid a race with an
// immediate failure.
func (s *Session) OnClose(fn func(error)) { s.onClose = fn }

// Start spawns the reader and writer goroutines and returns immediately;
// the session runs until the stream fails or Close is called.
func (s *Session) Start() {
	go s.readLoop()
	go s.writeLoop()
}

func (s *Session) writeLoop() {
	for {
		select {
		case v := <-s.outbound:
			if err := s.enc.Encode(v); err != nil {
				s.shutdown(errors.Wrap(err, "session: write frame"))
				return
			}
		case <-s.closed:
			return
		}
	}
}

func (s *Session) readLoop() {
	for {
		v, err := s.dec.Decode()
		if err != nil {
			s.shutdown(errors.Wrap(err, "session: read frame"))
			return
		}
		s.handleFrame(v)
	}
}

// enqueue schedules v for the writer, discarding it silently if the
// session has already shut down.
func (s *Session) enqueue(v sexp.Value) {
	select {
	case s.outbound <- v:
	case <-s.closed:
	}
}

func (s *Session) handleFrame(v sexp.Value) {
	items, ok := v.Slice()
	if !ok || len(items) == 0 {
		s.shutdown(&ProtocolError{Message: "malformed frame " + v.GoString()})
		return
	}

	head, ok := items[0].Symbol()
	if !ok {
		s.replyMalformed(items, "frame head must be a symbol")
		return
	}

	switch head {
	case tagCall:
		s.handleCall(items)
	case tagReturn:
		s.handleReturn(items)
	case tagReturnError:
		s.handleReturnError(items)
	case tagEpcError:
		s.handleEpcError(items)
	case tagMethods:
		s.handleMethods(items)
	default:
		s.handleUnknown(items)
	}
}

func (s *Session) handleCall(items []sexp.Value) {
	if len(items) != 4 {
		s.replyMalformed(items, "call: expected (call UID NAME ARGS)")
		return
	}
	uid, ok := items[1].Integer()
	if !ok {
		epclog.Warn("session %s: call with non-integer UID, dropping", s.id)
		return
	}
	name, ok := items[2].Symbol()
	if !ok {
		if s2, ok2 := items[2].Text(); ok2 {
			name = s2
		} else {
			s.enqueue(buildEpcError(uid, "call: method name must be a symbol or string"))
			return
		}
	}
	args, ok := items[3].Slice()
	if !ok {
		s.enqueue(buildEpcError(uid, "call: argument list must be a proper list"))
		return
	}

	s.dispatchWG.Add(1)
	go func() {
		defer s.dispatchWG.Done()
		s.dispatch(uid, name, args)
	}()
}

func (s *Session) dispatch(uid int64, name string, args []sexp.Value) {
	result, appErr := s.registry.Invoke(s.ctx, name, args)
	if appErr != nil {
		if epclog.WillLog(epclog.DEBUG) {
			epclog.Debug("session %s: call %d %s failed: %s", s.id, uid, name, appErr.Error())
		}
		s.enqueue(buildReturnError(uid, appErr.Class, appErr.Message, appErr.Backtrace))
		return
	}
	s.enqueue(buildReturn(uid, result))
}

func (s *Session) handleReturn(items []sexp.Value) {
	if len(items) != 3 {
		epclog.Warn("session %s: malformed return frame", s.id)
		return
	}
	uid, ok := items[1].Integer()
	if !ok {
		epclog.Warn("session %s: return with non-integer UID", s.id)
		return
	}
	pc, ok := s.pending.take(uid)
	if !ok {
		if epclog.WillLog(epclog.DEBUG) {
			epclog.Debug("session %s: discarding late return for UID %d", s.id, uid)
		}
		return
	}
	pc.complete(items[2], nil)
}

func (s *Session) handleReturnError(items []sexp.Value) {
	if len(items) != 3 {
		epclog.Warn("session %s: malformed return-error frame", s.id)
		return
	}
	uid, ok := items[1].Integer()
	if !ok {
		epclog.Warn("session %s: return-error with non-integer UID", s.id)
		return
	}
	pc, ok := s.pending.take(uid)
	if !ok {
		if epclog.WillLog(epclog.DEBUG) {
			epclog.Debug("session %s: discarding late return-error for UID %d", s.id, uid)
		}
		return
	}
	class, message, backtrace := parseReturnErrorPayload(items[2])
	pc.complete(sexp.Nil, appError(class, message, backtrace))
}

func (s *Session) handleEpcError(items []sexp.Value) {
	if len(items) != 3 {
		epclog.Warn("session %s: malformed epc-error frame", s.id)
		return
	}
	uid, ok := items[1].Integer()
	if !ok {
		epclog.Warn("session %s: epc-error with non-integer UID", s.id)
		return
	}
	message, _ := items[2].Text()
	pc, ok := s.pending.take(uid)
	if !ok {
		return
	}
	pc.complete(sexp.Nil, &ProtocolError{Message: message})
}

func (s *Session) handleMethods(items []sexp.Value) {
	if len(items) != 2 {
		s.replyMalformed(items, "methods: expected (methods UID)")
		return
	}
	uid, ok := items[1].Integer()
	if !ok {
		epclog.Warn("session %s: methods query with non-integer UID", s.id)
		return
	}
	s.enqueue(buildMethodsReturn(uid, s.registry.List()))
}

func (s *Session) handleUnknown(items []sexp.Value) {
	s.replyMalformed(items, "unknown frame tag")
}

// replyMalformed attempts to recover a UID from a malformed frame so it can
// reply with an epc-error; if no plausible UID is present the session
// cannot continue to correlate traffic on this stream and is torn down.
func (s *Session) replyMalformed(items []sexp.Value, reason string) {
	if len(items) >= 2 {
		if uid, ok := items[1].Integer(); ok {
			s.enqueue(buildEpcError(uid, reason))
			return
		}
	}
	s.shutdown(&ProtocolError{Message: reason})
}

// nextUID allocates the next outbound UID for this session's direction.
// UIDs start at 1 and never repeat within a session's lifetime.
func (s *Session) nextUID() int64 {
	return atomic.AddInt64(&s.uidCounter, 1)
}

// Call issues method synchronously: it allocates a UID, sends a call
// frame, and waits for the matching return/return-error/epc-error, the
// context's deadline, or session closure.
func (s *Session) Call(ctx context.Context, method string, args []sexp.Value) (sexp.Value, error) {
	call, err := s.Go(method, args)
	if err != nil {
		return sexp.Nil, err
	}
	return call.Wait(ctx)
}

// Call is an in-flight asynchronous invocation, returned by Go. It mirrors
// the net/rpc Client.Go/Call split: Go returns immediately with a handle,
// Wait blocks for the result.
type Call struct {
	uid     int64
	session *Session
	pc      *pendingCall
}

// UID returns the UID this call was issued under.
func (c *Call) UID() int64 { return c.uid }

// Done returns a channel closed when the call completes.
func (c *Call) Done() <-chan struct{} { return c.pc.done }

// Wait blocks until the call completes, ctx is done, or the session
// closes, whichever happens first. On timeout or closure the pending
// entry is removed so a later matching response is discarded.
func (c *Call) Wait(ctx context.Context) (sexp.Value, error) {
	select {
	case <-c.pc.done:
		return c.pc.value, c.pc.err
	case <-ctx.Done():
		c.session.pending.remove(c.uid)
		return sexp.Nil, ErrTimeout
	case <-c.session.closed:
		c.session.pending.remove(c.uid)
		return sexp.Nil, ErrSessionClosed
	}
}

// Go issues method asynchronously and returns a handle immediately without
// waiting for a response.
func (s *Session) Go(method string, args []sexp.Value) (*Call, error) {
	select {
	case <-s.closed:
		return nil, ErrSessionClosed
	default:
	}

	uid := s.nextUID()
	pc := newPendingCall(uid)
	s.pending.add(pc)
	s.enqueue(buildCall(uid, method, sexp.List(args...)))

	return &Call{uid: uid, session: s, pc: pc}, nil
}

// Notify issues method as a fire-and-forget call: a UID is allocated (for
// peer-side tracing) but no pending entry is registered, so no response is
// ever awaited even if the peer sends one.
func (s *Session) Notify(method string, args []sexp.Value) error {
	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
	}

	uid := s.nextUID()
	s.enqueue(buildCall(uid, method, sexp.List(args...)))
	return nil
}

// QueryMethods asks the peer for its registered methods.
func (s *Session) QueryMethods(ctx context.Context) ([]registry.MethodInfo, error) {
	select {
	case <-s.closed:
		return nil, ErrSessionClosed
	default:
	}

	uid := s.nextUID()
	pc := newPendingCall(uid)
	s.pending.add(pc)
	s.enqueue(buildMethodsQuery(uid))

	call := &Call{uid: uid, session: s, pc: pc}
	v, err := call.Wait(ctx)
	if err != nil {
		return nil, err
	}

	methods, ok := parseMethodsResult(v)
	if !ok {
		return nil, &ProtocolError{Message: "methods: malformed response payload"}
	}
	return methods, nil
}

// Close terminates the session: the stream is closed, both goroutines
// exit, and every pending call fails with ErrSessionClosed. Idempotent.
func (s *Session) Close() error {
	s.shutdown(nil)
	return nil
}

// shutdown is the single path by which the session terminates, whether
// triggered by a local Close, a codec/read/write error, or an
// unrecoverable protocol violation. cause is nil for a caller-initiated
// Close.
func (s *Session) shutdown(cause error) {
	s.closeOnce.Do(func() {
		s.closeErr = cause
		close(s.closed)
		s.cancel()
		s.stream.Close()

		if cause != nil && !errors.Is(cause, codec.ErrConnectionClosed) {
			epclog.Error("session %s: terminating: %v", s.id, cause)
		}

		for _, pc := range s.pending.drain() {
			pc.complete(sexp.Nil, ErrSessionClosed)
		}

		if s.onClose != nil {
			s.onClose(cause)
		}
	})
}

// Err returns the error that caused shutdown, or nil if the session is
// still running or was closed locally without error.
func (s *Session) Err() error {
	select {
	case <-s.closed:
		return s.closeErr
	default:
		return nil
	}
}
