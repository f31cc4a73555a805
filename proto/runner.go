package proto

import (
	"bytes"
	"time"
)

// RequestPhase tracks a PendingRequest's progress through the raw-REPL
// submit/execute/respond cycle (spec.md §4.4).
type RequestPhase int

const (
	PhaseSendRaw RequestPhase = iota
	PhaseSendPaste
	PhaseAwaitOK
	PhaseStdout
	PhaseStderr
	PhaseAwaitPrompt
	PhaseDone
)

// ResolveMode chooses when RunScript's caller-visible result is delivered.
type ResolveMode int

const (
	// ResolveOnCompletion delivers the result once the full four-landmark
	// response (OK, stdout, stderr, prompt) has been consumed. Default.
	ResolveOnCompletion ResolveMode = iota
	// ResolveFirstPrompt delivers an empty result the moment the device's
	// "OK" landmark is seen, i.e. as soon as it has accepted the
	// submission and begun executing it. The engine keeps draining stdout
	// and stderr in the background; a StreamingCallback is the only way
	// to observe them when this mode is used.
	ResolveFirstPrompt
)

// RunOptions configures a single RunScript call.
type RunOptions struct {
	Resolve           ResolveMode
	StreamingCallback func(chunk []byte)
	Timeout           time.Duration // 0 means no deadline
	DisableDedent     bool
}

// Result is the fully decoded outcome of a script submission.
type Result struct {
	Stdout    []byte
	Stderr    []byte
	Exception string
}

// Outcome pairs a Result with the error RunScript's caller should see —
// a *errs.ScriptExecutionError when Stderr is non-empty, one of the
// errs sentinels on cancellation/timeout/disconnection, or nil.
type Outcome struct {
	Result *Result
	Err    error
}

// PendingRequest is one in-flight or queued RunScript call. It carries no
// transport reference; the device package's loop drains bytes into it via
// Buffer and advances Phase.
type PendingRequest struct {
	ID     string
	Source []byte
	Opts   RunOptions

	Phase    RequestPhase
	Stdout   bytes.Buffer
	Stderr   bytes.Buffer
	Canceled bool

	// window is not used: the device package tracks the raw-paste budget
	// itself (the advertised window for the first chunk, then one
	// increment per CtrlA ack). cursor counts the Source bytes already
	// handed to the transport.
	window int
	cursor int

	resolved bool
	earlySent bool

	Done chan Outcome
}

// NewPendingRequest builds a request ready to enqueue. id is typically a
// freshly generated UUID string, used only for log correlation and to
// match a later cancel call to the right request.
func NewPendingRequest(id string, source string, opts RunOptions) *PendingRequest {
	src := source
	if !opts.DisableDedent {
		src = Dedent(src)
	}
	return &PendingRequest{
		ID:     id,
		Source: []byte(src),
		Opts:   opts,
		Phase:  PhaseSendRaw,
		Done:   make(chan Outcome, 1),
	}
}

// Remaining reports the unsent tail of Source.
func (r *PendingRequest) Remaining() []byte {
	return r.Source[r.cursor:]
}

// Advance marks n more bytes of Source as sent.
func (r *PendingRequest) Advance(n int) {
	r.cursor += n
}

// FullySent reports whether every byte of Source has been handed to the
// transport.
func (r *PendingRequest) FullySent() bool {
	return r.cursor >= len(r.Source)
}

// Resolved reports whether Done has already been signaled (either because
// the request finished normally, or because ResolveFirstPrompt already
// delivered an early result, or because it was canceled/timed out).
func (r *PendingRequest) Resolved() bool {
	return r.resolved
}

// MarkResolved records that Done has been signaled, so later completion
// of the same request does not attempt to send to Done twice.
func (r *PendingRequest) MarkResolved() {
	r.resolved = true
}

// EarlySent reports whether a ResolveFirstPrompt result has already been
// delivered for this request.
func (r *PendingRequest) EarlySent() bool {
	return r.earlySent
}

// MarkEarlySent records that the ResolveFirstPrompt result has been sent.
func (r *PendingRequest) MarkEarlySent() {
	r.earlySent = true
}
