// Package session owns the per-request mutable state of one chat exchange:
// the growing answer text, the deduplicated citation list and the latest
// retrieval metadata. The server-side session (identified by the caller's
// sessionId) persists across requests; an Accumulator does not — each send
// gets a fresh one.
package session

import (
	"sync"
	"time"

	"github.com/jlx1999s/RAGAgent/internal/stream"
)

// Phase is the lifecycle state of one chat exchange.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStreaming
	PhaseDone
	PhaseError
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStreaming:
		return "streaming"
	case PhaseDone:
		return "done"
	case PhaseError:
		return "error"
	case PhaseAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether the phase is one of the end states.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseError || p == PhaseAborted
}

// DisplayCitation is a citation with its local 1-based display index. The
// index reflects arrival order, not the server's rank hint.
type DisplayCitation struct {
	stream.Citation
	DisplayIndex int
}

// Result is the frozen outcome of one exchange, handed out after the phase
// becomes terminal. Partial answer text accumulated before an error is
// preserved; a truncated answer is still informative.
type Result struct {
	SessionID     string
	Mode          string
	Question      string
	Answer        string
	Citations     []DisplayCitation
	Metadata      map[string]any
	UsedRetrieval bool
	SafetyChecked bool
	Phase         Phase
	ErrMessage    string
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Accumulator reconciles stream events into session state. It implements
// stream.Handler. All event callbacks run on the goroutine that owns the
// stream; the mutex exists because Abort and Result may be called from the
// caller's goroutine.
type Accumulator struct {
	mu sync.Mutex

	sessionID string
	mode      string
	question  string

	answer        []byte
	citations     []DisplayCitation
	seen          map[string]struct{}
	metadata      map[string]any
	usedRetrieval bool
	safetyChecked bool
	phase         Phase
	errMsg        string
	startedAt     time.Time
	finishedAt    time.Time

	done chan struct{}
}

// New creates an accumulator for one exchange and moves it to streaming.
func New(sessionID, mode, question string) *Accumulator {
	return &Accumulator{
		sessionID: sessionID,
		mode:      mode,
		question:  question,
		seen:      make(map[string]struct{}),
		phase:     PhaseStreaming,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// Done is closed once the phase becomes terminal.
func (a *Accumulator) Done() <-chan struct{} {
	return a.done
}

// Phase returns the current lifecycle phase.
func (a *Accumulator) Phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

// OnToken appends answer text. The server is trusted to bound total answer
// length; no cap is enforced here.
func (a *Accumulator) OnToken(e stream.TokenEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase != PhaseStreaming {
		return
	}
	a.answer = append(a.answer, e.Text...)
}

// OnCitation appends a citation unless its id was already seen in this
// exchange. Arrival order assigns the display index.
func (a *Accumulator) OnCitation(e stream.CitationEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase != PhaseStreaming {
		return
	}
	id := e.Citation.CitationID
	if _, dup := a.seen[id]; dup {
		return
	}
	a.seen[id] = struct{}{}
	a.citations = append(a.citations, DisplayCitation{
		Citation:     e.Citation,
		DisplayIndex: len(a.citations) + 1,
	})
}

// OnMetadata replaces the metadata snapshot, or merges key by key when the
// event is partial (quality assessment, safety warning).
func (a *Accumulator) OnMetadata(e stream.MetadataEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase != PhaseStreaming {
		return
	}
	if !e.Partial {
		a.metadata = e.Payload
		return
	}
	if a.metadata == nil {
		a.metadata = make(map[string]any, len(e.Payload))
	}
	for k, v := range e.Payload {
		a.metadata[k] = v
	}
}

// OnDone finalizes the exchange. Calling any finalizer after the phase is
// already terminal is a no-op.
func (a *Accumulator) OnDone(e stream.DoneEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase.Terminal() {
		return
	}
	a.usedRetrieval = e.UsedRetrieval
	a.safetyChecked = e.SafetyChecked
	a.finalizeLocked(PhaseDone, "")
}

// OnError finalizes the exchange with a failure message.
func (a *Accumulator) OnError(e stream.ErrorEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finalizeLocked(PhaseError, e.Message)
}

// Abort finalizes the exchange as aborted. Treated like an error for state
// purposes but not reported as a failure to the user.
func (a *Accumulator) Abort() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finalizeLocked(PhaseAborted, "")
}

func (a *Accumulator) finalizeLocked(p Phase, errMsg string) {
	if a.phase.Terminal() {
		return
	}
	a.phase = p
	a.errMsg = errMsg
	a.finishedAt = time.Now()
	close(a.done)
}

// Result returns a snapshot of the session state. After the phase is
// terminal the snapshot is the frozen, final outcome.
func (a *Accumulator) Result() *Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	citations := make([]DisplayCitation, len(a.citations))
	copy(citations, a.citations)

	var metadata map[string]any
	if a.metadata != nil {
		metadata = make(map[string]any, len(a.metadata))
		for k, v := range a.metadata {
			metadata[k] = v
		}
	}

	return &Result{
		SessionID:     a.sessionID,
		Mode:          a.mode,
		Question:      a.question,
		Answer:        string(a.answer),
		Citations:     citations,
		Metadata:      metadata,
		UsedRetrieval: a.usedRetrieval,
		SafetyChecked: a.safetyChecked,
		Phase:         a.phase,
		ErrMessage:    a.errMsg,
		StartedAt:     a.startedAt,
		FinishedAt:    a.finishedAt,
	}
}
