// Package chat owns the lifecycle of chat exchanges against the RAG backend:
// at most one stream is active per controller, a new send tears down the
// previous stream before any bytes are read, and every exchange resolves to
// exactly one terminal session state.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jlx1999s/RAGAgent/internal/api/ragchat"
	"github.com/jlx1999s/RAGAgent/internal/session"
	"github.com/jlx1999s/RAGAgent/internal/stream"
)

// Controller drives chat requests. The zero value is not usable; create one
// with NewController.
type Controller struct {
	client *ragchat.Client
	logger *slog.Logger

	mu     sync.Mutex
	active *Handle
}

// NewController creates a controller using the given API client.
func NewController(client *ragchat.Client, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{client: client, logger: logger}
}

// Handle is the ownership token for one in-flight exchange.
type Handle struct {
	acc    *session.Accumulator
	disp   *stream.Dispatcher
	cancel context.CancelFunc
}

// Abort cancels the exchange. Frames already read but not yet delivered are
// discarded; the session finalizes as aborted, which is not a user-visible
// failure.
func (h *Handle) Abort() {
	h.disp.Cancel()
	h.cancel()
	h.acc.Abort()
}

// Wait blocks until the exchange reaches a terminal phase or ctx expires,
// then returns the frozen session result.
func (h *Handle) Wait(ctx context.Context) (*session.Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.acc.Done():
		return h.acc.Result(), nil
	}
}

// Result returns the current session snapshot without waiting.
func (h *Handle) Result() *session.Result {
	return h.acc.Result()
}

// Send aborts any in-flight exchange, then opens a new one for message. The
// extra handler, if non-nil, observes every event after the accumulator has
// applied it; UI callbacks go there. Events flow on a dedicated goroutine;
// use Wait or the extra handler to observe progress.
func (c *Controller) Send(ctx context.Context, message string, opts SendOptions, extra stream.Handler) (*Handle, error) {
	if message == "" {
		return nil, fmt.Errorf("message must not be empty")
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeGeneral
	}
	if mode != ModeGeneral && mode != ModeMedical {
		return nil, fmt.Errorf("unknown chat mode %q", mode)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	acc := session.New(opts.SessionID, string(mode), message)

	var handler stream.Handler = acc
	if extra != nil {
		handler = teeHandler{acc, extra}
	}

	h := &Handle{
		acc:    acc,
		disp:   stream.NewDispatcher(handler, c.logger),
		cancel: cancel,
	}

	c.mu.Lock()
	if c.active != nil {
		// Abort-before-replace: the previous stream's callbacks are
		// suppressed before the new request is issued, so two accumulators
		// never write concurrently.
		c.active.Abort()
	}
	c.active = h
	c.mu.Unlock()

	go c.run(streamCtx, h, mode, buildRequest(mode, message, opts))

	return h, nil
}

func (c *Controller) run(ctx context.Context, h *Handle, mode Mode, req *ragchat.ChatRequest) {
	defer c.release(h)
	defer h.cancel()

	var (
		resp *ragchat.ChatResponse
		err  error
	)
	switch mode {
	case ModeMedical:
		resp, err = c.client.MedicalChat(ctx, req)
	default:
		resp, err = c.client.Chat(ctx, req)
	}
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled before any frame arrived, through Abort or through
			// the caller's own context. Finalize so Wait cannot hang;
			// Abort is idempotent when the handle already did it.
			h.acc.Abort()
			return
		}
		// Transport failure before any frame: one synthesized error event,
		// never a silent partial outcome. Retrying is the caller's call.
		c.logger.Warn("chat request failed",
			slog.String("mode", string(mode)),
			slog.String("session_id", req.SessionID),
			slog.String("error", err.Error()))
		h.disp.Dispatch(stream.ErrorEvent{Message: err.Error()})
		return
	}

	if resp.Aggregate != nil {
		replayAggregate(resp.Aggregate, h.disp)
		return
	}

	defer resp.Stream.Close()
	if err := stream.NewDecoder(resp.Stream, c.logger).Decode(ctx, h.disp); err != nil && ctx.Err() == nil {
		c.logger.Warn("stream ended with read error",
			slog.String("mode", string(mode)),
			slog.String("session_id", req.SessionID),
			slog.String("error", err.Error()))
	}
	if ctx.Err() != nil {
		// Cancellation mid-stream resolves as aborted, not as a failure.
		h.disp.Cancel()
		h.acc.Abort()
	}
}

func (c *Controller) release(h *Handle) {
	c.mu.Lock()
	if c.active == h {
		c.active = nil
	}
	c.mu.Unlock()
}

// Abort cancels the active exchange, if any.
func (c *Controller) Abort() {
	c.mu.Lock()
	h := c.active
	c.active = nil
	c.mu.Unlock()
	if h != nil {
		h.Abort()
	}
}

// ClearSession clears the server-side conversation history for a session in
// the given mode.
func (c *Controller) ClearSession(ctx context.Context, mode Mode, sessionID string) error {
	var err error
	switch mode {
	case ModeMedical:
		_, err = c.client.ClearMedicalChat(ctx, sessionID)
	default:
		_, err = c.client.ClearChat(ctx, sessionID)
	}
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// teeHandler delivers each event to every handler in order.
type teeHandler []stream.Handler

func (t teeHandler) OnToken(e stream.TokenEvent) {
	for _, h := range t {
		h.OnToken(e)
	}
}

func (t teeHandler) OnCitation(e stream.CitationEvent) {
	for _, h := range t {
		h.OnCitation(e)
	}
}

func (t teeHandler) OnMetadata(e stream.MetadataEvent) {
	for _, h := range t {
		h.OnMetadata(e)
	}
}

func (t teeHandler) OnDone(e stream.DoneEvent) {
	for _, h := range t {
		h.OnDone(e)
	}
}

func (t teeHandler) OnError(e stream.ErrorEvent) {
	for _, h := range t {
		h.OnError(e)
	}
}
