package stream

import (
	"log/slog"
	"sync/atomic"
)

// Dispatcher routes decoded events to a Handler, strictly in arrival order.
// It owns the terminal and cancellation bookkeeping: nothing is delivered
// after a Done or Error event, and nothing is delivered once Cancel has been
// called, even for events already read off the socket.
type Dispatcher struct {
	handler   Handler
	logger    *slog.Logger
	cancelled atomic.Bool
	terminal  bool
}

// NewDispatcher creates a dispatcher delivering events to h.
func NewDispatcher(h Handler, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{handler: h, logger: logger}
}

// Cancel stops all further delivery. Safe to call from any goroutine; the
// stream-owning goroutine checks the flag before each handler invocation.
func (d *Dispatcher) Cancel() {
	d.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (d *Dispatcher) Cancelled() bool {
	return d.cancelled.Load()
}

// Terminated reports whether a terminal event has been delivered.
func (d *Dispatcher) Terminated() bool {
	return d.terminal
}

// Dispatch delivers one event to the handler. Events arriving after a
// terminal event or after cancellation are dropped. A handler panic is
// recovered and logged so a faulty callback cannot stall byte consumption.
func (d *Dispatcher) Dispatch(ev Event) {
	if d.terminal || d.cancelled.Load() {
		return
	}

	switch ev.(type) {
	case DoneEvent, ErrorEvent:
		d.terminal = true
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("stream handler panicked",
				slog.String("event", ev.eventKind()),
				slog.Any("panic", r))
		}
	}()

	switch e := ev.(type) {
	case TokenEvent:
		d.handler.OnToken(e)
	case CitationEvent:
		d.handler.OnCitation(e)
	case MetadataEvent:
		d.handler.OnMetadata(e)
	case DoneEvent:
		d.handler.OnDone(e)
	case ErrorEvent:
		d.handler.OnError(e)
	}
}
