package stream

import (
	"context"
	"strings"
	"testing"
)

type panickyHandler struct {
	recordingHandler
	panicOnToken bool
}

func (h *panickyHandler) OnToken(e TokenEvent) {
	if h.panicOnToken {
		panic("handler bug")
	}
	h.recordingHandler.OnToken(e)
}

func TestDispatchNothingAfterTerminal(t *testing.T) {
	h := &recordingHandler{}
	d := NewDispatcher(h, nil)

	d.Dispatch(TokenEvent{Text: "a"})
	d.Dispatch(ErrorEvent{Message: "boom"})
	d.Dispatch(DoneEvent{UsedRetrieval: true})
	d.Dispatch(TokenEvent{Text: "late"})

	if len(h.events) != 2 {
		t.Fatalf("expected 2 events, got %d: %#v", len(h.events), h.events)
	}
	if _, ok := h.events[1].(ErrorEvent); !ok {
		t.Errorf("terminal event should be the error, got %T", h.events[1])
	}
	if !d.Terminated() {
		t.Error("dispatcher should report terminated")
	}
}

func TestDispatchNothingAfterCancel(t *testing.T) {
	h := &recordingHandler{}
	d := NewDispatcher(h, nil)

	d.Dispatch(TokenEvent{Text: "a"})
	d.Cancel()
	// Events already buffered off the socket before cancellation took effect
	// must be discarded, terminal ones included.
	d.Dispatch(TokenEvent{Text: "b"})
	d.Dispatch(DoneEvent{})

	if len(h.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(h.events))
	}
	if d.Terminated() {
		t.Error("cancelled dispatcher should not reach a terminal state")
	}
}

func TestDispatchRecoversHandlerPanic(t *testing.T) {
	h := &panickyHandler{panicOnToken: true}
	d := NewDispatcher(h, nil)

	d.Dispatch(TokenEvent{Text: "a"})
	d.Dispatch(CitationEvent{Citation: Citation{CitationID: "c1"}})
	d.Dispatch(DoneEvent{})

	// The panicking token is lost but decoding continues.
	if len(h.events) != 2 {
		t.Fatalf("expected 2 events after panic, got %d: %#v", len(h.events), h.events)
	}
	if _, ok := h.events[0].(CitationEvent); !ok {
		t.Errorf("expected CitationEvent, got %T", h.events[0])
	}
}

func TestHandlerPanicDoesNotStallDecoding(t *testing.T) {
	input := "data: {\"type\":\"token\",\"data\":\"x\"}\n" +
		"data: {\"type\":\"citation\",\"data\":{\"citation_id\":\"c1\"}}\n" +
		"data: {\"type\":\"done\",\"data\":{\"used_retrieval\":true}}\n"

	h := &panickyHandler{panicOnToken: true}
	d := NewDispatcher(h, nil)
	if err := NewDecoder(strings.NewReader(input), nil).Decode(context.Background(), d); err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}

	if len(h.events) != 2 {
		t.Fatalf("expected citation and done, got %#v", h.events)
	}
	if _, ok := h.events[1].(DoneEvent); !ok {
		t.Errorf("expected DoneEvent last, got %T", h.events[1])
	}
}
