package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jlx1999s/RAGAgent/internal/session"
	"github.com/jlx1999s/RAGAgent/internal/stream"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func finalizedResult(t *testing.T) *session.Result {
	t.Helper()
	a := session.New("s1", "medical", "感冒了应该怎么办？")
	page := 2
	a.OnToken(stream.TokenEvent{Text: "建议多喝水"})
	a.OnCitation(stream.CitationEvent{Citation: stream.Citation{
		CitationID: "med-c1", Page: &page, Snippet: "多饮水", Title: "常见病防治手册",
	}})
	a.OnMetadata(stream.MetadataEvent{Payload: map[string]any{"total_hits": 1.0}})
	a.OnDone(stream.DoneEvent{UsedRetrieval: true, SafetyChecked: true})
	return a.Result()
}

func TestSaveAndLoadTranscript(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.SaveResult(ctx, finalizedResult(t))
	if err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected a transcript id")
	}

	transcripts, err := store.BySession(ctx, "s1")
	if err != nil {
		t.Fatalf("BySession failed: %v", err)
	}
	if len(transcripts) != 1 {
		t.Fatalf("expected 1 transcript, got %d", len(transcripts))
	}

	tr := transcripts[0]
	if tr.Answer != "建议多喝水" {
		t.Errorf("answer = %q", tr.Answer)
	}
	if tr.Phase != "done" || !tr.UsedRetrieval || !tr.SafetyChecked {
		t.Errorf("flags = %q/%v/%v", tr.Phase, tr.UsedRetrieval, tr.SafetyChecked)
	}
	if tr.Metadata["total_hits"] != 1.0 {
		t.Errorf("metadata = %#v", tr.Metadata)
	}
	if len(tr.Citations) != 1 || tr.Citations[0].CitationID != "med-c1" || tr.Citations[0].DisplayIndex != 1 {
		t.Fatalf("citations = %#v", tr.Citations)
	}
}

func TestCitationByID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.SaveResult(ctx, finalizedResult(t)); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}

	c, err := store.CitationByID(ctx, "med-c1")
	if err != nil {
		t.Fatalf("CitationByID failed: %v", err)
	}
	if c.Title != "常见病防治手册" || c.Page == nil || *c.Page != 2 {
		t.Errorf("citation = %#v", c)
	}

	if _, err := store.CitationByID(ctx, "absent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRefusesNonTerminalResult(t *testing.T) {
	store := newTestStore(t)
	a := session.New("s1", "general", "q")

	if _, err := store.SaveResult(context.Background(), a.Result()); err == nil {
		t.Fatal("expected error storing a streaming-phase session")
	}
}
