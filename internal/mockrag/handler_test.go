package mockrag

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/jlx1999s/RAGAgent/internal/api/ragchat"
	"github.com/jlx1999s/RAGAgent/internal/chat"
	"github.com/jlx1999s/RAGAgent/internal/session"
)

func newTestBackend(t *testing.T) *chat.Controller {
	t.Helper()
	r := chi.NewRouter()
	New(nil).Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return chat.NewController(ragchat.NewClient(ragchat.WithBaseURL(srv.URL)), nil)
}

func TestGeneralChatStreamsAnswer(t *testing.T) {
	c := newTestBackend(t)

	h, err := c.Send(context.Background(), "孩子感冒了怎么办",
		chat.SendOptions{Mode: chat.ModeGeneral, SessionID: "s1", FileID: "f42"}, nil)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	res, err := h.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	if res.Phase != session.PhaseDone {
		t.Fatalf("phase = %v (%s), want done", res.Phase, res.ErrMessage)
	}
	if !strings.Contains(res.Answer, "多喝水") {
		t.Errorf("answer = %q, want the cold-care advice", res.Answer)
	}
	if len(res.Citations) != 1 || res.Citations[0].CitationID != "f42-c1" {
		t.Fatalf("citations = %#v, want one f42-c1", res.Citations)
	}
	if !res.UsedRetrieval {
		t.Error("used_retrieval should be true on a canned hit")
	}
}

func TestMedicalChatAggregateTransport(t *testing.T) {
	c := newTestBackend(t)

	h, err := c.Send(context.Background(), "高血压饮食注意什么",
		chat.SendOptions{Mode: chat.ModeMedical, SessionID: "s1"}, nil)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	res, err := h.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	if res.Phase != session.PhaseDone {
		t.Fatalf("phase = %v (%s), want done", res.Phase, res.ErrMessage)
	}
	if !strings.Contains(res.Answer, "低盐饮食") {
		t.Errorf("answer = %q", res.Answer)
	}
	if len(res.Citations) != 1 || res.Citations[0].CitationID != "med-c1" {
		t.Fatalf("citations = %#v", res.Citations)
	}
	if _, ok := res.Metadata["quality_assessment"]; !ok {
		t.Error("quality assessment should be folded into metadata")
	}
	if _, ok := res.Metadata["intent"]; !ok {
		t.Error("intent block should be folded into metadata")
	}
}

func TestUnknownQuestionFallsBack(t *testing.T) {
	c := newTestBackend(t)

	h, err := c.Send(context.Background(), "今天天气如何",
		chat.SendOptions{Mode: chat.ModeGeneral, SessionID: "s1", FileID: "f1"}, nil)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	res, err := h.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	if res.UsedRetrieval {
		t.Error("miss should report used_retrieval=false")
	}
	if len(res.Citations) != 0 {
		t.Errorf("miss should carry no citations, got %#v", res.Citations)
	}
}

func TestEmptyMessageIsApplicationError(t *testing.T) {
	c := newTestBackend(t)

	h, err := c.Send(context.Background(), "   ",
		chat.SendOptions{Mode: chat.ModeGeneral, SessionID: "s1"}, nil)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	res, err := h.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if res.Phase != session.PhaseError {
		t.Fatalf("phase = %v, want error", res.Phase)
	}
	if !strings.Contains(res.ErrMessage, "问题不能为空") {
		t.Errorf("error message = %q", res.ErrMessage)
	}
}

func TestClearEndpoints(t *testing.T) {
	c := newTestBackend(t)

	for _, mode := range []chat.Mode{chat.ModeGeneral, chat.ModeMedical} {
		if err := c.ClearSession(context.Background(), mode, "s1"); err != nil {
			t.Errorf("ClearSession(%s) failed: %v", mode, err)
		}
	}
}
