package ragchat_test

import (
	"context"
	"strings"
	"testing"

	"github.com/jlx1999s/RAGAgent/internal/api/ragchat"
	"github.com/jlx1999s/RAGAgent/internal/testutil"
)

// The cassette was recorded against the medical deployment, which answers
// with one aggregated JSON document instead of streaming.
func TestMedicalChatReplayed(t *testing.T) {
	r, cleanup := testutil.NewVCRRecorder(t, "medical_qa")
	defer cleanup()

	client := ragchat.NewClient(
		ragchat.WithBaseURL("http://ragagent.invalid/api/v1"),
		ragchat.WithHTTPClient(testutil.VCRHTTPClient(r)),
	)

	resp, err := client.MedicalChat(context.Background(), &ragchat.ChatRequest{
		Message:   "感冒了应该怎么办？",
		SessionID: "vcr-session",
	})
	if err != nil {
		t.Fatalf("MedicalChat failed: %v", err)
	}
	if resp.Stream != nil {
		t.Fatal("expected the aggregated transport, got a stream")
	}
	data := resp.Aggregate
	if data == nil {
		t.Fatal("expected aggregate data")
	}
	if !strings.Contains(data.Answer, "多喝水") {
		t.Errorf("answer = %q", data.Answer)
	}
	if len(data.Citations) != 1 || data.Citations[0].CitationID != "med-c1" {
		t.Fatalf("citations = %#v", data.Citations)
	}
	if !data.UsedRetrieval {
		t.Error("used_retrieval should be true")
	}
	if data.SessionID != "vcr-session" {
		t.Errorf("session_id = %q", data.SessionID)
	}
}

func TestClearMedicalChatReplayed(t *testing.T) {
	r, cleanup := testutil.NewVCRRecorder(t, "medical_clear")
	defer cleanup()

	client := ragchat.NewClient(
		ragchat.WithBaseURL("http://ragagent.invalid/api/v1"),
		ragchat.WithHTTPClient(testutil.VCRHTTPClient(r)),
	)

	res, err := client.ClearMedicalChat(context.Background(), "vcr-session")
	if err != nil {
		t.Fatalf("ClearMedicalChat failed: %v", err)
	}
	if !res.OK {
		t.Error("expected ok response")
	}
}
