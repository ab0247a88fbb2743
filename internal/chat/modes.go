package chat

import (
	"github.com/jlx1999s/RAGAgent/internal/api/ragchat"
)

// Mode selects which backend contract a send uses. The event pipeline is
// identical for both modes; only the endpoint and payload shape differ.
type Mode string

const (
	// ModeGeneral is document-scoped general-purpose chat.
	ModeGeneral Mode = "general"
	// ModeMedical is the domain-specific medical knowledge-base chat.
	ModeMedical Mode = "medical"
)

// SendOptions carries the per-send parameters beyond the message itself.
type SendOptions struct {
	Mode Mode
	// SessionID identifies the server-side conversation. It persists across
	// sends; the per-request session state does not.
	SessionID string

	// FileID scopes general-mode retrieval to one indexed document.
	FileID string

	// Medical-mode retrieval filters. Left empty, the server runs intent
	// recognition using IntentRecognitionMethod (smart, qwen or keyword).
	Department              string
	DocumentType            string
	DiseaseCategory         string
	EnableSafetyCheck       *bool
	IntentRecognitionMethod string
}

// buildRequest constructs the wire payload for the selected mode. Fields
// belonging to the other mode are dropped so they cannot leak across
// contracts.
func buildRequest(mode Mode, message string, opts SendOptions) *ragchat.ChatRequest {
	req := &ragchat.ChatRequest{
		Message:   message,
		SessionID: opts.SessionID,
	}
	switch mode {
	case ModeMedical:
		req.Department = opts.Department
		req.DocumentType = opts.DocumentType
		req.DiseaseCategory = opts.DiseaseCategory
		req.EnableSafetyCheck = opts.EnableSafetyCheck
		req.IntentRecognitionMethod = opts.IntentRecognitionMethod
	default:
		req.FileID = opts.FileID
	}
	return req
}
