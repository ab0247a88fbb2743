// Package ragchat provides the wire types and HTTP client for the RAG
// backend's chat API. The same types serve both the streaming and the
// aggregated JSON transport.
package ragchat

import (
	"encoding/json"
	"fmt"

	"github.com/jlx1999s/RAGAgent/internal/stream"
)

// ChatRequest is the request body for /chat and /medical/chat.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
	// FileID scopes general-mode retrieval to one indexed document.
	FileID string `json:"fileId,omitempty"`
	// Medical-mode retrieval filters. When all three are empty the server
	// runs its own intent recognition.
	Department      string `json:"department,omitempty"`
	DocumentType    string `json:"documentType,omitempty"`
	DiseaseCategory string `json:"diseaseCategory,omitempty"`

	EnableSafetyCheck       *bool  `json:"enableSafetyCheck,omitempty"`
	IntentRecognitionMethod string `json:"intentRecognitionMethod,omitempty"`
}

// QAEnvelope is the non-streaming response envelope.
type QAEnvelope struct {
	OK    bool      `json:"ok"`
	Data  *QAResult `json:"data,omitempty"`
	Error string    `json:"error,omitempty"`
}

// QAResult is the aggregated answer the server returns when it chooses the
// single-JSON transport instead of streaming.
type QAResult struct {
	Answer            string            `json:"answer"`
	Citations         []stream.Citation `json:"citations"`
	Metadata          map[string]any    `json:"metadata,omitempty"`
	QualityAssessment map[string]any    `json:"quality_assessment,omitempty"`
	SafetyWarning     map[string]any    `json:"safety_warning,omitempty"`
	UsedRetrieval     bool              `json:"used_retrieval"`
	Intent            map[string]any    `json:"intent,omitempty"`
	SessionID         string            `json:"session_id,omitempty"`
}

// ClearRequest is the request body for the session clear endpoints.
type ClearRequest struct {
	SessionID string `json:"sessionId"`
}

// ClearResponse covers both clear response shapes the backend has used:
// {ok, sessionId, cleared} and {ok, message}.
type ClearResponse struct {
	OK        bool   `json:"ok"`
	SessionID string `json:"sessionId,omitempty"`
	Cleared   bool   `json:"cleared,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

// APIError is an error response from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
	}
	return e.Message
}

// ParseErrorResponse attempts to parse an error response body. The backend
// reports failures as {ok:false, error:"..."}; FastAPI validation failures
// arrive as {detail:"..."}.
func ParseErrorResponse(statusCode int, data []byte) *APIError {
	var envelope struct {
		Error  string `json:"error"`
		Detail any    `json:"detail"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil {
		if envelope.Error != "" {
			return &APIError{StatusCode: statusCode, Message: envelope.Error}
		}
		if s, ok := envelope.Detail.(string); ok && s != "" {
			return &APIError{StatusCode: statusCode, Message: s}
		}
	}
	return nil
}
