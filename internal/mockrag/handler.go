// Package mockrag implements the chat wire contract against canned answers.
// It exists for local development of clients and for exercising both
// transports: the general endpoint streams event records, the medical
// endpoint answers with one aggregated JSON document, matching the backend
// deployment this client was written against.
package mockrag

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jlx1999s/RAGAgent/internal/api/ragchat"
	"github.com/jlx1999s/RAGAgent/internal/stream"
)

// tokenChunkSize is the rune count per streamed token record.
const tokenChunkSize = 8

type Handler struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger}
}

// Routes mounts the chat endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post(ragchat.PathChat, h.handleChat)
	r.Post(ragchat.PathChatClear, h.handleClear)
	r.Post(ragchat.PathMedicalChat, h.handleMedicalChat)
	r.Post(ragchat.PathMedicalChatClear, h.handleClear)
}

// canned answers keyed by a substring of the question.
var cannedAnswers = []struct {
	keyword string
	answer  string
}{
	{"感冒", "建议多喝水，注意休息，保持室内空气流通。若症状持续超过一周或出现高热，请及时就医。"},
	{"高血压", "建议低盐饮食，规律监测血压，遵医嘱按时服药，避免剧烈情绪波动。"},
	{"糖尿病", "建议控制碳水化合物摄入，规律运动，定期监测血糖，遵医嘱调整用药。"},
}

const fallbackAnswer = "根据现有资料无法给出具体建议，请补充更多信息或咨询专业医生。"

func lookupAnswer(question string) (string, bool) {
	for _, c := range cannedAnswers {
		if strings.Contains(question, c.keyword) {
			return c.answer, true
		}
	}
	return fallbackAnswer, false
}

func (h *Handler) decodeChatRequest(w http.ResponseWriter, r *http.Request) (*ragchat.ChatRequest, bool) {
	var req ragchat.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid request body"})
		return nil, false
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": "问题不能为空"})
		return nil, false
	}
	return &req, true
}

// handleChat streams the answer as `data: <json>` records: citations first so
// reference markers can render immediately, then token chunks, then done.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeChatRequest(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "streaming unsupported"})
		return
	}

	answer, hit := lookupAnswer(req.Message)
	citations := generalCitations(req, hit)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	for _, c := range citations {
		h.writeFrame(w, "citation", c)
	}
	for _, chunk := range splitRunes(answer, tokenChunkSize) {
		h.writeFrame(w, "token", chunk)
		flusher.Flush()
	}
	h.writeFrame(w, "done", map[string]any{
		"used_retrieval":  hit,
		"citations_count": len(citations),
	})
	flusher.Flush()
}

// handleMedicalChat answers with one aggregated JSON document, the shape the
// medical deployment uses with streaming turned off.
func (h *Handler) handleMedicalChat(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeChatRequest(w, r)
	if !ok {
		return
	}

	answer, hit := lookupAnswer(req.Message)
	citations := medicalCitations(req, hit)

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = "medical_default"
	}

	result := &ragchat.QAResult{
		Answer:        answer,
		Citations:     citations,
		UsedRetrieval: hit,
		SessionID:     sessionID,
		Metadata: map[string]any{
			"total_hits": len(citations),
		},
		QualityAssessment: map[string]any{
			"quality_level": qualityLevel(hit),
			"quality_score": qualityScore(hit),
		},
		Intent: map[string]any{
			"department":       req.Department,
			"document_type":    req.DocumentType,
			"disease_category": req.DiseaseCategory,
			"method":           intentMethod(req),
		},
	}

	writeJSON(w, http.StatusOK, &ragchat.QAEnvelope{OK: true, Data: result})
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	var req ragchat.ClearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid request body"})
		return
	}
	h.logger.Info("cleared chat history", slog.String("session_id", req.SessionID))
	writeJSON(w, http.StatusOK, &ragchat.ClearResponse{OK: true, SessionID: req.SessionID, Cleared: true})
}

func (h *Handler) writeFrame(w http.ResponseWriter, frameType string, data any) {
	payload, err := json.Marshal(map[string]any{"type": frameType, "data": data})
	if err != nil {
		h.logger.Error("failed to marshal frame", slog.String("type", frameType), slog.String("error", err.Error()))
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
}

func generalCitations(req *ragchat.ChatRequest, hit bool) []stream.Citation {
	if !hit || req.FileID == "" {
		return nil
	}
	page := 1
	return []stream.Citation{{
		CitationID: req.FileID + "-c1",
		FileID:     req.FileID,
		Rank:       1,
		Page:       &page,
		Snippet:    "……多饮水，保证休息，观察体温变化……",
		PreviewURL: fmt.Sprintf("/api/v1/pdf/page?fileId=%s&page=1&type=original", req.FileID),
	}}
}

func medicalCitations(req *ragchat.ChatRequest, hit bool) []stream.Citation {
	if !hit {
		return []stream.Citation{}
	}
	return []stream.Citation{{
		CitationID:    "med-c1",
		Rank:          1,
		Snippet:       "……一般治疗以对症支持为主，注意补液与休息……",
		Source:        "临床诊疗指南",
		Title:         "常见病防治手册",
		Department:    nonEmpty(req.Department, "内科"),
		DocumentType:  nonEmpty(req.DocumentType, "临床指南"),
		EvidenceLevel: "B",
	}}
}

func intentMethod(req *ragchat.ChatRequest) string {
	if req.Department != "" || req.DocumentType != "" || req.DiseaseCategory != "" {
		return "explicit"
	}
	if req.IntentRecognitionMethod != "" {
		return req.IntentRecognitionMethod
	}
	return "smart"
}

func qualityLevel(hit bool) string {
	if hit {
		return "high"
	}
	return "low"
}

func qualityScore(hit bool) float64 {
	if hit {
		return 0.9
	}
	return 0.3
}

func nonEmpty(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func splitRunes(s string, n int) []string {
	runes := []rune(s)
	var chunks []string
	for i := 0; i < len(runes); i += n {
		end := i + n
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
