// Package stream decodes the chat wire protocol into typed application events.
// The server sends newline-delimited `data: <json>` records where the JSON
// carries a `type` discriminator and a type-specific `data` payload.
package stream

import (
	"encoding/json"
)

// Event is one decoded application-level event from a chat stream.
// Exactly one terminal event (DoneEvent or ErrorEvent) occurs per stream.
type Event interface {
	eventKind() string
}

// TokenEvent carries one incremental chunk of answer text.
type TokenEvent struct {
	Text string
}

// CitationEvent carries one source reference backing part of the answer.
type CitationEvent struct {
	Citation Citation
}

// MetadataEvent carries a retrieval metadata snapshot. A full snapshot
// replaces any previous one; a partial snapshot (quality assessment, safety
// warning) is merged into the current snapshot key by key.
type MetadataEvent struct {
	Payload map[string]any
	Partial bool
}

// DoneEvent signals normal completion of a stream.
type DoneEvent struct {
	UsedRetrieval bool
	SafetyChecked bool
	// Extra holds any remaining fields from the done payload, such as
	// citations_count or safety_blocked.
	Extra map[string]any
}

// ErrorEvent signals stream failure. Message is the user-visible failure text.
type ErrorEvent struct {
	Message string
}

func (TokenEvent) eventKind() string    { return "token" }
func (CitationEvent) eventKind() string { return "citation" }
func (MetadataEvent) eventKind() string { return "metadata" }
func (DoneEvent) eventKind() string     { return "done" }
func (ErrorEvent) eventKind() string    { return "error" }

// Handler receives decoded events. The dispatcher invokes exactly one method
// per event, in arrival order, on the goroutine that owns the stream.
type Handler interface {
	OnToken(TokenEvent)
	OnCitation(CitationEvent)
	OnMetadata(MetadataEvent)
	OnDone(DoneEvent)
	OnError(ErrorEvent)
}

// Citation references a source document chunk. CitationID is unique within
// one answer; Rank is a server-side ordering hint only, arrival order is
// authoritative.
type Citation struct {
	CitationID    string   `json:"citation_id"`
	FileID        string   `json:"fileId,omitempty"`
	Rank          int      `json:"rank,omitempty"`
	Page          *int     `json:"page,omitempty"`
	Snippet       string   `json:"snippet,omitempty"`
	Score         *float64 `json:"score,omitempty"`
	PreviewURL    string   `json:"previewUrl,omitempty"`
	Source        string   `json:"source,omitempty"`
	Title         string   `json:"title,omitempty"`
	Department    string   `json:"department,omitempty"`
	DocumentType  string   `json:"document_type,omitempty"`
	EvidenceLevel string   `json:"evidence_level,omitempty"`
}

// citationWire mirrors Citation but tolerates the id key variants the backend
// has emitted over time (citation_id, citationId, id).
type citationWire struct {
	CitationID    string   `json:"citation_id"`
	CitationIDAlt string   `json:"citationId"`
	ID            string   `json:"id"`
	FileID        string   `json:"fileId"`
	Rank          int      `json:"rank"`
	Page          *int     `json:"page"`
	Snippet       string   `json:"snippet"`
	Score         *float64 `json:"score"`
	PreviewURL    string   `json:"previewUrl"`
	Source        string   `json:"source"`
	Title         string   `json:"title"`
	Department    string   `json:"department"`
	DocumentType  string   `json:"document_type"`
	EvidenceLevel string   `json:"evidence_level"`
}

// UnmarshalJSON normalizes the citation id across the key spellings used by
// the general and medical pipelines.
func (c *Citation) UnmarshalJSON(data []byte) error {
	var w citationWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	id := w.CitationID
	if id == "" {
		id = w.CitationIDAlt
	}
	if id == "" {
		id = w.ID
	}
	*c = Citation{
		CitationID:    id,
		FileID:        w.FileID,
		Rank:          w.Rank,
		Page:          w.Page,
		Snippet:       w.Snippet,
		Score:         w.Score,
		PreviewURL:    w.PreviewURL,
		Source:        w.Source,
		Title:         w.Title,
		Department:    w.Department,
		DocumentType:  w.DocumentType,
		EvidenceLevel: w.EvidenceLevel,
	}
	return nil
}
