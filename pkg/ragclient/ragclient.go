// Package ragclient is the public API for consuming the RAG backend's
// streaming chat protocol. This is the stable surface for external consumers;
// see the internal packages for full documentation.
package ragclient

import (
	"log/slog"

	"github.com/jlx1999s/RAGAgent/internal/api/ragchat"
	"github.com/jlx1999s/RAGAgent/internal/chat"
	"github.com/jlx1999s/RAGAgent/internal/session"
	"github.com/jlx1999s/RAGAgent/internal/stream"
)

// Controller drives chat exchanges: one active stream at a time, abort
// before replace, one terminal state per send.
type Controller = chat.Controller

// Handle is the ownership token for one in-flight exchange.
type Handle = chat.Handle

// SendOptions carries the per-send parameters.
type SendOptions = chat.SendOptions

// Mode selects the backend contract.
type Mode = chat.Mode

const (
	ModeGeneral = chat.ModeGeneral
	ModeMedical = chat.ModeMedical
)

// Event types delivered to handlers.
type (
	Handler       = stream.Handler
	TokenEvent    = stream.TokenEvent
	CitationEvent = stream.CitationEvent
	MetadataEvent = stream.MetadataEvent
	DoneEvent     = stream.DoneEvent
	ErrorEvent    = stream.ErrorEvent
	Citation      = stream.Citation
)

// Session state types.
type (
	Result          = session.Result
	Phase           = session.Phase
	DisplayCitation = session.DisplayCitation
)

const (
	PhaseIdle      = session.PhaseIdle
	PhaseStreaming = session.PhaseStreaming
	PhaseDone      = session.PhaseDone
	PhaseError     = session.PhaseError
	PhaseAborted   = session.PhaseAborted
)

// Option configures the controller's API client.
type Option = ragchat.ClientOption

var (
	WithBaseURL    = ragchat.WithBaseURL
	WithHTTPClient = ragchat.WithHTTPClient
	WithUserAgent  = ragchat.WithUserAgent
)

// New creates a chat controller.
// Example:
//
//	c := ragclient.New(nil,
//	    ragclient.WithBaseURL("http://localhost:8001/api/v1"),
//	)
func New(logger *slog.Logger, opts ...Option) *Controller {
	return chat.NewController(ragchat.NewClient(opts...), logger)
}
