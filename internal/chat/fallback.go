package chat

import (
	"github.com/jlx1999s/RAGAgent/internal/api/ragchat"
	"github.com/jlx1999s/RAGAgent/internal/stream"
)

// replayAggregate translates a single aggregated JSON answer into the same
// event sequence a streaming server would have produced: one token with the
// full answer, one citation per item, the metadata snapshot, then done.
// Downstream state handling is identical regardless of which transport the
// server chose.
func replayAggregate(res *ragchat.QAResult, d *stream.Dispatcher) {
	if res.Answer != "" {
		d.Dispatch(stream.TokenEvent{Text: res.Answer})
	}
	for _, c := range res.Citations {
		d.Dispatch(stream.CitationEvent{Citation: c})
	}
	if res.Metadata != nil {
		d.Dispatch(stream.MetadataEvent{Payload: res.Metadata})
	}
	if res.QualityAssessment != nil {
		d.Dispatch(stream.MetadataEvent{
			Payload: map[string]any{"quality_assessment": res.QualityAssessment},
			Partial: true,
		})
	}
	if res.SafetyWarning != nil {
		d.Dispatch(stream.MetadataEvent{
			Payload: map[string]any{"safety_warning": res.SafetyWarning},
			Partial: true,
		})
	}
	if res.Intent != nil {
		d.Dispatch(stream.MetadataEvent{
			Payload: map[string]any{"intent": res.Intent},
			Partial: true,
		})
	}
	d.Dispatch(stream.DoneEvent{UsedRetrieval: res.UsedRetrieval})
}
