package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
)

// frame is one wire record: a type discriminator plus its raw payload.
type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Decoder turns a chat response body into Events. The transport delivers
// arbitrarily sized chunks not aligned to record boundaries; the underlying
// scanner holds back incomplete lines until the next read.
type Decoder struct {
	r      io.Reader
	logger *slog.Logger
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader, logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{r: r, logger: logger}
}

// Decode reads the stream to completion, forwarding each decoded event to d.
// A malformed record is logged and skipped, never fatal. If the transport
// closes before a terminal event arrives, a synthesized ErrorEvent is
// dispatched so the session cannot hang in a streaming state; when ctx was
// cancelled no error is synthesized and the caller owns finalization, since
// cancellation is not a server failure. Decode returns the transport read
// error, if any.
func (dec *Decoder) Decode(ctx context.Context, d *Dispatcher) error {
	scanner := bufio.NewScanner(dec.r)
	// Increase buffer size for potentially large records
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := scanner.Text()

		// Skip empty lines
		if line == "" {
			continue
		}

		// Skip non-data lines
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")

		var f frame
		if err := json.Unmarshal([]byte(data), &f); err != nil {
			dec.logger.Warn("skipping malformed stream record",
				slog.String("error", err.Error()))
			continue
		}

		ev, ok := dec.decodeFrame(f)
		if !ok {
			continue
		}
		d.Dispatch(ev)

		// Stop reading once the terminal event has been delivered; anything
		// the server writes after it is trailing noise.
		if d.Terminated() {
			return nil
		}
	}

	err := scanner.Err()
	if !d.Terminated() && ctx.Err() == nil {
		msg := "stream closed unexpectedly"
		if err != nil {
			msg = "stream read error: " + err.Error()
		}
		d.Dispatch(ErrorEvent{Message: msg})
	}
	return err
}

// decodeFrame maps a wire frame to an Event. Unknown frame types are dropped
// so newer servers remain compatible with this client.
func (dec *Decoder) decodeFrame(f frame) (Event, bool) {
	switch f.Type {
	case "token":
		var text string
		if err := json.Unmarshal(f.Data, &text); err != nil {
			dec.logger.Warn("skipping malformed token payload",
				slog.String("error", err.Error()))
			return nil, false
		}
		return TokenEvent{Text: text}, true

	case "citation":
		var c Citation
		if err := json.Unmarshal(f.Data, &c); err != nil {
			dec.logger.Warn("skipping malformed citation payload",
				slog.String("error", err.Error()))
			return nil, false
		}
		return CitationEvent{Citation: c}, true

	case "metadata":
		payload, ok := dec.decodeObject(f)
		if !ok {
			return nil, false
		}
		return MetadataEvent{Payload: payload}, true

	case "quality_assessment", "safety_warning":
		// The medical pipeline sends these as separate records; fold them
		// into the metadata snapshot under their own key.
		payload, ok := dec.decodeObject(f)
		if !ok {
			return nil, false
		}
		return MetadataEvent{
			Payload: map[string]any{f.Type: payload},
			Partial: true,
		}, true

	case "done":
		return decodeDone(f.Data), true

	case "error":
		return ErrorEvent{Message: decodeErrorMessage(f.Data)}, true

	default:
		return nil, false
	}
}

func (dec *Decoder) decodeObject(f frame) (map[string]any, bool) {
	var payload map[string]any
	if err := json.Unmarshal(f.Data, &payload); err != nil {
		dec.logger.Warn("skipping malformed payload",
			slog.String("type", f.Type),
			slog.String("error", err.Error()))
		return nil, false
	}
	return payload, true
}

func decodeDone(data json.RawMessage) DoneEvent {
	var payload map[string]any
	if len(data) > 0 {
		// A done record with an unreadable payload still terminates the
		// stream; the flags just stay at their zero values.
		_ = json.Unmarshal(data, &payload)
	}
	ev := DoneEvent{}
	if v, ok := payload["used_retrieval"].(bool); ok {
		ev.UsedRetrieval = v
		delete(payload, "used_retrieval")
	}
	if v, ok := payload["safety_checked"].(bool); ok {
		ev.SafetyChecked = v
		delete(payload, "safety_checked")
	}
	if len(payload) > 0 {
		ev.Extra = payload
	}
	return ev
}

// decodeErrorMessage accepts the payload shapes the backend has used for
// error records: a bare string, {"message": ...} or {"error": ...}.
func decodeErrorMessage(data json.RawMessage) string {
	var text string
	if err := json.Unmarshal(data, &text); err == nil && text != "" {
		return text
	}
	var obj struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		if obj.Message != "" {
			return obj.Message
		}
		if obj.Error != "" {
			return obj.Error
		}
	}
	return "server reported an error"
}
