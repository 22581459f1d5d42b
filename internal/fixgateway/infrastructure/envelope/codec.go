// Package envelope encodes and decodes domain.Envelope values: JSON for
// broker egress and for ingress, plus a human-readable single-line text form
// accepted on ingress only.
package envelope

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/wyfcoding/fixrouter/internal/fixgateway/domain"
)

// wireEnvelope is the exact JSON shape on the wire: only the fields named in
// the wire envelope fields, never the transient derived fields. RawMessage is
// a plain string, not domain.Envelope's []byte, so it round-trips as ordinary
// JSON text (control characters escaped) rather than encoding/json's default
// base64 blob for []byte — matching the original Java envelope's String field
// and keeping the dead-letter payload human-readable on the wire.
type wireEnvelope struct {
	SessionID        string     `json:"sessionId"`
	SenderCompID     string     `json:"senderCompId"`
	TargetCompID     string     `json:"targetCompId"`
	MsgType          string     `json:"msgType"`
	ClOrdID          string     `json:"clOrdID,omitempty"`
	CreatedTimestamp time.Time  `json:"createdTimestamp"`
	RawMessage       string     `json:"rawMessage"`
	ErrorMessage     string     `json:"errorMessage,omitempty"`
	ErrorType        string     `json:"errorType,omitempty"`
	ErrorTimestamp   *time.Time `json:"errorTimestamp,omitempty"`
	ErrorRouteID     string     `json:"errorRouteId,omitempty"`
}

// EncodeJSON serialises e to its wire JSON form. Transient/derived fields
// (parsedTags, symbol, side, orderQty, price) are never emitted.
func EncodeJSON(e *domain.Envelope) ([]byte, error) {
	w := wireEnvelope{
		SessionID:        e.SessionID,
		SenderCompID:     e.SenderCompID,
		TargetCompID:     e.TargetCompID,
		MsgType:          e.MsgType,
		ClOrdID:          e.ClOrdID,
		CreatedTimestamp: e.CreatedTimestamp,
		RawMessage:       string(e.RawMessage),
		ErrorMessage:     e.ErrorMessage,
		ErrorType:        e.ErrorType,
		ErrorTimestamp:   e.ErrorTimestamp,
		ErrorRouteID:     e.ErrorRouteID,
	}
	return json.Marshal(w)
}

// DecodeJSON parses the wire JSON form into a fresh envelope. ParsedTags and
// the derived fields are left empty; callers rebuild them from RawMessage.
func DecodeJSON(data []byte) (*domain.Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrParse, err)
	}
	if w.CreatedTimestamp.IsZero() {
		w.CreatedTimestamp = time.Now().UTC()
	}
	return &domain.Envelope{
		SessionID:        w.SessionID,
		SenderCompID:     w.SenderCompID,
		TargetCompID:     w.TargetCompID,
		MsgType:          w.MsgType,
		ClOrdID:          w.ClOrdID,
		CreatedTimestamp: w.CreatedTimestamp,
		RawMessage:       []byte(w.RawMessage),
		ErrorMessage:     w.ErrorMessage,
		ErrorType:        w.ErrorType,
		ErrorTimestamp:   w.ErrorTimestamp,
		ErrorRouteID:     w.ErrorRouteID,
	}, nil
}

const textPrefix = "MessageEnvelope("
const textSuffix = ")"

// DecodeText parses the single-line "MessageEnvelope(key=value, ...)" form.
// rawMessage is taken verbatim, including any trailing SOH, and is never
// trimmed. An unparseable or absent timestamp falls back to now.
func DecodeText(line string) (*domain.Envelope, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, textPrefix) || !strings.HasSuffix(line, textSuffix) {
		return nil, fmt.Errorf("%w: not a MessageEnvelope(...) line", domain.ErrParse)
	}
	body := line[len(textPrefix) : len(line)-len(textSuffix)]

	fields, err := splitTextFields(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrParse, err)
	}

	e := &domain.Envelope{
		SessionID:    fields["sessionId"],
		SenderCompID: fields["senderCompId"],
		TargetCompID: fields["targetCompId"],
		MsgType:      fields["msgType"],
		ClOrdID:      fields["clOrdID"],
		RawMessage:   []byte(fields["rawMessage"]),
	}

	if ts, ok := fields["createdTimestamp"]; ok {
		if parsed, parseErr := time.Parse(time.RFC3339, ts); parseErr == nil {
			e.CreatedTimestamp = parsed
		}
	}
	if e.CreatedTimestamp.IsZero() {
		e.CreatedTimestamp = time.Now().UTC()
	}

	if _, ok := fields["sessionId"]; !ok {
		return nil, fmt.Errorf("%w: missing sessionId", domain.ErrValidation)
	}
	if _, ok := fields["rawMessage"]; !ok {
		return nil, fmt.Errorf("%w: missing rawMessage", domain.ErrValidation)
	}

	return e, nil
}

// splitTextFields splits a comma-separated key=value body. rawMessage's
// value may itself contain commas (SOH-delimited FIX fields do not), but we
// still split only on the first '=' per field so values may contain '='.
func splitTextFields(body string) (map[string]string, error) {
	fields := make(map[string]string)
	for _, part := range strings.Split(body, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(part[:eq])
		value := part[eq+1:]
		fields[key] = value
	}
	return fields, nil
}

// EncodeText renders e in the MessageEnvelope(...) text form. Only used for
// logging/debugging; egress to the broker is always JSON.
func EncodeText(e *domain.Envelope) string {
	var b strings.Builder
	b.WriteString(textPrefix)
	fmt.Fprintf(&b, "sessionId=%s, senderCompId=%s, targetCompId=%s, msgType=%s, createdTimestamp=%s, rawMessage=%s",
		e.SessionID, e.SenderCompID, e.TargetCompID, e.MsgType,
		e.CreatedTimestamp.Format(time.RFC3339), string(e.RawMessage))
	b.WriteString(textSuffix)
	return b.String()
}
