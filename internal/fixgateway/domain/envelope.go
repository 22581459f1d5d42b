package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Envelope is the canonical in-memory record carried through the pipeline.
// ParsedTags and the derived fields (Symbol, Side, OrderQty, Price) are never
// present on the wire; they are rebuilt from RawMessage after decode.
type Envelope struct {
	SessionID    string `json:"sessionId"`
	SenderCompID string `json:"senderCompId"`
	TargetCompID string `json:"targetCompId"`
	MsgType      string `json:"msgType"`
	ClOrdID      string `json:"clOrdID"`

	Symbol   string           `json:"-"`
	Side     string           `json:"-"`
	OrderQty *decimal.Decimal `json:"-"`
	Price    *decimal.Decimal `json:"-"`

	CreatedTimestamp time.Time      `json:"createdTimestamp"`
	RawMessage       []byte         `json:"rawMessage"`
	ParsedTags       map[int]string `json:"-"`

	RouteID string `json:"-"`

	ErrorMessage   string     `json:"errorMessage,omitempty"`
	ErrorType      string     `json:"errorType,omitempty"`
	ErrorTimestamp *time.Time `json:"errorTimestamp,omitempty"`
	ErrorRouteID   string     `json:"errorRouteId,omitempty"`
}

// HasError reports whether the envelope carries a populated error triple,
// i.e. it is destined for (or came from) a dead-letter stream.
func (e *Envelope) HasError() bool {
	return e.ErrorMessage != "" || e.ErrorType != ""
}

// WithError returns a copy of e with the error triple populated, ready for
// dead-letter publication.
func (e *Envelope) WithError(errType, message, routeID string, at time.Time) *Envelope {
	clone := *e
	clone.ErrorType = errType
	clone.ErrorMessage = message
	clone.ErrorRouteID = routeID
	clone.ErrorTimestamp = &at
	return &clone
}
