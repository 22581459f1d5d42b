package domain

import (
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/fixrouter/internal/fixgateway/infrastructure/fixprotocol"
)

// ApplyParsedTags fills the envelope's tag-derived fields (MsgType, ClOrdID,
// Symbol, Side, OrderQty, Price) from a parsed tag map and attaches the map
// itself as ParsedTags. Fields already set on the envelope are overwritten
// only when the corresponding tag is present.
func (e *Envelope) ApplyParsedTags(tags map[int]string) {
	e.ParsedTags = tags

	if v, ok := tags[fixprotocol.TagMsgType]; ok {
		e.MsgType = v
	}
	if v, ok := tags[fixprotocol.TagSenderCompID]; ok && e.SenderCompID == "" {
		e.SenderCompID = v
	}
	if v, ok := tags[fixprotocol.TagTargetCompID]; ok && e.TargetCompID == "" {
		e.TargetCompID = v
	}
	if v, ok := tags[fixprotocol.TagClOrdID]; ok {
		e.ClOrdID = v
	}
	if v, ok := tags[fixprotocol.TagSymbol]; ok {
		e.Symbol = v
	}
	if v, ok := tags[fixprotocol.TagSide]; ok {
		e.Side = v
	}
	if v, ok := tags[fixprotocol.TagOrderQty]; ok {
		if d, err := decimal.NewFromString(v); err == nil {
			e.OrderQty = &d
		}
	}
	if v, ok := tags[fixprotocol.TagPrice]; ok {
		if d, err := decimal.NewFromString(v); err == nil {
			e.Price = &d
		}
	}
}

// EffectiveParsedTags returns the tag map partitioning and dispatch logic
// should use: the envelope's own ParsedTags when non-empty, else fall back
// to an explicit tag map supplied by the caller.
func (e *Envelope) EffectiveParsedTags(fallback map[int]string) map[int]string {
	if len(e.ParsedTags) > 0 {
		return e.ParsedTags
	}
	return fallback
}
