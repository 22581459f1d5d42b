package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wyfcoding/fixrouter/internal/fixgateway/infrastructure/fixprotocol"
)

func TestApplyParsedTags(t *testing.T) {
	raw := []byte("8=FIX.4.4\x019=100\x0135=D\x0149=GTWY\x0156=EXEC\x0155=AAPL\x0111=ORDER123\x0154=1\x0138=10\x0144=150.25\x01")
	tags := fixprotocol.ParseTags(raw)

	e := &Envelope{}
	e.ApplyParsedTags(tags)

	assert.Equal(t, "D", e.MsgType)
	assert.Equal(t, "GTWY", e.SenderCompID)
	assert.Equal(t, "EXEC", e.TargetCompID)
	assert.Equal(t, "ORDER123", e.ClOrdID)
	assert.Equal(t, "AAPL", e.Symbol)
	assert.Equal(t, "1", e.Side)
	require_nonNilDecimal(t, e.OrderQty, "10")
	require_nonNilDecimal(t, e.Price, "150.25")
	assert.Equal(t, tags, e.ParsedTags)
}

func require_nonNilDecimal(t *testing.T, d interface{ String() string }, want string) {
	t.Helper()
	if d == nil {
		t.Fatalf("expected non-nil decimal %s, got nil", want)
	}
	assert.Equal(t, want, d.String())
}

func TestEffectiveParsedTags_PrefersOwnNonEmpty(t *testing.T) {
	e := &Envelope{ParsedTags: map[int]string{35: "D"}}
	fallback := map[int]string{35: "8"}
	assert.Equal(t, e.ParsedTags, e.EffectiveParsedTags(fallback))
}

func TestEffectiveParsedTags_FallsBackWhenEmpty(t *testing.T) {
	e := &Envelope{}
	fallback := map[int]string{35: "8"}
	assert.Equal(t, fallback, e.EffectiveParsedTags(fallback))
}
