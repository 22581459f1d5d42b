package envelope

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/fixrouter/internal/fixgateway/domain"
)

func TestJSONRoundTrip(t *testing.T) {
	e := &domain.Envelope{
		SessionID:        "FIX.4.4:GTWY->EXEC",
		SenderCompID:     "GTWY",
		TargetCompID:     "EXEC",
		MsgType:          "D",
		ClOrdID:          "ORDER123",
		CreatedTimestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		RawMessage:       []byte("8=FIX.4.4\x0135=D\x01"),
	}

	data, err := EncodeJSON(e)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "parsedTags")

	decoded, err := DecodeJSON(data)
	require.NoError(t, err)

	assert.Equal(t, e.SessionID, decoded.SessionID)
	assert.Equal(t, e.SenderCompID, decoded.SenderCompID)
	assert.Equal(t, e.TargetCompID, decoded.TargetCompID)
	assert.Equal(t, e.MsgType, decoded.MsgType)
	assert.Equal(t, e.ClOrdID, decoded.ClOrdID)
	assert.True(t, e.CreatedTimestamp.Equal(decoded.CreatedTimestamp))
	assert.Equal(t, e.RawMessage, decoded.RawMessage)
	assert.Nil(t, decoded.ParsedTags)
}

func TestEncodeJSON_RawMessageIsPlainTextNotBase64(t *testing.T) {
	e := &domain.Envelope{
		SessionID:  "FIX.4.4:GTWY->EXEC",
		RawMessage: []byte("8=FIX.4.4\x0135=D\x01"),
	}

	data, err := EncodeJSON(e)
	require.NoError(t, err)

	assert.Contains(t, string(data), `"rawMessage":"8=FIX.4.4`, "rawMessage must be readable FIX text on the wire, not a base64 blob")
}

func TestDecodeJSON_InvalidPayload(t *testing.T) {
	_, err := DecodeJSON([]byte("not json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrParse)
}

func TestDecodeText(t *testing.T) {
	line := "MessageEnvelope(sessionId=FIX.4.4:GTWY->EXEC, senderCompId=GTWY, targetCompId=EXEC, msgType=D, createdTimestamp=2026-01-02T03:04:05Z, rawMessage=8=FIX.4.4\x0135=D\x01)"

	e, err := DecodeText(line)
	require.NoError(t, err)

	assert.Equal(t, "FIX.4.4:GTWY->EXEC", e.SessionID)
	assert.Equal(t, "GTWY", e.SenderCompID)
	assert.Equal(t, "D", e.MsgType)
	assert.True(t, len(e.RawMessage) > 0)
	assert.Equal(t, byte(0x01), e.RawMessage[len(e.RawMessage)-1])
}

func TestDecodeText_UnparseableTimestampFallsBackToNow(t *testing.T) {
	line := "MessageEnvelope(sessionId=S, rawMessage=8=FIX.4.4\x01, createdTimestamp=not-a-time)"
	before := time.Now().UTC()
	e, err := DecodeText(line)
	require.NoError(t, err)
	assert.True(t, e.CreatedTimestamp.After(before.Add(-time.Minute)))
}

func TestDecodeText_MissingRequiredFields(t *testing.T) {
	_, err := DecodeText("MessageEnvelope(senderCompId=GTWY)")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDecodeText_RejectsNonEnvelopeLine(t *testing.T) {
	_, err := DecodeText("not an envelope line")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrParse)
}
