package outbox

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelopeRoundTrip(t *testing.T) {
	actor := &ActorRef{UserID: uuid.New(), Role: "customer"}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("NPT", 5*3600+45*60))

	env, err := NewEnvelope(map[string]string{"orderNumber": "ORD-1"}, actor, at)
	require.NoError(t, err)
	assert.Equal(t, EnvelopeVersion, env.Version)
	assert.Equal(t, time.UTC, env.OccurredAt.Location())
	_, err = uuid.Parse(env.EventID)
	require.NoError(t, err)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	decoded, err := DecodeEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, env.EventID, decoded.EventID)
	assert.JSONEq(t, `{"orderNumber":"ORD-1"}`, string(decoded.Data))
}

func TestDecodeEnvelopeRejectsEmptyData(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"version":1,"eventId":"e","data":null}`))
	assert.ErrorIs(t, err, errEmptyEnvelopeData)

	_, err = DecodeEnvelope([]byte(`not json`))
	assert.Error(t, err)
}
