package payment

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

func succeededPayload(intentID string) []byte {
	payload, _ := json.Marshal(map[string]any{
		"type": EventPaymentSucceeded,
		"data": map[string]any{
			"object": map[string]any{"id": intentID},
		},
	})
	return payload
}

func TestVerifyEvent_ValidSignature(t *testing.T) {
	payload := succeededPayload("pi_123")
	now := time.Now()
	header := SignPayload(payload, testSecret, now)

	event, err := verifyEvent(payload, header, testSecret, now)
	require.NoError(t, err)
	assert.Equal(t, EventPaymentSucceeded, event.Type)
	assert.Equal(t, "pi_123", event.IntentID)
}

func TestVerifyEvent_TamperedPayload(t *testing.T) {
	payload := succeededPayload("pi_123")
	now := time.Now()
	header := SignPayload(payload, testSecret, now)

	tampered := succeededPayload("pi_456")
	_, err := verifyEvent(tampered, header, testSecret, now)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyEvent_WrongSecret(t *testing.T) {
	payload := succeededPayload("pi_123")
	now := time.Now()
	header := SignPayload(payload, "whsec_other", now)

	_, err := verifyEvent(payload, header, testSecret, now)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyEvent_StaleTimestamp(t *testing.T) {
	payload := succeededPayload("pi_123")
	signedAt := time.Now().Add(-signatureTolerance - time.Minute)
	header := SignPayload(payload, testSecret, signedAt)

	_, err := verifyEvent(payload, header, testSecret, time.Now())
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyEvent_MalformedHeader(t *testing.T) {
	payload := succeededPayload("pi_123")

	for _, header := range []string{
		"",
		"garbage",
		"t=notanumber,v1=abcd",
		"v1=deadbeef",
		fmt.Sprintf("t=%d", time.Now().Unix()),
	} {
		_, err := verifyEvent(payload, header, testSecret, time.Now())
		assert.ErrorIs(t, err, ErrInvalidSignature, "header %q", header)
	}
}

func TestVerifyEvent_SecondSignatureAccepted(t *testing.T) {
	// Providers send multiple v1 signatures during secret rotation; any
	// one matching is enough.
	payload := succeededPayload("pi_123")
	now := time.Now()
	good := SignPayload(payload, testSecret, now)
	header := fmt.Sprintf("t=%d,v1=%s,%s", now.Unix(), "00ff00ff", good[len(fmt.Sprintf("t=%d,", now.Unix())):])

	event, err := verifyEvent(payload, header, testSecret, now)
	require.NoError(t, err)
	assert.Equal(t, "pi_123", event.IntentID)
}

func TestVerifyEvent_OtherEventType(t *testing.T) {
	payload, _ := json.Marshal(map[string]any{
		"type": "payment_intent.payment_failed",
		"data": map[string]any{"object": map[string]any{"id": "pi_789"}},
	})
	now := time.Now()
	header := SignPayload(payload, testSecret, now)

	event, err := verifyEvent(payload, header, testSecret, now)
	require.NoError(t, err)
	assert.Equal(t, "payment_intent.payment_failed", event.Type)
	assert.Equal(t, "pi_789", event.IntentID)
}
