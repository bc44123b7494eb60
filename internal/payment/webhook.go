package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const EventPaymentSucceeded = "payment_intent.succeeded"

// signatureTolerance bounds how stale a signed timestamp may be before
// the event is rejected as a possible replay.
const signatureTolerance = 5 * time.Minute

var ErrInvalidSignature = errors.New("webhook signature verification failed")

// Event is the minimal slice of a provider webhook this system consumes:
// the event type and the payment intent it refers to.
type Event struct {
	Type     string
	IntentID string
}

type eventPayload struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

// VerifyEvent checks the Stripe-style v1 signature header against the raw
// payload and returns the parsed event. The signature check happens
// before any parsing of the body; an unverified payload is never trusted.
func (c *Client) VerifyEvent(payload []byte, sigHeader string) (*Event, error) {
	return verifyEvent(payload, sigHeader, c.webhookSecret, time.Now())
}

func verifyEvent(payload []byte, sigHeader string, secret string, now time.Time) (*Event, error) {
	ts, sigs, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return nil, err
	}

	if now.Sub(time.Unix(ts, 0)) > signatureTolerance {
		return nil, fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	expected := computeSignature(ts, payload, secret)
	valid := false
	for _, sig := range sigs {
		if hmac.Equal(sig, expected) {
			valid = true
			break
		}
	}
	if !valid {
		return nil, ErrInvalidSignature
	}

	var ep eventPayload
	if err := json.Unmarshal(payload, &ep); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	return &Event{Type: ep.Type, IntentID: ep.Data.Object.ID}, nil
}

// parseSignatureHeader splits "t=<unix>,v1=<hex>[,v1=<hex>...]".
func parseSignatureHeader(header string) (int64, [][]byte, error) {
	var ts int64
	var sigs [][]byte
	tsSeen := false

	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			v, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
			}
			ts = v
			tsSeen = true
		case "v1":
			sig, err := hex.DecodeString(kv[1])
			if err != nil {
				continue
			}
			sigs = append(sigs, sig)
		}
	}

	if !tsSeen || len(sigs) == 0 {
		return 0, nil, fmt.Errorf("%w: malformed header", ErrInvalidSignature)
	}
	return ts, sigs, nil
}

func computeSignature(ts int64, payload []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

// SignPayload produces a signature header for a payload, the counterpart
// of VerifyEvent. Used by tests and local webhook replay tooling.
func SignPayload(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	sig := computeSignature(ts, payload, secret)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(sig))
}
