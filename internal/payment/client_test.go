package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateIntent_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "2000", r.PostForm.Get("amount"))
		assert.Equal(t, "usd", r.PostForm.Get("currency"))
		assert.Equal(t, "user-1", r.PostForm.Get("metadata[user_id]"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","client_secret":"pi_123_secret_abc"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sk_test", "whsec_test")
	intent, err := client.CreateIntent(context.Background(), 2000, "usd", map[string]string{"user_id": "user-1"})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", intent.ID)
	assert.Equal(t, "pi_123_secret_abc", intent.ClientSecret)
}

func TestCreateIntent_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid api key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sk_bad", "whsec_test")
	_, err := client.CreateIntent(context.Background(), 1000, "usd", nil)
	assert.ErrorIs(t, err, ErrGateway)
}

func TestCreateIntent_IncompleteResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"pi_123"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sk_test", "whsec_test")
	_, err := client.CreateIntent(context.Background(), 1000, "usd", nil)
	assert.ErrorIs(t, err, ErrGateway)
}

func TestCreateIntent_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewClient(srv.URL, "sk_test", "whsec_test")
	_, err := client.CreateIntent(context.Background(), 1000, "usd", nil)
	assert.ErrorIs(t, err, ErrGateway)
}
