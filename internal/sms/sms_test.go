package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFormatPhone(t *testing.T) {
	cases := map[string]string{
		"0712 345-678":  "255712345678",
		"+255712345678": "255712345678",
		"255712345678":  "255712345678",
		"712345678":     "255712345678",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatPhone(in), in)
	}
}

func TestBeemClientPayload(t *testing.T) {
	var got payload
	var user, pass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ = r.BasicAuth()
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"successful":true}`))
	}))
	defer srv.Close()

	c := NewBeemClient(srv.URL, "key", "secret", "HAMASA", time.Second, zap.NewNop())
	require.NoError(t, c.Send(context.Background(), "hello", "0712000001", "+255712000002"))

	assert.Equal(t, "key", user)
	assert.Equal(t, "secret", pass)
	assert.Equal(t, "HAMASA", got.SourceAddr)
	assert.Equal(t, "", got.ScheduleTime)
	assert.Equal(t, 0, got.Encoding)
	assert.Equal(t, "hello", got.Message)
	require.Len(t, got.Recipients, 2)
	assert.Equal(t, recipient{RecipientID: "1", DestAddr: "255712000001"}, got.Recipients[0])
	assert.Equal(t, recipient{RecipientID: "2", DestAddr: "255712000002"}, got.Recipients[1])
}

func TestBeemClientGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewBeemClient(srv.URL, "key", "bad", "HAMASA", time.Second, nil)
	assert.Error(t, c.Send(context.Background(), "hello", "0712000001"))
}
