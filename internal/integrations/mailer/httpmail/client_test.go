package httpmail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BearBump/CampaignBox/internal/integrations/mailer"
	"github.com/stretchr/testify/require"
)

func TestClient_Send_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.Equal(t, "Bearer k", r.Header.Get("Authorization"))

		var body sendReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, []string{"ann@example.com"}, body.To)
		require.Equal(t, "Hiring <hr@example.com>", body.From)
		require.Equal(t, "Hello", body.Subject)
		require.Equal(t, "<p>x</p>", body.HTML)
		require.Equal(t, "42", body.Headers["X-Campaign-ID"])
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := New(srv.URL, "k")
	err := c.Send(context.Background(), mailer.Message{
		From:    "Hiring <hr@example.com>",
		To:      "ann@example.com",
		Subject: "Hello",
		HTML:    "<p>x</p>",
		Headers: map[string]string{"X-Campaign-ID": "42"},
	})
	require.NoError(t, err)
}

func TestClient_Send_KeepsBasePathPrefix(t *testing.T) {
	paths := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	require.NoError(t, New(srv.URL+"/relay", "").Send(context.Background(), mailer.Message{To: "a@example.com"}))
	require.NoError(t, New(srv.URL+"/relay/", "").Send(context.Background(), mailer.Message{To: "a@example.com"}))
	require.Equal(t, "/relay/v1/messages", <-paths)
	require.Equal(t, "/relay/v1/messages", <-paths)
}

func TestClient_Send_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid recipient"}`))
	}))
	defer srv.Close()

	err := New(srv.URL, "").Send(context.Background(), mailer.Message{To: "x"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid recipient")
}

func TestClient_Send_429(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := New(srv.URL, "").Send(context.Background(), mailer.Message{To: "x"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
}

func TestClient_Send_ContextTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := New(srv.URL, "").Send(ctx, mailer.Message{To: "x"})
	require.Error(t, err)
}
