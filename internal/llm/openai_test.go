package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func sseServer(t *testing.T, lines []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, l := range lines {
			fmt.Fprintf(w, "data: %s\n\n", l)
		}
	}))
}

func TestStreamChatDeltas(t *testing.T) {
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"content":"Hel"}}]}`,
		`{"choices":[{"delta":{"content":"lo"}}]}`,
		`{"choices":[{"delta":{"content":""}}]}`,
		`[DONE]`,
	})
	defer srv.Close()

	client := NewOpenAIClient(srv.URL, "key", "test-model", 0.7, 64)
	chunks, errs := client.StreamChat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})

	var got []string
	for c := range chunks {
		got = append(got, c)
	}
	require.NoError(t, <-errs)
	require.Equal(t, []string{"Hel", "lo"}, got)
}

func TestStreamChatUpstreamError(t *testing.T) {
	srv := sseServer(t, []string{`{"error":{"message":"rate limited"}}`})
	defer srv.Close()

	client := NewOpenAIClient(srv.URL, "key", "test-model", 0, 0)
	chunks, errs := client.StreamChat(context.Background(), nil)
	for range chunks {
	}
	require.EqualError(t, <-errs, "rate limited")
}

func TestStreamChatHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewOpenAIClient(srv.URL, "key", "test-model", 0, 0)
	chunks, errs := client.StreamChat(context.Background(), nil)
	for range chunks {
	}
	require.Error(t, <-errs)
}

func TestChatNonStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"pong"}}]}`)
	}))
	defer srv.Close()

	client := NewOpenAIClient(srv.URL, "key", "test-model", 0, 0)
	out, err := client.Chat(context.Background(), []Message{{Role: RoleUser, Content: "ping"}})
	require.NoError(t, err)
	require.Equal(t, "pong", out)

	require.NoError(t, client.Ping(context.Background()))
}

func TestChatRequiresModel(t *testing.T) {
	client := NewOpenAIClient("http://127.0.0.1:1", "key", "", 0, 0)
	_, err := client.Chat(context.Background(), nil)
	require.Error(t, err)
}
