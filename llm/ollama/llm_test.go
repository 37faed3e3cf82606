package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"mealscore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		opts    ClientOpts
		wantErr bool
	}{
		{
			name:    "valid",
			opts:    ClientOpts{BaseEndpoint: "http://localhost:11434/", ModelID: "llama3.2"},
			wantErr: false,
		},
		{
			name:    "missing model",
			opts:    ClientOpts{BaseEndpoint: "http://localhost:11434"},
			wantErr: true,
		},
		{
			name:    "missing endpoint",
			opts:    ClientOpts{ModelID: "llama3.2"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewClient(tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "http://localhost:11434/api/chat", got.endpoint)
			assert.Equal(t, "llama3.2", got.model)
			assert.NotNil(t, got.httpClient)
		})
	}
}

func TestClient_Generate(t *testing.T) {
	var received wireRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &received))
		_ = json.NewEncoder(w).Encode(wireResponse{
			Message:    wireMessage{Role: "assistant", Content: `{"headline":"ok"}`},
			DoneReason: "stop",
		})
	})
	mux.HandleFunc("/img.jpg", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("jpegbytes"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, err := NewClient(ClientOpts{BaseEndpoint: server.URL, ModelID: "llava", MaxTokens: 512, HTTPClient: server.Client()})
	require.NoError(t, err)

	got, err := client.Generate(context.Background(), mealscore.GenerationRequest{
		System: "sys",
		User:   "describe",
		Images: []mealscore.ImageRef{{URL: server.URL + "/img.jpg"}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"headline":"ok"}`, got)

	assert.Equal(t, "llava", received.Model)
	assert.Equal(t, "json", received.Format)
	assert.False(t, received.Stream)
	assert.Equal(t, 512, received.Options.NumPredict)
	require.Len(t, received.Messages, 2)
	assert.Equal(t, "system", received.Messages[0].Role)
	assert.Equal(t, "user", received.Messages[1].Role)
	assert.Equal(t, []string{"anBlZ2J5dGVz"}, received.Messages[1].Images)
}

func TestClient_GenerateErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr string
	}{
		{
			name: "non-200",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "model not found", http.StatusNotFound)
			},
			wantErr: "404",
		},
		{
			name: "bad body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("not json"))
			},
			wantErr: "decode response",
		},
		{
			name: "empty completion",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":""}}`))
			},
			wantErr: "empty completion",
		},
		{
			name: "truncated",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"{\"head"},"done_reason":"length"}`))
			},
			wantErr: "num_predict",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client, err := NewClient(ClientOpts{BaseEndpoint: server.URL, ModelID: "m", HTTPClient: server.Client()})
			require.NoError(t, err)

			_, err = client.Generate(context.Background(), mealscore.GenerationRequest{User: "u"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

type failingBody struct{}

func (failingBody) Read(p []byte) (int, error) { return 0, errors.New("connection reset") }
func (failingBody) Close() error { return nil }

type stubHTTPClient struct {
	resp *http.Response
}

func (s *stubHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return s.resp, nil
}

func TestClient_GenerateReadError(t *testing.T) {
	client, err := NewClient(ClientOpts{
		BaseEndpoint: "http://localhost:11434",
		ModelID:      "m",
		HTTPClient:   &stubHTTPClient{resp: &http.Response{StatusCode: http.StatusOK, Status: "200 OK", Body: failingBody{}}},
	})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), mealscore.GenerationRequest{User: "u"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read response")
	assert.Contains(t, err.Error(), "connection reset")
}
