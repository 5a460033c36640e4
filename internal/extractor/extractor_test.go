package extractor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newEmbeddingServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestExtract(t *testing.T) {
	want := []float32{0.1, 0.2, 0.3, 0.4}
	server := newEmbeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/embed-face" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Errorf("Content-Type = %q; want multipart form", r.Header.Get("Content-Type"))
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
		} else {
			file.Close()
		}
		json.NewEncoder(w).Encode(embeddingResponse{Embedding: want, Dim: len(want)})
	})

	client := NewClient(server.URL, 4)
	got, err := client.Extract(context.Background(), []byte("fake-jpeg-bytes"))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("embedding length = %d; want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("embedding[%d] = %v; want %v", i, got[i], want[i])
		}
	}
}

func TestExtractNoFace(t *testing.T) {
	server := newEmbeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embeddingResponse{})
	})

	client := NewClient(server.URL, 4)
	_, err := client.Extract(context.Background(), []byte("img"))
	if !errors.Is(err, ErrNoFaceDetected) {
		t.Fatalf("Extract error = %v; want ErrNoFaceDetected", err)
	}
}

func TestExtractDimensionMismatch(t *testing.T) {
	server := newEmbeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embeddingResponse{Embedding: []float32{1, 2}, Dim: 2})
	})

	client := NewClient(server.URL, 4)
	_, err := client.Extract(context.Background(), []byte("img"))
	if err == nil || !strings.Contains(err.Error(), "2 dimensions") {
		t.Fatalf("Extract error = %v; want dimension mismatch", err)
	}
}

func TestExtractServiceError(t *testing.T) {
	server := newEmbeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	})

	client := NewClient(server.URL, 4)
	_, err := client.Extract(context.Background(), []byte("img"))
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Fatalf("Extract error = %v; want status error", err)
	}
}

func TestExtractServiceDown(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewClient(url, 4)
	if _, err := client.Extract(context.Background(), []byte("img")); err == nil {
		t.Fatal("Extract should fail when the service is unreachable")
	}
}

func TestDecodeImage(t *testing.T) {
	raw := []byte{0xff, 0xd8, 0xff, 0xe0}
	encoded := base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		name    string
		input   string
		want    []byte
		wantErr bool
	}{
		{name: "plain base64", input: encoded, want: raw},
		{name: "data uri", input: "data:image/jpeg;base64," + encoded, want: raw},
		{name: "invalid base64", input: "not!!base64", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeImage(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeImage failed: %v", err)
			}
			if string(got) != string(tt.want) {
				t.Errorf("DecodeImage = %v; want %v", got, tt.want)
			}
		})
	}
}
