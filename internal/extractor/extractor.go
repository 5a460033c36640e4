// Package extractor calls the external face embedding service. The service
// owns detection and embedding entirely; this client only moves bytes and
// validates the dimensionality of what comes back.
package extractor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

const defaultBaseURL = "http://localhost:8000"

// ErrNoFaceDetected is returned when the embedding service finds no face in
// the submitted image.
var ErrNoFaceDetected = errors.New("no face detected in the image")

// Client talks to the embedding service.
type Client struct {
	baseURL string
	dim     int
	client  *http.Client
}

// NewClient creates an extractor client. dim is the expected embedding
// dimensionality; responses of any other length are rejected.
func NewClient(baseURL string, dim int) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		dim:     dim,
		client:  &http.Client{},
	}
}

// embeddingResponse represents the response from the embedding service.
type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
	Dim       int       `json:"dim"`
}

// DecodeImage accepts raw base64 image data, with or without a data-URI
// prefix, and returns the decoded bytes.
func DecodeImage(data string) ([]byte, error) {
	if strings.HasPrefix(data, "data:image") {
		if _, rest, ok := strings.Cut(data, ","); ok {
			data = rest
		}
	}
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decoding image data: %w", err)
	}
	return decoded, nil
}

// Extract posts the image to the embedding service and returns the face
// embedding. A response without an embedding means no face was found.
func (c *Client) Extract(ctx context.Context, imageData []byte) ([]float32, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "image.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed-face", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading embedding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parsing embedding response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, ErrNoFaceDetected
	}
	if c.dim > 0 && len(parsed.Embedding) != c.dim {
		return nil, fmt.Errorf("embedding service returned %d dimensions, expected %d", len(parsed.Embedding), c.dim)
	}
	return parsed.Embedding, nil
}
