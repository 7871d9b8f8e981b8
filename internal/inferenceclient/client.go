package inferenceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/Brownie44l1/skinlens/internal/domain/port"
	"github.com/Brownie44l1/skinlens/internal/prediction"
)

var (
	ErrUnavailable = errors.New("inference service unavailable")
	ErrRejected    = errors.New("prediction failed")
)

const maxResponseSize = 1 << 20

// Client calls POST /predict on the inference service. Requests are never
// retried; a timeout counts as a failed prediction.
type Client struct {
	client  *http.Client
	baseURL string
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Predict returns the body of a successful response verbatim.
func (c *Client) Predict(ctx context.Context, image []byte, filename string, metadata []byte) (json.RawMessage, error) {
	body, contentType, err := encodeForm(image, filename, metadata)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}

	var parsed prediction.Response
	decodeErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && parsed.Error != "" {
			return nil, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, parsed.Error)
		}
		return nil, fmt.Errorf("%w: inference returned status: %d", ErrUnavailable, resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrUnavailable, decodeErr)
	}
	if !parsed.Success {
		return nil, fmt.Errorf("%w: %s", ErrRejected, parsed.Error)
	}
	return json.RawMessage(raw), nil
}

// Health reports whether the service answers GET /health.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health returned status: %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

func encodeForm(image []byte, filename string, metadata []byte) (io.Reader, string, error) {
	if filename == "" {
		filename = "image.jpg"
	}
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("image", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(image); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("metadata", string(metadata)); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

var _ port.Predictor = (*Client)(nil)
