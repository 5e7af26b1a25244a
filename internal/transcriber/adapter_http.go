package transcriber

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HTTPAdapter submits audio to a generic batch transcription endpoint:
// request {"audio": base64} -> response {"text": string}.
type HTTPAdapter struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPAdapter(endpoint, apiKey string) *HTTPAdapter {
	return &HTTPAdapter{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{},
	}
}

type batchRequest struct {
	Audio string `json:"audio"`
}

type batchResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

func (a *HTTPAdapter) Transcribe(ctx context.Context, wav []byte) (string, error) {
	body, err := json.Marshal(batchRequest{Audio: base64.StdEncoding.EncodeToString(wav)})
	if err != nil {
		return "", fmt.Errorf("encode batch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create batch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("batch request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("batch endpoint returned %d: %s", resp.StatusCode, string(raw))
	}

	var br batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return "", fmt.Errorf("decode batch response: %w", err)
	}
	if br.Error != "" {
		return "", fmt.Errorf("batch endpoint error: %s", br.Error)
	}

	return br.Text, nil
}
