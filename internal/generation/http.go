package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPGenerator calls a remote generation collaborator over HTTP. The
// request body is the Attempt JSON; the response body is the Outcome JSON.
type HTTPGenerator struct {
	endpoint string
	client   *http.Client
}

// NewHTTPGenerator builds a client for the given endpoint. The per-attempt
// deadline comes from the caller's context; the embedded client timeout is
// only a safety net.
func NewHTTPGenerator(endpoint string) *HTTPGenerator {
	return &HTTPGenerator{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Minute},
	}
}

func (g *HTTPGenerator) AttemptEvolution(ctx context.Context, attempt Attempt) (Outcome, error) {
	body, err := json.Marshal(attempt)
	if err != nil {
		return Outcome{}, fmt.Errorf("encode attempt: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return Outcome{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return Outcome{}, fmt.Errorf("generation request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Outcome{}, fmt.Errorf("generation endpoint returned %d", resp.StatusCode)
	}

	var outcome Outcome
	if err := json.NewDecoder(resp.Body).Decode(&outcome); err != nil {
		return Outcome{}, fmt.Errorf("decode outcome: %w", err)
	}
	return outcome, nil
}
