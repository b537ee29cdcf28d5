package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"sprout/internal/skilltree"
)

// HTTPDiscoverer asks a remote collaborator for skill proposals. The
// request body is the TreeSnapshot JSON; the response is whatever the
// collaborator produces, run through the repair parser.
type HTTPDiscoverer struct {
	endpoint string
	client   *http.Client
}

// NewHTTPDiscoverer builds a client for the given endpoint.
func NewHTTPDiscoverer(endpoint string) *HTTPDiscoverer {
	return &HTTPDiscoverer{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 2 * time.Minute},
	}
}

func (d *HTTPDiscoverer) DiscoverSkills(ctx context.Context, snapshot TreeSnapshot) ([]skilltree.Definition, error) {
	body, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discovery request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery endpoint returned %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read discovery response: %w", err)
	}
	return ParseProposals(string(raw))
}
