package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/txnroute/txnroute/pkg/types"
)

const maxResponseBytes = 16 << 20

type httpSource struct {
	id       string
	endpoint string
	client   *http.Client
}

func (s *httpSource) ID() string { return s.id }

// Poll fetches the endpoint and decodes a JSON array of records. One bad
// element fails the whole poll, since the endpoint is expected to be
// machine-generated.
func (s *httpSource) Poll(ctx context.Context) ([]types.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("source %q: build request: %w", s.id, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source %q: http get: %w", s.id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source %q: unexpected status %d", s.id, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("source %q: read body: %w", s.id, err)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw []wireRecord
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("source %q: decode: %w", s.id, err)
	}
	out := make([]types.Record, 0, len(raw))
	for i, w := range raw {
		rec, err := w.record()
		if err != nil {
			return nil, fmt.Errorf("source %q: element %d: %w", s.id, i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}
