// Package providers holds the concrete clients behind the routing, traffic,
// weather, places and suggestion interfaces.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const userAgent = "safewalk-api/1.0"

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

// StatusError is returned when an upstream answers with a non-2xx status.
type StatusError struct {
	Service string
	Code    int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status code %d", e.Service, e.Code)
}

func doJSON(ctx context.Context, client *http.Client, req *http.Request, service string, out any) error {
	req = req.WithContext(ctx)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &StatusError{Service: service, Code: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", service, err)
	}
	return nil
}

func getJSON(ctx context.Context, client *http.Client, url, service string, out any) error {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", service, err)
	}
	return doJSON(ctx, client, req, service, out)
}
