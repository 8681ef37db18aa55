package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// socketServer is one entry in a room's socket configuration
type socketServer struct {
	URL    string `json:"url"`
	Secure bool   `json:"secure"`
}

// socketConfig is the per-room endpoint descriptor served over HTTP
type socketConfig struct {
	Servers []socketServer `json:"servers"`
}

// FetchSocketURL looks up the room's socket endpoint from the server's
// configuration resource. Secure servers are preferred; otherwise the first
// listed server is used.
func FetchSocketURL(ctx context.Context, baseURL, room string) (string, error) {
	url := fmt.Sprintf("%s/socketconfig/%s.json", baseURL, room)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build socket config request: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch socket config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("socket config lookup for %s returned status %d", room, resp.StatusCode)
	}

	var cfg socketConfig
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return "", fmt.Errorf("failed to decode socket config: %w", err)
	}

	if len(cfg.Servers) == 0 {
		return "", fmt.Errorf("socket config for %s lists no servers", room)
	}

	for _, s := range cfg.Servers {
		if s.Secure {
			return s.URL, nil
		}
	}
	return cfg.Servers[0].URL, nil
}
