// Package safebrowsing implements the narrow threat-intelligence check the
// domain screen consumes: one lookup call against the Safe Browsing v4
// threatMatches API.
package safebrowsing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/zarlabs/zar/internal/config"
)

// The four threat types every lookup asks about.
var threatTypes = []string{
	"MALWARE",
	"SOCIAL_ENGINEERING",
	"UNWANTED_SOFTWARE",
	"POTENTIALLY_HARMFUL_APPLICATION",
}

type lookupRequest struct {
	Client     clientInfo `json:"client"`
	ThreatInfo threatInfo `json:"threatInfo"`
}

type clientInfo struct {
	ClientID      string `json:"clientId"`
	ClientVersion string `json:"clientVersion"`
}

type threatInfo struct {
	ThreatTypes      []string      `json:"threatTypes"`
	PlatformTypes    []string      `json:"platformTypes"`
	ThreatEntryTypes []string      `json:"threatEntryTypes"`
	ThreatEntries    []threatEntry `json:"threatEntries"`
}

type threatEntry struct {
	URL string `json:"url"`
}

type lookupResponse struct {
	Matches []json.RawMessage `json:"matches"`
}

// Client calls the Safe Browsing lookup endpoint with a hard timeout.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// New builds a Client from configuration. The configured timeout bounds every
// lookup; callers treat transport errors as unsafe.
func New(cfg config.SafeBrowsingConfig) *Client {
	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: cfg.Timeout},
	}
}

// Check reports whether url is flagged by any of the four threat types.
// The boolean is meaningful only when err is nil.
func (c *Client) Check(ctx context.Context, url string) (flagged bool, err error) {
	payload := lookupRequest{
		Client: clientInfo{ClientID: "zar-url-shortener", ClientVersion: "1.0.0"},
		ThreatInfo: threatInfo{
			ThreatTypes:      threatTypes,
			PlatformTypes:    []string{"ANY_PLATFORM"},
			ThreatEntryTypes: []string{"URL"},
			ThreatEntries:    []threatEntry{{URL: url}},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("marshal lookup request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"?key="+c.apiKey, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build lookup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("safe browsing lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Read a little of the body for the log line.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return false, fmt.Errorf("safe browsing lookup: status %d: %s", resp.StatusCode, snippet)
	}

	var result lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("decode lookup response: %w", err)
	}

	return len(result.Matches) > 0, nil
}
