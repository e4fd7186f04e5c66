// Package egress is a thin JSON/HTTP client for the media egress engine. The
// engine captures a live room participant to a file artifact uploaded directly
// to object storage; this process only starts and stops that operation.
package egress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// FileResult is one produced artifact reference in an engine response.
type FileResult struct {
	Location string `json:"location"`
	Filename string `json:"filename,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Info is the engine's response to a start or stop call. The success payload
// shape is not uniform across engine versions; FileLocation probes the known
// variants in order.
type Info struct {
	EgressID    string       `json:"egress_id"`
	Status      string       `json:"status,omitempty"`
	FileResults []FileResult `json:"file_results,omitempty"`
	File        *FileResult  `json:"file,omitempty"`
	Result      *FileResult  `json:"result,omitempty"`
}

// FileLocation returns the artifact location from whichever result field the
// engine populated, first match wins, or "" when none is present.
func (i *Info) FileLocation() string {
	if i == nil {
		return ""
	}
	if len(i.FileResults) > 0 && i.FileResults[0].Location != "" {
		return i.FileResults[0].Location
	}
	if i.File != nil && i.File.Location != "" {
		return i.File.Location
	}
	if i.Result != nil && i.Result.Location != "" {
		return i.Result.Location
	}
	return ""
}

// Output tells the engine where to upload the captured file.
type Output struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// Client calls the egress engine's HTTP API.
type Client struct {
	baseURL   string
	apiKey    string
	apiSecret string
	http      *http.Client
	logger    *zap.Logger
}

// NewClient creates an egress engine client.
func NewClient(baseURL, apiKey, apiSecret string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

type startRequest struct {
	RoomName            string `json:"room_name"`
	ParticipantIdentity string `json:"participant_identity"`
	Output              Output `json:"output"`
}

type stopRequest struct {
	EgressID string `json:"egress_id"`
}

// StartParticipantEgress begins a participant-only capture of the room that
// uploads directly to the given object-storage location.
func (c *Client) StartParticipantEgress(ctx context.Context, roomName, participantIdentity string, output Output) (*Info, error) {
	return c.post(ctx, "/egress/participant/start", startRequest{
		RoomName:            roomName,
		ParticipantIdentity: participantIdentity,
		Output:              output,
	})
}

// StopEgress stops a running egress operation.
func (c *Client) StopEgress(ctx context.Context, egressID string) (*Info, error) {
	return c.post(ctx, "/egress/stop", stopRequest{EgressID: egressID})
}

func (c *Client) post(ctx context.Context, path string, body any) (*Info, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.SetBasicAuth(c.apiKey, c.apiSecret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("egress call: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("egress engine error", zap.String("path", path), zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("egress engine status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &info, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
