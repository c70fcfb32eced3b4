package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// The gateway tolerates roughly 600 messages per second; at 100 messages per
// chunk that is 6 requests per second.
const defaultRequestsPerSecond = 6

// Client submits size-bounded chunks to the Expo push HTTP API. Each chunk is
// sent independently: one failed or stalled chunk never aborts its siblings.
type Client struct {
	URL          string
	HTTPClient   *http.Client
	Limiter      *rate.Limiter
	ChunkTimeout time.Duration
	Log          zerolog.Logger
}

func NewClient(url string, log zerolog.Logger) *Client {
	return &Client{
		URL:          url,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		Limiter:      rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), 2),
		ChunkTimeout: 10 * time.Second,
		Log:          log,
	}
}

type gatewayResponse struct {
	Data []Ticket `json:"data"`
}

// Deliver filters out messages with malformed tokens, partitions the rest
// into chunks, and posts each chunk with its own timeout. Returned results
// carry one entry per attempted chunk; the caller does not retry failures.
func (c *Client) Deliver(ctx context.Context, messages []Message) []ChunkResult {
	eligible := messages[:0:0]
	for _, msg := range messages {
		if !IsExpoPushToken(msg.To) {
			c.Log.Debug().Str("to", msg.To).Msg("skipping message with invalid push token")
			continue
		}
		eligible = append(eligible, msg)
	}

	chunks := Chunk(eligible, MaxChunkSize)
	results := make([]ChunkResult, 0, len(chunks))
	for i, chunk := range chunks {
		res := ChunkResult{Index: i, Size: len(chunk)}
		res.Tickets, res.Err = c.sendChunk(ctx, chunk)
		if res.Err != nil {
			c.Log.Error().Err(res.Err).Int("chunk", i).Int("size", len(chunk)).Msg("push chunk delivery failed")
		}
		results = append(results, res)
	}
	return results
}

func (c *Client) sendChunk(ctx context.Context, chunk []Message) ([]Ticket, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	chunkCtx, cancel := context.WithTimeout(ctx, c.ChunkTimeout)
	defer cancel()

	payload, err := json.Marshal(chunk)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(chunkCtx, http.MethodPost, c.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("push gateway returned status %d", resp.StatusCode)
	}

	var parsed gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode push gateway response: %w", err)
	}
	return parsed.Data, nil
}
