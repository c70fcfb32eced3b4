package push

import "strings"

// MaxChunkSize is the Expo push API's documented maximum number of messages
// per request.
const MaxChunkSize = 100

// Message is one push notification handed to the gateway. It exists only for
// the duration of a delivery call.
type Message struct {
	To    string         `json:"to"`
	Sound string         `json:"sound,omitempty"`
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data,omitempty"`
}

// Ticket is the gateway's per-message receipt.
type Ticket struct {
	Status  string         `json:"status"`
	ID      string         `json:"id,omitempty"`
	Message string         `json:"message,omitempty"`
	Details *TicketDetails `json:"details,omitempty"`
}

type TicketDetails struct {
	Error string `json:"error,omitempty"`
}

// ChunkResult reports the outcome of one gateway call.
type ChunkResult struct {
	Index   int
	Size    int
	Tickets []Ticket
	Err     error
}

// IsExpoPushToken reports whether token matches the gateway's token grammar.
// Users whose tokens fail this check are silently skipped as recipients.
func IsExpoPushToken(token string) bool {
	var inner string
	switch {
	case strings.HasPrefix(token, "ExponentPushToken["):
		inner = strings.TrimPrefix(token, "ExponentPushToken[")
	case strings.HasPrefix(token, "ExpoPushToken["):
		inner = strings.TrimPrefix(token, "ExpoPushToken[")
	default:
		return false
	}
	if !strings.HasSuffix(inner, "]") {
		return false
	}
	return len(strings.TrimSuffix(inner, "]")) > 0
}

// Chunk partitions messages into size-bounded batches.
func Chunk(messages []Message, size int) [][]Message {
	if size <= 0 {
		size = MaxChunkSize
	}
	var chunks [][]Message
	for len(messages) > 0 {
		n := size
		if len(messages) < n {
			n = len(messages)
		}
		chunks = append(chunks, messages[:n])
		messages = messages[n:]
	}
	return chunks
}

// Sent counts the messages in chunks the gateway accepted.
func Sent(results []ChunkResult) int {
	total := 0
	for _, res := range results {
		if res.Err == nil {
			total += res.Size
		}
	}
	return total
}

// AllFailed reports whether every attempted chunk errored. A delivery with no
// eligible messages has no failed chunks.
func AllFailed(results []ChunkResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, res := range results {
		if res.Err == nil {
			return false
		}
	}
	return true
}
