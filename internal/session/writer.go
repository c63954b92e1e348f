package session

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/osaibot/osaibot/internal/proto"
)

// minSendDelay is the minimum spacing between outbound messages; the chat
// platform rate-limits harder than the shell produces output.
const minSendDelay = 1200 * time.Millisecond

// botWriter serializes every outbound message onto the client connection and
// enforces the inter-message delay.
type botWriter struct {
	mu      sync.Mutex
	w       io.Writer
	limiter *rate.Limiter
}

func newBotWriter(w io.Writer, minDelay time.Duration) *botWriter {
	return &botWriter{
		w:       w,
		limiter: rate.NewLimiter(rate.Every(minDelay), 1),
	}
}

// Send marshals msg as one JSON line and writes it. Blocks until the rate
// limiter admits the message or ctx is cancelled.
func (bw *botWriter) Send(ctx context.Context, msg proto.BotMessage) error {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if err := bw.limiter.Wait(ctx); err != nil {
		return err
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = bw.w.Write(b)
	return err
}
