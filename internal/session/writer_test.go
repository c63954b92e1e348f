package session

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osaibot/osaibot/internal/proto"
)

func TestBotWriterSpacing(t *testing.T) {
	buf := &bytes.Buffer{}
	const delay = 50 * time.Millisecond
	bw := newBotWriter(buf, delay)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, bw.Send(ctx, proto.BotMessage{Type: proto.TypeDirect, Payload: "x"}))
	}
	elapsed := time.Since(start)

	// First message is immediate; the next two each wait out the delay.
	assert.GreaterOrEqual(t, elapsed, 2*delay)
	assert.Equal(t, 3, bytes.Count(buf.Bytes(), []byte{'\n'}))
}

func TestBotWriterCancel(t *testing.T) {
	buf := &bytes.Buffer{}
	bw := newBotWriter(buf, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, bw.Send(ctx, proto.BotMessage{Type: proto.TypeDirect, Payload: "first"}))

	done := make(chan error, 1)
	go func() {
		done <- bw.Send(ctx, proto.BotMessage{Type: proto.TypeDirect, Payload: "second"})
	}()
	cancel()

	assert.Error(t, <-done)
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte{'\n'}))
}

func TestBotWriterSerializes(t *testing.T) {
	buf := &bytes.Buffer{}
	bw := newBotWriter(buf, 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = bw.Send(ctx, proto.BotMessage{Type: proto.TypeDirect, Payload: "concurrent"})
		}()
	}
	wg.Wait()

	msgs := sentMessages(t, buf)
	assert.Len(t, msgs, 8)
}

func TestWriteSetCancelScopes(t *testing.T) {
	ws := newWriteSet()

	execCtx, execDone := ws.add(true)
	plainCtx, plainDone := ws.add(false)
	defer execDone()
	defer plainDone()

	ws.cancelExec()
	assert.Error(t, execCtx.Err())
	assert.NoError(t, plainCtx.Err())

	ws.cancelAll()
	assert.Error(t, plainCtx.Err())
}

func TestWriteSetDoneRemoves(t *testing.T) {
	ws := newWriteSet()
	ctx, done := ws.add(true)
	done()

	// A completed write is no longer cancellable, but its context is dead.
	ws.cancelExec()
	assert.Error(t, ctx.Err())
	assert.Empty(t, ws.all)
	assert.Empty(t, ws.exec)
}
