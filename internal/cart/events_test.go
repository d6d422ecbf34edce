package cart

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestBroadcaster(t *testing.T) {
	b := newBroadcaster()

	first, unsubscribe := b.subscribe()
	second, _ := b.subscribe()

	b.publish()
	b.publish()

	assertSignals(t, first, 1)
	assertSignals(t, second, 1)

	unsubscribe()
	unsubscribe()
	_, open := <-first
	assert.False(t, open)

	b.close()
	_, open = <-second
	assert.False(t, open)

	late, unsubscribeLate := b.subscribe()
	_, open = <-late
	assert.False(t, open)
	unsubscribeLate()

	b.publish()
	b.close()
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	notifier := LogNotifier{Logger: zap.New(core)}

	notifier.Notify(Notification{Level: LevelInfo, Op: opCheckout, Message: "order placed"})
	notifier.Notify(Notification{Level: LevelError, Op: opAdd, Message: "error adding to cart", Err: errors.New("boom")})

	entries := logs.All()
	require.Len(t, entries, 2)

	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "order placed", entries[0].Message)
	assert.Equal(t, opCheckout, entries[0].ContextMap()["op"])

	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])

	LogNotifier{}.Notify(Notification{Message: "dropped"})
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "info", LevelInfo.String())
	assert.Equal(t, "error", LevelError.String())
}

// assertSignals drains ch without blocking and checks how many signals were pending.
func assertSignals(t *testing.T, ch <-chan struct{}, want int) {
	t.Helper()

	got := 0
	for {
		select {
		case _, open := <-ch:
			if !open {
				assert.Equal(t, want, got)
				return
			}
			got++
		default:
			assert.Equal(t, want, got)
			return
		}
	}
}
