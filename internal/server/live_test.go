package server

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"secure-file-share/internal/notify"
)

func TestWSSession_DeliverQueuesUntilFull(t *testing.T) {
	ws := &wsSession{
		outbox: make(chan notify.Event, 2),
		done:   make(chan struct{}),
	}
	assert.NoError(t, ws.Deliver(notify.Event{Name: "a"}))
	assert.NoError(t, ws.Deliver(notify.Event{Name: "b"}))
	assert.ErrorIs(t, ws.Deliver(notify.Event{Name: "c"}), errOutboxFull)

	close(ws.done)
	assert.ErrorIs(t, ws.Deliver(notify.Event{Name: "d"}), errSessionClosed)
}
