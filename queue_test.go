package quicpipe

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageQueue_FIFO(t *testing.T) {
	q := newMessageQueue()

	for _, payload := range []string{"a", "b", "c"} {
		require.NoError(t, q.push(message{kind: msgSendData, payload: []byte(payload)}))
	}

	for _, want := range []string{"a", "b", "c"} {
		m, ok := q.pop()
		require.True(t, ok)
		assert.Equal(t, msgSendData, m.kind)
		assert.Equal(t, []byte(want), m.payload)
	}

	_, ok := q.pop()
	assert.False(t, ok)
}

func TestMessageQueue_CloseStillDrains(t *testing.T) {
	q := newMessageQueue()
	require.NoError(t, q.push(message{kind: msgClose}))

	q.close()

	err := q.push(message{kind: msgSendData})
	assert.ErrorIs(t, err, ErrClosed)

	m, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, msgClose, m.kind)

	closed, qerr := q.state()
	assert.True(t, closed)
	assert.NoError(t, qerr)
}

func TestMessageQueue_ShutdownDiscards(t *testing.T) {
	q := newMessageQueue()
	require.NoError(t, q.push(message{kind: msgRecvData, payload: []byte("x")}))

	q.shutdown()

	_, ok := q.pop()
	assert.False(t, ok)

	closed, err := q.state()
	assert.True(t, closed)
	assert.NoError(t, err)
}

func TestMessageQueue_FailCarriesError(t *testing.T) {
	q := newMessageQueue()
	boom := errors.New("boom")

	q.fail(boom)

	err := q.push(message{kind: msgSendData})
	assert.ErrorIs(t, err, boom)

	closed, qerr := q.state()
	assert.True(t, closed)
	assert.ErrorIs(t, qerr, boom)
}

func TestMessageQueue_SignalReadiness(t *testing.T) {
	q := newMessageQueue()

	// a push arriving between an empty pop and the wait must not be lost
	_, ok := q.pop()
	require.False(t, ok)

	require.NoError(t, q.push(message{kind: msgClose}))

	select {
	case <-q.wait():
	default:
		t.Fatal("notify channel empty after push")
	}
}
