package statsd_test

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/argus-labs/deck-engine/pkg/statsd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsd_InitRequiresAddress(t *testing.T) {
	require.Error(t, statsd.Init("", nil))
}

func TestStatsd_NoOpByDefault(t *testing.T) {
	// Must not panic or block without a configured client.
	statsd.EmitMatchStat("echo", "victory", time.Millisecond)
	statsd.EmitTickStat(time.Now(), 3)
	statsd.Gauge("arena.queued", 1, "arena:default")
}

func TestStatsd_EmitsToUDP(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, statsd.Init(conn.LocalAddr().String(), []string{"env:test"}))
	t.Cleanup(func() { _ = statsd.Close() })

	statsd.EmitMatchStat("echo", "victory", 5*time.Millisecond)
	require.NoError(t, statsd.Client().Flush())

	buf := make([]byte, 4096)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := conn.ReadFrom(buf)
	require.NoError(t, err)

	payload := string(buf[:n])
	assert.True(t, strings.Contains(payload, "deck_engine.match"), payload)
	assert.Contains(t, payload, "deck:echo")
}

func TestStatsd_GaugeCarriesTags(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, statsd.Init(conn.LocalAddr().String(), nil))
	t.Cleanup(func() { _ = statsd.Close() })

	statsd.Gauge("arena.queued", 4, "arena:demo")
	require.NoError(t, statsd.Client().Flush())

	buf := make([]byte, 4096)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := conn.ReadFrom(buf)
	require.NoError(t, err)

	payload := string(buf[:n])
	assert.Contains(t, payload, "deck_engine.arena.queued:4|g")
	assert.Contains(t, payload, "arena:demo")
}
