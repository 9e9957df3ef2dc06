package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/argus-labs/deck-engine/pkg/engine"
	"github.com/argus-labs/deck-engine/pkg/engine/types"
	"github.com/argus-labs/deck-engine/pkg/server/handler"
	"github.com/argus-labs/deck-engine/pkg/telemetry"
	"github.com/argus-labs/deck-engine/pkg/testutils"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	t   *testing.T
	eng *engine.Engine
	srv *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tel := telemetry.Nop()
	eng, err := engine.New(engine.Options{Telemetry: &tel, TickInterval: 5 * time.Millisecond, DisableEventLog: true})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, eng.Shutdown(context.Background())) })

	_, err = eng.CreateDeck("echo", engine.DeckConfig{Play: testutils.Echo})
	require.NoError(t, err)
	_, err = eng.CreateDeck("always-fails", engine.DeckConfig{
		Play:  testutils.AlwaysFails,
		Retry: engine.RetryPolicy{MaxAttempts: 2, BackoffFactor: 1, MinTimeout: time.Millisecond},
	})
	require.NoError(t, err)

	srv, err := New(eng, Options{Addr: "127.0.0.1:0"})
	require.NoError(t, err)
	return &fixture{t: t, eng: eng, srv: srv}
}

// do sends a request and decodes the JSON response into out when out is non-nil.
func (f *fixture) do(method, path string, body any, out any) int {
	f.t.Helper()

	var reader io.Reader
	if body != nil {
		bz, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(bz)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	res, err := f.srv.app.Test(req, -1)
	require.NoError(f.t, err)
	defer res.Body.Close()

	if out != nil {
		bz, err := io.ReadAll(res.Body)
		require.NoError(f.t, err)
		require.NoError(f.t, json.Unmarshal(bz, out), string(bz))
	}
	return res.StatusCode
}

func TestServer_Health(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var h engine.HealthStatus
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health", nil, &h))
	assert.True(t, h.Healthy)
	assert.Equal(t, 2, h.Decks)
}

func TestServer_PlayAndWait(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var res engine.MatchResult
	code := f.do(http.MethodPost, "/decks/echo/matches", handler.PostMatchRequest{
		Payload: map[string]any{"msg": "hi"}, Wait: true, TimeoutMs: 5000,
	}, &res)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, res.Success)
	assert.Equal(t, map[string]any{"msg": "hi"}, res.Result)
	assert.Equal(t, types.MatchVictory, res.Match.State)

	var m engine.Match
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/matches/"+res.Match.ID, nil, &m))
	assert.Equal(t, res.Match.ID, m.ID)
}

func TestServer_PlayAlwaysFails(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var res engine.MatchResult
	code := f.do(http.MethodPost, "/decks/always-fails/matches", handler.PostMatchRequest{Wait: true, TimeoutMs: 5000}, &res)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, res.Success)
	assert.Len(t, res.Errors, 2)
}

func TestServer_PlayQueuedAndIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var first, second engine.PlayResult
	body := handler.PostMatchRequest{Payload: "x", IdempotencyKey: "k1"}
	assert.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/decks/echo/matches", body, &first))
	assert.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/decks/echo/matches", body, &second))
	assert.True(t, first.Queued)
	assert.True(t, second.Cached)
	assert.Equal(t, first.MatchID, second.MatchID)
}

func TestServer_Errors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var errRes ErrorResponse
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/decks/missing/matches", handler.PostMatchRequest{}, &errRes))
	assert.Contains(t, errRes.Error.Message, "deck not found")

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/decks/missing", nil, nil))
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/matches/missing", nil, nil))
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/arenas/missing/pause", nil, nil))
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/matches?state=bogus", nil, nil))
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/cleanup?maxAgeMs=-1", nil, nil))

	require.NoError(t, f.eng.DisableDeck("echo"))
	assert.Equal(t, http.StatusConflict, f.do(http.MethodPost, "/decks/echo/matches", handler.PostMatchRequest{}, nil))
}

func TestServer_MatchControl(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodPost, "/arenas/default/pause", nil, nil))

	var play engine.PlayResult
	require.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/decks/echo/matches", handler.PostMatchRequest{}, &play))
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodPost, "/matches/"+play.MatchID+"/pause", nil, nil))
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodPost, "/matches/"+play.MatchID+"/resume", nil, nil))
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodPost, "/matches/"+play.MatchID+"/cancel", nil, nil))
	assert.Equal(t, http.StatusConflict, f.do(http.MethodPost, "/matches/"+play.MatchID+"/cancel", nil, nil))

	var list []engine.Match
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/matches?deck=echo&state=cancelled", nil, &list))
	require.Len(t, list, 1)
	assert.Equal(t, play.MatchID, list[0].ID)

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodPost, "/arenas/default/resume", nil, nil))
}

func TestServer_StatusMetricsCleanup(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var res engine.MatchResult
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/decks/echo/matches", handler.PostMatchRequest{Wait: true}, &res))

	var status engine.GlobalStatus
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/status", nil, &status))
	assert.Len(t, status.Decks, 2)
	assert.Equal(t, 1, status.Matches[types.MatchVictory])

	var deck engine.DeckStatus
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/decks/echo", nil, &deck))
	assert.Equal(t, int64(1), deck.Stats.Victories)

	var stats []engine.DeckStats
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/metrics", nil, &stats))
	require.Len(t, stats, 2)
	assert.Equal(t, int64(1), stats[0].TotalMatches)

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/metrics", nil, nil))
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/metrics", nil, &stats))
	assert.Zero(t, stats[0].TotalMatches)

	var cleaned engine.CleanupResult
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/cleanup", nil, &cleaned))
	assert.Equal(t, 1, cleaned.Cleaned)
}

func TestServer_ServeStopsWithContext(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.srv.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestOptions_Validate(t *testing.T) {
	t.Parallel()

	opt := newDefaultOptions()
	opt.apply(Options{Addr: ":9000", DisableCORS: true})
	assert.Equal(t, ":9000", opt.Addr)
	assert.True(t, opt.DisableCORS)
	require.NoError(t, opt.validate())

	opt.ShutdownTimeout = -time.Second
	assert.Error(t, opt.validate())

	_, err := New(nil, Options{})
	assert.Error(t, err)
}
