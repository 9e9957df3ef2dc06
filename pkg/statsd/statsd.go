// Package statsd is a helper package that wraps the handful of statsd calls deck-engine makes.
// It hides the datadog dependency so that swapping the metrics backend only touches this file.
// Until Init is called every call goes to a no-op client.
package statsd

import (
	"sync"
	"time"

	ddstatsd "github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

// Namespace is the prefix of every metric emitted by the engine.
const Namespace = "deck_engine."

var (
	mu     sync.RWMutex
	client ddstatsd.ClientInterface = &ddstatsd.NoOpClient{}
)

func Client() ddstatsd.ClientInterface {
	mu.RLock()
	defer mu.RUnlock()
	return client
}

// Init replaces the global no-op client with one that ships metrics to address.
func Init(address string, tags []string) error {
	if address == "" {
		return eris.New("address must not be empty")
	}
	opts := []ddstatsd.Option{ddstatsd.WithNamespace(Namespace)}
	if len(tags) > 0 {
		opts = append(opts, ddstatsd.WithTags(tags))
	}

	newClient, err := ddstatsd.New(address, opts...)
	if err != nil {
		return eris.Wrap(err, "failed to create statsd client")
	}

	mu.Lock()
	client = newClient
	mu.Unlock()
	return nil
}

// Close flushes and closes the global client and resets it to a no-op.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	err := client.Close()
	client = &ddstatsd.NoOpClient{}
	return err
}

// EmitMatchStat records how long a match took and its outcome, tagged with the deck name.
func EmitMatchStat(deck, outcome string, duration time.Duration) {
	tags := []string{"deck:" + deck, "outcome:" + outcome}
	if err := Client().Timing("match.duration", duration, tags, 1); err != nil {
		log.Logger.Warn().Msgf("failed to emit match timing: %v", err)
	}
	if err := Client().Incr("match."+outcome, tags, 1); err != nil {
		log.Logger.Warn().Msgf("failed to emit match count: %v", err)
	}
}

// EmitTickStat records the time a scheduling tick took.
func EmitTickStat(start time.Time, dispatched int) {
	if err := Client().Timing("tick", time.Since(start), nil, 1); err != nil {
		log.Logger.Warn().Msgf("failed to emit tick stat: %v", err)
	}
	if dispatched == 0 {
		return
	}
	if err := Client().Count("tick.dispatched", int64(dispatched), nil, 1); err != nil {
		log.Logger.Warn().Msgf("failed to emit dispatch count: %v", err)
	}
}

// EmitCacheEvacuations counts idempotency entries pushed out of the cache before their ttl.
func EmitCacheEvacuations(n int64) {
	if err := Client().Count("idempotency.evacuated", n, nil, 1); err != nil {
		log.Logger.Warn().Msgf("failed to emit evacuation count: %v", err)
	}
}

// Gauge reports an instantaneous value such as queue depth.
func Gauge(name string, value float64, tags ...string) {
	if err := Client().Gauge(name, value, tags, 1); err != nil {
		log.Logger.Warn().Msgf("failed to emit gauge %s: %v", name, err)
	}
}
