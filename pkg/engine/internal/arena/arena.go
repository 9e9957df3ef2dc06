package arena

import (
	"slices"
	"sync"

	"github.com/argus-labs/deck-engine/pkg/assert"
	"github.com/argus-labs/deck-engine/pkg/engine/types"
)

// Status is a point-in-time view of an arena.
type Status struct {
	Name             string  `json:"name"`
	ConcurrencyLimit int     `json:"concurrencyLimit"`
	Priority         int     `json:"priority"`
	Queued           int     `json:"queued"`
	InFlight         int     `json:"inFlight"`
	Paused           bool    `json:"paused"`
	Completed        int64   `json:"completed"`
	Failed           int64   `json:"failed"`
	Utilization      float64 `json:"utilization"`
}

type arena struct {
	name      string
	limit     int
	priority  int
	queue     []string
	inFlight  int
	paused    bool
	completed int64
	failed    int64
}

func (a *arena) canAdmit() bool {
	return !a.paused && a.inFlight < a.limit
}

func (a *arena) status() Status {
	return Status{
		Name:             a.name,
		ConcurrencyLimit: a.limit,
		Priority:         a.priority,
		Queued:           len(a.queue),
		InFlight:         a.inFlight,
		Paused:           a.paused,
		Completed:        a.completed,
		Failed:           a.failed,
		Utilization:      float64(a.inFlight) / float64(a.limit),
	}
}

// Scheduler holds named FIFO admission queues, each with its own concurrency ceiling. Arenas are
// created lazily and never deleted. Unknown arena names are tolerated everywhere and turn every
// operation into a no-op.
type Scheduler struct {
	mu           sync.Mutex
	arenas       map[string]*arena
	order        []string
	defaultLimit int
}

// NewScheduler creates a scheduler. Arenas initialized without a positive limit get defaultLimit.
func NewScheduler(defaultLimit int) *Scheduler {
	assert.That(defaultLimit > 0, "default concurrency limit must be positive")
	return &Scheduler{arenas: make(map[string]*arena), defaultLimit: defaultLimit}
}

// InitializeArena registers an arena. Re-initializing an existing arena leaves it unchanged and
// returns false.
func (s *Scheduler) InitializeArena(cfg types.ArenaConfig) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.arenas[cfg.Name]; ok {
		return false
	}
	limit := cfg.ConcurrencyLimit
	if limit <= 0 {
		limit = s.defaultLimit
	}
	s.arenas[cfg.Name] = &arena{name: cfg.Name, limit: limit, priority: cfg.Priority}
	s.order = append(s.order, cfg.Name)
	return true
}

// Enqueue appends matchID to the tail of the arena's queue.
func (s *Scheduler) Enqueue(name, matchID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.arenas[name]
	if !ok {
		return false
	}
	a.queue = append(a.queue, matchID)
	return true
}

// CanAdmitMore reports whether the arena is running fewer matches than its ceiling and is not paused.
func (s *Scheduler) CanAdmitMore(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.arenas[name]
	return ok && a.canAdmit()
}

// DequeueNext pops the head of the queue if the arena can admit it and counts it as in flight. The
// caller must call CompleteMatch exactly once for every id returned.
func (s *Scheduler) DequeueNext(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.arenas[name]
	if !ok || len(a.queue) == 0 || !a.canAdmit() {
		return "", false
	}
	id := a.queue[0]
	a.queue[0] = ""
	a.queue = a.queue[1:]
	a.inFlight++
	assert.That(a.inFlight <= a.limit, "arena %s exceeded its concurrency limit", name)
	return id, true
}

// CompleteMatch releases the slot held by a dequeued match, whatever its outcome.
func (s *Scheduler) CompleteMatch(name, _ string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.arenas[name]
	if !ok {
		return
	}
	if a.inFlight > 0 {
		a.inFlight--
	}
	if success {
		a.completed++
	} else {
		a.failed++
	}
}

// Release frees a slot taken by DequeueNext for a match that never ran.
func (s *Scheduler) Release(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.arenas[name]; ok && a.inFlight > 0 {
		a.inFlight--
	}
}

// Remove drops a queued match id. It reports whether the id was found.
func (s *Scheduler) Remove(name, matchID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.arenas[name]
	if !ok {
		return false
	}
	i := slices.Index(a.queue, matchID)
	if i < 0 {
		return false
	}
	a.queue = slices.Delete(a.queue, i, i+1)
	return true
}

// Pause stops admission. Queued ids are kept.
func (s *Scheduler) Pause(name string) bool {
	return s.setPaused(name, true)
}

// Resume restarts admission.
func (s *Scheduler) Resume(name string) bool {
	return s.setPaused(name, false)
}

func (s *Scheduler) setPaused(name string, paused bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.arenas[name]
	if !ok {
		return false
	}
	a.paused = paused
	return true
}

// Status returns a snapshot of one arena.
func (s *Scheduler) Status(name string) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.arenas[name]
	if !ok {
		return Status{}, false
	}
	return a.status(), true
}

// Statuses returns a snapshot of every arena in registration order.
func (s *Scheduler) Statuses() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Status, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.arenas[name].status())
	}
	return out
}

// Names returns arena names in registration order.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.order)
}

// Totals sums queued and in-flight matches across all arenas.
func (s *Scheduler) Totals() (queued, inFlight int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.arenas {
		queued += len(a.queue)
		inFlight += a.inFlight
	}
	return queued, inFlight
}
