package api

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/timguo/taichi/internal/selftest"
)

// DefaultMaxRuns bounds how many check runs a store keeps.
const DefaultMaxRuns = 64

// CheckRun is the stored outcome of one POST /v1/checks request.
type CheckRun struct {
	ID           string            `json:"id"`
	Object       string            `json:"object"`
	CreatedAt    int64             `json:"created_at"`
	Archs        []string          `json:"archs"`
	DefaultFloat string            `json:"default_float"`
	Passed       bool              `json:"passed"`
	Results      []selftest.Result `json:"results"`
}

// CheckStore keeps recent check runs in memory. The oldest run is evicted
// once the store is full.
type CheckStore struct {
	mu    sync.Mutex
	max   int
	order []string
	runs  map[string]CheckRun
}

func NewCheckStore(maxRuns int) *CheckStore {
	if maxRuns <= 0 {
		maxRuns = DefaultMaxRuns
	}
	return &CheckStore{
		max:  maxRuns,
		runs: make(map[string]CheckRun),
	}
}

// Create assigns an ID to run and stores it.
func (s *CheckStore) Create(run CheckRun, now time.Time) CheckRun {
	run.ID = "chk_" + uuid.NewString()
	run.Object = "check.run"
	run.CreatedAt = now.Unix()

	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.order) >= s.max {
		delete(s.runs, s.order[0])
		s.order = s.order[1:]
	}
	s.runs[run.ID] = run
	s.order = append(s.order, run.ID)
	return run
}

func (s *CheckStore) Get(id string) (CheckRun, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	return run, ok
}

func (s *CheckStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[id]; !ok {
		return false
	}
	delete(s.runs, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	return true
}

// List returns the stored runs, newest first.
func (s *CheckStore) List() []CheckRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CheckRun, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.runs[s.order[i]])
	}
	return out
}
