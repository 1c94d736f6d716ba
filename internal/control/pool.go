package control

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/tessera-lab/tessera/internal/logger"
	"github.com/tessera-lab/tessera/internal/store"
	"github.com/tessera-lab/tessera/pkg/errors"
)

// Pool tracks runners by id and bounds how many of their engines execute at
// once through a shared slot channel.
type Pool struct {
	build     RunBuilder
	store     store.Store
	log       *logger.Logger
	slots     chan struct{}
	runnersMu sync.RWMutex
	runners   map[string]*Runner
}

// NewPool creates a pool allowing at most maxConcurrent simultaneous runs.
func NewPool(maxConcurrent int, build RunBuilder, st store.Store, log *logger.Logger) *Pool {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}

	return &Pool{
		build:   build,
		store:   st,
		log:     log,
		slots:   make(chan struct{}, maxConcurrent),
		runners: make(map[string]*Runner),
	}
}

// Create registers a new runner. An empty id gets a generated one; a
// duplicate id is rejected.
func (p *Pool) Create(id string) (*Runner, error) {
	if id == "" {
		id = uuid.NewString()
	}

	p.runnersMu.Lock()
	defer p.runnersMu.Unlock()

	if _, exists := p.runners[id]; exists {
		return nil, errors.Newf(errors.ErrCodeRunExists, "run %s already exists", id)
	}

	runner := NewRunner(id, p.build, p.store, p.slots, p.log)
	p.runners[id] = runner

	return runner, nil
}

// Get looks up a runner by id.
func (p *Pool) Get(id string) (*Runner, error) {
	p.runnersMu.RLock()
	defer p.runnersMu.RUnlock()

	runner, exists := p.runners[id]
	if !exists {
		return nil, errors.Newf(errors.ErrCodeRunNotFound, "run %s not found", id)
	}

	return runner, nil
}

// Remove forgets a runner after its DELETE command completed.
func (p *Pool) Remove(id string) {
	p.runnersMu.Lock()
	defer p.runnersMu.Unlock()

	delete(p.runners, id)
}

// List returns the known run ids in stable order.
func (p *Pool) List() []string {
	p.runnersMu.RLock()
	defer p.runnersMu.RUnlock()

	ids := make([]string, 0, len(p.runners))
	for id := range p.runners {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}
