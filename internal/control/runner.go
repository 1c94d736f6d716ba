package control

import (
	"context"
	"sync"
	"time"

	"github.com/tessera-lab/tessera/internal/config"
	"github.com/tessera-lab/tessera/internal/engine"
	"github.com/tessera-lab/tessera/internal/logger"
	"github.com/tessera-lab/tessera/internal/store"
	"github.com/tessera-lab/tessera/pkg/errors"
	"go.uber.org/zap"
)

// RunBuilder assembles a ready-to-run engine from a validated config. The
// builder owns strategy resolution and collaborator wiring.
type RunBuilder func(runID string, cfg *config.RunConfig) (*engine.Engine, error)

// phase is the runner's own lifecycle, coarser than the engine states.
type phase string

const (
	phaseCreated     phase = "created"
	phaseInitialized phase = "initialized"
	phaseRunning     phase = "running"
	phaseStopped     phase = "stopped"
)

type envelope struct {
	cmd   Command
	reply chan Result
}

// Runner owns one run. All state is confined to its goroutine; callers talk
// to it exclusively through commands and futures.
type Runner struct {
	id    string
	build RunBuilder
	store store.Store
	log   *logger.Logger

	// slots, when set, bounds how many runners execute concurrently.
	slots chan struct{}

	commands chan envelope
	sendMu   sync.RWMutex
	closed   bool

	// Goroutine-confined state below.
	phase   phase
	cfg     *config.RunConfig
	engine  *engine.Engine
	runDone chan struct{}
}

// NewRunner creates a runner and starts its command loop.
func NewRunner(id string, build RunBuilder, st store.Store, slots chan struct{}, log *logger.Logger) *Runner {
	r := &Runner{
		id:       id,
		build:    build,
		store:    st,
		log:      log,
		slots:    slots,
		commands: make(chan envelope, 16),
		phase:    phaseCreated,
	}

	go r.loop()

	return r
}

// ID returns the run id.
func (r *Runner) ID() string { return r.id }

// Init hands the runner its configuration.
func (r *Runner) Init(cfg *config.RunConfig) *Future {
	return r.send(CommandInit, func(cmd *Command) { cmd.Config = cfg })
}

// Start builds the engine and launches the run.
func (r *Runner) Start() *Future { return r.send(CommandStart, nil) }

// Stop halts the run and waits for its teardown.
func (r *Runner) Stop() *Future { return r.send(CommandStop, nil) }

// Delete stops the run, drops its persisted series and record, and closes
// the runner. Terminal.
func (r *Runner) Delete() *Future { return r.send(CommandDelete, nil) }

// Status reports the current lifecycle state.
func (r *Runner) Status() *Future { return r.send(CommandStatus, nil) }

// Get fetches a named view of the run ("config", "state", "metrics",
// "trades").
func (r *Runner) Get(path string) *Future {
	return r.send(CommandGet, func(cmd *Command) { cmd.Path = path })
}

func (r *Runner) send(commandType CommandType, mutate func(*Command)) *Future {
	cmd, future := newCommand(commandType)
	if mutate != nil {
		mutate(&cmd)
	}

	r.sendMu.RLock()
	defer r.sendMu.RUnlock()

	if r.closed {
		future.ch <- Result{ID: cmd.ID, Err: errRunnerClosed(r.id)}

		return future
	}

	r.commands <- envelope{cmd: cmd, reply: future.ch}

	return future
}

func (r *Runner) loop() {
	for env := range r.commands {
		result := r.handle(env.cmd)
		env.reply <- result

		if env.cmd.Type == CommandDelete && result.Err == nil {
			r.close()

			return
		}
	}
}

// close marks the runner deleted and fails whatever was still queued.
func (r *Runner) close() {
	r.sendMu.Lock()
	r.closed = true
	close(r.commands)
	r.sendMu.Unlock()

	for env := range r.commands {
		env.reply <- Result{ID: env.cmd.ID, Err: errRunnerClosed(r.id)}
	}
}

func (r *Runner) handle(cmd Command) Result {
	switch cmd.Type {
	case CommandInit:
		return r.handleInit(cmd)
	case CommandStart:
		return r.handleStart(cmd)
	case CommandStop:
		return r.handleStop(cmd)
	case CommandDelete:
		return r.handleDelete(cmd)
	case CommandStatus:
		return Result{ID: cmd.ID, Data: r.currentState()}
	case CommandGet:
		return r.handleGet(cmd)
	default:
		return Result{ID: cmd.ID, Err: errors.Newf(errors.ErrCodeRunStateInvalid, "unknown command %q", cmd.Type)}
	}
}

func (r *Runner) handleInit(cmd Command) Result {
	if r.phase != phaseCreated {
		return Result{ID: cmd.ID, Err: errors.Newf(errors.ErrCodeRunStateInvalid, "run %s is already initialized", r.id)}
	}

	if cmd.Config == nil {
		return Result{ID: cmd.ID, Err: errors.Newf(errors.ErrCodeInvalidConfiguration, "INIT requires a config")}
	}

	r.cfg = cmd.Config
	r.phase = phaseInitialized

	return Result{ID: cmd.ID, Data: string(phaseInitialized)}
}

func (r *Runner) handleStart(cmd Command) Result {
	if r.phase != phaseInitialized {
		return Result{ID: cmd.ID, Err: errors.Newf(errors.ErrCodeRunStateInvalid, "run %s cannot start from %s", r.id, r.phase)}
	}

	eng, err := r.build(r.id, r.cfg)
	if err != nil {
		return Result{ID: cmd.ID, Err: err}
	}

	r.engine = eng
	r.runDone = make(chan struct{})
	r.phase = phaseRunning

	r.upsertRecord(store.RunStatusRunning)

	go func() {
		if r.slots != nil {
			r.slots <- struct{}{}
			defer func() { <-r.slots }()
		}

		runErr := eng.Run(context.Background())

		status := store.RunStatusStopped
		if runErr != nil {
			status = store.RunStatusErrored
		}

		r.upsertRecord(status)
		close(r.runDone)
	}()

	return Result{ID: cmd.ID, Data: string(phaseRunning)}
}

func (r *Runner) handleStop(cmd Command) Result {
	if r.engine == nil {
		r.phase = phaseStopped

		return Result{ID: cmd.ID, Data: string(phaseStopped)}
	}

	r.engine.Stop()
	<-r.runDone
	r.phase = phaseStopped

	return Result{ID: cmd.ID, Data: string(r.engine.State())}
}

func (r *Runner) handleDelete(cmd Command) Result {
	if r.phase == phaseRunning {
		if result := r.handleStop(cmd); result.Err != nil {
			return result
		}
	}

	ctx := context.Background()

	if r.store != nil {
		if err := r.store.DropSeries(ctx, r.id); err != nil {
			r.log.Error("Failed to drop run series", zap.String("run_id", r.id), zap.Error(err))
		}

		if err := r.store.DeleteRunRecord(ctx, r.id); err != nil {
			r.log.Error("Failed to delete run record", zap.String("run_id", r.id), zap.Error(err))
		}
	}

	return Result{ID: cmd.ID, Data: "deleted"}
}

func (r *Runner) handleGet(cmd Command) Result {
	switch cmd.Path {
	case "config":
		return Result{ID: cmd.ID, Data: r.cfg}
	case "state":
		return Result{ID: cmd.ID, Data: r.currentState()}
	case "metrics":
		if !r.finished() {
			return Result{ID: cmd.ID, Err: errors.Newf(errors.ErrCodeRunStateInvalid, "run %s has no final metrics yet", r.id)}
		}

		return Result{ID: cmd.ID, Data: r.engine.Ledger().Metrics()}
	case "trades":
		if !r.finished() {
			return Result{ID: cmd.ID, Err: errors.Newf(errors.ErrCodeRunStateInvalid, "run %s is still trading", r.id)}
		}

		return Result{ID: cmd.ID, Data: r.engine.Ledger().Trades()}
	default:
		return Result{ID: cmd.ID, Err: errors.Newf(errors.ErrCodeDataNotFound, "unknown path %q", cmd.Path)}
	}
}

// currentState avoids touching engine internals while its goroutine runs.
func (r *Runner) currentState() string {
	if r.engine == nil {
		return string(r.phase)
	}

	if r.finished() {
		return string(r.engine.State())
	}

	return string(phaseRunning)
}

func (r *Runner) finished() bool {
	if r.engine == nil || r.runDone == nil {
		return false
	}

	select {
	case <-r.runDone:
		return true
	default:
		return false
	}
}

func (r *Runner) upsertRecord(status store.RunStatus) {
	if r.store == nil || r.cfg == nil {
		return
	}

	// Backtests are throwaway replays; only live runs are cataloged.
	if r.cfg.Backtest != nil {
		return
	}

	now := time.Now().UTC()

	record := store.RunRecord{
		ID:        r.id,
		Strategy:  r.cfg.Strategy,
		Symbols:   r.cfg.Symbols,
		Status:    status,
		StartedAt: now,
		UpdatedAt: now,
	}

	if err := r.store.UpsertRunRecord(context.Background(), record); err != nil {
		r.log.Error("Failed to upsert run record", zap.String("run_id", r.id), zap.Error(err))
	}
}
