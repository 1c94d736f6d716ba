// Package control exposes the run-control surface: each run is owned by a
// runner goroutine that consumes typed commands from a channel, and every
// command gets a correlation-tagged future for its result. A bounded pool
// caps how many runs execute concurrently.
package control

import (
	"context"

	"github.com/google/uuid"
	"github.com/tessera-lab/tessera/internal/config"
	"github.com/tessera-lab/tessera/pkg/errors"
)

// CommandType enumerates the run-control commands.
type CommandType string

const (
	CommandInit   CommandType = "INIT"
	CommandStart  CommandType = "START"
	CommandStop   CommandType = "STOP"
	CommandDelete CommandType = "DELETE"
	CommandStatus CommandType = "STATUS"
	CommandGet    CommandType = "GET"
)

// Command is one request to a runner. Config is set for INIT, Path for GET.
type Command struct {
	ID     string
	Type   CommandType
	Config *config.RunConfig
	Path   string
}

// Result is the outcome of one command, tagged with its correlation id.
type Result struct {
	ID   string
	Data any
	Err  error
}

// Future resolves to the result of one outstanding command.
type Future struct {
	id string
	ch chan Result
}

// ID returns the correlation id of the command this future tracks.
func (f *Future) ID() string { return f.id }

// Wait blocks until the result arrives or the context ends.
func (f *Future) Wait(ctx context.Context) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case result := <-f.ch:
		if result.Err != nil {
			return result, result.Err
		}

		return result, nil
	}
}

// newCommand tags a command with a fresh correlation id and its future.
func newCommand(commandType CommandType) (Command, *Future) {
	id := uuid.NewString()

	return Command{ID: id, Type: commandType}, &Future{id: id, ch: make(chan Result, 1)}
}

// errRunnerClosed is returned for commands sent after DELETE.
func errRunnerClosed(runID string) error {
	return errors.Newf(errors.ErrCodeRunTerminated, "run %s is deleted", runID)
}
