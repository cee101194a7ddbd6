// Package refine runs the bounded "try again with corrections" loop shared by
// every generation endpoint of the learning backend.
package refine

import (
	"context"
	"log/slog"

	"github.com/pavelanni/tutor/internal/model"
)

// MaxAttempts is the number of extra passes allowed after the first call.
const MaxAttempts = 2

// State is a request/response record that carries refinement bookkeeping.
type State interface {
	Progress() model.Attempt
}

// Call sends the current state to the backend and returns the regenerated one.
type Call[S State] func(ctx context.Context, s S) (S, error)

// Run feeds each reply back into call until the backend stops asking for
// changes or MaxAttempts extra passes were made, then returns the last reply.
// Running out of attempts is not an error.
//
// If call fails, Run returns the last good state together with the error.
// If ctx is done after a round trip, Run returns the last good state and
// ctx.Err() without calling again.
func Run[S State](ctx context.Context, start S, call Call[S]) (S, error) {
	state := start
	for calls := 1; ; calls++ {
		next, err := call(ctx, state)
		if err != nil {
			return state, err
		}
		if err := ctx.Err(); err != nil {
			return state, err
		}
		state = next

		p := state.Progress()
		attempt := max(p.Attempt, calls)
		if !p.WantsRetry() {
			return state, nil
		}
		if attempt > MaxAttempts {
			slog.Debug("refinement attempts exhausted, accepting last payload",
				"attempt", attempt, "errors", len(p.Errors))
			return state, nil
		}
		slog.Debug("backend requested another pass", "attempt", attempt, "errors", p.Errors)
	}
}
