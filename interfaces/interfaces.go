// Package interfaces holds the contracts between the fuzzing core and its
// collaborators.
package interfaces

import (
	"context"

	"github.com/gocircum/statefuzz/core/observer"
	"github.com/gocircum/statefuzz/core/packet"
)

//go:generate mockgen -package=mocks -destination=../mocks/mock_interfaces.go github.com/gocircum/statefuzz/interfaces Executor,StateRecorder

// StateRecorder receives the signal observed after each packet of a
// replay. It returns the verdict so far and whether it wants more signals.
type StateRecorder interface {
	Record(sig observer.Signal, alive bool) (observer.Verdict, bool)
}

// Executor replays a sequence against the target, reporting one signal per
// packet to rec. An error means the replay could not be attempted; a target
// that dies during the replay is reported through rec with alive=false.
type Executor interface {
	Execute(ctx context.Context, seq packet.Sequence, rec StateRecorder) error
}

// Campaign is a running fuzzing campaign.
type Campaign interface {
	// Run blocks until the iteration budget is spent or ctx is done.
	Run(ctx context.Context) error
	// Status returns a one-line summary of progress.
	Status() string
}
