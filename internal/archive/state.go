package archive

import (
	"fmt"

	"github.com/tphakala/datamover/internal/errors"
)

// BatchState tracks one batch through write and purge.
type BatchState int

const (
	StateWritePending BatchState = iota
	StateWritten
	StatePurgePending
	StatePurged
)

func (s BatchState) String() string {
	switch s {
	case StateWritePending:
		return "WRITE_PENDING"
	case StateWritten:
		return "WRITTEN"
	case StatePurgePending:
		return "PURGE_PENDING"
	case StatePurged:
		return "PURGED"
	default:
		return fmt.Sprintf("BatchState(%d)", int(s))
	}
}

var allowedTransitions = map[BatchState]BatchState{
	StateWritePending: StateWritten,
	StateWritten:      StatePurgePending,
	StatePurgePending: StatePurged,
}

// batchTracker enforces that a purge can only follow a successful write.
type batchTracker struct {
	state BatchState
}

func (b *batchTracker) advance(to BatchState) error {
	if next, ok := allowedTransitions[b.state]; !ok || next != to {
		return errors.Newf("invalid batch transition %s -> %s", b.state, to).
			Component("archive").
			Category(errors.CategoryState).
			Build()
	}
	b.state = to
	return nil
}
