package migrate

import (
	"fmt"

	"github.com/tphakala/datamover/internal/errors"
)

// BatchState tracks one batch through write and commit.
type BatchState int

const (
	StateWritePending BatchState = iota
	StateWritten
	StateCommitted
)

func (s BatchState) String() string {
	switch s {
	case StateWritePending:
		return "WRITE_PENDING"
	case StateWritten:
		return "WRITTEN"
	case StateCommitted:
		return "COMMITTED"
	default:
		return fmt.Sprintf("BatchState(%d)", int(s))
	}
}

type batchTracker struct {
	state BatchState
}

func (b *batchTracker) advance(to BatchState) error {
	if to != b.state+1 || to > StateCommitted {
		return errors.Newf("invalid batch transition %s -> %s", b.state, to).
			Component("migrate").
			Category(errors.CategoryState).
			Build()
	}
	b.state = to
	return nil
}
