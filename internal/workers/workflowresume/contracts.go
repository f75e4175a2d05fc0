package workflowresume

import (
	"context"
)

type (
	// Engine executes workflow runs that are due. It returns how many runs it picked up.
	Engine interface {
		ResumeDue(ctx context.Context) (int, error)
	}
)
