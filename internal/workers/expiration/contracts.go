package expiration

import (
	"context"
)

type (
	// Subscriptions marks lapsed subscriptions as expired.
	Subscriptions interface {
		ExpireLapsed(ctx context.Context) (int, error)
	}
)
