package mail

import "context"

type (
	sender interface {
		Send(ctx context.Context, to, subject, htmlBody string) error
	}
)
