package notify

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
)

// Named pairs a notifier with the name used in errors and logs.
type Named struct {
	Name     string
	Notifier Notifier
}

// Multi delivers to every notifier, even after one fails, and returns all failures combined.
type Multi []Named

func (m Multi) Notify(ctx context.Context, subject, body string) error {
	var err error
	for _, n := range m {
		if nerr := n.Notifier.Notify(ctx, subject, body); nerr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", n.Name, nerr))
		}
	}
	return err
}
