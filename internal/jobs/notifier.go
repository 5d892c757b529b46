package jobs

import (
	"context"
	"fmt"

	"github.com/clubsite/server/internal/domain/events"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// Inserter is the part of river.Client used to queue jobs.
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// RegistrationNotifier queues a confirmation email for every new
// registration. It implements events.Notifier.
type RegistrationNotifier struct {
	client Inserter
	policy *RetryPolicy
}

func NewRegistrationNotifier(client Inserter, policy *RetryPolicy) *RegistrationNotifier {
	return &RegistrationNotifier{client: client, policy: policy}
}

func (n *RegistrationNotifier) RegistrationCreated(ctx context.Context, r events.Registration) error {
	if n == nil || n.client == nil {
		return fmt.Errorf("job client not configured")
	}
	_, err := n.client.Insert(ctx, RegistrationConfirmationArgs{RegistrationID: r.ID}, n.policy.InsertOpts(JobKindRegistrationConfirmation))
	if err != nil {
		return fmt.Errorf("queue confirmation for %s: %w", r.ID, err)
	}
	return nil
}

var _ events.Notifier = (*RegistrationNotifier)(nil)
