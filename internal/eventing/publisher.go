package eventing

import (
	"context"
	"errors"
)

// Publisher writes events to the outbox, then delivers them in-process.
type Publisher struct {
	outbox   OutboxWriter
	dispatch *Dispatcher
}

// OutboxWriter inserts outbox records.
type OutboxWriter interface {
	Insert(ctx context.Context, env Envelope) (string, error)
}

// NewPublisher constructs a publisher. A nil dispatcher leaves delivery to the
// periodic outbox scan.
func NewPublisher(outbox OutboxWriter, dispatch *Dispatcher) (*Publisher, error) {
	if outbox == nil {
		return nil, errors.New("eventing: nil outbox writer")
	}
	return &Publisher{outbox: outbox, dispatch: dispatch}, nil
}

// Publish writes the event to the outbox and delivers it. A delivery failure is
// recorded against the outbox row and returned.
func (p *Publisher) Publish(ctx context.Context, event any) error {
	if p == nil {
		return errors.New("eventing: nil publisher")
	}
	env, err := BuildEnvelope(event, MetaFromContext(ctx))
	if err != nil {
		return err
	}
	id, err := p.outbox.Insert(ctx, env)
	if err != nil {
		return err
	}
	if p.dispatch == nil {
		return nil
	}
	return p.dispatch.Deliver(ctx, OutboxRecord{ID: id, Envelope: env}, event)
}
