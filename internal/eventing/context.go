package eventing

import "context"

type envelopeKey struct{}

// WithEnvelope marks ctx as handling env. Handlers read it for the event id and
// events they publish inherit its correlation id.
func WithEnvelope(ctx context.Context, env Envelope) context.Context {
	return context.WithValue(ctx, envelopeKey{}, env)
}

// EnvelopeFromContext returns the envelope being handled, if any.
func EnvelopeFromContext(ctx context.Context) (Envelope, bool) {
	if ctx == nil {
		return Envelope{}, false
	}
	env, ok := ctx.Value(envelopeKey{}).(Envelope)
	return env, ok
}

// MetaFromContext returns the metadata a follow-up event should carry.
func MetaFromContext(ctx context.Context) Meta {
	env, ok := EnvelopeFromContext(ctx)
	if !ok {
		return Meta{}
	}
	return Meta{CorrelationID: env.CorrelationID}
}
