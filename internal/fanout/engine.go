package fanout

import (
	"fmt"
	"log/slog"

	"github.com/samber/lo"
	"stealthy-realtime/internal/apperrors"
	"stealthy-realtime/internal/hub"
	"stealthy-realtime/internal/model"
)

// Resolver looks up live connections at call time.
type Resolver interface {
	Resolve(users []string) []hub.Target
}

// Broadcaster is the outbound port the REST layer depends on.
type Broadcaster interface {
	Broadcast(event model.EventType, targets []string, payload any) Report
	BroadcastExcept(event model.EventType, targets []string, excluding string, payload any) Report
}

// Report summarises one broadcast. Offline targets count as skipped, not failed.
type Report struct {
	Targets   int
	Delivered int
	Skipped   int
	Failed    int
	Errors    []error
}

// Engine dispatches envelopes to resolved connections. It never mutates the
// registry: dead connections are cleaned up by their own disconnect path.
//
// Connection.Send must only enqueue. Deliveries run sequentially so that two
// broadcasts reach one connection in the order they were issued; a slow client
// fills its own queue and fails fast instead of stalling the loop.
type Engine struct {
	resolver Resolver
	log      *slog.Logger
}

var _ Broadcaster = (*Engine)(nil)

func New(resolver Resolver, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{resolver: resolver, log: log.With("component", "fanout")}
}

func (e *Engine) Broadcast(event model.EventType, targets []string, payload any) Report {
	return e.dispatch(model.NewEnvelope(event, targets, payload))
}

// BroadcastExcept skips excluding so a sender gets no echo of its own event.
func (e *Engine) BroadcastExcept(event model.EventType, targets []string, excluding string, payload any) Report {
	return e.dispatch(model.NewEnvelope(event, lo.Without(targets, excluding), payload))
}

func (e *Engine) dispatch(env model.Envelope) Report {
	audience := lo.Uniq(lo.Compact(env.Targets))
	resolved := e.resolver.Resolve(audience)

	rep := Report{Targets: len(audience), Skipped: len(audience) - len(resolved)}
	for _, t := range resolved {
		if err := deliver(t, env); err != nil {
			rep.Failed++
			rep.Errors = append(rep.Errors, err)
			e.log.Debug("delivery failed", "event", env.Event, "userId", t.UserID, "connId", t.Conn.ID(), "error", err)
			continue
		}
		rep.Delivered++
	}
	if rep.Failed > 0 {
		e.log.Info("broadcast partially failed", "event", env.Event, "targets", rep.Targets, "delivered", rep.Delivered, "failed", rep.Failed)
	}
	return rep
}

func deliver(t hub.Target, env model.Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &apperrors.DeliveryError{
				ConnectionID: t.Conn.ID(),
				UserID:       t.UserID,
				Err:          fmt.Errorf("%w: %v", apperrors.ErrPanic, r),
			}
		}
	}()
	if sendErr := t.Conn.Send(env); sendErr != nil {
		return &apperrors.DeliveryError{ConnectionID: t.Conn.ID(), UserID: t.UserID, Err: sendErr}
	}
	return nil
}
