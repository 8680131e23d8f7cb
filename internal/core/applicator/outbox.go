package applicator

import (
	"errors"

	"github.com/dimensify/dimensify/internal/core/commandlog"
	"github.com/dimensify/dimensify/internal/core/observability/log"
	"github.com/dimensify/dimensify/internal/core/protocol"
)

// Router delivers a response to the connection behind an origin. It returns
// ErrNoRoute when the origin is gone.
type Router interface {
	Route(origin commandlog.Origin, resp protocol.ProtoResponse) error
}

// RouterFunc adapts a function to Router.
type RouterFunc func(origin commandlog.Origin, resp protocol.ProtoResponse) error

func (f RouterFunc) Route(origin commandlog.Origin, resp protocol.ProtoResponse) error {
	return f(origin, resp)
}

// Outbox stages responses per origin during a batch. Origins are flushed in
// the order they first staged something, responses in staging order.
type Outbox struct {
	order  []commandlog.Origin
	staged map[commandlog.Origin][]protocol.ProtoResponse
}

func (o *Outbox) Stage(origin commandlog.Origin, resp protocol.ProtoResponse) {
	if o.staged == nil {
		o.staged = make(map[commandlog.Origin][]protocol.ProtoResponse)
	}
	if _, ok := o.staged[origin]; !ok {
		o.order = append(o.order, origin)
	}
	o.staged[origin] = append(o.staged[origin], resp)
}

// Len counts staged responses.
func (o *Outbox) Len() int {
	n := 0
	for _, rs := range o.staged {
		n += len(rs)
	}
	return n
}

// Flush hands every staged response to r and empties the outbox. Responses
// for unreachable origins are dropped. It returns the number delivered.
func (o *Outbox) Flush(r Router, logger log.Log) int {
	delivered := 0
	for _, origin := range o.order {
		for _, resp := range o.staged[origin] {
			err := r.Route(origin, resp)
			switch {
			case err == nil:
				delivered++
			case errors.Is(err, ErrNoRoute):
				logger.Debug("dropping response for unreachable origin",
					log.String("origin", string(origin)),
					log.String("variant", resp.Variant()),
				)
			default:
				logger.Warn("failed to deliver response",
					log.String("origin", string(origin)),
					log.Error(err),
				)
			}
		}
	}
	o.order = o.order[:0]
	clear(o.staged)
	return delivered
}
