package applicator

import (
	"context"
	"sync"
	"time"

	"github.com/dimensify/dimensify/internal/core/commandlog"
	"github.com/dimensify/dimensify/internal/core/events"
	"github.com/dimensify/dimensify/internal/core/events/bus"
	"github.com/dimensify/dimensify/internal/core/observability/log"
	"github.com/dimensify/dimensify/internal/core/protocol"
)

// TickStats summarizes one pipeline tick.
type TickStats struct {
	Applied     int
	Rejected    int
	Delivered   int
	Lists       int
	Materialize MaterializeStats
}

// Pipeline drives an Applicator from a command log. Tick must only be called
// from the goroutine that owns the scene; RequestList may be called from
// anywhere.
type Pipeline struct {
	log       *commandlog.Log
	cursor    commandlog.Cursor
	app       *Applicator
	resources Resources
	router    Router
	bus       bus.EventBus
	logger    log.Log
	outbox    Outbox

	listMu sync.Mutex
	lists  []commandlog.Origin
}

// NewPipeline wires the stages together. eventBus may be nil.
func NewPipeline(l *commandlog.Log, app *Applicator, res Resources, router Router, eventBus bus.EventBus, logger log.Log) *Pipeline {
	return &Pipeline{
		log:       l,
		app:       app,
		resources: res,
		router:    router,
		bus:       eventBus,
		logger:    logger.With(log.Component("pipeline")),
	}
}

func (p *Pipeline) Applicator() *Applicator { return p.app }

func (p *Pipeline) Cursor() commandlog.Cursor { return p.cursor }

// RequestList queues a List answer for origin on the next tick.
func (p *Pipeline) RequestList(origin commandlog.Origin) {
	p.listMu.Lock()
	p.lists = append(p.lists, origin)
	p.listMu.Unlock()
}

// Tick drains new log entries, applies them, emits their responses, builds
// pending resources and finally answers queued List requests.
func (p *Pipeline) Tick() TickStats {
	var stats TickStats

	for _, e := range p.log.DrainNew(&p.cursor) {
		ref, err := p.app.Apply(e.Command)
		resp := Respond(e.Command, ref, err)
		if err != nil {
			stats.Rejected++
			p.logger.Warn("failed to apply command",
				log.Int("seq", e.Seq),
				log.String("origin", string(e.Origin)),
				log.String("command", e.Command.Variant()),
				log.Error(err),
			)
			p.publish(events.NewCommandRejected("applicator", events.CommandRejectedData{
				Seq: e.Seq, Origin: string(e.Origin), Command: e.Command, Err: err,
			}))
		} else {
			stats.Applied++
			p.logger.Debug("applied command",
				log.Int("seq", e.Seq),
				log.String("command", e.Command.Variant()),
			)
			p.publish(events.NewCommandApplied("applicator", events.CommandAppliedData{
				Seq: e.Seq, Origin: string(e.Origin), Command: e.Command, Response: resp,
			}))
		}
		p.outbox.Stage(e.Origin, resp)
	}

	stats.Delivered = p.outbox.Flush(p.router, p.logger)
	stats.Materialize = p.app.Materialize(p.resources)

	p.listMu.Lock()
	lists := p.lists
	p.lists = nil
	p.listMu.Unlock()
	if len(lists) > 0 {
		var listing protocol.ProtoResponse = protocol.Entities{Entities: p.app.List()}
		for _, origin := range lists {
			p.outbox.Stage(origin, listing)
		}
		stats.Lists = p.outbox.Flush(p.router, p.logger)
	}
	return stats
}

func (p *Pipeline) publish(e bus.Event) {
	if p.bus == nil {
		return
	}
	if err := p.bus.Publish(e); err != nil {
		p.logger.Warn("event handler failed", log.String("event", e.Type()), log.Error(err))
	}
}

// Run ticks every interval until ctx is done.
func (p *Pipeline) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Tick()
		}
	}
}
