package bus

import (
	"github.com/dimensify/dimensify/internal/core/observability/log"
)

// LogObserver logs failed deliveries at warn level and everything else at debug.
type LogObserver struct {
	logger log.Log
}

func NewLogObserver(logger log.Log) *LogObserver {
	return &LogObserver{logger: logger.With(log.Component("eventbus"))}
}

func (o *LogObserver) OnPublish(eventType string, event Event) {
	o.logger.Debug("event published",
		log.String("type", eventType),
		log.String("source", event.Source()),
	)
}

func (o *LogObserver) OnDelivered(eventType string, handlers int, err error, durationMicros int64) {
	if err != nil {
		o.logger.Warn("event handler failed",
			log.String("type", eventType),
			log.Int("handlers", handlers),
			log.Int64("duration_us", durationMicros),
			log.Error(err),
		)
		return
	}
	o.logger.Debug("event delivered",
		log.String("type", eventType),
		log.Int("handlers", handlers),
		log.Int64("duration_us", durationMicros),
	)
}
