// Package events names the domain events carried on the in-process bus and
// their payloads.
package events

import (
	"github.com/dimensify/dimensify/internal/core/events/bus"
	"github.com/dimensify/dimensify/internal/core/protocol"
)

const (
	CommandAppended   = "command.appended"
	CommandApplied    = "command.applied"
	CommandRejected   = "command.rejected"
	TelemetryIngested = "telemetry.ingested"
)

// CommandAppendedData is published after a command enters the log.
type CommandAppendedData struct {
	Seq     int
	Origin  string
	Command protocol.WorldCommand
}

// CommandAppliedData is published after the applicator committed a command.
type CommandAppliedData struct {
	Seq      int
	Origin   string
	Command  protocol.WorldCommand
	Response protocol.ProtoResponse
}

// CommandRejectedData is published when a command failed validation.
type CommandRejectedData struct {
	Seq     int
	Origin  string
	Command protocol.WorldCommand
	Err     error
}

// TelemetryIngestedData is published for every event pushed into the store.
type TelemetryIngestedData struct {
	Event protocol.TelemetryEvent
}

func NewCommandAppended(source string, d CommandAppendedData) bus.Event {
	return bus.NewEvent(CommandAppended, source, d)
}

func NewCommandApplied(source string, d CommandAppliedData) bus.Event {
	return bus.NewEvent(CommandApplied, source, d)
}

func NewCommandRejected(source string, d CommandRejectedData) bus.Event {
	return bus.NewEvent(CommandRejected, source, d)
}

func NewTelemetryIngested(source string, d TelemetryIngestedData) bus.Event {
	return bus.NewEvent(TelemetryIngested, source, d)
}
