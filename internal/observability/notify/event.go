package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// OperatorAlert captures the canonical data we emit when a privileged
// operation half-lands and an operator needs to retry it.
type OperatorAlert struct {
	Action     string
	ActorID    string
	TargetID   string
	TargetName string
	Error      string
	Severity   string
	OccurredAt time.Time
	Metadata   map[string]string
}

// Sink describes a destination capable of consuming operator alerts.
type Sink interface {
	SendOperatorAlert(ctx context.Context, alert OperatorAlert) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, alert OperatorAlert) error

// SendOperatorAlert implements the Sink interface.
func (f SinkFunc) SendOperatorAlert(ctx context.Context, alert OperatorAlert) error {
	if f == nil {
		return nil
	}
	return f(ctx, alert)
}
