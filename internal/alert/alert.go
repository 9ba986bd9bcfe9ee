package alert

import (
	"time"

	"github.com/yanun0323/logs"

	"whalecopy/internal/schema"
)

// Publisher is the consumed alerting sink. Delivery channels (webhook,
// email, sms) live behind this boundary.
type Publisher interface {
	Publish(event schema.RiskEvent)
}

// LogPublisher writes risk events to the structured log. It is the
// default sink when no delivery channel is wired.
type LogPublisher struct{}

var _ Publisher = (*LogPublisher)(nil)

func (LogPublisher) Publish(event schema.RiskEvent) {
	switch event.Severity {
	case schema.SeverityCritical:
		logs.Errorf("risk event: %s, metrics: %v", event.Message, event.Metrics)
	case schema.SeverityWarning:
		logs.Warnf("risk event: %s, metrics: %v", event.Message, event.Metrics)
	default:
		logs.Infof("risk event: %s, metrics: %v", event.Message, event.Metrics)
	}
}

// Multi fans one event out to several publishers.
type Multi []Publisher

var _ Publisher = (Multi)(nil)

func (m Multi) Publish(event schema.RiskEvent) {
	for _, p := range m {
		p.Publish(event)
	}
}

// NewEvent builds a timestamped risk event.
func NewEvent(severity schema.Severity, message string, metrics map[string]float64) schema.RiskEvent {
	return schema.RiskEvent{
		Timestamp: time.Now().UTC(),
		Severity:  severity,
		Message:   message,
		Metrics:   metrics,
	}
}
