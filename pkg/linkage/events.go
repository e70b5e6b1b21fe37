package linkage

import "context"

const (
	EventRegistered        = "patient.registered"
	EventPartial           = "patient.partial"
	EventClinicalUpdated   = "clinical.updated"
	EventDeleted           = "patient.deleted"
	EventSecurityViolation = "security.violation"
)

// Publisher sends lifecycle events. *kafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data map[string]interface{}) error
}

type discardPublisher struct{}

func (discardPublisher) Publish(context.Context, string, map[string]interface{}) error {
	return nil
}
