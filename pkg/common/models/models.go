package models

import "time"

// Event is the envelope published on the lifecycle topic. Data never carries
// personal values, only linking identifiers, states and field names.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// LinkingID returns the identifier an event refers to, if any.
func (e Event) LinkingID() string {
	if id, ok := e.Data["linking_id"].(string); ok {
		return id
	}
	return ""
}
