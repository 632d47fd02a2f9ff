package protocol

import (
	"encoding/json"
	"time"
)

// AccessDeniedEvent is the audit message published when a site access check fails
type AccessDeniedEvent struct {
	EventID       string    `json:"event_id"`
	Type          string    `json:"type"` // SINGLE_SITE, MULTI_SITE
	Email         string    `json:"email"`
	RequestedSite []string  `json:"requested_sites"`
	DeniedSites   []string  `json:"denied_sites"`
	EntitledSites []string  `json:"entitled_sites"`
	OccurredAt    time.Time `json:"occurred_at"`
}

const (
	AccessCheckSingle = "SINGLE_SITE"
	AccessCheckMulti  = "MULTI_SITE"
)

// EncodeAccessDeniedEvent encodes an AccessDeniedEvent to JSON
func EncodeAccessDeniedEvent(event *AccessDeniedEvent) ([]byte, error) {
	return json.Marshal(event)
}

// DecodeAccessDeniedEvent decodes JSON to AccessDeniedEvent
func DecodeAccessDeniedEvent(data []byte) (*AccessDeniedEvent, error) {
	var event AccessDeniedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
