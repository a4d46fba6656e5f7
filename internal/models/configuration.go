// internal/models/configuration.go
package models

import "time"

type SenderProfile struct {
	ID          int64     `json:"id"`
	Key         string    `json:"key"`
	DisplayName *string   `json:"displayName,omitempty"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type SenderEndpoint struct {
	ID              int64           `json:"id"`
	SenderProfileID int64           `json:"senderProfileId"`
	Channel         Channel         `json:"channel"`
	Provider        ServiceProvider `json:"provider"`
	Identifier      string          `json:"identifier"`
	Weight          int             `json:"weight"`
	IsActive        bool            `json:"isActive"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// RoutingRule maps a (service, region, messageType) scope to a sender
// profile. Nil fields are wildcards; the rule with all three nil is the
// catch-all default.
type RoutingRule struct {
	ID              int64        `json:"id"`
	SenderProfileID int64        `json:"senderProfileId"`
	Service         *string      `json:"service"`
	Region          *string      `json:"region"`
	MessageType     *MessageType `json:"messageType"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

func (r RoutingRule) IsDefault() bool {
	return r.Service == nil && r.Region == nil && r.MessageType == nil
}

// ResolvedRoute pairs a routing rule with the profile it points at.
type ResolvedRoute struct {
	Rule    RoutingRule   `json:"rule"`
	Profile SenderProfile `json:"profile"`
}
