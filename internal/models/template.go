// internal/models/template.go
package models

import "time"

type TemplateGroup struct {
	ID          int64       `json:"id"`
	TemplateKey string      `json:"templateKey"`
	MessageType MessageType `json:"messageType"`
	Description *string     `json:"description,omitempty"`
	Priority    Priority    `json:"priority"`
	IsActive    bool        `json:"isActive"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

type TemplateVariant struct {
	ID              int64     `json:"id"`
	TemplateGroupID int64     `json:"templateGroupId"`
	Channel         Channel   `json:"channel"`
	Locale          string    `json:"locale"`
	Subject         *string   `json:"subject,omitempty"`
	Body            string    `json:"body"`
	IsActive        bool      `json:"isActive"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ResolvedVariant is a variant together with its owning group, loaded in the
// same read.
type ResolvedVariant struct {
	Variant TemplateVariant `json:"variant"`
	Group   TemplateGroup   `json:"group"`
}

type ChannelSetting struct {
	TemplateGroupID int64     `json:"templateGroupId"`
	Channel         Channel   `json:"channel"`
	IsEnabled       bool      `json:"isEnabled"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// TemplateDetails is a group with all of its variants and channel settings.
type TemplateDetails struct {
	TemplateGroup
	Variants        []TemplateVariant `json:"variants"`
	ChannelSettings []ChannelSetting  `json:"channelSettings"`
}
