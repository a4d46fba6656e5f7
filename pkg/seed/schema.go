// pkg/seed/schema.go
package seed

import (
	"pulse-server/internal/common/validation"
	"pulse-server/internal/models"
	"pulse-server/internal/routing"
	"pulse-server/internal/sender"
	"pulse-server/internal/template"
)

// Fixture is the seed file: sender profiles with their endpoints and routing
// rules, and template groups with their variants.
type Fixture struct {
	Version   string     `json:"version"`
	Profiles  []Profile  `json:"profiles"`
	Templates []Template `json:"templates"`
}

type Profile struct {
	sender.CreateProfileInput
	Endpoints []sender.CreateEndpointInput `json:"endpoints"`
	Rules     []Rule                       `json:"rules"`
}

// Rule is a routing rule pointing at the enclosing profile.
type Rule struct {
	Service     *string             `json:"service"`
	Region      *string             `json:"region"`
	MessageType *models.MessageType `json:"messageType"`
}

func (r Rule) input(profileID int64) routing.CreateRuleInput {
	return routing.CreateRuleInput{
		SenderProfileID: profileID,
		Service:         r.Service,
		Region:          r.Region,
		MessageType:     r.MessageType,
	}
}

type Template struct {
	template.CreateGroupInput
	Variants []template.CreateVariantInput `json:"variants"`
}

var fixtureSchema = validation.MustCompile(`{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"version": {"type": "string"},
		"profiles": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["key"],
				"properties": {
					"key":         {"type": "string", "minLength": 1, "maxLength": 255},
					"displayName": {"type": ["string", "null"], "maxLength": 255},
					"isActive":    {"type": ["boolean", "null"]},
					"endpoints": {
						"type": "array",
						"items": {
							"type": "object",
							"required": ["channel", "provider", "identifier"],
							"properties": {
								"channel":    {"enum": ["EMAIL", "SMS", "PUSH"]},
								"provider":   {"enum": ["AWS_SES", "AWS_SNS", "SMTP", "FIREBASE", "SENDGRID", "TWILIO", "DEV"]},
								"identifier": {"type": "string", "minLength": 1, "maxLength": 500},
								"weight":     {"type": ["integer", "null"], "minimum": 0, "maximum": 32767},
								"isActive":   {"type": ["boolean", "null"]}
							}
						}
					},
					"rules": {
						"type": "array",
						"items": {
							"type": "object",
							"properties": {
								"service":     {"type": ["string", "null"], "minLength": 1, "maxLength": 100},
								"region":      {"type": ["string", "null"], "pattern": "^[A-Z]{2}$"},
								"messageType": {"enum": ["OTP", "TRANSACTIONAL", "PROMOTIONAL", null]}
							}
						}
					}
				}
			}
		},
		"templates": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["templateKey", "messageType"],
				"properties": {
					"templateKey": {"type": "string", "minLength": 1, "maxLength": 255},
					"messageType": {"enum": ["OTP", "TRANSACTIONAL", "PROMOTIONAL"]},
					"description": {"type": ["string", "null"], "maxLength": 500},
					"priority":    {"enum": ["LOW", "MEDIUM", "HIGH", null]},
					"isActive":    {"type": ["boolean", "null"]},
					"variants": {
						"type": "array",
						"items": {
							"type": "object",
							"required": ["channel", "locale", "body"],
							"properties": {
								"channel":  {"enum": ["EMAIL", "SMS", "PUSH"]},
								"locale":   {"type": "string", "maxLength": 35, "pattern": "` + validation.LocalePattern + `"},
								"subject":  {"type": ["string", "null"], "maxLength": 255},
								"body":     {"type": "string", "minLength": 1, "maxLength": 5000},
								"isActive": {"type": ["boolean", "null"]}
							}
						}
					}
				}
			}
		}
	}
}`)
