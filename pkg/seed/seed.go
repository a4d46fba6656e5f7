// pkg/seed/seed.go
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"pulse-server/internal/common/errors"
	"pulse-server/internal/common/logger"
	"pulse-server/internal/models"
	"pulse-server/internal/routing"
	"pulse-server/internal/sender"
	"pulse-server/internal/template"
)

// Load reads and schema-checks a fixture file.
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Fixture, error) {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	result, err := fixtureSchema.Validate(doc)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		return nil, fmt.Errorf("invalid fixture: %s", result.Error())
	}

	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	return &f, nil
}

type Profiles interface {
	CreateProfile(ctx context.Context, in sender.CreateProfileInput) (*models.SenderProfile, error)
	GetProfileByKey(ctx context.Context, key string) (*models.SenderProfile, error)
	CreateEndpoint(ctx context.Context, profileID int64, in sender.CreateEndpointInput) (*models.SenderEndpoint, error)
}

type Rules interface {
	Create(ctx context.Context, in routing.CreateRuleInput) (*models.RoutingRule, error)
}

type Templates interface {
	CreateGroup(ctx context.Context, in template.CreateGroupInput) (*models.TemplateGroup, error)
	GetGroupByKey(ctx context.Context, key string) (*models.TemplateGroup, error)
	AddVariant(ctx context.Context, groupID int64, in template.CreateVariantInput) (*models.TemplateVariant, error)
}

// Summary counts what Apply created and what already existed.
type Summary struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// Loader applies fixtures through the domain services, so every write goes
// through the same checks as the API. Records that already exist are
// skipped, which makes a fixture safe to apply twice.
type Loader struct {
	profiles  Profiles
	rules     Rules
	templates Templates
	log       logger.Logger
}

func NewLoader(profiles Profiles, rules Rules, templates Templates, log logger.Logger) *Loader {
	return &Loader{
		profiles:  profiles,
		rules:     rules,
		templates: templates,
		log:       log.WithFields(map[string]interface{}{"component": "seed"}),
	}
}

// outcome folds a create error into the summary. Conflicts count as skipped.
func (l *Loader) outcome(s *Summary, what string, err error, conflict errors.ErrorCode) error {
	switch {
	case err == nil:
		s.Created++
		return nil
	case errors.HasCode(err, conflict):
		s.Skipped++
		l.log.Debug("Already present", map[string]interface{}{"record": what})
		return nil
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

func (l *Loader) Apply(ctx context.Context, f *Fixture) (Summary, error) {
	var s Summary
	for _, p := range f.Profiles {
		if err := l.applyProfile(ctx, &s, p); err != nil {
			return s, err
		}
	}
	for _, t := range f.Templates {
		if err := l.applyTemplate(ctx, &s, t); err != nil {
			return s, err
		}
	}
	l.log.Info("Fixture applied", map[string]interface{}{"created": s.Created, "skipped": s.Skipped})
	return s, nil
}

func (l *Loader) applyProfile(ctx context.Context, s *Summary, p Profile) error {
	profile, err := l.profiles.CreateProfile(ctx, p.CreateProfileInput)
	if errors.HasCode(err, errors.ErrCodeProfileExists) {
		profile, err = l.profiles.GetProfileByKey(ctx, p.Key)
		s.Skipped++
	} else if err == nil {
		s.Created++
	}
	if err != nil {
		return fmt.Errorf("profile %s: %w", p.Key, err)
	}

	for _, ep := range p.Endpoints {
		_, err := l.profiles.CreateEndpoint(ctx, profile.ID, ep)
		what := fmt.Sprintf("endpoint %s/%s/%s", p.Key, ep.Channel, ep.Identifier)
		if err := l.outcome(s, what, err, errors.ErrCodeEndpointExists); err != nil {
			return err
		}
	}
	for _, r := range p.Rules {
		_, err := l.rules.Create(ctx, r.input(profile.ID))
		if err := l.outcome(s, "rule for "+p.Key, err, errors.ErrCodeDuplicateRule); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) applyTemplate(ctx context.Context, s *Summary, t Template) error {
	group, err := l.templates.CreateGroup(ctx, t.CreateGroupInput)
	if errors.HasCode(err, errors.ErrCodeTemplateGroupExists) {
		group, err = l.templates.GetGroupByKey(ctx, t.TemplateKey)
		s.Skipped++
	} else if err == nil {
		s.Created++
	}
	if err != nil {
		return fmt.Errorf("template %s: %w", t.TemplateKey, err)
	}

	for _, v := range t.Variants {
		_, err := l.templates.AddVariant(ctx, group.ID, v)
		what := fmt.Sprintf("variant %s/%s/%s", t.TemplateKey, v.Channel, v.Locale)
		if err := l.outcome(s, what, err, errors.ErrCodeTemplateVariantExists); err != nil {
			return err
		}
	}
	return nil
}
