package seed

import (
	"context"
	"testing"

	"pulse-server/internal/common/errors"
	"pulse-server/internal/common/logger"
	"pulse-server/internal/models"
	"pulse-server/internal/routing"
	"pulse-server/internal/sender"
	"pulse-server/internal/template"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureJSON = `{
	"version": "1",
	"profiles": [{
		"key": "acme",
		"endpoints": [
			{"channel": "EMAIL", "provider": "DEV", "identifier": "Acme <no-reply@acme.test>"},
			{"channel": "SMS", "provider": "DEV", "identifier": "ACME", "weight": 5}
		],
		"rules": [{}, {"service": "default", "region": "IN", "messageType": "OTP"}]
	}],
	"templates": [{
		"templateKey": "otp_login",
		"messageType": "OTP",
		"priority": "HIGH",
		"variants": [
			{"channel": "SMS", "locale": "en-US", "body": "Your code is {{code}}"},
			{"channel": "EMAIL", "locale": "en-US", "subject": "Login code", "body": "Code: {{code}}"}
		]
	}]
}`

type fakeProfiles struct {
	existing  map[string]int64
	endpoints []sender.CreateEndpointInput
}

func (f *fakeProfiles) CreateProfile(_ context.Context, in sender.CreateProfileInput) (*models.SenderProfile, error) {
	if _, ok := f.existing[in.Key]; ok {
		return nil, errors.New(errors.ErrCodeProfileExists)
	}
	f.existing[in.Key] = int64(len(f.existing) + 1)
	return &models.SenderProfile{ID: f.existing[in.Key], Key: in.Key}, nil
}

func (f *fakeProfiles) GetProfileByKey(_ context.Context, key string) (*models.SenderProfile, error) {
	return &models.SenderProfile{ID: f.existing[key], Key: key}, nil
}

func (f *fakeProfiles) CreateEndpoint(_ context.Context, _ int64, in sender.CreateEndpointInput) (*models.SenderEndpoint, error) {
	for _, e := range f.endpoints {
		if e.Channel == in.Channel && e.Identifier == in.Identifier {
			return nil, errors.New(errors.ErrCodeEndpointExists)
		}
	}
	f.endpoints = append(f.endpoints, in)
	return &models.SenderEndpoint{}, nil
}

type fakeRules struct{ created []routing.CreateRuleInput }

func scopeOf(in routing.CreateRuleInput) string {
	deref := func(s *string) string {
		if s == nil {
			return "*"
		}
		return *s
	}
	mt := "*"
	if in.MessageType != nil {
		mt = string(*in.MessageType)
	}
	return deref(in.Service) + "|" + deref(in.Region) + "|" + mt
}

func (f *fakeRules) Create(_ context.Context, in routing.CreateRuleInput) (*models.RoutingRule, error) {
	if scopeOf(in) == "*|*|*" {
		return nil, errors.New(errors.ErrCodeDuplicateRule)
	}
	for _, c := range f.created {
		if scopeOf(c) == scopeOf(in) {
			return nil, errors.New(errors.ErrCodeDuplicateRule)
		}
	}
	f.created = append(f.created, in)
	return &models.RoutingRule{}, nil
}

type fakeTemplates struct {
	groups   map[string]int64
	variants []template.CreateVariantInput
	failOn   string
}

func (f *fakeTemplates) CreateGroup(_ context.Context, in template.CreateGroupInput) (*models.TemplateGroup, error) {
	if _, ok := f.groups[in.TemplateKey]; ok {
		return nil, errors.New(errors.ErrCodeTemplateGroupExists)
	}
	f.groups[in.TemplateKey] = 9
	return &models.TemplateGroup{ID: 9, TemplateKey: in.TemplateKey}, nil
}

func (f *fakeTemplates) GetGroupByKey(_ context.Context, key string) (*models.TemplateGroup, error) {
	return &models.TemplateGroup{ID: f.groups[key], TemplateKey: key}, nil
}

func (f *fakeTemplates) AddVariant(_ context.Context, _ int64, in template.CreateVariantInput) (*models.TemplateVariant, error) {
	if string(in.Channel) == f.failOn {
		return nil, errors.New(errors.ErrCodeTemplateSubjectRequired)
	}
	for _, v := range f.variants {
		if v.Channel == in.Channel && v.Locale == in.Locale {
			return nil, errors.New(errors.ErrCodeTemplateVariantExists)
		}
	}
	f.variants = append(f.variants, in)
	return &models.TemplateVariant{}, nil
}

func newTestLoader(t *testing.T) (*Loader, *fakeProfiles, *fakeRules, *fakeTemplates) {
	p := &fakeProfiles{existing: map[string]int64{}}
	r := &fakeRules{}
	tpl := &fakeTemplates{groups: map[string]int64{}}
	return NewLoader(p, r, tpl, logger.NewTestLogger(t)), p, r, tpl
}

func TestParse_Valid(t *testing.T) {
	f, err := Parse([]byte(fixtureJSON))
	require.NoError(t, err)
	require.Len(t, f.Profiles, 1)
	assert.Equal(t, "acme", f.Profiles[0].Key)
	require.Len(t, f.Profiles[0].Endpoints, 2)
	require.NotNil(t, f.Profiles[0].Endpoints[1].Weight)
	assert.Equal(t, 5, *f.Profiles[0].Endpoints[1].Weight)
	assert.Equal(t, models.MessageTypeOTP, f.Templates[0].MessageType)
	require.NotNil(t, f.Templates[0].Variants[1].Subject)
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"profile without key", `{"profiles": [{}]}`},
		{"bad provider", `{"profiles": [{"key": "a", "endpoints": [{"channel": "SMS", "provider": "CARRIER_PIGEON", "identifier": "x"}]}]}`},
		{"bad region", `{"profiles": [{"key": "a", "rules": [{"region": "india"}]}]}`},
		{"bad locale", `{"templates": [{"templateKey": "k", "messageType": "OTP", "variants": [{"channel": "SMS", "locale": "en_US", "body": "b"}]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestApply_CreatesEverything(t *testing.T) {
	loader, profiles, rules, templates := newTestLoader(t)
	f, err := Parse([]byte(fixtureJSON))
	require.NoError(t, err)

	s, err := loader.Apply(context.Background(), f)
	require.NoError(t, err)

	// profile + 2 endpoints + 1 rule + group + 2 variants; the catch-all rule
	// already exists with the profile.
	assert.Equal(t, Summary{Created: 7, Skipped: 1}, s)
	assert.Len(t, profiles.endpoints, 2)
	require.Len(t, rules.created, 1)
	assert.Equal(t, int64(1), rules.created[0].SenderProfileID)
	assert.Len(t, templates.variants, 2)
}

func TestApply_SecondRunSkips(t *testing.T) {
	loader, _, _, _ := newTestLoader(t)
	f, err := Parse([]byte(fixtureJSON))
	require.NoError(t, err)

	_, err = loader.Apply(context.Background(), f)
	require.NoError(t, err)

	s, err := loader.Apply(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, Summary{Created: 0, Skipped: 8}, s)
}

func TestApply_StopsOnDomainError(t *testing.T) {
	loader, _, _, templates := newTestLoader(t)
	templates.failOn = "EMAIL"
	f, err := Parse([]byte(fixtureJSON))
	require.NoError(t, err)

	_, err = loader.Apply(context.Background(), f)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeTemplateSubjectRequired))
	assert.Contains(t, err.Error(), "variant otp_login/EMAIL/en-US")
}
