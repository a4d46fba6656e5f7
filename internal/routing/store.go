// Package routing maps a (service, region, message type) scope to the sender
// profile that owns it.
package routing

import (
	"context"
	"database/sql"
	stderrors "errors"

	"pulse-server/internal/common/database"
	"pulse-server/internal/common/errors"
	"pulse-server/internal/common/logger"
	"pulse-server/internal/models"
)

// Invalidator is told when stored rules or the profiles they point at change.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

type Store struct {
	db          *sql.DB
	log         logger.Logger
	invalidator Invalidator
}

func NewStore(db *sql.DB, log logger.Logger, invalidator Invalidator) *Store {
	return &Store{
		db:          db,
		log:         log.WithFields(map[string]interface{}{"component": "routing"}),
		invalidator: invalidator,
	}
}

type CreateRuleInput struct {
	SenderProfileID int64               `json:"senderProfileId" binding:"required,min=1"`
	Service         *string             `json:"service" binding:"omitempty,min=1,max=100"`
	Region          *string             `json:"region" binding:"omitempty,region"`
	MessageType     *models.MessageType `json:"messageType" binding:"omitempty,message_type"`
}

type UpdateRuleInput struct {
	SenderProfileID int64 `json:"senderProfileId" binding:"required,min=1"`
}

type RuleFilter struct {
	models.ListOptions
	Service     string             `form:"service"`
	Region      string             `form:"region" binding:"omitempty,region"`
	MessageType models.MessageType `form:"messageType" binding:"omitempty,message_type"`
}

var sortColumns = map[string]string{
	"updatedAt": "r.updated_at",
	"createdAt": "r.created_at",
}

const ruleColumns = "r.id, r.sender_profile_id, r.service, r.region, r.message_type, r.created_at, r.updated_at"
const routeColumns = ruleColumns + ", p.id, p.key, p.display_name, p.is_active, p.created_at, p.updated_at"

type scanner interface {
	Scan(dest ...interface{}) error
}

type ruleRow struct {
	rule        models.RoutingRule
	service     sql.NullString
	region      sql.NullString
	messageType sql.NullString
}

func (r *ruleRow) dest() []interface{} {
	return []interface{}{&r.rule.ID, &r.rule.SenderProfileID, &r.service, &r.region, &r.messageType, &r.rule.CreatedAt, &r.rule.UpdatedAt}
}

func (r *ruleRow) finish() models.RoutingRule {
	if r.service.Valid {
		r.rule.Service = &r.service.String
	}
	if r.region.Valid {
		r.rule.Region = &r.region.String
	}
	if r.messageType.Valid {
		mt := models.MessageType(r.messageType.String)
		r.rule.MessageType = &mt
	}
	return r.rule
}

func scanRule(row scanner) (*models.RoutingRule, error) {
	var r ruleRow
	if err := row.Scan(r.dest()...); err != nil {
		return nil, err
	}
	rule := r.finish()
	return &rule, nil
}

func scanRoute(row scanner) (*models.ResolvedRoute, error) {
	var r ruleRow
	var p models.SenderProfile
	var displayName sql.NullString
	dest := append(r.dest(), &p.ID, &p.Key, &displayName, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if displayName.Valid {
		p.DisplayName = &displayName.String
	}
	return &models.ResolvedRoute{Rule: r.finish(), Profile: p}, nil
}

// requireActiveProfile fails when the profile is missing or inactive.
func (s *Store) requireActiveProfile(ctx context.Context, profileID int64) error {
	var active bool
	err := s.db.QueryRowContext(ctx, "SELECT is_active FROM sender_profiles WHERE id = $1", profileID).Scan(&active)
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.New(errors.ErrCodeProfileNotFound)
	}
	if err != nil {
		return errors.NewDatabaseError("check sender profile", err)
	}
	if !active {
		return errors.New(errors.ErrCodeProfileInactive)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, in CreateRuleInput) (*models.RoutingRule, error) {
	if err := s.requireActiveProfile(ctx, in.SenderProfileID); err != nil {
		return nil, err
	}

	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM sender_routing_rules
		   WHERE service IS NOT DISTINCT FROM $1
		     AND region IS NOT DISTINCT FROM $2
		     AND message_type IS NOT DISTINCT FROM $3
		 )`,
		in.Service, in.Region, in.MessageType,
	).Scan(&exists)
	if err != nil {
		return nil, errors.NewDatabaseError("check routing rule", err)
	}
	if exists {
		return nil, errors.New(errors.ErrCodeDuplicateRule)
	}

	rule, err := scanRule(s.db.QueryRowContext(ctx,
		`INSERT INTO sender_routing_rules AS r (sender_profile_id, service, region, message_type)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+ruleColumns,
		in.SenderProfileID, in.Service, in.Region, in.MessageType,
	))
	if err != nil {
		return nil, errors.FromDB("create routing rule", err)
	}

	s.invalidate(ctx)
	s.log.Info("Created routing rule", map[string]interface{}{"ruleId": rule.ID, "profileId": rule.SenderProfileID})
	return rule, nil
}

func (s *Store) List(ctx context.Context, filter RuleFilter) (models.Page[models.RoutingRule], error) {
	opts := filter.ListOptions.Normalize("updatedAt", "createdAt")

	f := &database.Filter{}
	if filter.Service != "" {
		f.Eq("r.service", filter.Service)
	}
	if filter.Region != "" {
		f.Eq("r.region", filter.Region)
	}
	if filter.MessageType != "" {
		f.Eq("r.message_type", filter.MessageType)
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sender_routing_rules r"+f.Where(), f.Args()...).Scan(&total); err != nil {
		return models.Page[models.RoutingRule]{}, errors.NewDatabaseError("count routing rules", err)
	}

	page, args := f.Page(sortColumns[opts.SortBy], opts.SortOrder, opts.Limit, opts.Offset)
	rows, err := s.db.QueryContext(ctx, "SELECT "+ruleColumns+" FROM sender_routing_rules r"+f.Where()+page, args...)
	if err != nil {
		return models.Page[models.RoutingRule]{}, errors.NewDatabaseError("list routing rules", err)
	}
	defer rows.Close()

	var items []models.RoutingRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return models.Page[models.RoutingRule]{}, errors.NewDatabaseError("scan routing rule", err)
		}
		items = append(items, *rule)
	}
	if err := rows.Err(); err != nil {
		return models.Page[models.RoutingRule]{}, errors.NewDatabaseError("list routing rules", err)
	}
	return models.NewPage(items, total, opts), nil
}

// Get returns the rule with its profile loaded.
func (s *Store) Get(ctx context.Context, id int64) (*models.ResolvedRoute, error) {
	route, err := scanRoute(s.db.QueryRowContext(ctx,
		"SELECT "+routeColumns+` FROM sender_routing_rules r
		 JOIN sender_profiles p ON p.id = r.sender_profile_id
		 WHERE r.id = $1`, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.New(errors.ErrCodeRoutingRuleNotFound)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get routing rule", err)
	}
	return route, nil
}

// Update reassigns the rule to another active profile.
func (s *Store) Update(ctx context.Context, id int64, in UpdateRuleInput) (*models.RoutingRule, error) {
	if err := s.requireActiveProfile(ctx, in.SenderProfileID); err != nil {
		return nil, err
	}

	rule, err := scanRule(s.db.QueryRowContext(ctx,
		`UPDATE sender_routing_rules AS r SET sender_profile_id = $2, updated_at = now()
		 WHERE r.id = $1
		 RETURNING `+ruleColumns,
		id, in.SenderProfileID))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.New(errors.ErrCodeRoutingRuleNotFound)
	}
	if err != nil {
		return nil, errors.FromDB("update routing rule", err)
	}

	s.invalidate(ctx)
	return rule, nil
}

// Delete removes a rule. The all-wildcard default rule can never be deleted.
func (s *Store) Delete(ctx context.Context, id int64) error {
	rule, err := scanRule(s.db.QueryRowContext(ctx, "SELECT "+ruleColumns+" FROM sender_routing_rules r WHERE r.id = $1", id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.New(errors.ErrCodeRoutingRuleNotFound)
	}
	if err != nil {
		return errors.NewDatabaseError("get routing rule", err)
	}
	if rule.IsDefault() {
		return errors.New(errors.ErrCodeCannotDeleteDefault)
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM sender_routing_rules WHERE id = $1", id); err != nil {
		return errors.NewDatabaseError("delete routing rule", err)
	}

	s.invalidate(ctx)
	s.log.Info("Deleted routing rule", map[string]interface{}{"ruleId": id})
	return nil
}

func (s *Store) invalidate(ctx context.Context) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
}
