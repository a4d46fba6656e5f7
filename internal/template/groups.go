// Package template stores template groups, their channel and locale variants,
// and the per-channel switches that decide which channels a send fans out to.
package template

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"

	"pulse-server/internal/common/database"
	"pulse-server/internal/common/errors"
	"pulse-server/internal/common/logger"
	"pulse-server/internal/models"

	"github.com/lib/pq"
)

type Directory struct {
	db  *sql.DB
	log logger.Logger
}

func NewDirectory(db *sql.DB, log logger.Logger) *Directory {
	return &Directory{
		db:  db,
		log: log.WithFields(map[string]interface{}{"component": "template"}),
	}
}

type CreateGroupInput struct {
	TemplateKey string             `json:"templateKey" binding:"required,max=255"`
	MessageType models.MessageType `json:"messageType" binding:"required,message_type"`
	Description *string            `json:"description" binding:"omitempty,max=500"`
	Priority    *models.Priority   `json:"priority" binding:"omitempty,priority"`
	IsActive    *bool              `json:"isActive"`
}

type UpdateGroupInput struct {
	MessageType *models.MessageType `json:"messageType" binding:"omitempty,message_type"`
	Description *string             `json:"description" binding:"omitempty,max=500"`
	Priority    *models.Priority    `json:"priority" binding:"omitempty,priority"`
	IsActive    *bool               `json:"isActive"`
}

type GroupFilter struct {
	models.ListOptions
	Key         string             `form:"key"`
	MessageType models.MessageType `form:"messageType" binding:"omitempty,message_type"`
	IsActive    *bool              `form:"isActive"`
}

var sortColumns = map[string]string{
	"updatedAt": "updated_at",
	"createdAt": "created_at",
}

const groupColumns = "id, template_key, message_type, description, priority, is_active, created_at, updated_at"

type scanner interface {
	Scan(dest ...interface{}) error
}

func groupDest(g *models.TemplateGroup, description *sql.NullString) []interface{} {
	return []interface{}{&g.ID, &g.TemplateKey, &g.MessageType, description, &g.Priority, &g.IsActive, &g.CreatedAt, &g.UpdatedAt}
}

func scanGroup(row scanner) (*models.TemplateGroup, error) {
	var g models.TemplateGroup
	var description sql.NullString
	if err := row.Scan(groupDest(&g, &description)...); err != nil {
		return nil, err
	}
	if description.Valid {
		g.Description = &description.String
	}
	return &g, nil
}

func (d *Directory) CreateGroup(ctx context.Context, in CreateGroupInput) (*models.TemplateGroup, error) {
	priority := models.PriorityMedium
	if in.Priority != nil {
		priority = *in.Priority
	}
	isActive := true
	if in.IsActive != nil {
		isActive = *in.IsActive
	}

	g, err := scanGroup(d.db.QueryRowContext(ctx,
		`INSERT INTO template_groups (template_key, message_type, description, priority, is_active)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+groupColumns,
		in.TemplateKey, in.MessageType, in.Description, priority, isActive,
	))
	if err != nil {
		return nil, errors.FromDB("create template group", err)
	}

	d.log.Info("Created template group", map[string]interface{}{"groupId": g.ID, "templateKey": g.TemplateKey})
	return g, nil
}

func (d *Directory) ListGroups(ctx context.Context, filter GroupFilter) (models.Page[models.TemplateGroup], error) {
	opts := filter.ListOptions.Normalize("updatedAt", "createdAt")

	f := &database.Filter{}
	if filter.Key != "" {
		f.Contains("template_key", filter.Key)
	}
	if filter.MessageType != "" {
		f.Eq("message_type", filter.MessageType)
	}
	if filter.IsActive != nil {
		f.Eq("is_active", *filter.IsActive)
	}

	var total int64
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM template_groups"+f.Where(), f.Args()...).Scan(&total); err != nil {
		return models.Page[models.TemplateGroup]{}, errors.NewDatabaseError("count template groups", err)
	}

	page, args := f.Page(sortColumns[opts.SortBy], opts.SortOrder, opts.Limit, opts.Offset)
	rows, err := d.db.QueryContext(ctx, "SELECT "+groupColumns+" FROM template_groups"+f.Where()+page, args...)
	if err != nil {
		return models.Page[models.TemplateGroup]{}, errors.NewDatabaseError("list template groups", err)
	}
	defer rows.Close()

	var items []models.TemplateGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return models.Page[models.TemplateGroup]{}, errors.NewDatabaseError("scan template group", err)
		}
		items = append(items, *g)
	}
	if err := rows.Err(); err != nil {
		return models.Page[models.TemplateGroup]{}, errors.NewDatabaseError("list template groups", err)
	}
	return models.NewPage(items, total, opts), nil
}

// GetGroup loads a group with all of its variants and channel settings.
func (d *Directory) GetGroup(ctx context.Context, id int64) (*models.TemplateDetails, error) {
	g, err := d.group(ctx, "id", id)
	if err != nil {
		return nil, err
	}

	variants, err := d.queryVariants(ctx,
		"SELECT "+variantColumns+" FROM template_variants WHERE template_group_id = $1 ORDER BY channel, locale", id)
	if err != nil {
		return nil, err
	}
	settings, err := d.ListChannelSettings(ctx, id)
	if err != nil {
		return nil, err
	}

	if variants == nil {
		variants = []models.TemplateVariant{}
	}
	return &models.TemplateDetails{TemplateGroup: *g, Variants: variants, ChannelSettings: settings}, nil
}

func (d *Directory) GetGroupByKey(ctx context.Context, key string) (*models.TemplateGroup, error) {
	return d.group(ctx, "template_key", key)
}

func (d *Directory) group(ctx context.Context, column string, v interface{}) (*models.TemplateGroup, error) {
	g, err := scanGroup(d.db.QueryRowContext(ctx,
		"SELECT "+groupColumns+" FROM template_groups WHERE "+column+" = $1", v))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.New(errors.ErrCodeTemplateGroupNotFound)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get template group", err)
	}
	return g, nil
}

func (d *Directory) UpdateGroup(ctx context.Context, id int64, in UpdateGroupInput) (*models.TemplateGroup, error) {
	sets := []string{"updated_at = now()"}
	args := []interface{}{id}
	add := func(column string, v interface{}) {
		args = append(args, v)
		sets = append(sets, column+" = "+placeholder(len(args)))
	}
	if in.MessageType != nil {
		add("message_type", *in.MessageType)
	}
	if in.Description != nil {
		add("description", *in.Description)
	}
	if in.Priority != nil {
		add("priority", *in.Priority)
	}
	if in.IsActive != nil {
		add("is_active", *in.IsActive)
	}

	g, err := scanGroup(d.db.QueryRowContext(ctx,
		"UPDATE template_groups SET "+strings.Join(sets, ", ")+" WHERE id = $1 RETURNING "+groupColumns,
		args...))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.New(errors.ErrCodeTemplateGroupNotFound)
	}
	if err != nil {
		return nil, errors.FromDB("update template group", err)
	}
	return g, nil
}

// DeleteGroup removes a group with its variants and settings. Groups that
// notification jobs still point at are kept.
func (d *Directory) DeleteGroup(ctx context.Context, id int64) error {
	res, err := d.db.ExecContext(ctx, "DELETE FROM template_groups WHERE id = $1", id)
	if err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && pqErr.Code == "23503" {
			return errors.NewWithDetails(errors.ErrCodeTemplateGroupInUse, pqErr.Detail)
		}
		return errors.NewDatabaseError("delete template group", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New(errors.ErrCodeTemplateGroupNotFound)
	}

	d.log.Info("Deleted template group", map[string]interface{}{"groupId": id})
	return nil
}

func (d *Directory) groupExists(ctx context.Context, id int64) error {
	var exists bool
	if err := d.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM template_groups WHERE id = $1)", id).Scan(&exists); err != nil {
		return errors.NewDatabaseError("check template group", err)
	}
	if !exists {
		return errors.New(errors.ErrCodeTemplateGroupNotFound)
	}
	return nil
}
