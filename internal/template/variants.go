package template

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strconv"
	"strings"

	"pulse-server/internal/common/database"
	"pulse-server/internal/common/errors"
	"pulse-server/internal/models"
)

type CreateVariantInput struct {
	Channel  models.Channel `json:"channel" binding:"required,channel"`
	Locale   string         `json:"locale" binding:"required,locale"`
	Subject  *string        `json:"subject" binding:"omitempty,max=255"`
	Body     string         `json:"body" binding:"required,max=5000"`
	IsActive *bool          `json:"isActive"`
}

type UpdateVariantInput struct {
	Subject  *string `json:"subject" binding:"omitempty,max=255"`
	Body     *string `json:"body" binding:"omitempty,min=1,max=5000"`
	IsActive *bool   `json:"isActive"`
}

func (in UpdateVariantInput) empty() bool {
	return in.Subject == nil && in.Body == nil && in.IsActive == nil
}

type VariantFilter struct {
	models.ListOptions
	Channel models.Channel `form:"channel" binding:"omitempty,channel"`
	Locale  string         `form:"locale" binding:"omitempty,locale"`
}

const variantColumns = "id, template_group_id, channel, locale, subject, body, is_active, created_at, updated_at"

func variantDest(v *models.TemplateVariant, subject *sql.NullString) []interface{} {
	return []interface{}{&v.ID, &v.TemplateGroupID, &v.Channel, &v.Locale, subject, &v.Body, &v.IsActive, &v.CreatedAt, &v.UpdatedAt}
}

func scanVariant(row scanner) (*models.TemplateVariant, error) {
	var v models.TemplateVariant
	var subject sql.NullString
	if err := row.Scan(variantDest(&v, &subject)...); err != nil {
		return nil, err
	}
	if subject.Valid {
		v.Subject = &subject.String
	}
	return &v, nil
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func (d *Directory) queryVariants(ctx context.Context, query string, args ...interface{}) ([]models.TemplateVariant, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewDatabaseError("list template variants", err)
	}
	defer rows.Close()

	var items []models.TemplateVariant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, errors.NewDatabaseError("scan template variant", err)
		}
		items = append(items, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("list template variants", err)
	}
	return items, nil
}

// AddVariant inserts a variant and enables its channel on the group the first
// time that channel gets a variant. An existing setting is left untouched.
func (d *Directory) AddVariant(ctx context.Context, groupID int64, in CreateVariantInput) (*models.TemplateVariant, error) {
	if in.Channel == models.ChannelEmail && (in.Subject == nil || *in.Subject == "") {
		return nil, errors.New(errors.ErrCodeTemplateSubjectRequired)
	}
	isActive := true
	if in.IsActive != nil {
		isActive = *in.IsActive
	}

	var variant *models.TemplateVariant
	err := database.WithTx(ctx, d.db, func(tx *sql.Tx) error {
		var err error
		variant, err = scanVariant(tx.QueryRowContext(ctx,
			`INSERT INTO template_variants (template_group_id, channel, locale, subject, body, is_active)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING `+variantColumns,
			groupID, in.Channel, in.Locale, in.Subject, in.Body, isActive,
		))
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO template_channel_settings (template_group_id, channel, is_enabled)
			 VALUES ($1, $2, TRUE)
			 ON CONFLICT (template_group_id, channel) DO NOTHING`,
			groupID, in.Channel,
		)
		return err
	})
	if err != nil {
		return nil, errors.FromDB("create template variant", err)
	}

	d.log.Info("Created template variant", map[string]interface{}{
		"groupId": groupID, "channel": variant.Channel, "locale": variant.Locale,
	})
	return variant, nil
}

func (d *Directory) ListVariants(ctx context.Context, groupID int64, filter VariantFilter) (models.Page[models.TemplateVariant], error) {
	if err := d.groupExists(ctx, groupID); err != nil {
		return models.Page[models.TemplateVariant]{}, err
	}
	opts := filter.ListOptions.Normalize("updatedAt", "createdAt")

	f := (&database.Filter{}).Eq("template_group_id", groupID)
	if filter.Channel != "" {
		f.Eq("channel", filter.Channel)
	}
	if filter.Locale != "" {
		f.Eq("locale", filter.Locale)
	}

	var total int64
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM template_variants"+f.Where(), f.Args()...).Scan(&total); err != nil {
		return models.Page[models.TemplateVariant]{}, errors.NewDatabaseError("count template variants", err)
	}

	page, args := f.Page(sortColumns[opts.SortBy], opts.SortOrder, opts.Limit, opts.Offset)
	items, err := d.queryVariants(ctx, "SELECT "+variantColumns+" FROM template_variants"+f.Where()+page, args...)
	if err != nil {
		return models.Page[models.TemplateVariant]{}, err
	}
	return models.NewPage(items, total, opts), nil
}

func (d *Directory) GetVariant(ctx context.Context, groupID, variantID int64) (*models.TemplateVariant, error) {
	v, err := scanVariant(d.db.QueryRowContext(ctx,
		"SELECT "+variantColumns+" FROM template_variants WHERE template_group_id = $1 AND id = $2",
		groupID, variantID))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.New(errors.ErrCodeTemplateVariantNotFound)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get template variant", err)
	}
	return v, nil
}

func (d *Directory) UpdateVariant(ctx context.Context, groupID, variantID int64, in UpdateVariantInput) (*models.TemplateVariant, error) {
	if in.empty() {
		return nil, errors.NewValidationError("update", "must contain at least one field")
	}

	sets := []string{"updated_at = now()"}
	args := []interface{}{groupID, variantID}
	add := func(column string, v interface{}) {
		args = append(args, v)
		sets = append(sets, column+" = "+placeholder(len(args)))
	}
	if in.Subject != nil {
		add("subject", *in.Subject)
	}
	if in.Body != nil {
		add("body", *in.Body)
	}
	if in.IsActive != nil {
		add("is_active", *in.IsActive)
	}

	v, err := scanVariant(d.db.QueryRowContext(ctx,
		"UPDATE template_variants SET "+strings.Join(sets, ", ")+
			" WHERE template_group_id = $1 AND id = $2 RETURNING "+variantColumns,
		args...))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.New(errors.ErrCodeTemplateVariantNotFound)
	}
	if err != nil {
		return nil, errors.FromDB("update template variant", err)
	}

	d.log.Info("Updated template variant", map[string]interface{}{"groupId": groupID, "variantId": variantID})
	return v, nil
}

func (d *Directory) DeleteVariant(ctx context.Context, groupID, variantID int64) error {
	res, err := d.db.ExecContext(ctx,
		"DELETE FROM template_variants WHERE template_group_id = $1 AND id = $2", groupID, variantID)
	if err != nil {
		return errors.NewDatabaseError("delete template variant", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New(errors.ErrCodeTemplateVariantNotFound)
	}

	d.log.Info("Deleted template variant", map[string]interface{}{"groupId": groupID, "variantId": variantID})
	return nil
}

const resolvedColumns = "v.id, v.template_group_id, v.channel, v.locale, v.subject, v.body, v.is_active, v.created_at, v.updated_at, " +
	"g.id, g.template_key, g.message_type, g.description, g.priority, g.is_active, g.created_at, g.updated_at"

// ResolveVariant finds the active variant of the keyed group for a channel and
// locale, falling back to models.DefaultLocale. It returns nil when neither exists.
func (d *Directory) ResolveVariant(ctx context.Context, templateKey string, channel models.Channel, locale string) (*models.ResolvedVariant, error) {
	return d.resolve(ctx, "g.template_key", templateKey, channel, locale)
}

// GetVariantForGroup is ResolveVariant keyed by group id, used when a job is
// re-attempted after the original request is gone.
func (d *Directory) GetVariantForGroup(ctx context.Context, groupID int64, channel models.Channel, locale string) (*models.ResolvedVariant, error) {
	return d.resolve(ctx, "g.id", groupID, channel, locale)
}

func (d *Directory) resolve(ctx context.Context, column string, key interface{}, channel models.Channel, locale string) (*models.ResolvedVariant, error) {
	if locale == "" {
		locale = models.DefaultLocale
	}

	var rv models.ResolvedVariant
	var subject, description sql.NullString
	dest := append(variantDest(&rv.Variant, &subject), groupDest(&rv.Group, &description)...)
	err := d.db.QueryRowContext(ctx,
		"SELECT "+resolvedColumns+` FROM template_variants v
		 JOIN template_groups g ON g.id = v.template_group_id
		 WHERE `+column+` = $1 AND v.channel = $2 AND v.is_active AND v.locale IN ($3, $4)
		 ORDER BY (v.locale = $3) DESC
		 LIMIT 1`,
		key, channel, locale, models.DefaultLocale,
	).Scan(dest...)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewDatabaseError("resolve template variant", err)
	}

	if subject.Valid {
		rv.Variant.Subject = &subject.String
	}
	if description.Valid {
		rv.Group.Description = &description.String
	}
	return &rv, nil
}
