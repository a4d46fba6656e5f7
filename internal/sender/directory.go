// Package sender manages sender profiles and the physical endpoints that send
// on their behalf.
package sender

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"

	"pulse-server/internal/common/database"
	"pulse-server/internal/common/errors"
	"pulse-server/internal/common/logger"
	"pulse-server/internal/models"
)

// RouteInvalidator is notified after writes that change what routing
// resolution returns.
type RouteInvalidator interface {
	Invalidate(ctx context.Context)
}

type Directory struct {
	db          *sql.DB
	log         logger.Logger
	invalidator RouteInvalidator
}

func NewDirectory(db *sql.DB, log logger.Logger, invalidator RouteInvalidator) *Directory {
	return &Directory{
		db:          db,
		log:         log.WithFields(map[string]interface{}{"component": "sender"}),
		invalidator: invalidator,
	}
}

type CreateProfileInput struct {
	Key         string  `json:"key" binding:"required,max=255"`
	DisplayName *string `json:"displayName" binding:"omitempty,max=255"`
	IsActive    *bool   `json:"isActive"`
}

type UpdateProfileInput struct {
	DisplayName *string `json:"displayName" binding:"omitempty,max=255"`
	IsActive    *bool   `json:"isActive"`
}

type ProfileFilter struct {
	models.ListOptions
	Key      string `form:"key"`
	IsActive *bool  `form:"isActive"`
}

var sortColumns = map[string]string{
	"updatedAt": "updated_at",
	"createdAt": "created_at",
}

const profileColumns = "id, key, display_name, is_active, created_at, updated_at"

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(row scanner) (*models.SenderProfile, error) {
	var p models.SenderProfile
	var displayName sql.NullString
	if err := row.Scan(&p.ID, &p.Key, &displayName, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if displayName.Valid {
		p.DisplayName = &displayName.String
	}
	return &p, nil
}

// CreateProfile inserts a profile. When no default routing rule exists yet,
// one pointing at the new profile is created in the same transaction.
func (d *Directory) CreateProfile(ctx context.Context, in CreateProfileInput) (*models.SenderProfile, error) {
	isActive := true
	if in.IsActive != nil {
		isActive = *in.IsActive
	}

	var profile *models.SenderProfile
	err := database.WithTx(ctx, d.db, func(tx *sql.Tx) error {
		var err error
		profile, err = scanProfile(tx.QueryRowContext(ctx,
			`INSERT INTO sender_profiles (key, display_name, is_active)
			 VALUES ($1, $2, $3)
			 RETURNING `+profileColumns,
			in.Key, in.DisplayName, isActive,
		))
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO sender_routing_rules (sender_profile_id)
			 SELECT $1
			 WHERE NOT EXISTS (
			   SELECT 1 FROM sender_routing_rules
			   WHERE service IS NULL AND region IS NULL AND message_type IS NULL
			 )`,
			profile.ID,
		)
		return err
	})
	if err != nil {
		return nil, errors.FromDB("create sender profile", err)
	}

	d.invalidate(ctx)
	d.log.Info("Created sender profile", map[string]interface{}{"profileId": profile.ID, "key": profile.Key})
	return profile, nil
}

func (d *Directory) ListProfiles(ctx context.Context, filter ProfileFilter) (models.Page[models.SenderProfile], error) {
	opts := filter.ListOptions.Normalize("updatedAt", "createdAt")

	f := &database.Filter{}
	if filter.Key != "" {
		f.Contains("key", filter.Key)
	}
	if filter.IsActive != nil {
		f.Eq("is_active", *filter.IsActive)
	}

	var total int64
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sender_profiles"+f.Where(), f.Args()...).Scan(&total); err != nil {
		return models.Page[models.SenderProfile]{}, errors.NewDatabaseError("count sender profiles", err)
	}

	page, args := f.Page(sortColumns[opts.SortBy], opts.SortOrder, opts.Limit, opts.Offset)
	rows, err := d.db.QueryContext(ctx, "SELECT "+profileColumns+" FROM sender_profiles"+f.Where()+page, args...)
	if err != nil {
		return models.Page[models.SenderProfile]{}, errors.NewDatabaseError("list sender profiles", err)
	}
	defer rows.Close()

	var items []models.SenderProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return models.Page[models.SenderProfile]{}, errors.NewDatabaseError("scan sender profile", err)
		}
		items = append(items, *p)
	}
	if err := rows.Err(); err != nil {
		return models.Page[models.SenderProfile]{}, errors.NewDatabaseError("list sender profiles", err)
	}
	return models.NewPage(items, total, opts), nil
}

func (d *Directory) GetProfile(ctx context.Context, id int64) (*models.SenderProfile, error) {
	return d.getProfile(ctx, "id", id)
}

func (d *Directory) GetProfileByKey(ctx context.Context, key string) (*models.SenderProfile, error) {
	return d.getProfile(ctx, "key", key)
}

func (d *Directory) getProfile(ctx context.Context, column string, v interface{}) (*models.SenderProfile, error) {
	p, err := scanProfile(d.db.QueryRowContext(ctx,
		"SELECT "+profileColumns+" FROM sender_profiles WHERE "+column+" = $1", v))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.New(errors.ErrCodeProfileNotFound)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get sender profile", err)
	}
	return p, nil
}

func (d *Directory) UpdateProfile(ctx context.Context, id int64, in UpdateProfileInput) (*models.SenderProfile, error) {
	sets := []string{"updated_at = now()"}
	args := []interface{}{id}
	add := func(column string, v interface{}) {
		args = append(args, v)
		sets = append(sets, column+" = $"+placeholder(len(args)))
	}
	if in.DisplayName != nil {
		add("display_name", *in.DisplayName)
	}
	if in.IsActive != nil {
		add("is_active", *in.IsActive)
	}

	p, err := scanProfile(d.db.QueryRowContext(ctx,
		"UPDATE sender_profiles SET "+strings.Join(sets, ", ")+" WHERE id = $1 RETURNING "+profileColumns,
		args...))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.New(errors.ErrCodeProfileNotFound)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("update sender profile", err)
	}

	d.invalidate(ctx)
	return p, nil
}

// DeleteProfile removes a profile and its endpoints. Profiles still targeted
// by a routing rule cannot be deleted.
func (d *Directory) DeleteProfile(ctx context.Context, id int64) error {
	res, err := d.db.ExecContext(ctx, "DELETE FROM sender_profiles WHERE id = $1", id)
	if err != nil {
		return errors.FromDB("delete sender profile", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New(errors.ErrCodeProfileNotFound)
	}

	d.invalidate(ctx)
	d.log.Info("Deleted sender profile", map[string]interface{}{"profileId": id})
	return nil
}

func (d *Directory) profileExists(ctx context.Context, id int64) error {
	var exists bool
	if err := d.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM sender_profiles WHERE id = $1)", id).Scan(&exists); err != nil {
		return errors.NewDatabaseError("check sender profile", err)
	}
	if !exists {
		return errors.New(errors.ErrCodeProfileNotFound)
	}
	return nil
}

func (d *Directory) invalidate(ctx context.Context) {
	if d.invalidator != nil {
		d.invalidator.Invalidate(ctx)
	}
}
