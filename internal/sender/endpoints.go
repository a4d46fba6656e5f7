package sender

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

type CreateEndpointInput struct {
	Channel    models.Channel         `json:"channel" binding:"required,channel"`
	Provider   models.ServiceProvider `json:"provider" binding:"required,provider"`
	Identifier string                 `json:"identifier" binding:"required,max=500"`
	Weight     *int                   `json:"weight" binding:"omitempty,min=0,max=32767"`
	IsActive   *bool                  `json:"isActive"`
}

type UpdateEndpointInput struct {
	Identifier *string `json:"identifier" binding:"omitempty,min=1,max=500"`
	Weight     *int    `json:"weight" binding:"omitempty,min=0,max=32767"`
	IsActive   *bool   `json:"isActive"`
}

type EndpointFilter struct {
	models.ListOptions
	Channel  models.Channel         `form:"channel" binding:"omitempty,channel"`
	Provider models.ServiceProvider `form:"provider" binding:"omitempty,provider"`
	IsActive *bool                  `form:"isActive"`
}

// providerChannels lists the channels each gateway can deliver on. DEV
// accepts every channel.
var providerChannels = map[models.ServiceProvider][]models.Channel{
	models.ProviderAWSSES:   {models.ChannelEmail},
	models.ProviderSMTP:     {models.ChannelEmail},
	models.ProviderSendGrid: {models.ChannelEmail},
	models.ProviderAWSSNS:   {models.ChannelSMS},
	models.ProviderTwilio:   {models.ChannelSMS},
	models.ProviderFirebase: {models.ChannelPush},
	models.ProviderDev:      models.Channels[:],
}

func supports(p models.ServiceProvider, ch models.Channel) bool {
	for _, c := range providerChannels[p] {
		if c == ch {
			return true
		}
	}
	return false
}

const endpointColumns = "id, sender_profile_id, channel, provider, identifier, weight, is_active, created_at, updated_at"

func scanEndpoint(row scanner) (*models.SenderEndpoint, error) {
	var e models.SenderEndpoint
	if err := row.Scan(&e.ID, &e.SenderProfileID, &e.Channel, &e.Provider, &e.Identifier, &e.Weight, &e.IsActive, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func (d *Directory) CreateEndpoint(ctx context.Context, profileID int64, in CreateEndpointInput) (*models.SenderEndpoint, error) {
	if !supports(in.Provider, in.Channel) {
		return nil, errors.NewValidationError("provider", string(in.Provider)+" cannot deliver on channel "+string(in.Channel))
	}
	if err := d.profileExists(ctx, profileID); err != nil {
		return nil, err
	}

	weight := 1
	if in.Weight != nil {
		weight = *in.Weight
	}
	isActive := true
	if in.IsActive != nil {
		isActive = *in.IsActive
	}

	e, err := scanEndpoint(d.db.QueryRowContext(ctx,
		`INSERT INTO sender_endpoints (sender_profile_id, channel, provider, identifier, weight, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+endpointColumns,
		profileID, in.Channel, in.Provider, in.Identifier, weight, isActive,
	))
	if err != nil {
		return nil, errors.FromDB("create sender endpoint", err)
	}

	d.log.Info("Created sender endpoint", map[string]interface{}{
		"profileId":  profileID,
		"endpointId": e.ID,
		"channel":    e.Channel,
		"provider":   e.Provider,
	})
	return e, nil
}

func (d *Directory) ListEndpoints(ctx context.Context, profileID int64, filter EndpointFilter) (models.Page[models.SenderEndpoint], error) {
	if err := d.profileExists(ctx, profileID); err != nil {
		return models.Page[models.SenderEndpoint]{}, err
	}
	opts := filter.ListOptions.Normalize("updatedAt", "createdAt")

	f := (&database.Filter{}).Eq("sender_profile_id", profileID)
	if filter.Channel != "" {
		f.Eq("channel", filter.Channel)
	}
	if filter.Provider != "" {
		f.Eq("provider", filter.Provider)
	}
	if filter.IsActive != nil {
		f.Eq("is_active", *filter.IsActive)
	}

	var total int64
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sender_endpoints"+f.Where(), f.Args()...).Scan(&total); err != nil {
		return models.Page[models.SenderEndpoint]{}, errors.NewDatabaseError("count sender endpoints", err)
	}

	page, args := f.Page(sortColumns[opts.SortBy], opts.SortOrder, opts.Limit, opts.Offset)
	items, err := d.queryEndpoints(ctx, "SELECT "+endpointColumns+" FROM sender_endpoints"+f.Where()+page, args...)
	if err != nil {
		return models.Page[models.SenderEndpoint]{}, err
	}
	return models.NewPage(items, total, opts), nil
}

func (d *Directory) queryEndpoints(ctx context.Context, query string, args ...interface{}) ([]models.SenderEndpoint, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewDatabaseError("list sender endpoints", err)
	}
	defer rows.Close()

	var items []models.SenderEndpoint
	for rows.Next() {
		e, err := scanEndpoint(rows)
		if err != nil {
			return nil, errors.NewDatabaseError("scan sender endpoint", err)
		}
		items = append(items, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("list sender endpoints", err)
	}
	return items, nil
}

func (d *Directory) GetEndpoint(ctx context.Context, profileID, endpointID int64) (*models.SenderEndpoint, error) {
	e, err := scanEndpoint(d.db.QueryRowContext(ctx,
		"SELECT "+endpointColumns+" FROM sender_endpoints WHERE id = $1 AND sender_profile_id = $2",
		endpointID, profileID))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.New(errors.ErrCodeEndpointNotFound)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get sender endpoint", err)
	}
	return e, nil
}

func (d *Directory) UpdateEndpoint(ctx context.Context, profileID, endpointID int64, in UpdateEndpointInput) (*models.SenderEndpoint, error) {
	sets := []string{"updated_at = now()"}
	args := []interface{}{endpointID, profileID}
	add := func(column string, v interface{}) {
		args = append(args, v)
		sets = append(sets, column+" = $"+placeholder(len(args)))
	}
	if in.Identifier != nil {
		add("identifier", *in.Identifier)
	}
	if in.Weight != nil {
		add("weight", *in.Weight)
	}
	if in.IsActive != nil {
		add("is_active", *in.IsActive)
	}

	e, err := scanEndpoint(d.db.QueryRowContext(ctx,
		"UPDATE sender_endpoints SET "+strings.Join(sets, ", ")+" WHERE id = $1 AND sender_profile_id = $2 RETURNING "+endpointColumns,
		args...))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.New(errors.ErrCodeEndpointNotFound)
	}
	if err != nil {
		return nil, errors.FromDB("update sender endpoint", err)
	}
	return e, nil
}

func (d *Directory) DeleteEndpoint(ctx context.Context, profileID, endpointID int64) error {
	res, err := d.db.ExecContext(ctx, "DELETE FROM sender_endpoints WHERE id = $1 AND sender_profile_id = $2", endpointID, profileID)
	if err != nil {
		return errors.NewDatabaseError("delete sender endpoint", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New(errors.ErrCodeEndpointNotFound)
	}
	d.log.Info("Deleted sender endpoint", map[string]interface{}{"profileId": profileID, "endpointId": endpointID})
	return nil
}

// ListActiveEndpoints returns the profile's active endpoints for channel,
// heaviest first.
func (d *Directory) ListActiveEndpoints(ctx context.Context, profileID int64, channel models.Channel) ([]models.SenderEndpoint, error) {
	return d.queryEndpoints(ctx,
		"SELECT "+endpointColumns+` FROM sender_endpoints
		 WHERE sender_profile_id = $1 AND channel = $2 AND is_active = TRUE
		 ORDER BY weight DESC, id ASC`,
		profileID, channel)
}

// SelectEndpoint rotates through the active endpoints by attempt number.
// priorAttempt is the job's attempt count before this attempt.
func (d *Directory) SelectEndpoint(ctx context.Context, profileID int64, channel models.Channel, priorAttempt int) (*models.SenderEndpoint, error) {
	endpoints, err := d.ListActiveEndpoints(ctx, profileID, channel)
	if err != nil {
		return nil, err
	}
	return pickEndpoint(endpoints, priorAttempt)
}

func pickEndpoint(endpoints []models.SenderEndpoint, priorAttempt int) (*models.SenderEndpoint, error) {
	if len(endpoints) == 0 {
		return nil, errors.New(errors.ErrCodeNoEndpointAvailable)
	}
	if priorAttempt < 0 {
		priorAttempt = 0
	}
	e := endpoints[priorAttempt%len(endpoints)]
	return &e, nil
}

func placeholder(n int) string {
	return strconv.Itoa(n)
}
