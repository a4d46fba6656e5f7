package template

import (
	"context"
	"database/sql"
	stderrors "errors"

	"pulse-server/internal/common/errors"
	"pulse-server/internal/models"
)

type ToggleChannelInput struct {
	IsEnabled *bool `json:"isEnabled" binding:"required"`
}

const settingColumns = "template_group_id, channel, is_enabled, created_at, updated_at"

func scanSetting(row scanner) (*models.ChannelSetting, error) {
	var s models.ChannelSetting
	if err := row.Scan(&s.TemplateGroupID, &s.Channel, &s.IsEnabled, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (d *Directory) querySettings(ctx context.Context, query string, args ...interface{}) ([]models.ChannelSetting, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewDatabaseError("list channel settings", err)
	}
	defer rows.Close()

	items := []models.ChannelSetting{}
	for rows.Next() {
		s, err := scanSetting(rows)
		if err != nil {
			return nil, errors.NewDatabaseError("scan channel setting", err)
		}
		items = append(items, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("list channel settings", err)
	}
	return items, nil
}

// EnabledChannels is the fan-out set for a template key.
type EnabledChannels struct {
	Group    models.TemplateGroup
	Settings []models.ChannelSetting
}

// GetEnabledChannels fails with TPL_GRP_001 when the key is unknown. Disabled
// channels are excluded.
func (d *Directory) GetEnabledChannels(ctx context.Context, templateKey string) (*EnabledChannels, error) {
	g, err := d.GetGroupByKey(ctx, templateKey)
	if err != nil {
		return nil, err
	}
	settings, err := d.querySettings(ctx,
		"SELECT "+settingColumns+" FROM template_channel_settings WHERE template_group_id = $1 AND is_enabled ORDER BY channel",
		g.ID)
	if err != nil {
		return nil, err
	}
	return &EnabledChannels{Group: *g, Settings: settings}, nil
}

func (d *Directory) ListChannelSettings(ctx context.Context, groupID int64) ([]models.ChannelSetting, error) {
	return d.querySettings(ctx,
		"SELECT "+settingColumns+" FROM template_channel_settings WHERE template_group_id = $1 ORDER BY channel",
		groupID)
}

// SetChannelEnabled flips an existing setting. Settings are only created by
// AddVariant.
func (d *Directory) SetChannelEnabled(ctx context.Context, groupID int64, channel models.Channel, enabled bool) (*models.ChannelSetting, error) {
	s, err := scanSetting(d.db.QueryRowContext(ctx,
		`UPDATE template_channel_settings SET is_enabled = $3, updated_at = now()
		 WHERE template_group_id = $1 AND channel = $2
		 RETURNING `+settingColumns,
		groupID, channel, enabled))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.New(errors.ErrCodeChannelSettingNotFound)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("update channel setting", err)
	}

	d.log.Info("Toggled template channel", map[string]interface{}{"groupId": groupID, "channel": channel, "enabled": enabled})
	return s, nil
}
