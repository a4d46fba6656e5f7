package sender

import (
	"context"
	"regexp"
	"testing"
	"time"

	"pulse-server/internal/common/errors"
	"pulse-server/internal/common/logger"
	"pulse-server/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) { c.calls++ }

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newDirectory(t *testing.T) (*Directory, sqlmock.Sqlmock, *countingInvalidator) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	inv := &countingInvalidator{}
	return NewDirectory(db, logger.NewTestLogger(t), inv), mock, inv
}

func profileRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "key", "display_name", "is_active", "created_at", "updated_at"})
}

func endpointRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "sender_profile_id", "channel", "provider", "identifier", "weight", "is_active", "created_at", "updated_at"})
}

func TestCreateProfile_InsertsDefaultRuleInSameTransaction(t *testing.T) {
	d, mock, inv := newDirectory(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO sender_profiles (key, display_name, is_active)")).
		WithArgs("acme", nil, true).
		WillReturnRows(profileRows().AddRow(1, "acme", nil, true, now, now))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sender_routing_rules (sender_profile_id)")).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	p, err := d.CreateProfile(context.Background(), CreateProfileInput{Key: "acme"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.ID)
	assert.True(t, p.IsActive)
	assert.Nil(t, p.DisplayName)
	assert.Equal(t, 1, inv.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateProfile_DuplicateKey(t *testing.T) {
	d, mock, inv := newDirectory(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO sender_profiles")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "sender_profiles_key_key"})
	mock.ExpectRollback()

	_, err := d.CreateProfile(context.Background(), CreateProfileInput{Key: "acme"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeProfileExists))
	assert.Zero(t, inv.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListProfiles_FiltersAndPaginates(t *testing.T) {
	d, mock, _ := newDirectory(t)
	active := true

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM sender_profiles WHERE key LIKE $1 AND is_active = $2")).
		WithArgs("%ac%", true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta("FROM sender_profiles WHERE key LIKE $1 AND is_active = $2 ORDER BY created_at ASC LIMIT $3 OFFSET $4")).
		WithArgs("%ac%", true, 2, 1).
		WillReturnRows(profileRows().
			AddRow(2, "acme", "Acme", true, now, now).
			AddRow(3, "acme-eu", nil, true, now, now))

	page, err := d.ListProfiles(context.Background(), ProfileFilter{
		ListOptions: models.ListOptions{Limit: 2, Offset: 1, SortBy: "createdAt", SortOrder: "asc"},
		Key:         "ac",
		IsActive:    &active,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Acme", *page.Items[0].DisplayName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProfile_NotFound(t *testing.T) {
	d, mock, _ := newDirectory(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM sender_profiles WHERE id = $1")).
		WithArgs(int64(9)).
		WillReturnRows(profileRows())

	_, err := d.GetProfile(context.Background(), 9)
	assert.True(t, errors.HasCode(err, errors.ErrCodeProfileNotFound))
}

func TestUpdateProfile_OnlySetsProvidedFields(t *testing.T) {
	d, mock, inv := newDirectory(t)
	inactive := false

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE sender_profiles SET updated_at = now(), is_active = $2 WHERE id = $1")).
		WithArgs(int64(4), false).
		WillReturnRows(profileRows().AddRow(4, "acme", nil, false, now, now))

	p, err := d.UpdateProfile(context.Background(), 4, UpdateProfileInput{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, p.IsActive)
	assert.Equal(t, 1, inv.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteProfile(t *testing.T) {
	t.Run("referenced by routing rule", func(t *testing.T) {
		d, mock, inv := newDirectory(t)
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sender_profiles WHERE id = $1")).
			WithArgs(int64(1)).
			WillReturnError(&pq.Error{Code: "23503", Constraint: "sender_routing_rules_sender_profile_id_fkey"})

		err := d.DeleteProfile(context.Background(), 1)
		assert.True(t, errors.HasCode(err, errors.ErrCodeProfileInUse))
		assert.Zero(t, inv.calls)
	})

	t.Run("missing", func(t *testing.T) {
		d, mock, _ := newDirectory(t)
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sender_profiles")).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := d.DeleteProfile(context.Background(), 2)
		assert.True(t, errors.HasCode(err, errors.ErrCodeProfileNotFound))
	})
}

func TestCreateEndpoint(t *testing.T) {
	t.Run("provider must support channel", func(t *testing.T) {
		d, mock, _ := newDirectory(t)
		_, err := d.CreateEndpoint(context.Background(), 1, CreateEndpointInput{
			Channel: models.ChannelSMS, Provider: models.ProviderAWSSES, Identifier: "x",
		})
		assert.True(t, errors.HasCode(err, errors.ErrCodeValidationFailed))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing profile", func(t *testing.T) {
		d, mock, _ := newDirectory(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		_, err := d.CreateEndpoint(context.Background(), 5, CreateEndpointInput{
			Channel: models.ChannelEmail, Provider: models.ProviderAWSSES, Identifier: "Acme <no-reply@acme.io>",
		})
		assert.True(t, errors.HasCode(err, errors.ErrCodeProfileNotFound))
	})

	t.Run("duplicate identity", func(t *testing.T) {
		d, mock, _ := newDirectory(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO sender_endpoints")).
			WithArgs(int64(1), models.ChannelEmail, models.ProviderAWSSES, "no-reply@acme.io", 1, true).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "sender_endpoints_channel_provider_identifier_key"})

		_, err := d.CreateEndpoint(context.Background(), 1, CreateEndpointInput{
			Channel: models.ChannelEmail, Provider: models.ProviderAWSSES, Identifier: "no-reply@acme.io",
		})
		assert.True(t, errors.HasCode(err, errors.ErrCodeEndpointExists))
	})
}

func TestEndpointCRUD_NotFound(t *testing.T) {
	d, mock, _ := newDirectory(t)
	ctx := context.Background()
	active := false

	mock.ExpectQuery(regexp.QuoteMeta("FROM sender_endpoints WHERE id = $1 AND sender_profile_id = $2")).
		WithArgs(int64(9), int64(1)).
		WillReturnRows(endpointRows())
	_, err := d.GetEndpoint(ctx, 1, 9)
	assert.True(t, errors.HasCode(err, errors.ErrCodeEndpointNotFound))

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE sender_endpoints SET updated_at = now(), is_active = $3")).
		WithArgs(int64(9), int64(1), false).
		WillReturnRows(endpointRows())
	_, err = d.UpdateEndpoint(ctx, 1, 9, UpdateEndpointInput{IsActive: &active})
	assert.True(t, errors.HasCode(err, errors.ErrCodeEndpointNotFound))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sender_endpoints")).
		WithArgs(int64(9), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = d.DeleteEndpoint(ctx, 1, 9)
	assert.True(t, errors.HasCode(err, errors.ErrCodeEndpointNotFound))
	assert.Equal(t, "Sender endpoint not found", errors.Normalize(err).Message)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectEndpoint_RoundRobinByAttempt(t *testing.T) {
	endpoints := []models.SenderEndpoint{{ID: 10}, {ID: 11}, {ID: 12}}

	var got []int64
	for attempt := 0; attempt < 4; attempt++ {
		e, err := pickEndpoint(endpoints, attempt)
		require.NoError(t, err)
		got = append(got, e.ID)
	}
	assert.Equal(t, []int64{10, 11, 12, 10}, got)

	_, err := pickEndpoint(nil, 0)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNoEndpointAvailable))
}

func TestSelectEndpoint_QueriesActiveByWeight(t *testing.T) {
	d, mock, _ := newDirectory(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE sender_profile_id = $1 AND channel = $2 AND is_active = TRUE")).
		WithArgs(int64(1), models.ChannelSMS).
		WillReturnRows(endpointRows().
			AddRow(7, 1, "SMS", "AWS_SNS", "ACME", 10, true, now, now).
			AddRow(8, 1, "SMS", "AWS_SNS", "ACME2", 1, true, now, now))

	e, err := d.SelectEndpoint(context.Background(), 1, models.ChannelSMS, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(8), e.ID)
	assert.Equal(t, models.ProviderAWSSNS, e.Provider)
	assert.NoError(t, mock.ExpectationsWereMet())
}
