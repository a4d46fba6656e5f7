package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidEmail(t *testing.T) {
	assert.True(t, IsValidEmail("a@b.com"))
	assert.True(t, IsValidEmail("first.last+tag@mail.example.org"))
	assert.False(t, IsValidEmail(""))
	assert.False(t, IsValidEmail("not-an-email"))
	assert.False(t, IsValidEmail("a@b"))
}

func TestIsValidMobile(t *testing.T) {
	tests := []struct {
		phone string
		want  bool
	}{
		{"+447400123456", true},
		{"+919876543210", true},
		{"not-a-phone", false},
		{"", false},
		{"07400123456", false},
		{"+44", false},
	}
	for _, tt := range tests {
		t.Run(tt.phone, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidMobile(tt.phone))
		})
	}
}

func TestPhoneRegion(t *testing.T) {
	assert.Equal(t, "GB", PhoneRegion("+447400123456"))
	assert.Equal(t, "IN", PhoneRegion("+919876543210"))
	assert.Equal(t, "", PhoneRegion("garbage"))
}

func TestSendRequestSchema(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		res, err := SendRequestSchema.Validate(map[string]interface{}{
			"templateKey": "welcome",
			"recipients":  map[string]interface{}{"email": "a@b.com"},
			"payload":     map[string]interface{}{"name": "Ada"},
			"locale":      "en-GB",
		})
		require.NoError(t, err)
		assert.True(t, res.Valid)
	})

	t.Run("missing template key and unknown recipient field", func(t *testing.T) {
		res, err := SendRequestSchema.Validate(map[string]interface{}{
			"recipients": map[string]interface{}{"fax": "123"},
		})
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.GreaterOrEqual(t, len(res.Errors), 2)
		assert.NotEmpty(t, res.Error())
	})

	t.Run("bad locale", func(t *testing.T) {
		res, err := SendRequestSchema.Validate(map[string]interface{}{
			"templateKey": "welcome",
			"recipients":  map[string]interface{}{"email": "a@b.com"},
			"locale":      "english",
		})
		require.NoError(t, err)
		assert.False(t, res.Valid)
	})
	t.Run("push recipient", func(t *testing.T) {
		res, err := SendRequestSchema.Validate(map[string]interface{}{
			"templateKey": "welcome",
			"recipients":  map[string]interface{}{"push": "device-token"},
		})
		require.NoError(t, err)
		assert.True(t, res.Valid, res.Error())

		res, err = SendRequestSchema.Validate(map[string]interface{}{
			"templateKey": "welcome",
			"recipients":  map[string]interface{}{"pushToken": "device-token"},
		})
		require.NoError(t, err)
		assert.False(t, res.Valid)
	})

	t.Run("empty recipients", func(t *testing.T) {
		res, err := SendRequestSchema.Validate(map[string]interface{}{
			"templateKey": "welcome",
			"recipients":  map[string]interface{}{},
		})
		require.NoError(t, err)
		assert.False(t, res.Valid)
	})

	t.Run("locale tags", func(t *testing.T) {
		tests := []struct {
			locale string
			valid  bool
		}{
			{"en", true},
			{"en-IN", true},
			{"en-ZZ", true},
			{"zh-Hans-CN", true},
			{"es-419", true},
			{"en_US", false},
			{"e", false},
			{"en-", false},
		}
		for _, tt := range tests {
			res, err := SendRequestSchema.Validate(map[string]interface{}{
				"templateKey": "welcome",
				"recipients":  map[string]interface{}{"email": "a@b.com"},
				"locale":      tt.locale,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.valid, res.Valid, tt.locale)
		}
	})
}
