package errors

import (
	stderrors "errors"

	"github.com/lib/pq"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// constraintErrors maps Postgres constraint names from the migrations to the
// domain error they represent.
var constraintErrors = map[string]ErrorCode{
	"template_groups_template_key_key":                 ErrCodeTemplateGroupExists,
	"template_variants_template_group_id_fkey":         ErrCodeTemplateGroupNotFound,
	"template_variants_group_channel_locale_key":       ErrCodeTemplateVariantExists,
	"template_channel_settings_template_group_id_fkey": ErrCodeTemplateGroupNotFound,
	"sender_profiles_key_key":                          ErrCodeProfileExists,
	"sender_endpoints_sender_profile_id_fkey":          ErrCodeProfileNotFound,
	"sender_endpoints_channel_provider_identifier_key": ErrCodeEndpointExists,
	"sender_routing_rules_sender_profile_id_fkey":      ErrCodeProfileInUse,
	"sender_routing_rules_scope_key":                   ErrCodeDuplicateRule,
	"notification_jobs_template_group_id_fkey":         ErrCodeTemplateGroupNotFound,
}

// TranslateConstraint converts unique and foreign-key violations into domain
// errors. Any other error is returned unchanged.
func TranslateConstraint(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) {
		return err
	}
	if pqErr.Code != pqUniqueViolation && pqErr.Code != pqForeignKeyViolation {
		return err
	}
	code, ok := constraintErrors[pqErr.Constraint]
	if !ok {
		return err
	}
	return NewWithDetails(code, pqErr.Detail)
}

// FromDB translates constraint violations and wraps any other driver error as
// DATABASE_ERROR. Errors that already carry a code pass through.
func FromDB(operation string, err error) error {
	if err == nil {
		return nil
	}
	if CodeOf(err) != "" {
		return err
	}
	if translated := TranslateConstraint(err); translated != err {
		return translated
	}
	return NewDatabaseError(operation, err)
}
