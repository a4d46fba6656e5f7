package routing

import (
	"context"
	"database/sql"

	"pulse-server/internal/common/errors"
	"pulse-server/internal/common/logger"
	"pulse-server/internal/models"
)

// Scope is the lookup key for a resolution. Empty fields are absent.
type Scope struct {
	Service     string
	Region      string
	MessageType models.MessageType
}

// Resolver picks the routing rule for a scope, most specific tier first:
// (service, region, type), (service, region), (service), then the default.
type Resolver struct {
	db    *sql.DB
	log   logger.Logger
	cache *Cache
}

// NewResolver builds a resolver. A nil cache disables caching.
func NewResolver(db *sql.DB, log logger.Logger, cache *Cache) *Resolver {
	return &Resolver{
		db:    db,
		log:   log.WithFields(map[string]interface{}{"component": "routing"}),
		cache: cache,
	}
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func (r *Resolver) Resolve(ctx context.Context, scope Scope) (*models.ResolvedRoute, error) {
	if route, ok := r.cache.Get(ctx, scope); ok {
		return route, nil
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+routeColumns+` FROM sender_routing_rules r
		 JOIN sender_profiles p ON p.id = r.sender_profile_id
		 WHERE (r.service IS NULL OR r.service = $1)
		   AND (r.region IS NULL OR r.region = $2)
		   AND (r.message_type IS NULL OR r.message_type = $3)`,
		nullable(scope.Service), nullable(scope.Region), nullable(string(scope.MessageType)),
	)
	if err != nil {
		return nil, errors.NewDatabaseError("resolve routing", err)
	}
	defer rows.Close()

	var candidates []models.ResolvedRoute
	for rows.Next() {
		route, err := scanRoute(rows)
		if err != nil {
			return nil, errors.NewDatabaseError("scan routing candidate", err)
		}
		candidates = append(candidates, *route)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("resolve routing", err)
	}

	route := pickRule(candidates, scope)
	if route == nil {
		r.log.Error("No routing rule matched and no default rule exists", map[string]interface{}{
			"service": scope.Service, "region": scope.Region, "messageType": scope.MessageType,
		})
		return nil, errors.New(errors.ErrCodeRoutingNotFound)
	}

	r.cache.Set(ctx, scope, route)
	return route, nil
}

func eq(field *string, want string) bool {
	if want == "" {
		return field == nil
	}
	return field != nil && *field == want
}

func eqType(field *models.MessageType, want models.MessageType) bool {
	if want == "" {
		return field == nil
	}
	return field != nil && *field == want
}

// pickRule walks the tiers in order. A tier that needs an absent input is
// skipped, so a rule scoped to a region is never matched without a service.
func pickRule(candidates []models.ResolvedRoute, scope Scope) *models.ResolvedRoute {
	type tier struct {
		usable          bool
		service, region string
		messageType     models.MessageType
	}
	tiers := []tier{
		{scope.Service != "" && scope.Region != "" && scope.MessageType != "", scope.Service, scope.Region, scope.MessageType},
		{scope.Service != "" && scope.Region != "", scope.Service, scope.Region, ""},
		{scope.Service != "", scope.Service, "", ""},
		{true, "", "", ""},
	}

	for _, t := range tiers {
		if !t.usable {
			continue
		}
		for i := range candidates {
			rule := candidates[i].Rule
			if eq(rule.Service, t.service) && eq(rule.Region, t.region) && eqType(rule.MessageType, t.messageType) {
				return &candidates[i]
			}
		}
	}
	return nil
}
