// Package api exposes the notification engine and its configuration over
// HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"pulse-server/internal/audit"
	"pulse-server/internal/common/logger"
	"pulse-server/internal/models"
	"pulse-server/internal/notification"
	"pulse-server/internal/routing"
	"pulse-server/internal/sender"
	"pulse-server/internal/template"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Notifier interface {
	Send(ctx context.Context, req notification.SendRequest) (*notification.SendResponse, error)
}

type MessageReader interface {
	ListMessages(ctx context.Context, filter notification.MessageFilter) (models.Page[models.MessageListing], error)
	Stats(ctx context.Context, day time.Time) (*models.DailyStats, error)
}

type JobReader interface {
	Get(ctx context.Context, id string) (*models.NotificationJob, error)
}

type EventSearcher interface {
	Search(ctx context.Context, q audit.EventQuery) (*audit.EventPage, error)
}

type Senders interface {
	CreateProfile(ctx context.Context, in sender.CreateProfileInput) (*models.SenderProfile, error)
	ListProfiles(ctx context.Context, filter sender.ProfileFilter) (models.Page[models.SenderProfile], error)
	GetProfile(ctx context.Context, id int64) (*models.SenderProfile, error)
	UpdateProfile(ctx context.Context, id int64, in sender.UpdateProfileInput) (*models.SenderProfile, error)
	DeleteProfile(ctx context.Context, id int64) error

	CreateEndpoint(ctx context.Context, profileID int64, in sender.CreateEndpointInput) (*models.SenderEndpoint, error)
	ListEndpoints(ctx context.Context, profileID int64, filter sender.EndpointFilter) (models.Page[models.SenderEndpoint], error)
	GetEndpoint(ctx context.Context, profileID, endpointID int64) (*models.SenderEndpoint, error)
	UpdateEndpoint(ctx context.Context, profileID, endpointID int64, in sender.UpdateEndpointInput) (*models.SenderEndpoint, error)
	DeleteEndpoint(ctx context.Context, profileID, endpointID int64) error
}

type Rules interface {
	Create(ctx context.Context, in routing.CreateRuleInput) (*models.RoutingRule, error)
	List(ctx context.Context, filter routing.RuleFilter) (models.Page[models.RoutingRule], error)
	Get(ctx context.Context, id int64) (*models.ResolvedRoute, error)
	Update(ctx context.Context, id int64, in routing.UpdateRuleInput) (*models.RoutingRule, error)
	Delete(ctx context.Context, id int64) error
}

type RouteResolver interface {
	Resolve(ctx context.Context, scope routing.Scope) (*models.ResolvedRoute, error)
}

type Templates interface {
	CreateGroup(ctx context.Context, in template.CreateGroupInput) (*models.TemplateGroup, error)
	ListGroups(ctx context.Context, filter template.GroupFilter) (models.Page[models.TemplateGroup], error)
	GetGroup(ctx context.Context, id int64) (*models.TemplateDetails, error)
	UpdateGroup(ctx context.Context, id int64, in template.UpdateGroupInput) (*models.TemplateGroup, error)
	DeleteGroup(ctx context.Context, id int64) error

	AddVariant(ctx context.Context, groupID int64, in template.CreateVariantInput) (*models.TemplateVariant, error)
	ListVariants(ctx context.Context, groupID int64, filter template.VariantFilter) (models.Page[models.TemplateVariant], error)
	GetVariant(ctx context.Context, groupID, variantID int64) (*models.TemplateVariant, error)
	UpdateVariant(ctx context.Context, groupID, variantID int64, in template.UpdateVariantInput) (*models.TemplateVariant, error)
	DeleteVariant(ctx context.Context, groupID, variantID int64) error

	ListChannelSettings(ctx context.Context, groupID int64) ([]models.ChannelSetting, error)
	SetChannelEnabled(ctx context.Context, groupID int64, channel models.Channel, enabled bool) (*models.ChannelSetting, error)
}

// Check is a named readiness probe.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type Deps struct {
	Notifier  Notifier
	Messages  MessageReader
	Jobs      JobReader
	Events    EventSearcher
	Senders   Senders
	Rules     Rules
	Resolver  RouteResolver
	Templates Templates
	Checks    []Check
	Version   string
}

type Server struct {
	deps Deps
	log  logger.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(deps Deps, log logger.Logger) *gin.Engine {
	RegisterValidators()

	s := &Server{deps: deps, log: log.WithFields(map[string]interface{}{"component": "api"})}

	router := gin.New()
	router.Use(s.recovery(), s.requestLogger())
	router.HandleMethodNotAllowed = true
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorBody{Code: "NOT_FOUND", Message: "Route not found"})
	})

	router.GET("/health", s.health)
	router.GET("/ready", s.ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		n := v1.Group("/notifications")
		n.POST("", s.sendNotification)
		n.GET("/messages", s.listMessages)
		n.GET("/stats", s.stats)
		n.GET("/jobs/:id", s.getJob)
		n.GET("/jobs/:id/events", s.jobEvents)
	}
	{
		p := v1.Group("/sender-profiles")
		p.POST("", s.createProfile)
		p.GET("", s.listProfiles)
		p.GET("/:id", s.getProfile)
		p.PATCH("/:id", s.updateProfile)
		p.DELETE("/:id", s.deleteProfile)
		p.POST("/:id/endpoints", s.createEndpoint)
		p.GET("/:id/endpoints", s.listEndpoints)
		p.GET("/:id/endpoints/:endpointId", s.getEndpoint)
		p.PATCH("/:id/endpoints/:endpointId", s.updateEndpoint)
		p.DELETE("/:id/endpoints/:endpointId", s.deleteEndpoint)
	}
	{
		r := v1.Group("/routing-rules")
		r.POST("", s.createRule)
		r.GET("", s.listRules)
		r.GET("/resolve", s.resolveRoute)
		r.GET("/:id", s.getRule)
		r.PATCH("/:id", s.updateRule)
		r.DELETE("/:id", s.deleteRule)
	}
	{
		t := v1.Group("/templates")
		t.POST("", s.createGroup)
		t.GET("", s.listGroups)
		t.GET("/:id", s.getGroup)
		t.PATCH("/:id", s.updateGroup)
		t.DELETE("/:id", s.deleteGroup)
		t.POST("/:id/variants", s.addVariant)
		t.GET("/:id/variants", s.listVariants)
		t.GET("/:id/variants/:variantId", s.getVariant)
		t.PATCH("/:id/variants/:variantId", s.updateVariant)
		t.DELETE("/:id/variants/:variantId", s.deleteVariant)
		t.GET("/:id/channels", s.listChannels)
		t.PATCH("/:id/channels/:channel", s.toggleChannel)
	}

	return router
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"version": s.deps.Version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	status := http.StatusOK
	for _, check := range s.deps.Checks {
		if err := check.Ping(ctx); err != nil {
			checks[check.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[check.Name] = "ok"
	}
	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks})
}
