package api

import (
	"net/http"

	"pulse-server/internal/models"
	"pulse-server/internal/routing"

	"github.com/gin-gonic/gin"
)

func (s *Server) createRule(c *gin.Context) {
	var in routing.CreateRuleInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.invalid(c, err)
		return
	}
	rule, err := s.deps.Rules.Create(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (s *Server) listRules(c *gin.Context) {
	var filter routing.RuleFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		s.invalid(c, err)
		return
	}
	page, err := s.deps.Rules.List(c.Request.Context(), filter)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

type resolveQuery struct {
	Service     string             `form:"service" binding:"omitempty,max=100"`
	Region      string             `form:"region" binding:"omitempty,region"`
	MessageType models.MessageType `form:"messageType" binding:"omitempty,message_type"`
}

// resolveRoute runs the same resolution the executor uses, for diagnostics.
func (s *Server) resolveRoute(c *gin.Context) {
	var q resolveQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.invalid(c, err)
		return
	}
	route, err := s.deps.Resolver.Resolve(c.Request.Context(), routing.Scope{
		Service:     q.Service,
		Region:      q.Region,
		MessageType: q.MessageType,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, route)
}

func (s *Server) getRule(c *gin.Context) {
	id, ok := s.int64Param(c, "id")
	if !ok {
		return
	}
	route, err := s.deps.Rules.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, route)
}

func (s *Server) updateRule(c *gin.Context) {
	id, ok := s.int64Param(c, "id")
	if !ok {
		return
	}
	var in routing.UpdateRuleInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.invalid(c, err)
		return
	}
	rule, err := s.deps.Rules.Update(c.Request.Context(), id, in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (s *Server) deleteRule(c *gin.Context) {
	id, ok := s.int64Param(c, "id")
	if !ok {
		return
	}
	if err := s.deps.Rules.Delete(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
