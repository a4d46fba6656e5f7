package api

import (
	"net/http"

	"pulse-server/internal/models"
	"pulse-server/internal/template"

	"github.com/gin-gonic/gin"
)

func (s *Server) createGroup(c *gin.Context) {
	var in template.CreateGroupInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.invalid(c, err)
		return
	}
	g, err := s.deps.Templates.CreateGroup(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

func (s *Server) listGroups(c *gin.Context) {
	var filter template.GroupFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		s.invalid(c, err)
		return
	}
	page, err := s.deps.Templates.ListGroups(c.Request.Context(), filter)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) getGroup(c *gin.Context) {
	id, ok := s.int64Param(c, "id")
	if !ok {
		return
	}
	details, err := s.deps.Templates.GetGroup(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (s *Server) updateGroup(c *gin.Context) {
	id, ok := s.int64Param(c, "id")
	if !ok {
		return
	}
	var in template.UpdateGroupInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.invalid(c, err)
		return
	}
	g, err := s.deps.Templates.UpdateGroup(c.Request.Context(), id, in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (s *Server) deleteGroup(c *gin.Context) {
	id, ok := s.int64Param(c, "id")
	if !ok {
		return
	}
	if err := s.deps.Templates.DeleteGroup(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) variantIDs(c *gin.Context) (int64, int64, bool) {
	groupID, ok := s.int64Param(c, "id")
	if !ok {
		return 0, 0, false
	}
	variantID, ok := s.int64Param(c, "variantId")
	return groupID, variantID, ok
}

func (s *Server) addVariant(c *gin.Context) {
	groupID, ok := s.int64Param(c, "id")
	if !ok {
		return
	}
	var in template.CreateVariantInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.invalid(c, err)
		return
	}
	v, err := s.deps.Templates.AddVariant(c.Request.Context(), groupID, in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

func (s *Server) listVariants(c *gin.Context) {
	groupID, ok := s.int64Param(c, "id")
	if !ok {
		return
	}
	var filter template.VariantFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		s.invalid(c, err)
		return
	}
	page, err := s.deps.Templates.ListVariants(c.Request.Context(), groupID, filter)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) getVariant(c *gin.Context) {
	groupID, variantID, ok := s.variantIDs(c)
	if !ok {
		return
	}
	v, err := s.deps.Templates.GetVariant(c.Request.Context(), groupID, variantID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) updateVariant(c *gin.Context) {
	groupID, variantID, ok := s.variantIDs(c)
	if !ok {
		return
	}
	var in template.UpdateVariantInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.invalid(c, err)
		return
	}
	v, err := s.deps.Templates.UpdateVariant(c.Request.Context(), groupID, variantID, in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) deleteVariant(c *gin.Context) {
	groupID, variantID, ok := s.variantIDs(c)
	if !ok {
		return
	}
	if err := s.deps.Templates.DeleteVariant(c.Request.Context(), groupID, variantID); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listChannels(c *gin.Context) {
	groupID, ok := s.int64Param(c, "id")
	if !ok {
		return
	}
	settings, err := s.deps.Templates.ListChannelSettings(c.Request.Context(), groupID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": settings})
}

func (s *Server) toggleChannel(c *gin.Context) {
	groupID, ok := s.int64Param(c, "id")
	if !ok {
		return
	}
	channel := models.Channel(c.Param("channel"))
	if !channel.Valid() {
		s.invalid(c, nil)
		return
	}
	var in template.ToggleChannelInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.invalid(c, err)
		return
	}
	setting, err := s.deps.Templates.SetChannelEnabled(c.Request.Context(), groupID, channel, *in.IsEnabled)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, setting)
}
