package api

import (
	"net/http"

	"pulse-server/internal/sender"

	"github.com/gin-gonic/gin"
)

func (s *Server) createProfile(c *gin.Context) {
	var in sender.CreateProfileInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.invalid(c, err)
		return
	}
	p, err := s.deps.Senders.CreateProfile(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Server) listProfiles(c *gin.Context) {
	var filter sender.ProfileFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		s.invalid(c, err)
		return
	}
	page, err := s.deps.Senders.ListProfiles(c.Request.Context(), filter)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) getProfile(c *gin.Context) {
	id, ok := s.int64Param(c, "id")
	if !ok {
		return
	}
	p, err := s.deps.Senders.GetProfile(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) updateProfile(c *gin.Context) {
	id, ok := s.int64Param(c, "id")
	if !ok {
		return
	}
	var in sender.UpdateProfileInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.invalid(c, err)
		return
	}
	p, err := s.deps.Senders.UpdateProfile(c.Request.Context(), id, in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) deleteProfile(c *gin.Context) {
	id, ok := s.int64Param(c, "id")
	if !ok {
		return
	}
	if err := s.deps.Senders.DeleteProfile(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) endpointIDs(c *gin.Context) (int64, int64, bool) {
	profileID, ok := s.int64Param(c, "id")
	if !ok {
		return 0, 0, false
	}
	endpointID, ok := s.int64Param(c, "endpointId")
	return profileID, endpointID, ok
}

func (s *Server) createEndpoint(c *gin.Context) {
	profileID, ok := s.int64Param(c, "id")
	if !ok {
		return
	}
	var in sender.CreateEndpointInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.invalid(c, err)
		return
	}
	ep, err := s.deps.Senders.CreateEndpoint(c.Request.Context(), profileID, in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, ep)
}

func (s *Server) listEndpoints(c *gin.Context) {
	profileID, ok := s.int64Param(c, "id")
	if !ok {
		return
	}
	var filter sender.EndpointFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		s.invalid(c, err)
		return
	}
	page, err := s.deps.Senders.ListEndpoints(c.Request.Context(), profileID, filter)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) getEndpoint(c *gin.Context) {
	profileID, endpointID, ok := s.endpointIDs(c)
	if !ok {
		return
	}
	ep, err := s.deps.Senders.GetEndpoint(c.Request.Context(), profileID, endpointID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ep)
}

func (s *Server) updateEndpoint(c *gin.Context) {
	profileID, endpointID, ok := s.endpointIDs(c)
	if !ok {
		return
	}
	var in sender.UpdateEndpointInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.invalid(c, err)
		return
	}
	ep, err := s.deps.Senders.UpdateEndpoint(c.Request.Context(), profileID, endpointID, in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ep)
}

func (s *Server) deleteEndpoint(c *gin.Context) {
	profileID, endpointID, ok := s.endpointIDs(c)
	if !ok {
		return
	}
	if err := s.deps.Senders.DeleteEndpoint(c.Request.Context(), profileID, endpointID); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
