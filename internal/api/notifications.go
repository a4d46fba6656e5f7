package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"pulse-server/internal/audit"
	"pulse-server/internal/common/validation"
	"pulse-server/internal/notification"

	"github.com/gin-gonic/gin"
)

const maxSendBody = 1 << 20

func (s *Server) sendNotification(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSendBody))
	if err != nil {
		s.invalid(c, err)
		return
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.invalid(c, err)
		return
	}
	result, err := validation.SendRequestSchema.Validate(doc)
	if err != nil {
		s.invalid(c, err)
		return
	}
	if !result.Valid {
		s.invalid(c, result)
		return
	}

	var req notification.SendRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		s.invalid(c, err)
		return
	}
	resp, err := s.deps.Notifier.Send(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) listMessages(c *gin.Context) {
	var filter notification.MessageFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		s.invalid(c, err)
		return
	}
	page, err := s.deps.Messages.ListMessages(c.Request.Context(), filter)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) stats(c *gin.Context) {
	day := time.Now().UTC()
	if d := c.Query("date"); d != "" {
		parsed, err := time.Parse("2006-01-02", d)
		if err != nil {
			s.invalid(c, err)
			return
		}
		day = parsed
	}
	stats, err := s.deps.Messages.Stats(c.Request.Context(), day)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) getJob(c *gin.Context) {
	job, err := s.deps.Jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) jobEvents(c *gin.Context) {
	var q audit.EventQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.invalid(c, err)
		return
	}
	q.JobID = c.Param("id")
	page, err := s.deps.Events.Search(c.Request.Context(), q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}
