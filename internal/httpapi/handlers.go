package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type signInRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type signUpRequest struct {
	FullName string `json:"fullName" binding:"required,min=5"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type scrapeRequest struct {
	URL string `json:"url" binding:"required,url"`
}

type mapRequest struct {
	URL    string `json:"url" binding:"required,url"`
	Search string `json:"search"`
}

type bulkRequest struct {
	URLs []string `json:"urls" binding:"required,min=1,dive,url"`
}

type searchRequest struct {
	Query string `json:"query" binding:"required"`
}

type saveSummaryRequest struct {
	Summary string `json:"summary" binding:"required"`
}

type aiSummaryRequest struct {
	ItemID string `json:"itemId"`
	Prompt string `json:"prompt"`
}

// Auth

func (s *Server) handleSignIn(c *gin.Context) {
	var req signInRequest
	if !bind(c, &req) {
		return
	}
	session, err := s.identity.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.respondError(c, err)
		return
	}
	setSessionCookie(c, session.Token, sessionMaxAge)
	respondOK(c, session)
}

func (s *Server) handleSignUp(c *gin.Context) {
	var req signUpRequest
	if !bind(c, &req) {
		return
	}
	session, err := s.identity.SignUp(c.Request.Context(), req.FullName, req.Email, req.Password)
	if err != nil {
		s.respondError(c, err)
		return
	}
	setSessionCookie(c, session.Token, sessionMaxAge)
	respondOK(c, session)
}

func (s *Server) handleSignOut(c *gin.Context) {
	setSessionCookie(c, "", -1)
	respondOK(c, nil)
}

func setSessionCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, token, maxAge, "/", "", c.Request.TLS != nil, true)
}

// Items

func (s *Server) handleListItems(c *gin.Context) {
	items, err := s.items.ListItems(c.Request.Context(), owner(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, items)
}

func (s *Server) handleGetItem(c *gin.Context) {
	item, err := s.items.GetItem(c.Request.Context(), owner(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, item)
}

func (s *Server) handleScrape(c *gin.Context) {
	var req scrapeRequest
	if !bind(c, &req) {
		return
	}
	item, err := s.items.ImportOne(c.Request.Context(), req.URL, owner(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, item)
}

func (s *Server) handleMap(c *gin.Context) {
	var req mapRequest
	if !bind(c, &req) {
		return
	}
	links, err := s.items.DiscoverURLs(c.Request.Context(), req.URL, req.Search)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, links)
}

// handleBulkScrape streams one NDJSON Progress line per URL.
func (s *Server) handleBulkScrape(c *gin.Context) {
	var req bulkRequest
	if !bind(c, &req) {
		return
	}
	seq, err := s.items.BulkImport(c.Request.Context(), req.URLs, owner(c))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	enc := json.NewEncoder(c.Writer)
	for p := range seq {
		if err := enc.Encode(p); err != nil {
			s.log.WithError(err).WithField("user_id", owner(c)).Warn("Client went away during bulk import")
			return
		}
		c.Writer.Flush()
	}
}

func (s *Server) handleSaveSummary(c *gin.Context) {
	var req saveSummaryRequest
	if !bind(c, &req) {
		return
	}
	item, err := s.items.SaveSummary(c.Request.Context(), owner(c), c.Param("id"), req.Summary)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, item)
}

// Search and AI

func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if !bind(c, &req) {
		return
	}
	results, err := s.items.Search(c.Request.Context(), req.Query)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, results)
}

// handleAISummary streams the generated summary as plain text.
func (s *Server) handleAISummary(c *gin.Context) {
	var req aiSummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ItemID) == "" || strings.TrimSpace(req.Prompt) == "" {
		abortWithError(c, http.StatusBadRequest, "Missing prompt or itemId")
		return
	}

	stream, err := s.items.StreamSummary(c.Request.Context(), owner(c), req.ItemID, req.Prompt)
	if err != nil {
		s.respondError(c, err)
		return
	}
	defer stream.Close()

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	buf := make([]byte, 4096)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			if _, werr := c.Writer.Write(buf[:n]); werr != nil {
				return
			}
			c.Writer.Flush()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.WithError(err).WithFields(logrus.Fields{
					"user_id": owner(c),
					"item_id": req.ItemID,
				}).Warn("Summary stream ended early")
			}
			return
		}
	}
}
