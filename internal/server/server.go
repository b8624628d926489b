// Package server exposes the enforcement core over HTTP/JSON. It is a
// thin delivery layer: all validation and authorization live in the
// service. Caller identity is taken from the X-Caller-Subject header,
// which the authenticating reverse proxy in front of this service is
// trusted to set.
package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"recgate/internal/gate"
)

// SubjectHeader carries the authenticated caller identity.
const SubjectHeader = "X-Caller-Subject"

// Server wires the gate.Service into a gin router.
type Server struct {
	service *gate.Service
	logger  gate.Logger
}

// New creates a Server over the given service.
func New(service *gate.Service, logger gate.Logger) *Server {
	return &Server{service: service, logger: logger}
}

// Router builds the HTTP route table.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/v1/healthz", s.healthz)

	v1 := r.Group("/v1")
	v1.POST("/records", s.createRecord)
	v1.GET("/records", s.listOwnedRecords)
	v1.GET("/records/:id", s.getRecord)
	v1.GET("/records/:id/data", s.readRecord)
	v1.PUT("/records/:id/grants/:subject", s.grantAccess)
	v1.DELETE("/records/:id/grants/:subject", s.revokeAccess)
	v1.GET("/records/:id/audit", s.listAccessLog)

	return r
}

// Run starts the HTTP server on addr and blocks.
func (s *Server) Run(addr string) error {
	s.logger.Info("http server listening", "addr", addr)
	return s.Router().Run(addr)
}

// caller extracts the authenticated subject from the request. Writes a
// 401 and returns false when the header is absent.
func (s *Server) caller(c *gin.Context) (gate.Subject, bool) {
	subject := c.GetHeader(SubjectHeader)
	if subject == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing " + SubjectHeader + " header"})
		return "", false
	}
	return gate.Subject(subject), true
}

// recordID parses the :id path parameter. Writes a 400 and returns
// false when it is not an unsigned integer.
func (s *Server) recordID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
		return 0, false
	}
	return id, true
}

// writeError maps core error kinds onto HTTP statuses.
func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gate.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, gate.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, gate.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		s.logger.Error("request failed", "path", c.FullPath(), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) createRecord(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}

	var input struct {
		DataHash string `json:"data_hash" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := s.service.CreateRecord(caller, input.DataHash)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) listOwnedRecords(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}

	ids, err := s.service.ListOwnedRecords(caller)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ids": ids})
}

func (s *Server) getRecord(c *gin.Context) {
	if _, ok := s.caller(c); !ok {
		return
	}
	id, ok := s.recordID(c)
	if !ok {
		return
	}

	rec, err := s.service.GetRecord(id)
	if err != nil {
		s.writeError(c, err)
		return
	}

	// Metadata only: the data hash is disclosed through the audited
	// read path, never here.
	c.JSON(http.StatusOK, gin.H{
		"id":         rec.ID,
		"owner":      rec.Owner,
		"created_at": rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) readRecord(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}
	id, ok := s.recordID(c)
	if !ok {
		return
	}

	dataHash, err := s.service.ReadRecord(caller, id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "data_hash": dataHash})
}

func (s *Server) grantAccess(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}
	id, ok := s.recordID(c)
	if !ok {
		return
	}

	if err := s.service.GrantAccess(caller, id, gate.Subject(c.Param("subject"))); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) revokeAccess(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}
	id, ok := s.recordID(c)
	if !ok {
		return
	}

	if err := s.service.RevokeAccess(caller, id, gate.Subject(c.Param("subject"))); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listAccessLog(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}
	id, ok := s.recordID(c)
	if !ok {
		return
	}

	// Viewing a record's audit trail is subject to the same
	// eligibility rule as reading the record itself.
	if err := s.service.Authorize(caller, id); err != nil {
		s.writeError(c, err)
		return
	}

	entries, err := s.service.ListAccessLog(id)
	if err != nil {
		s.writeError(c, err)
		return
	}

	out := make([]gin.H, len(entries))
	for i, e := range entries {
		out[i] = gin.H{
			"seq":         e.Seq,
			"record_id":   e.RecordID,
			"accessed_by": e.AccessedBy,
			"accessed_at": e.AccessedAt.UTC().Format(time.RFC3339Nano),
		}
	}
	c.JSON(http.StatusOK, gin.H{"entries": out})
}
