// Package server exposes the console's HTTP API.
package server

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ezhang/mail-console/internal/autoreply"
	"github.com/ezhang/mail-console/internal/blob"
	"github.com/ezhang/mail-console/internal/mailbox"
	"github.com/ezhang/mail-console/internal/mailer"
	"github.com/ezhang/mail-console/internal/model"
	"github.com/ezhang/mail-console/internal/store"
)

// Checker runs one auto-reply check, typically the scheduler.
type Checker interface {
	Check(ctx context.Context) autoreply.CheckResult
}

// Deps are the collaborators the HTTP handlers delegate to.
type Deps struct {
	Store    store.Store
	Checker  Checker
	Resolver autoreply.Resolver
	Sender   mailer.Sender
	Blobs    blob.Store
	Reader   mailbox.Reader

	Mail       model.MailConfig
	AdminToken string
	Log        *slog.Logger
}

// Server routes API requests to the mail and blob collaborators.
type Server struct {
	deps Deps
}

// New creates a Server with the given collaborators.
func New(deps Deps) *Server {
	return &Server{deps: deps}
}

// Router builds the gin engine with all routes registered. Everything
// under /api requires the admin bearer token; /healthz does not.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api", s.requireToken)

	emails := api.Group("/emails")
	emails.GET("/auto-reply/check", s.handleAutoReplyCheck)
	emails.GET("/auto-reply/get", s.handleAutoReplyGet)
	emails.POST("/auto-reply/save", s.handleAutoReplySave)
	emails.POST("/send", s.handleSend)
	emails.POST("/by-date", s.handleByDate)
	emails.GET("/pending-recipients", s.handlePendingRecipients)

	files := api.Group("/files")
	files.GET("/list", s.handleFilesList)
	files.POST("/upload-url", s.handleUploadURL)
	files.POST("/delete", s.handleFilesDelete)
	files.GET("/default-image", s.handleDefaultImage)

	return r
}

// Run serves the API on the configured address until the listener fails.
func (s *Server) Run(addr string) error {
	return s.Router().Run(addr)
}

// requireToken checks the Authorization bearer token with a
// constant-time compare.
func (s *Server) requireToken(c *gin.Context) {
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.deps.AdminToken)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

// failInternal reports an unexpected failure with the original routes'
// 500 envelope.
func (s *Server) failInternal(c *gin.Context, op string, err error) {
	s.deps.Log.Error("request failed", "op", op, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"status":  "error",
		"message": err.Error(),
	})
}
