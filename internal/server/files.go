package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 12
	uploadURLTTL    = 5 * time.Minute

	// defaultImageKey is the fixed object every composer can fall back
	// to when no image was uploaded yet.
	defaultImageKey = "default-image.png"
)

// handleFilesList pages through hosted images, newest first.
func (s *Server) handleFilesList(c *gin.Context) {
	page := intQuery(c, "page", 1)
	pageSize := intQuery(c, "pageSize", defaultPageSize)

	listing, err := s.deps.Blobs.List(c.Request.Context(), page, pageSize)
	if err != nil {
		s.failInternal(c, "listing images", err)
		return
	}

	c.JSON(http.StatusOK, listing)
}

// uploadURLRequest asks for a presigned PUT URL for one object.
type uploadURLRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}

// handleUploadURL signs a short-lived direct-upload URL so image bytes
// never pass through this process.
func (s *Server) handleUploadURL(c *gin.Context) {
	var req uploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing filename"})
		return
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	signedURL, err := s.deps.Blobs.SignUploadURL(
		c.Request.Context(), req.Filename, contentType, uploadURLTTL)
	if err != nil {
		s.failInternal(c, "signing upload url", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"signedUrl": signedURL,
		"publicUrl": s.deps.Blobs.PublicURL(req.Filename),
	})
}

// deleteRequest names the object to remove.
type deleteRequest struct {
	Filename string `json:"filename"`
}

// handleFilesDelete removes one hosted object.
func (s *Server) handleFilesDelete(c *gin.Context) {
	var req deleteRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing filename"})
		return
	}

	if err := s.deps.Blobs.Delete(c.Request.Context(), req.Filename); err != nil {
		s.failInternal(c, "deleting file", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleDefaultImage proxies the fallback image bytes from the bucket.
func (s *Server) handleDefaultImage(c *gin.Context) {
	data, err := s.deps.Blobs.Get(c.Request.Context(), defaultImageKey)
	if err != nil {
		s.failInternal(c, "fetching default image", err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "image/png", data)
}

// intQuery parses a positive integer query parameter with a fallback.
func intQuery(c *gin.Context, name string, fallback int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil || v < 1 {
		return fallback
	}
	return v
}
