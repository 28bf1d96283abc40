package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zkroom/relay/internal/v1/logging"
)

// UploadHandler serves the file/voice-note upload endpoint. The relay never
// inspects ciphertext content; it only enforces a size cap and writes the
// blob to disk under a name the client can round-trip back through
// send-message/voice-message's fileData field.
type UploadHandler struct {
	dir     string
	maxSize int64
}

func NewUploadHandler(dir string, maxSize int64) *UploadHandler {
	return &UploadHandler{dir: dir, maxSize: maxSize}
}

// Upload handles POST /api/upload. Stored filenames are
// {unix-ms}-{uuid}{ext}, so repeated uploads of the same original filename
// never collide and sort chronologically on disk.
func (h *UploadHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxSize)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field is required"})
		return
	}
	defer file.Close()

	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		logging.Error(c.Request.Context(), "failed to create upload dir", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload storage unavailable"})
		return
	}

	ext := filepath.Ext(header.Filename)
	name := fmt.Sprintf("%d-%s%s", time.Now().UnixMilli(), uuid.NewString(), ext)
	dst, err := os.Create(filepath.Join(h.dir, name))
	if err != nil {
		logging.Error(c.Request.Context(), "failed to create upload file", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload storage unavailable"})
		return
	}
	defer dst.Close()

	written, err := io.Copy(dst, file)
	if err != nil {
		_ = os.Remove(filepath.Join(h.dir, name))
		if strings.Contains(err.Error(), "http: request body too large") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file exceeds maximum upload size"})
			return
		}
		logging.Error(c.Request.Context(), "failed to write upload file", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":      true,
		"filename":     name,
		"originalName": header.Filename,
		"size":         written,
		"mimetype":     header.Header.Get("Content-Type"),
		"url":          "/uploads/" + name,
	})
}

// Serve handles GET /uploads/:name, streaming a previously uploaded file
// back by its stored name. filepath.Base strips any path traversal attempt
// before joining against the upload directory.
func (h *UploadHandler) Serve(c *gin.Context) {
	name := filepath.Base(c.Param("name"))
	c.File(filepath.Join(h.dir, name))
}
