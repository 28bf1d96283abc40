package httpapi

import (
	"path/filepath"

	"github.com/gin-gonic/gin"
)

// PagesHandler serves the two HTML entry points: the landing page and the
// chat shell. Visiting /room/:id never creates the room — creation happens
// on join-room over the websocket, so a guessed or stale link costs nothing.
type PagesHandler struct {
	dir string
}

// NewPagesHandler serves pages out of dir (index.html and room.html).
func NewPagesHandler(dir string) *PagesHandler {
	return &PagesHandler{dir: dir}
}

// Landing handles GET /.
func (h *PagesHandler) Landing(c *gin.Context) {
	c.File(filepath.Join(h.dir, "index.html"))
}

// Room handles GET /room/:id. The id is resolved client-side from the URL;
// the same shell is served for every room.
func (h *PagesHandler) Room(c *gin.Context) {
	c.File(filepath.Join(h.dir, "room.html"))
}
