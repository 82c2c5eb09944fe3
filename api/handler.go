package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"cineshorts/cache"
	"cineshorts/config"
	"cineshorts/scene"
	"cineshorts/storage"
	"cineshorts/task"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	manager *task.Manager
	store   *storage.Store
	results *cache.ResultCache
	thumbs  *cache.ThumbCache
	cfg     *config.Config
}

func NewHandler(tm *task.Manager, store *storage.Store, results *cache.ResultCache, thumbs *cache.ThumbCache, cfg *config.Config) *Handler {
	return &Handler{
		manager: tm,
		store:   store,
		results: results,
		thumbs:  thumbs,
		cfg:     cfg,
	}
}

// resultResponse wraps a stored analysis result with the cache-hit flag. The
// embedded Result serializes inline, so the body stays byte-for-byte the
// cached artifact plus one flag.
type resultResponse struct {
	FromCache bool `json:"from_cache"`
	*scene.Result
}

// handleUpload stores one multipart video upload under its original filename.
func (h *Handler) handleUpload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("missing file field: %v", err)})
		return
	}
	defer file.Close()

	written, err := h.store.Save(header.Filename, file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "ok",
		"filename": header.Filename,
		"size_mb":  float64(written) / (1 << 20),
	})
}

func (h *Handler) handleListUploads(c *gin.Context) {
	names, err := h.store.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, names)
}

// handleDelete removes an upload and its cached analysis result.
func (h *Handler) handleDelete(c *gin.Context) {
	filename := c.Param("filename")
	if err := h.store.Delete(filename); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.results.Remove(filename)

	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("File %s deleted", filename)})
}

func parseForce(c *gin.Context) bool {
	force, _ := strconv.ParseBool(c.Query("force"))
	return force
}

// handleProcess runs the analysis inline and returns the result directly.
// Meant for small inputs where live progress is not needed.
func (h *Handler) handleProcess(c *gin.Context) {
	filename := c.Query("filename")
	if filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "filename required"})
		return
	}

	res, fromCache, err := h.manager.ProcessSync(c.Request.Context(), filename, parseForce(c))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resultResponse{FromCache: fromCache, Result: res})
}

// handleProcessAsync submits a background analysis job. A cache hit returns
// the already-terminal task snapshot; otherwise the client gets a task id to
// follow over the progress stream.
func (h *Handler) handleProcessAsync(c *gin.Context) {
	filename := c.Query("filename")
	if filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "filename required"})
		return
	}

	t, err := h.manager.Submit(filename, parseForce(c))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if t.Status.Terminal() {
		c.JSON(http.StatusOK, t)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": t.ID, "status": "processing_started"})
}

// handleScenes returns the cached result for a file, or an explicit empty
// response. It never fabricates partial data.
func (h *Handler) handleScenes(c *gin.Context) {
	filename := c.Param("filename")

	res, ok := h.results.Get(filename)
	if !ok {
		c.JSON(http.StatusOK, gin.H{
			"from_cache":  false,
			"scene_count": 0,
			"scenes":      []scene.Scene{},
		})
		return
	}
	c.JSON(http.StatusOK, resultResponse{FromCache: true, Result: res})
}

// handleThumbnail serves a still frame at ?t= seconds, extracting and caching
// it on first request.
func (h *Handler) handleThumbnail(c *gin.Context) {
	filename := c.Param("filename")
	ts, err := strconv.ParseFloat(c.DefaultQuery("t", "0"), 64)
	if err != nil || ts < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid timestamp"})
		return
	}

	path, err := h.store.Path(filename)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}

	data, err := h.thumbs.GetOrCreate(c.Request.Context(), path, filename, ts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}
