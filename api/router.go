package api

import (
	"cineshorts/cache"
	"cineshorts/config"
	"cineshorts/storage"
	"cineshorts/task"

	"github.com/gin-gonic/gin"
)

func SetupRouter(tm *task.Manager, store *storage.Store, results *cache.ResultCache, thumbs *cache.ThumbCache, cfg *config.Config) *gin.Engine {
	r := gin.Default()
	r.Use(CORSMiddleware(cfg))
	h := NewHandler(tm, store, results, thumbs, cfg)

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	authed := r.Group("/")
	authed.Use(AuthMiddleware(cfg))
	{
		// Upload store
		authed.POST("/upload/", h.handleUpload)
		authed.GET("/uploads/list", h.handleListUploads)
		authed.DELETE("/delete/:filename", h.handleDelete)

		// Analysis: sync, async + live progress
		authed.POST("/process", h.handleProcess)
		authed.POST("/process-async", h.handleProcessAsync)
		authed.GET("/ws/progress/:taskId", h.handleProgress)

		// Cached results and thumbnails
		authed.GET("/scenes/:filename", h.handleScenes)
		authed.GET("/thumbnail/:filename", h.handleThumbnail)
	}
	return r
}
