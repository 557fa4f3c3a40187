package remix

import (
	"errors"
	"net/http"

	"github.com/drewmudry/remixengine-api/models"
	"github.com/drewmudry/remixengine-api/store"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handler struct {
	Service *Service
	Logger  *zap.Logger
}

func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	return &Handler{Service: svc, Logger: logger}
}

// Register mounts the remix routes on an /api/remix-engine group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	r := rg.Group("/remix")
	{
		r.POST("/title", h.EnqueueTitle)
		r.POST("/thumbnail", h.EnqueueThumbnails)
		r.POST("/script", h.EnqueueScript)
		r.POST("/batch", h.EnqueueBatch)
		r.POST("/select", h.Select)
		r.PATCH("/select", h.EditScene)
	}
	rg.POST("/videos/:videoId/approve", h.Approve)
}

type VideoRequest struct {
	VideoID string `json:"videoId" binding:"required"`
}

type ThumbnailRequest struct {
	VideoID             string                `json:"videoId" binding:"required"`
	Style               models.ThumbnailStyle `json:"style"`
	StylePromptOverride string                `json:"stylePromptOverride" binding:"max=500"`
}

type BatchRequest struct {
	ProjectID string `json:"projectId" binding:"required"`
}

type SelectRequest struct {
	VideoID    string         `json:"videoId" binding:"required"`
	Type       models.Variant `json:"type" binding:"required,oneof=title thumbnail script"`
	ID         string         `json:"id" binding:"required"`
	EditedText *string        `json:"editedText"`
}

type EditSceneRequest struct {
	SceneID      string `json:"sceneId" binding:"required"`
	DialogueLine string `json:"dialogueLine" binding:"required"`
}

func (h *Handler) EnqueueTitle(c *gin.Context) {
	var req VideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.Service.EnqueueTitle(c.Request.Context(), req.VideoID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_ids": []string{job.ID}, "jobs": []*models.Job{job}})
}

func (h *Handler) EnqueueThumbnails(c *gin.Context) {
	var req ThumbnailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	jobs, err := h.Service.EnqueueThumbnails(c.Request.Context(), req.VideoID, req.Style, req.StylePromptOverride)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_ids": jobIDs(jobs), "jobs": jobs})
}

func (h *Handler) EnqueueScript(c *gin.Context) {
	var req VideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.Service.EnqueueScript(c.Request.Context(), req.VideoID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_ids": []string{job.ID}, "jobs": []*models.Job{job}})
}

func (h *Handler) EnqueueBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.Service.EnqueueBatch(c.Request.Context(), req.ProjectID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"videos":  result.Videos,
		"job_ids": jobIDs(result.Jobs),
		"jobs":    result.Jobs,
	})
}

func (h *Handler) Select(c *gin.Context) {
	var req SelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Service.Select(c.Request.Context(), req.VideoID, req.Type, req.ID, req.EditedText); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) EditScene(c *gin.Context) {
	var req EditSceneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	scene, err := h.Service.EditScene(c.Request.Context(), req.SceneID, req.DialogueLine)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, scene)
}

func (h *Handler) Approve(c *gin.Context) {
	readiness, err := h.Service.Approve(c.Request.Context(), c.Param("videoId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"approved": true, "readiness": readiness})
}

// writeError maps domain errors to status codes.
func (h *Handler) writeError(c *gin.Context, err error) {
	var approval *store.ApprovalError
	switch {
	case errors.As(err, &approval):
		missing := make([]string, len(approval.Missing))
		messages := make([]string, len(approval.Missing))
		for i, m := range approval.Missing {
			missing[i] = string(m)
			messages[i] = m.Message()
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":    "Video is not ready for approval",
			"missing":  missing,
			"messages": messages,
		})
	case store.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrArtifactNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrStageLocked):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNoTranscript):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Video has no transcript. Scrape a video with captions first."})
	case errors.Is(err, ErrInvalidStyle), errors.Is(err, store.ErrEmptyDialogue):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrEnqueueFailed):
		h.Logger.Error("enqueue failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to enqueue job"})
	default:
		h.Logger.Error("remix request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func jobIDs(jobs []*models.Job) []string {
	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	return ids
}
