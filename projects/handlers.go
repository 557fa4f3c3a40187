package projects

import (
	"net/http"

	"github.com/drewmudry/remixengine-api/models"
	"github.com/drewmudry/remixengine-api/store"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handler struct {
	Store  *store.Store
	Logger *zap.Logger
}

func NewHandler(s *store.Store, logger *zap.Logger) *Handler {
	return &Handler{Store: s, Logger: logger}
}

func (h *Handler) Register(rg *gin.RouterGroup) {
	r := rg.Group("/projects")
	{
		r.POST("", h.CreateProject)
		r.GET("", h.ListProjects)
		r.GET("/:id/videos", h.GetProjectVideos)
	}
}

type CreateProjectRequest struct {
	Name        string `json:"name" binding:"required,max=255"`
	Description string `json:"description"`
}

func (h *Handler) CreateProject(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	project := models.Project{
		Name:        req.Name,
		Description: req.Description,
	}
	if err := h.Store.CreateProject(c.Request.Context(), &project); err != nil {
		h.Logger.Error("create project failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create project"})
		return
	}

	c.JSON(http.StatusCreated, project)
}

func (h *Handler) ListProjects(c *gin.Context) {
	projects, err := h.Store.ListProjects(c.Request.Context())
	if err != nil {
		h.Logger.Error("list projects failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve projects"})
		return
	}

	c.JSON(http.StatusOK, projects)
}

// GetProjectVideos lists a project's videos. ?status= filters on the scrape stage.
func (h *Handler) GetProjectVideos(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := c.Param("id")

	// First, verify the project exists
	if _, err := h.Store.GetProject(ctx, projectID); err != nil {
		if store.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		}
		return
	}

	status := models.StageStatus(c.Query("status"))
	switch status {
	case "", models.StagePending, models.StageProcessing, models.StageComplete, models.StageError:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status filter"})
		return
	}

	videos, err := h.Store.ListVideos(ctx, projectID, status)
	if err != nil {
		h.Logger.Error("list videos failed", zap.String("project_id", projectID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve videos"})
		return
	}

	c.JSON(http.StatusOK, videos)
}
