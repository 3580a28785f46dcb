package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/http/response"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/dbctx"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/logger"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/services"
)

type ProjectHandler struct {
	log      *logger.Logger
	projects services.ProjectService
}

func NewProjectHandler(log *logger.Logger, projects services.ProjectService) *ProjectHandler {
	return &ProjectHandler{log: log.With("handler", "ProjectHandler"), projects: projects}
}

// POST /api/projects
func (h *ProjectHandler) Create(c *gin.Context) {
	rd, ok := identity(c)
	if !ok {
		return
	}
	var body struct {
		Name string `json:"name"`
		Kind string `json:"kind"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	project, stages, err := h.projects.CreateProject(dbctx.Context{Ctx: c.Request.Context()}, rd.OrgID, rd.UserID, body.Name, body.Kind)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.RespondCreated(c, gin.H{"project": project, "stages": stages})
}

// GET /api/projects
func (h *ProjectHandler) List(c *gin.Context) {
	rd, ok := identity(c)
	if !ok {
		return
	}
	projects, err := h.projects.ListProjects(dbctx.Context{Ctx: c.Request.Context()}, rd.OrgID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.RespondOK(c, gin.H{"projects": projects})
}

// GET /api/projects/:projectId/stages
func (h *ProjectHandler) ListStages(c *gin.Context) {
	rd, ok := identity(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "projectId")
	if !ok {
		return
	}
	progress, err := h.projects.ListStages(dbctx.Context{Ctx: c.Request.Context()}, rd.OrgID, projectID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.RespondOK(c, progress)
}
