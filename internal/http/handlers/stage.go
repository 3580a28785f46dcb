package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/domain"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/http/response"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/dbctx"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/logger"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/services"
)

type StageHandler struct {
	log    *logger.Logger
	stages services.StageRunService
}

func NewStageHandler(log *logger.Logger, stages services.StageRunService) *StageHandler {
	return &StageHandler{log: log.With("handler", "StageHandler"), stages: stages}
}

type stageTarget struct {
	orgID     uuid.UUID
	userID    uuid.UUID
	projectID uuid.UUID
	stageKey  string
}

func (h *StageHandler) target(c *gin.Context) (stageTarget, bool) {
	rd, ok := identity(c)
	if !ok {
		return stageTarget{}, false
	}
	projectID, ok := uuidParam(c, "projectId")
	if !ok {
		return stageTarget{}, false
	}
	return stageTarget{orgID: rd.OrgID, userID: rd.UserID, projectID: projectID, stageKey: c.Param("stageKey")}, true
}

// bindOptional decodes a JSON body when one was sent.
func bindOptional(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return false
	}
	return true
}

func versionQuery(c *gin.Context) (int, bool) {
	raw := c.Query("version")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		response.RespondError(c, http.StatusBadRequest, "invalid_version", errors.New("version must be a positive integer"))
		return 0, false
	}
	return n, true
}

// POST /api/projects/:projectId/stages/:stageKey/run
func (h *StageHandler) Run(c *gin.Context) {
	t, ok := h.target(c)
	if !ok {
		return
	}
	var opts services.RunOptions
	if !bindOptional(c, &opts) {
		return
	}
	res, err := h.stages.RunStage(dbctx.Context{Ctx: c.Request.Context()}, t.orgID, t.userID, t.projectID, t.stageKey, opts)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	status := http.StatusAccepted
	if res.Job.Status.Terminal() {
		status = http.StatusOK
	}
	missing := res.MissingDependencies
	if missing == nil {
		missing = []string{}
	}
	warnings := res.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	c.JSON(status, gin.H{
		"success":             true,
		"jobId":               res.Job.ID,
		"status":              res.Job.Status,
		"idempotent":          res.Idempotent,
		"provider":            res.Config.Provider,
		"model":               res.Config.Model,
		"preset":              res.Config.Preset,
		"missingDependencies": missing,
		"warnings":            warnings,
		"error":               res.Job.Error,
	})
}

// GET /api/projects/:projectId/stages/:stageKey/output?version=N
func (h *StageHandler) GetOutput(c *gin.Context) {
	t, ok := h.target(c)
	if !ok {
		return
	}
	version, ok := versionQuery(c)
	if !ok {
		return
	}
	view, err := h.stages.GetOutput(dbctx.Context{Ctx: c.Request.Context()}, t.orgID, t.projectID, t.stageKey, version)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.RespondOK(c, view)
}

// GET /api/projects/:projectId/stages/:stageKey/output/export?format=markdown&version=N
func (h *StageHandler) Export(c *gin.Context) {
	t, ok := h.target(c)
	if !ok {
		return
	}
	version, ok := versionQuery(c)
	if !ok {
		return
	}
	format := c.DefaultQuery("format", services.ExportMarkdown)
	doc, err := h.stages.ExportOutput(dbctx.Context{Ctx: c.Request.Context()}, t.orgID, t.projectID, t.stageKey, version, format)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	contentType := "text/markdown; charset=utf-8"
	if format == services.ExportHTML {
		contentType = "text/html; charset=utf-8"
	}
	c.Data(http.StatusOK, contentType, []byte(doc))
}

// POST /api/projects/:projectId/stages/:stageKey/versions
func (h *StageHandler) SaveVersion(c *gin.Context) {
	t, ok := h.target(c)
	if !ok {
		return
	}
	var body struct {
		Content       json.RawMessage `json:"content"`
		BaseVersionID *uuid.UUID      `json:"baseVersionId"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	v, stage, err := h.stages.SaveManualVersion(dbctx.Context{Ctx: c.Request.Context()}, t.orgID, t.userID, t.projectID, t.stageKey, services.ManualVersionInput{
		Content:       body.Content,
		BaseVersionID: body.BaseVersionID,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.RespondCreated(c, gin.H{"version": v, "stage": stage})
}

// POST /api/projects/:projectId/stages/:stageKey/approve
func (h *StageHandler) Approve(c *gin.Context) {
	t, ok := h.target(c)
	if !ok {
		return
	}
	var body struct {
		Version   int        `json:"version"`
		VersionID *uuid.UUID `json:"versionId"`
	}
	if !bindOptional(c, &body) {
		return
	}
	res, err := h.stages.ApproveVersion(dbctx.Context{Ctx: c.Request.Context()}, t.orgID, t.userID, t.projectID, t.stageKey, services.ApproveInput{
		Version:   body.Version,
		VersionID: body.VersionID,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.RespondOK(c, res)
}

// GET /api/projects/:projectId/stages/:stageKey/config
func (h *StageHandler) GetConfig(c *gin.Context) {
	t, ok := h.target(c)
	if !ok {
		return
	}
	cfg, err := h.stages.GetStageConfig(dbctx.Context{Ctx: c.Request.Context()}, t.orgID, t.projectID, t.stageKey)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.RespondOK(c, cfg)
}

// PUT /api/projects/:projectId/stages/:stageKey/config
func (h *StageHandler) PutConfig(c *gin.Context) {
	t, ok := h.target(c)
	if !ok {
		return
	}
	var body types.StageConfig
	if err := c.ShouldBindJSON(&body); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	cfg, err := h.stages.PutStageConfig(dbctx.Context{Ctx: c.Request.Context()}, t.orgID, t.projectID, t.stageKey, body)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.RespondOK(c, cfg)
}
