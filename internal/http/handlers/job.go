package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/data/repos"
	types "github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/domain"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/http/response"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/dbctx"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/logger"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/services"
)

type JobHandler struct {
	log    *logger.Logger
	stages services.StageRunService
}

func NewJobHandler(log *logger.Logger, stages services.StageRunService) *JobHandler {
	return &JobHandler{log: log.With("handler", "JobHandler"), stages: stages}
}

type jobView struct {
	ID        string          `json:"id"`
	JobType   string          `json:"jobType"`
	Status    types.JobStatus `json:"status"`
	Progress  int             `json:"progress"`
	Message   string          `json:"message,omitempty"`
	Attempts  int             `json:"attempts"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	StageID   string          `json:"stageId"`
	ProjectID string          `json:"projectId"`
}

func toJobView(j *types.JobRun) jobView {
	v := jobView{
		ID:        j.ID.String(),
		JobType:   j.JobType,
		Status:    j.Status,
		Progress:  j.Progress,
		Message:   j.Message,
		Attempts:  j.Attempts,
		Error:     j.Error,
		StageID:   j.StageID.String(),
		ProjectID: j.ProjectID.String(),
	}
	if len(j.Result) > 0 {
		v.Result = json.RawMessage(j.Result)
	}
	return v
}

// GET /api/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	rd, ok := identity(c)
	if !ok {
		return
	}
	jobID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	job, err := h.stages.GetJob(dbctx.Context{Ctx: c.Request.Context()}, rd.OrgID, jobID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.RespondOK(c, toJobView(job))
}

// GET /api/jobs?status=QUEUED&limit=50
func (h *JobHandler) ListJobs(c *gin.Context) {
	rd, ok := identity(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	jobs, err := h.stages.ListJobs(dbctx.Context{Ctx: c.Request.Context()}, repos.JobListFilter{
		OrgID:  rd.OrgID,
		Status: types.JobStatus(c.Query("status")),
		Limit:  limit,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	out := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobView(j))
	}
	response.RespondOK(c, gin.H{"jobs": out})
}

// POST /api/jobs/:id/fail
func (h *JobHandler) FailJob(c *gin.Context) {
	rd, ok := identity(c)
	if !ok {
		return
	}
	jobID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	job, err := h.stages.MarkJobFailed(dbctx.Context{Ctx: c.Request.Context()}, rd.OrgID, jobID, body.Reason)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.RespondOK(c, toJobView(job))
}
