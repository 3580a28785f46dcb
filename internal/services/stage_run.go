package services

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/ai"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/data/repos"
	types "github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/domain"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/modules/stagerun/pipeline"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/modules/stagerun/prompts"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/modules/stagerun/resolver"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/dbctx"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/logger"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/redislock"
)

var tracer = otel.Tracer("brandbuilder/services")

// ProviderSource hands out AI providers by type. *registry.Registry satisfies it.
type ProviderSource interface {
	Get(providerType string) (ai.Provider, error)
}

// JobProcessor runs one queued job synchronously. *worker.Worker satisfies it.
type JobProcessor interface {
	ProcessNow(ctx context.Context, jobID uuid.UUID) error
}

type ProgressFunc func(pct int, msg string)

type StageRunConfig struct {
	// Inline executes every run inside RunStage instead of leaving it to workers.
	Inline          bool
	DefaultProvider string
	DefaultModel    string
	DefaultPreset   string
	MaxAttempts     int
	LockTTL         time.Duration
}

type RunOptions struct {
	Regenerate          bool     `json:"regenerate"`
	SeedText            string   `json:"seedText"`
	Preset              string   `json:"preset"`
	Provider            string   `json:"provider"`
	Model               string   `json:"model"`
	Temperature         *float64 `json:"temperature"`
	CustomInstructions  string   `json:"customInstructions"`
	IgnoreDependencies  bool     `json:"ignoreDependencies"`
	EnforceDependencies bool     `json:"enforceDependencies"`
	Inline              bool     `json:"inline"`
}

type RunResult struct {
	Job                 *types.JobRun
	Idempotent          bool
	Config              resolver.EffectiveConfig
	MissingDependencies []string
	Warnings            []string
}

// ExecutionResult is stored as the job result.
type ExecutionResult struct {
	OutputID    uuid.UUID         `json:"output_id"`
	VersionID   uuid.UUID         `json:"version_id"`
	Version     int               `json:"version"`
	StageStatus types.StageStatus `json:"stage_status"`
	Provider    string            `json:"provider"`
	Model       string            `json:"model"`
	Usage       ai.Usage          `json:"usage"`
}

type ApproveInput struct {
	Version   int
	VersionID *uuid.UUID
}

type ApproveResult struct {
	Stage       *types.Stage         `json:"stage"`
	Version     *types.OutputVersion `json:"version"`
	Invalidated []string             `json:"invalidated"`
}

type ManualVersionInput struct {
	Content       json.RawMessage
	BaseVersionID *uuid.UUID
}

type OutputView struct {
	Stage           *types.Stage           `json:"stage"`
	Output          *types.Output          `json:"output"`
	Versions        []*types.OutputVersion `json:"versions"`
	LatestVersion   int                    `json:"latestVersion"`
	CurrentVersion  *types.OutputVersion   `json:"currentVersion"`
	ApprovedVersion int                    `json:"approvedVersion,omitempty"`
}

type StageRunService interface {
	RunStage(dbc dbctx.Context, orgID, userID, projectID uuid.UUID, stageKey string, opts RunOptions) (*RunResult, error)
	// ExecuteJob performs one attempt of a claimed stage job.
	ExecuteJob(ctx context.Context, job *types.JobRun, progress ProgressFunc) (*ExecutionResult, error)

	ApproveVersion(dbc dbctx.Context, orgID, userID, projectID uuid.UUID, stageKey string, in ApproveInput) (*ApproveResult, error)
	SaveManualVersion(dbc dbctx.Context, orgID, userID, projectID uuid.UUID, stageKey string, in ManualVersionInput) (*types.OutputVersion, *types.Stage, error)
	GetOutput(dbc dbctx.Context, orgID, projectID uuid.UUID, stageKey string, version int) (*OutputView, error)
	ExportOutput(dbc dbctx.Context, orgID, projectID uuid.UUID, stageKey string, version int, format string) (string, error)

	GetStageConfig(dbc dbctx.Context, orgID, projectID uuid.UUID, stageKey string) (types.StageConfig, error)
	PutStageConfig(dbc dbctx.Context, orgID, projectID uuid.UUID, stageKey string, cfg types.StageConfig) (types.StageConfig, error)

	GetJob(dbc dbctx.Context, orgID, jobID uuid.UUID) (*types.JobRun, error)
	ListJobs(dbc dbctx.Context, f repos.JobListFilter) ([]*types.JobRun, error)
	// MarkJobFailed is the operator override. uuid.Nil orgID skips the tenancy filter.
	MarkJobFailed(dbc dbctx.Context, orgID, jobID uuid.UUID, reason string) (*types.JobRun, error)

	SetProcessor(p JobProcessor)
}

type stageRunService struct {
	db        *gorm.DB
	log       *logger.Logger
	repos     repos.Set
	graph     *pipeline.Graph
	prompts   *prompts.Registry
	providers ProviderSource
	budget    BudgetService
	locker    redislock.Locker
	notify    JobNotifier
	cfg       StageRunConfig

	mu        sync.RWMutex
	processor JobProcessor
}

func NewStageRunService(
	db *gorm.DB,
	baseLog *logger.Logger,
	set repos.Set,
	graph *pipeline.Graph,
	promptReg *prompts.Registry,
	providers ProviderSource,
	budget BudgetService,
	locker redislock.Locker,
	notify JobNotifier,
	cfg StageRunConfig,
) StageRunService {
	if graph == nil {
		graph = pipeline.Default()
	}
	if locker == nil {
		locker = redislock.NewLocalLocker()
	}
	if notify == nil {
		notify = NopJobNotifier{}
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	return &stageRunService{
		db:        db,
		log:       baseLog.With("service", "StageRunService"),
		repos:     set,
		graph:     graph,
		prompts:   promptReg,
		providers: providers,
		budget:    budget,
		locker:    locker,
		notify:    notify,
		cfg:       cfg,
	}
}

func (s *stageRunService) SetProcessor(p JobProcessor) {
	s.mu.Lock()
	s.processor = p
	s.mu.Unlock()
}

func (s *stageRunService) inlineProcessor() JobProcessor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.processor
}

func businessPlanLockKey(orgID, projectID uuid.UUID) string {
	return redislock.Key(orgID.String(), projectID.String(), "business_plan")
}

// ---------- RunStage ----------

func (s *stageRunService) RunStage(dbc dbctx.Context, orgID, userID, projectID uuid.UUID, stageKey string, opts RunOptions) (*RunResult, error) {
	ctx, span := tracer.Start(dbc.Ctx, "StageRunService.RunStage", trace.WithAttributes(
		attribute.String("stage.key", stageKey),
		attribute.String("project.id", projectID.String()),
	))
	defer span.End()
	dbc.Ctx = ctx

	res, err := s.runStage(dbc, orgID, userID, projectID, stageKey, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (s *stageRunService) runStage(dbc dbctx.Context, orgID, userID, projectID uuid.UUID, stageKey string, opts RunOptions) (*RunResult, error) {
	// tenancy
	project, err := s.repos.Projects.GetForOrg(dbc, orgID, projectID)
	if err != nil {
		return nil, err
	}
	stage, err := s.repos.Stages.GetForOrg(dbc, orgID, projectID, stageKey)
	if err != nil {
		return nil, err
	}

	// idempotency
	if active, err := s.repos.Jobs.GetActiveForTarget(dbc, project.ID, stage.ID); err != nil {
		return nil, err
	} else if active != nil {
		return s.idempotentResult(active), nil
	}

	// soft gating
	missing, err := s.missingDependencies(dbc, stage)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 && opts.EnforceDependencies && !opts.IgnoreDependencies {
		if !stage.Status.HasContent() {
			if err := s.repos.Stages.UpdateFields(dbc, stage.ID, map[string]interface{}{
				"status":     types.StageBlocked,
				"updated_at": time.Now().UTC(),
			}); err != nil {
				return nil, err
			}
		}
		return nil, &DependencyError{StageKey: stage.StageKey, Missing: missing}
	}

	cfg := s.resolve(stage, opts)
	s.log.WithContext(dbc.Ctx).Info("stage run config resolved",
		"project_id", project.ID,
		"stage", stage.StageKey,
		"provider", cfg.Provider,
		"model", cfg.Model,
		"preset", cfg.Preset,
		"estimated_tokens", cfg.EstimatedTokens,
		"model_fallback", cfg.ModelFallback,
		"warnings", cfg.Warnings,
	)

	if err := s.checkProvider(cfg.Provider); err != nil {
		return nil, err
	}

	decision, err := s.budget.CheckBudget(dbc, orgID, int64(cfg.EstimatedTokens))
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, &BudgetError{Decision: decision}
	}

	jobType := types.JobTypeGenerateOutput
	if opts.Regenerate || stage.Status.HasContent() {
		jobType = types.JobTypeRegenerateOutput
	}
	if stage.StageKey == pipeline.VentureBusinessPlan {
		jobType = types.JobTypeBusinessPlanGenerate
	}
	job, idempotent, err := s.enqueue(dbc, orgID, userID, project.ID, stage, jobType, cfg)
	if err != nil {
		return nil, err
	}
	if idempotent {
		res := s.idempotentResult(job)
		// Inline callers resume a queued job left by an interrupted run.
		if (opts.Inline || s.cfg.Inline) && job.Status == types.JobQueued {
			res.Job = s.processInline(dbc, job)
		}
		return res, nil
	}
	s.notify.JobCreated(job)

	if opts.Inline || s.cfg.Inline {
		job = s.processInline(dbc, job)
	}
	return &RunResult{
		Job:                 job,
		Config:              cfg,
		MissingDependencies: missing,
		Warnings:            cfg.Warnings,
	}, nil
}

// enqueue creates the job row. Business plan jobs take the project lock for
// the check-and-create so two planners cannot both pass the active-job check.
func (s *stageRunService) enqueue(dbc dbctx.Context, orgID, userID, projectID uuid.UUID, stage *types.Stage, jobType string, cfg resolver.EffectiveConfig) (*types.JobRun, bool, error) {
	if jobType == types.JobTypeBusinessPlanGenerate {
		lock, ok, err := s.locker.TryLock(dbc.Ctx, businessPlanLockKey(orgID, projectID), s.cfg.LockTTL)
		if err != nil {
			return nil, false, fmt.Errorf("acquire business plan lock: %w", err)
		}
		if !ok {
			return nil, false, ErrLocked
		}
		defer func() { _ = lock.Unlock(context.Background()) }()
		if active, err := s.repos.Jobs.GetActiveForTarget(dbc, projectID, stage.ID); err != nil {
			return nil, false, err
		} else if active != nil {
			return active, true, nil
		}
	}

	payload, _ := json.Marshal(types.JobPayload{
		StageID:    stage.ID,
		StageKey:   stage.StageKey,
		Regenerate: jobType != types.JobTypeGenerateOutput,
		SeedText:   cfg.SeedText,
	})
	runConfig, err := json.Marshal(cfg)
	if err != nil {
		return nil, false, fmt.Errorf("encode run config: %w", err)
	}
	job, err := s.repos.Jobs.Create(dbc, &types.JobRun{
		OrgID:       orgID,
		ProjectID:   projectID,
		StageID:     stage.ID,
		CreatedBy:   userID,
		JobType:     jobType,
		Status:      types.JobQueued,
		MaxAttempts: s.cfg.MaxAttempts,
		Message:     "queued",
		Payload:     datatypes.JSON(payload),
		RunConfig:   datatypes.JSON(runConfig),
	})
	if errors.Is(err, repos.ErrConflict) {
		// lost the race against a concurrent RunStage for the same stage
		active, gerr := s.repos.Jobs.GetActiveForTarget(dbc, projectID, stage.ID)
		if gerr != nil {
			return nil, false, gerr
		}
		if active != nil {
			return active, true, nil
		}
	}
	if err != nil {
		return nil, false, err
	}
	return job, false, nil
}

func (s *stageRunService) idempotentResult(job *types.JobRun) *RunResult {
	res := &RunResult{Job: job, Idempotent: true}
	if len(job.RunConfig) > 0 {
		_ = json.Unmarshal(job.RunConfig, &res.Config)
		res.Warnings = res.Config.Warnings
	}
	return res
}

// processInline runs the job now. Failures land on the job row; the caller
// reads them from the returned job like it would when polling.
func (s *stageRunService) processInline(dbc dbctx.Context, job *types.JobRun) *types.JobRun {
	p := s.inlineProcessor()
	if p == nil {
		s.log.Warn("inline execution requested without a processor; job left queued", "job_id", job.ID)
		return job
	}
	if err := p.ProcessNow(dbc.Ctx, job.ID); err != nil {
		s.log.Warn("inline execution did not run", "job_id", job.ID, "error", err)
	}
	// The caller may have gone away mid-run; the outcome is still on the row.
	fresh, err := s.repos.Jobs.GetByID(dbctx.Context{Ctx: context.WithoutCancel(dbc.Ctx)}, job.ID)
	if err != nil {
		return job
	}
	return fresh
}

func (s *stageRunService) missingDependencies(dbc dbctx.Context, stage *types.Stage) ([]string, error) {
	reqs := s.graph.Requires(stage.StageKey)
	if len(reqs) == 0 {
		return nil, nil
	}
	rows, err := s.repos.Stages.GetByKeys(dbc, stage.ProjectID, reqs)
	if err != nil {
		return nil, err
	}
	status := make(map[string]types.StageStatus, len(rows))
	for _, r := range rows {
		status[r.StageKey] = r.Status
	}
	return s.graph.Missing(stage.StageKey, func(req string) bool {
		return status[req].HasContent()
	}), nil
}

// resolve merges per-call options over the sticky stage config over the
// process defaults. A sticky model only applies to its own provider.
func (s *stageRunService) resolve(stage *types.Stage, opts RunOptions) resolver.EffectiveConfig {
	sticky := decodeStageConfig(stage.Config)

	provider := firstNonEmpty(opts.Provider, sticky.Provider, s.cfg.DefaultProvider)
	model := opts.Model
	if model == "" {
		if sticky.Model != "" && (opts.Provider == "" || sameProvider(opts.Provider, sticky.Provider)) {
			model = sticky.Model
		} else if opts.Provider == "" && sticky.Provider == "" {
			model = s.cfg.DefaultModel
		}
	}
	return resolver.Resolve(resolver.Input{
		StageKey:           stage.StageKey,
		Preset:             firstNonEmpty(opts.Preset, sticky.Preset, s.cfg.DefaultPreset),
		Provider:           provider,
		Model:              model,
		Temperature:        opts.Temperature,
		CustomInstructions: opts.CustomInstructions,
		SeedText:           opts.SeedText,
	})
}

// sameProvider compares provider names after alias resolution.
func sameProvider(a, b string) bool {
	na, okA := resolver.NormalizeProvider(a)
	nb, okB := resolver.NormalizeProvider(b)
	return okA && okB && na == nb
}

func (s *stageRunService) checkProvider(providerType string) error {
	p, err := s.providers.Get(providerType)
	if err != nil {
		return err
	}
	if st := p.CheckStatus(); !st.Ready {
		return &ai.Error{Code: ai.CodeProviderNotConfigured, Provider: providerType, Message: st.Error}
	}
	return nil
}

// ---------- ExecuteJob ----------

func (s *stageRunService) ExecuteJob(ctx context.Context, job *types.JobRun, progress ProgressFunc) (*ExecutionResult, error) {
	if progress == nil {
		progress = func(int, string) {}
	}
	ctx, span := tracer.Start(ctx, "StageRunService.ExecuteJob", trace.WithAttributes(
		attribute.String("job.id", job.ID.String()),
		attribute.String("job.type", job.JobType),
		attribute.Int("job.attempt", job.Attempts+1),
	))
	defer span.End()

	res, err := s.executeJob(ctx, job, progress)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (s *stageRunService) executeJob(ctx context.Context, job *types.JobRun, progress ProgressFunc) (*ExecutionResult, error) {
	dbc := dbctx.Context{Ctx: ctx}
	var payload types.JobPayload
	if len(job.Payload) > 0 {
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return nil, invalid("job payload: %v", err)
		}
	}
	var cfg resolver.EffectiveConfig
	if err := json.Unmarshal(job.RunConfig, &cfg); err != nil || cfg.Provider == "" {
		return nil, invalid("job run config missing or malformed")
	}

	project, err := s.repos.Projects.GetForOrg(dbc, job.OrgID, job.ProjectID)
	if err != nil {
		return nil, err
	}
	stage, err := s.repos.Stages.GetByID(dbc, job.StageID)
	if err != nil {
		return nil, err
	}

	if job.JobType == types.JobTypeBusinessPlanGenerate {
		lock, ok, err := s.locker.TryLock(ctx, businessPlanLockKey(job.OrgID, project.ID), s.cfg.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire business plan lock: %w", err)
		}
		if !ok {
			return nil, ErrLocked
		}
		defer func() { _ = lock.Unlock(context.Background()) }()
	}

	progress(10, "building prompt")
	upstream, err := s.upstreamContent(dbc, stage)
	if err != nil {
		return nil, err
	}
	seed := cfg.SeedText
	if seed == "" {
		seed = payload.SeedText
	}
	def, _ := pipeline.Lookup(stage.StageKey)
	prompt := s.prompts.Get(stage.StageKey)
	msgs, err := prompt.BuildMessages(prompts.Context{
		ProjectName:        project.Name,
		ProjectKind:        project.Kind,
		StageKey:           stage.StageKey,
		StageName:          firstNonEmpty(stage.Name, def.Name),
		Preset:             string(cfg.Preset),
		ItemCount:          cfg.ItemCount,
		CustomInstructions: cfg.CustomInstructions,
		SeedText:           seed,
		Upstream:           upstream,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	provider, err := s.providers.Get(cfg.Provider)
	if err != nil {
		return nil, err
	}
	progress(30, "generating")
	temp := cfg.Temperature
	completion, err := s.complete(ctx, provider, ai.Request{
		Model:       cfg.Model,
		Messages:    msgs,
		MaxTokens:   cfg.MaxOutputTokens,
		Temperature: &temp,
		JSONMode:    true,
		StageKey:    stage.StageKey,
	})
	if err != nil {
		return nil, err
	}

	progress(70, "validating output")
	parsed := prompt.ParseOutput(completion.Content)
	if !parsed.OK {
		s.log.WithContext(ctx).Warn("model output rejected", "stage", stage.StageKey, "reason", parsed.Error)
		return nil, fmt.Errorf("%w: %s", ErrOutputInvalid, parsed.Error)
	}

	jobID := job.ID
	inTokens, outTokens := billableTokens(completion.Usage)
	if _, _, err := s.budget.RecordUsage(dbc, job.OrgID, TokenUsageInput{
		Key:          "job:" + job.ID.String(),
		JobID:        &jobID,
		InputTokens:  inTokens,
		OutputTokens: outTokens,
	}); err != nil {
		return nil, err
	}

	progress(85, "saving version")
	model := firstNonEmpty(completion.Model, cfg.Model)
	runInfo, _ := json.Marshal(types.RunInfo{
		JobID:            job.ID.String(),
		Preset:           string(cfg.Preset),
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
		TotalTokens:      completion.Usage.TotalTokens,
		FinishReason:     completion.FinishReason,
		ModelFallback:    cfg.ModelFallback,
		Warnings:         cfg.Warnings,
	})
	var (
		out    *types.Output
		ver    *types.OutputVersion
		status types.StageStatus
	)
	err = dbc.Conn(s.db).Transaction(func(tx *gorm.DB) error {
		txc := dbc.WithTx(tx)
		var err error
		out, ver, status, err = s.appendVersion(txc, stage.ID, &types.OutputVersion{
			Content:   datatypes.JSON(parsed.Data),
			Provider:  cfg.Provider,
			Model:     model,
			Type:      types.VersionTypeAI,
			JobID:     &jobID,
			CreatedBy: job.CreatedBy,
			RunInfo:   datatypes.JSON(runInfo),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.WithContext(ctx).Info("stage version generated",
		"stage", stage.StageKey,
		"version", ver.Version,
		"status", status,
		"total_tokens", completion.Usage.TotalTokens,
	)
	return &ExecutionResult{
		OutputID:    out.ID,
		VersionID:   ver.ID,
		Version:     ver.Version,
		StageStatus: status,
		Provider:    cfg.Provider,
		Model:       model,
		Usage:       completion.Usage,
	}, nil
}

func (s *stageRunService) complete(ctx context.Context, p ai.Provider, req ai.Request) (ai.Completion, error) {
	ctx, span := tracer.Start(ctx, "ai.Complete", trace.WithAttributes(
		attribute.String("ai.provider", p.Type()),
		attribute.String("ai.model", req.Model),
	))
	defer span.End()
	c, err := p.Complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ai.Completion{}, err
	}
	span.SetAttributes(attribute.Int("ai.total_tokens", c.Usage.TotalTokens))
	return c, nil
}

// upstreamContent collects approved (else latest) content of direct prerequisites.
func (s *stageRunService) upstreamContent(dbc dbctx.Context, stage *types.Stage) ([]prompts.Upstream, error) {
	reqs := s.graph.Requires(stage.StageKey)
	if len(reqs) == 0 {
		return nil, nil
	}
	rows, err := s.repos.Stages.GetByKeys(dbc, stage.ProjectID, reqs)
	if err != nil {
		return nil, err
	}
	var out []prompts.Upstream
	for _, r := range rows {
		if r.ApprovedVersionID != nil {
			if v, err := s.repos.Outputs.GetVersionByID(dbc, *r.ApprovedVersionID); err == nil {
				out = append(out, prompts.Upstream{StageKey: r.StageKey, Approved: true, Content: string(v.Content)})
				continue
			}
		}
		o, err := s.repos.Outputs.GetByStage(dbc, r.ID)
		if errors.Is(err, repos.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		v, err := s.repos.Outputs.LatestVersion(dbc, o.ID)
		if errors.Is(err, repos.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, prompts.Upstream{StageKey: r.StageKey, Content: string(v.Content)})
	}
	return out, nil
}

// appendVersion must run inside a transaction. It creates the Output on first
// use, appends v and moves the stage to GENERATED (first content) or
// REGENERATED.
func (s *stageRunService) appendVersion(txc dbctx.Context, stageID uuid.UUID, v *types.OutputVersion) (*types.Output, *types.OutputVersion, types.StageStatus, error) {
	stage, err := s.repos.Stages.GetByID(txc, stageID)
	if err != nil {
		return nil, nil, "", err
	}
	out, err := s.repos.Outputs.GetOrCreate(txc, stage.ProjectID, stage.ID, stage.StageKey)
	if err != nil {
		return nil, nil, "", err
	}
	v.OutputID = out.ID
	v.Status = types.VersionGenerated
	v.ContentHash = ContentHash(v.Content)
	ver, err := s.repos.Outputs.AppendVersion(txc, v)
	if err != nil {
		return nil, nil, "", err
	}
	status := types.StageGenerated
	if stage.Status.HasContent() {
		status = types.StageRegenerated
	}
	if err := s.repos.Stages.UpdateFields(txc, stage.ID, map[string]interface{}{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}); err != nil {
		return nil, nil, "", err
	}
	return out, ver, status, nil
}

// ContentHash is the hex blake3 digest of the compacted JSON content.
func ContentHash(content []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, content); err != nil {
		buf.Reset()
		buf.Write(content)
	}
	sum := blake3.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

// ---------- approval & manual versions ----------

func (s *stageRunService) ApproveVersion(dbc dbctx.Context, orgID, userID, projectID uuid.UUID, stageKey string, in ApproveInput) (*ApproveResult, error) {
	stage, err := s.repos.Stages.GetForOrg(dbc, orgID, projectID, stageKey)
	if err != nil {
		return nil, err
	}
	if active, err := s.repos.Jobs.GetActiveForTarget(dbc, projectID, stage.ID); err != nil {
		return nil, err
	} else if active != nil {
		return nil, ErrStageBusy
	}
	out, err := s.repos.Outputs.GetByStage(dbc, stage.ID)
	if err != nil {
		return nil, err
	}
	ver, err := s.pickVersion(dbc, out.ID, in.Version, in.VersionID)
	if err != nil {
		return nil, err
	}

	changed := true
	if stage.ApprovedVersionID != nil {
		if *stage.ApprovedVersionID == ver.ID {
			changed = false
		} else if prev, err := s.repos.Outputs.GetVersionByID(dbc, *stage.ApprovedVersionID); err == nil && prev.ContentHash == ver.ContentHash {
			changed = false
		}
	}

	var invalidated []string
	err = dbc.Conn(s.db).Transaction(func(tx *gorm.DB) error {
		txc := dbc.WithTx(tx)
		now := time.Now().UTC()
		if err := s.repos.Stages.UpdateFields(txc, stage.ID, map[string]interface{}{
			"status":              types.StageApproved,
			"approved_version_id": ver.ID,
			"updated_at":          now,
		}); err != nil {
			return err
		}
		if !changed {
			return nil
		}
		keys := s.graph.TransitiveDependents(stage.StageKey)
		if len(keys) == 0 {
			return nil
		}
		rows, err := s.repos.Stages.GetByKeys(txc, projectID, keys)
		if err != nil {
			return err
		}
		for _, r := range rows {
			if r.Status != types.StageNotStarted {
				invalidated = append(invalidated, r.StageKey)
			}
		}
		_, err = s.repos.Stages.ResetToNotStarted(txc, projectID, keys)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("stage version approved",
		"project_id", projectID,
		"stage", stage.StageKey,
		"version", ver.Version,
		"user_id", userID,
		"invalidated", invalidated,
	)

	fresh, err := s.repos.Stages.GetByID(dbc, stage.ID)
	if err != nil {
		return nil, err
	}
	approved := *ver
	approved.Status = types.VersionApproved
	if invalidated == nil {
		invalidated = []string{}
	}
	return &ApproveResult{Stage: fresh, Version: &approved, Invalidated: invalidated}, nil
}

func (s *stageRunService) pickVersion(dbc dbctx.Context, outputID uuid.UUID, version int, versionID *uuid.UUID) (*types.OutputVersion, error) {
	switch {
	case versionID != nil:
		v, err := s.repos.Outputs.GetVersionByID(dbc, *versionID)
		if err != nil {
			return nil, err
		}
		if v.OutputID != outputID {
			return nil, ErrNotFound
		}
		return v, nil
	case version > 0:
		return s.repos.Outputs.GetVersion(dbc, outputID, version)
	default:
		return s.repos.Outputs.LatestVersion(dbc, outputID)
	}
}

func (s *stageRunService) SaveManualVersion(dbc dbctx.Context, orgID, userID, projectID uuid.UUID, stageKey string, in ManualVersionInput) (*types.OutputVersion, *types.Stage, error) {
	content := bytes.TrimSpace(in.Content)
	if len(content) == 0 || !json.Valid(content) {
		return nil, nil, invalid("content must be valid JSON")
	}
	var compact bytes.Buffer
	_ = json.Compact(&compact, content)

	stage, err := s.repos.Stages.GetForOrg(dbc, orgID, projectID, stageKey)
	if err != nil {
		return nil, nil, err
	}
	if active, err := s.repos.Jobs.GetActiveForTarget(dbc, projectID, stage.ID); err != nil {
		return nil, nil, err
	} else if active != nil {
		return nil, nil, ErrStageBusy
	}

	info := types.RunInfo{}
	if in.BaseVersionID != nil {
		info.BaseVersionID = in.BaseVersionID.String()
	}
	runInfo, _ := json.Marshal(info)

	var ver *types.OutputVersion
	err = dbc.Conn(s.db).Transaction(func(tx *gorm.DB) error {
		txc := dbc.WithTx(tx)
		if in.BaseVersionID != nil {
			base, err := s.repos.Outputs.GetVersionByID(txc, *in.BaseVersionID)
			if err != nil {
				if errors.Is(err, repos.ErrNotFound) {
					return invalid("base version %s not found", in.BaseVersionID)
				}
				return err
			}
			out, err := s.repos.Outputs.GetByStage(txc, stage.ID)
			if err != nil || base.OutputID != out.ID {
				return invalid("base version belongs to another output")
			}
		}
		var err error
		_, ver, _, err = s.appendVersion(txc, stage.ID, &types.OutputVersion{
			Content:   datatypes.JSON(compact.Bytes()),
			Type:      types.VersionManual,
			CreatedBy: userID,
			RunInfo:   datatypes.JSON(runInfo),
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	fresh, err := s.repos.Stages.GetByID(dbc, stage.ID)
	if err != nil {
		return nil, nil, err
	}
	return ver, fresh, nil
}

// ---------- reads ----------

func (s *stageRunService) GetOutput(dbc dbctx.Context, orgID, projectID uuid.UUID, stageKey string, version int) (*OutputView, error) {
	stage, err := s.repos.Stages.GetForOrg(dbc, orgID, projectID, stageKey)
	if err != nil {
		return nil, err
	}
	view := &OutputView{Stage: stage, Versions: []*types.OutputVersion{}}
	out, err := s.repos.Outputs.GetByStage(dbc, stage.ID)
	if errors.Is(err, repos.ErrNotFound) {
		if version > 0 {
			return nil, ErrNotFound
		}
		return view, nil
	}
	if err != nil {
		return nil, err
	}
	view.Output = out
	versions, err := s.repos.Outputs.ListVersions(dbc, out.ID)
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		vv := *v
		if stage.ApprovedVersionID != nil && *stage.ApprovedVersionID == v.ID {
			vv.Status = types.VersionApproved
			view.ApprovedVersion = v.Version
		}
		view.Versions = append(view.Versions, &vv)
		if v.Version > view.LatestVersion {
			view.LatestVersion = v.Version
		}
	}
	want := version
	if want <= 0 {
		want = view.LatestVersion
	}
	for _, v := range view.Versions {
		if v.Version == want {
			view.CurrentVersion = v
		}
	}
	if version > 0 && view.CurrentVersion == nil {
		return nil, ErrNotFound
	}
	return view, nil
}

func (s *stageRunService) ExportOutput(dbc dbctx.Context, orgID, projectID uuid.UUID, stageKey string, version int, format string) (string, error) {
	render := RenderMarkdown
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", ExportMarkdown, "md":
	case ExportHTML:
		render = RenderHTML
	default:
		return "", invalid("unsupported export format %q", format)
	}
	view, err := s.GetOutput(dbc, orgID, projectID, stageKey, version)
	if err != nil {
		return "", err
	}
	if view.CurrentVersion == nil {
		return "", ErrNotFound
	}
	return render(view.Stage, view.CurrentVersion)
}

// ---------- config ----------

func decodeStageConfig(raw datatypes.JSON) types.StageConfig {
	var c types.StageConfig
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &c)
	}
	return c
}

func (s *stageRunService) GetStageConfig(dbc dbctx.Context, orgID, projectID uuid.UUID, stageKey string) (types.StageConfig, error) {
	stage, err := s.repos.Stages.GetForOrg(dbc, orgID, projectID, stageKey)
	if err != nil {
		return types.StageConfig{}, err
	}
	return decodeStageConfig(stage.Config), nil
}

func (s *stageRunService) PutStageConfig(dbc dbctx.Context, orgID, projectID uuid.UUID, stageKey string, in types.StageConfig) (types.StageConfig, error) {
	cfg := types.StageConfig{
		Provider: strings.ToLower(strings.TrimSpace(in.Provider)),
		Model:    strings.TrimSpace(in.Model),
		Preset:   strings.ToLower(strings.TrimSpace(in.Preset)),
	}
	if cfg.Provider != "" {
		p, ok := resolver.NormalizeProvider(cfg.Provider)
		if !ok {
			return types.StageConfig{}, invalid("unknown provider %q", in.Provider)
		}
		cfg.Provider = p
	}
	if cfg.Preset != "" {
		if _, ok := resolver.ParsePreset(cfg.Preset); !ok {
			return types.StageConfig{}, invalid("unknown preset %q", in.Preset)
		}
	}
	if cfg.Model != "" {
		provider := cfg.Provider
		if provider == "" {
			provider, _ = resolver.NormalizeProvider(s.cfg.DefaultProvider)
		}
		if !resolver.IsAllowedModel(provider, cfg.Model) {
			return types.StageConfig{}, invalid("model %q is not available for %s", cfg.Model, provider)
		}
	}

	stage, err := s.repos.Stages.GetForOrg(dbc, orgID, projectID, stageKey)
	if err != nil {
		return types.StageConfig{}, err
	}
	var raw datatypes.JSON
	if !cfg.IsZero() {
		b, _ := json.Marshal(cfg)
		raw = datatypes.JSON(b)
	}
	if err := s.repos.Stages.UpdateFields(dbc, stage.ID, map[string]interface{}{
		"config":     raw,
		"updated_at": time.Now().UTC(),
	}); err != nil {
		return types.StageConfig{}, err
	}
	return cfg, nil
}

// ---------- jobs ----------

func (s *stageRunService) GetJob(dbc dbctx.Context, orgID, jobID uuid.UUID) (*types.JobRun, error) {
	return s.repos.Jobs.GetForOrg(dbc, orgID, jobID)
}

func (s *stageRunService) ListJobs(dbc dbctx.Context, f repos.JobListFilter) ([]*types.JobRun, error) {
	return s.repos.Jobs.List(dbc, f)
}

func (s *stageRunService) MarkJobFailed(dbc dbctx.Context, orgID, jobID uuid.UUID, reason string) (*types.JobRun, error) {
	var (
		job *types.JobRun
		err error
	)
	if orgID == uuid.Nil {
		job, err = s.repos.Jobs.GetByID(dbc, jobID)
	} else {
		job, err = s.repos.Jobs.GetForOrg(dbc, orgID, jobID)
	}
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "marked failed by operator"
	}
	ok, err := s.repos.Jobs.MarkFailed(dbc, job.ID, reason)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, invalid("job %s is already %s", job.ID, job.Status)
	}
	fresh, err := s.repos.Jobs.GetByID(dbc, job.ID)
	if err != nil {
		return nil, err
	}
	s.log.Warn("job marked failed by operator", "job_id", job.ID, "reason", reason)
	s.notify.JobFailed(fresh, reason)
	return fresh, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// billableTokens charges a reported total above prompt+completion as output,
// which covers providers that count reasoning tokens separately.
func billableTokens(u ai.Usage) (in, out int64) {
	in, out = int64(u.PromptTokens), int64(u.CompletionTokens)
	if total := int64(u.TotalTokens); total > in+out {
		out = total - in
	}
	return in, out
}
