package domain

import (
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/domain/billing"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/domain/jobs"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/domain/orgs"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/domain/outputs"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/domain/stages"
)

type (
	Organization = orgs.Organization
	Project      = orgs.Project

	Stage       = stages.Stage
	StageStatus = stages.Status
	StageConfig = stages.Config

	JobRun     = jobs.JobRun
	JobStatus  = jobs.Status
	JobPayload = jobs.Payload

	Output        = outputs.Output
	OutputVersion = outputs.OutputVersion
	RunInfo       = outputs.RunInfo

	TokenUsage = billing.TokenUsage
)

// BudgetCycle is the length of one monthly token cycle.
const BudgetCycle = orgs.BudgetCycle

const (
	ProjectKindBrand   = orgs.ProjectKindBrand
	ProjectKindVenture = orgs.ProjectKindVenture

	StageNotStarted  = stages.StatusNotStarted
	StageGenerated   = stages.StatusGenerated
	StageRegenerated = stages.StatusRegenerated
	StageApproved    = stages.StatusApproved
	StageBlocked     = stages.StatusBlocked

	JobQueued     = jobs.StatusQueued
	JobProcessing = jobs.StatusProcessing
	JobDone       = jobs.StatusDone
	JobFailed     = jobs.StatusFailed

	JobTypeGenerateOutput       = jobs.TypeGenerateOutput
	JobTypeRegenerateOutput     = jobs.TypeRegenerateOutput
	JobTypeBusinessPlanGenerate = jobs.TypeBusinessPlanGenerate

	VersionGenerated = outputs.VersionGenerated
	VersionApproved  = outputs.VersionApproved
	VersionTypeAI    = outputs.TypeGenerated
	VersionManual    = outputs.TypeManual
)

// Models lists every persisted type, in migration order.
func Models() []interface{} {
	return []interface{}{
		&Organization{},
		&Project{},
		&Stage{},
		&JobRun{},
		&Output{},
		&OutputVersion{},
		&TokenUsage{},
	}
}
