package services

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/data/repos"
	types "github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/domain"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/modules/stagerun/pipeline"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/dbctx"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/logger"
)

// DefaultMonthlyTokenLimit is granted to organizations created without one.
const DefaultMonthlyTokenLimit int64 = 200_000

type NewOrganization struct {
	Name              string
	Plan              string
	MonthlyTokenLimit int64
	BonusTokens       int64
}

type StageView struct {
	*types.Stage
	Requires            []string   `json:"requires"`
	MissingDependencies []string   `json:"missingDependencies,omitempty"`
	LatestVersion       int        `json:"latestVersion"`
	ActiveJobID         *uuid.UUID `json:"activeJobId,omitempty"`
}

type ProjectProgress struct {
	Project  *types.Project `json:"project"`
	Stages   []StageView    `json:"stages"`
	Approved int            `json:"approved"`
	Total    int            `json:"total"`
}

type ProjectService interface {
	CreateOrganization(dbc dbctx.Context, in NewOrganization) (*types.Organization, error)
	// CreateProject bootstraps every catalog stage for kind as NOT_STARTED.
	CreateProject(dbc dbctx.Context, orgID, userID uuid.UUID, name, kind string) (*types.Project, []*types.Stage, error)
	ListProjects(dbc dbctx.Context, orgID uuid.UUID) ([]*types.Project, error)
	ListStages(dbc dbctx.Context, orgID, projectID uuid.UUID) (*ProjectProgress, error)
}

type projectService struct {
	db    *gorm.DB
	log   *logger.Logger
	repos repos.Set
	graph *pipeline.Graph
	now   func() time.Time
}

func NewProjectService(db *gorm.DB, baseLog *logger.Logger, set repos.Set, graph *pipeline.Graph) ProjectService {
	if graph == nil {
		graph = pipeline.Default()
	}
	return &projectService{
		db:    db,
		log:   baseLog.With("service", "ProjectService"),
		repos: set,
		graph: graph,
		now:   time.Now,
	}
}

func (s *projectService) CreateOrganization(dbc dbctx.Context, in NewOrganization) (*types.Organization, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("organization name required")
	}
	if in.MonthlyTokenLimit < 0 || in.BonusTokens < 0 {
		return nil, invalid("token amounts must be non-negative")
	}
	limit := in.MonthlyTokenLimit
	if limit == 0 {
		limit = DefaultMonthlyTokenLimit
	}
	plan := strings.TrimSpace(in.Plan)
	if plan == "" {
		plan = "starter"
	}
	now := s.now().UTC()
	return s.repos.Orgs.Create(dbc, &types.Organization{
		ID:                uuid.New(),
		Name:              name,
		Plan:              plan,
		MonthlyTokenLimit: limit,
		BonusTokens:       in.BonusTokens,
		TokenResetDate:    now.Add(types.BudgetCycle),
		CreatedAt:         now,
		UpdatedAt:         now,
	})
}

func (s *projectService) CreateProject(dbc dbctx.Context, orgID, userID uuid.UUID, name, kind string) (*types.Project, []*types.Stage, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil, invalid("project name required")
	}
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		kind = types.ProjectKindBrand
	}
	defs, err := pipeline.StagesFor(kind)
	if err != nil {
		return nil, nil, invalid("%s", err.Error())
	}
	if _, err := s.repos.Orgs.GetByID(dbc, orgID); err != nil {
		return nil, nil, err
	}

	var (
		project *types.Project
		stages  []*types.Stage
	)
	err = dbc.Conn(s.db).Transaction(func(tx *gorm.DB) error {
		txc := dbc.WithTx(tx)
		now := s.now().UTC()
		p, err := s.repos.Projects.Create(txc, &types.Project{
			ID:        uuid.New(),
			OrgID:     orgID,
			Name:      name,
			Kind:      kind,
			CreatedBy: userID,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}
		rows := make([]*types.Stage, 0, len(defs))
		for _, d := range defs {
			rows = append(rows, &types.Stage{
				ID:         uuid.New(),
				ProjectID:  p.ID,
				StageKey:   d.Key,
				DisplayKey: d.DisplayKey,
				Module:     d.Module,
				Order:      d.Order,
				Name:       d.Name,
				Status:     types.StageNotStarted,
				CreatedAt:  now,
				UpdatedAt:  now,
			})
		}
		created, err := s.repos.Stages.Create(txc, rows)
		if err != nil {
			return err
		}
		project, stages = p, created
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.log.Info("project created", "org_id", orgID, "project_id", project.ID, "kind", kind, "stages", len(stages))
	return project, stages, nil
}

func (s *projectService) ListProjects(dbc dbctx.Context, orgID uuid.UUID) ([]*types.Project, error) {
	return s.repos.Projects.ListForOrg(dbc, orgID)
}

func (s *projectService) ListStages(dbc dbctx.Context, orgID, projectID uuid.UUID) (*ProjectProgress, error) {
	project, err := s.repos.Projects.GetForOrg(dbc, orgID, projectID)
	if err != nil {
		return nil, err
	}
	stages, err := s.repos.Stages.ListByProject(dbc, projectID)
	if err != nil {
		return nil, err
	}
	status := make(map[string]types.StageStatus, len(stages))
	for _, st := range stages {
		status[st.StageKey] = st.Status
	}
	out := &ProjectProgress{Project: project, Total: len(stages)}
	for _, st := range stages {
		v := StageView{
			Stage:    st,
			Requires: s.graph.Requires(st.StageKey),
			MissingDependencies: s.graph.Missing(st.StageKey, func(req string) bool {
				return status[req].HasContent()
			}),
		}
		if o, err := s.repos.Outputs.GetByStage(dbc, st.ID); err == nil {
			if latest, err := s.repos.Outputs.LatestVersion(dbc, o.ID); err == nil {
				v.LatestVersion = latest.Version
			}
		}
		if job, err := s.repos.Jobs.GetActiveForTarget(dbc, projectID, st.ID); err == nil && job != nil {
			id := job.ID
			v.ActiveJobID = &id
		}
		if st.Status == types.StageApproved {
			out.Approved++
		}
		out.Stages = append(out.Stages, v)
	}
	return out, nil
}
