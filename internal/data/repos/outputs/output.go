package outputs

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/data/repos/repoerr"
	types "github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/domain"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/dbctx"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/logger"
)

// ErrVersionConflict means another writer took the next version number.
var ErrVersionConflict = errors.New("output version conflict")

type OutputRepo interface {
	GetOrCreate(dbc dbctx.Context, projectID, stageID uuid.UUID, outputKey string) (*types.Output, error)
	GetByStage(dbc dbctx.Context, stageID uuid.UUID) (*types.Output, error)

	// AppendVersion assigns max(version)+1 and inserts v. Existing rows are
	// never touched.
	AppendVersion(dbc dbctx.Context, v *types.OutputVersion) (*types.OutputVersion, error)
	ListVersions(dbc dbctx.Context, outputID uuid.UUID) ([]*types.OutputVersion, error)
	GetVersion(dbc dbctx.Context, outputID uuid.UUID, version int) (*types.OutputVersion, error)
	GetVersionByID(dbc dbctx.Context, id uuid.UUID) (*types.OutputVersion, error)
	LatestVersion(dbc dbctx.Context, outputID uuid.UUID) (*types.OutputVersion, error)
}

type outputRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewOutputRepo(db *gorm.DB, baseLog *logger.Logger) OutputRepo {
	return &outputRepo{db: db, log: baseLog.With("repo", "OutputRepo")}
}

func (r *outputRepo) GetOrCreate(dbc dbctx.Context, projectID, stageID uuid.UUID, outputKey string) (*types.Output, error) {
	var out types.Output
	err := dbc.Conn(r.db).
		Where("stage_id = ? AND output_key = ?", stageID, outputKey).
		Limit(1).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	if out.ID != uuid.Nil {
		return &out, nil
	}
	now := time.Now().UTC()
	out = types.Output{
		ID:        uuid.New(),
		ProjectID: projectID,
		StageID:   stageID,
		OutputKey: outputKey,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := dbc.Conn(r.db).Create(&out).Error; err != nil {
		if repoerr.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: output %s/%s", repoerr.ErrConflict, stageID, outputKey)
		}
		return nil, err
	}
	return &out, nil
}

func (r *outputRepo) GetByStage(dbc dbctx.Context, stageID uuid.UUID) (*types.Output, error) {
	var out types.Output
	err := dbc.Conn(r.db).
		Where("stage_id = ?", stageID).
		Order("created_at ASC").
		First(&out).Error
	if err != nil {
		return nil, repoerr.NotFound(err)
	}
	return &out, nil
}

func (r *outputRepo) AppendVersion(dbc dbctx.Context, v *types.OutputVersion) (*types.OutputVersion, error) {
	if v.OutputID == uuid.Nil {
		return nil, fmt.Errorf("append version: missing output id")
	}
	var maxVersion int
	err := dbc.Conn(r.db).
		Model(&types.OutputVersion{}).
		Where("output_id = ?", v.OutputID).
		Select("COALESCE(MAX(version), 0)").
		Scan(&maxVersion).Error
	if err != nil {
		return nil, err
	}
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	v.Version = maxVersion + 1
	v.CreatedAt = time.Now().UTC()
	if err := dbc.Conn(r.db).Create(v).Error; err != nil {
		if repoerr.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: version %d", ErrVersionConflict, v.Version)
		}
		return nil, err
	}
	return v, nil
}

func (r *outputRepo) ListVersions(dbc dbctx.Context, outputID uuid.UUID) ([]*types.OutputVersion, error) {
	var out []*types.OutputVersion
	err := dbc.Conn(r.db).
		Where("output_id = ?", outputID).
		Order("version ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *outputRepo) GetVersion(dbc dbctx.Context, outputID uuid.UUID, version int) (*types.OutputVersion, error) {
	var v types.OutputVersion
	err := dbc.Conn(r.db).
		Where("output_id = ? AND version = ?", outputID, version).
		First(&v).Error
	if err != nil {
		return nil, repoerr.NotFound(err)
	}
	return &v, nil
}

func (r *outputRepo) GetVersionByID(dbc dbctx.Context, id uuid.UUID) (*types.OutputVersion, error) {
	var v types.OutputVersion
	if err := dbc.Conn(r.db).Where("id = ?", id).First(&v).Error; err != nil {
		return nil, repoerr.NotFound(err)
	}
	return &v, nil
}

func (r *outputRepo) LatestVersion(dbc dbctx.Context, outputID uuid.UUID) (*types.OutputVersion, error) {
	var v types.OutputVersion
	err := dbc.Conn(r.db).
		Where("output_id = ?", outputID).
		Order("version DESC").
		Limit(1).
		Take(&v).Error
	if err != nil {
		return nil, repoerr.NotFound(err)
	}
	return &v, nil
}
