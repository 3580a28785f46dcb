package orgs

import (
	"time"

	"github.com/google/uuid"
)

const (
	ProjectKindBrand   = "brand"
	ProjectKindVenture = "venture"
)

type Project struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID     uuid.UUID `gorm:"type:uuid;column:org_id;not null;index" json:"org_id"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	Kind      string    `gorm:"column:kind;not null" json:"kind"`
	CreatedBy uuid.UUID `gorm:"type:uuid;column:created_by" json:"created_by"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Project) TableName() string { return "project" }
