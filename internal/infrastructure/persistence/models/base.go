package models

import (
	"time"

	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// BaseModel carries the identity and timestamps shared by every table.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// AggregateModel adds the optimistic-lock version. Invoices rely on it so two
// concurrent allocations cannot both settle the same outstanding amount.
type AggregateModel struct {
	BaseModel
	Version int `gorm:"not null;default:1"`
}

// AggregateRoot rebuilds the domain root embedded in every aggregate.
func (m *AggregateModel) AggregateRoot() shared.BaseAggregateRoot {
	return shared.BaseAggregateRoot{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Version: m.Version,
	}
}

// FromDomainAggregateRoot copies identity, timestamps and version from a
// domain root.
func (m *AggregateModel) FromDomainAggregateRoot(a shared.BaseAggregateRoot) {
	m.ID = a.ID
	m.CreatedAt = a.CreatedAt
	m.UpdatedAt = a.UpdatedAt
	m.Version = a.Version
}
