// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer free
// from ORM concerns.
//
// Money is stored as an integer count of minor units next to its currency code.
//
// Structure:
//   - base.go: Base persistence models (BaseModel, AggregateModel)
//   - catalog.go: fee items, discount and fine rules, student profiles
//   - ledger.go: invoices and lines, payments and allocations, carry-forwards,
//     adjustments, period closes
//   - outbox.go: transactional outbox for domain events
package models
