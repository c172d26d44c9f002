package catalog

import (
	"strings"

	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Scope is the breadth of a fee item definition
type Scope string

const (
	ScopeStudent  Scope = "STUDENT"
	ScopeCategory Scope = "CATEGORY"
	ScopeSection  Scope = "SECTION"
	ScopeClass    Scope = "CLASS"
	ScopeAll      Scope = "ALL"
)

// IsValid checks if the scope is a known value
func (s Scope) IsValid() bool {
	switch s {
	case ScopeStudent, ScopeCategory, ScopeSection, ScopeClass, ScopeAll:
		return true
	}
	return false
}

// Priority orders scopes; the narrowest matching scope wins
func (s Scope) Priority() int {
	switch s {
	case ScopeStudent:
		return 5
	case ScopeCategory:
		return 4
	case ScopeSection:
		return 3
	case ScopeClass:
		return 2
	case ScopeAll:
		return 1
	}
	return 0
}

// Applicability selects which students a definition applies to.
// A category filter may be narrowed to one class.
type Applicability struct {
	Scope     Scope
	StudentID *uuid.UUID
	Category  string
	ClassID   string
	SectionID string
}

// Normalize trims and upper-cases the category
func (a Applicability) Normalize() Applicability {
	a.Category = strings.ToUpper(strings.TrimSpace(a.Category))
	a.ClassID = strings.TrimSpace(a.ClassID)
	a.SectionID = strings.TrimSpace(a.SectionID)
	return a
}

// Validate checks that the filter carries what its scope needs
func (a Applicability) Validate() error {
	if !a.Scope.IsValid() {
		return shared.NewDomainError("INVALID_SCOPE", "Unknown applicability scope")
	}
	switch a.Scope {
	case ScopeStudent:
		if a.StudentID == nil || *a.StudentID == uuid.Nil {
			return shared.NewDomainError("INVALID_SCOPE", "Student scope requires a student ID")
		}
	case ScopeCategory:
		if a.Category == "" {
			return shared.NewDomainError("INVALID_SCOPE", "Category scope requires a category")
		}
	case ScopeSection:
		if a.ClassID == "" || a.SectionID == "" {
			return shared.NewDomainError("INVALID_SCOPE", "Section scope requires class and section")
		}
	case ScopeClass:
		if a.ClassID == "" {
			return shared.NewDomainError("INVALID_SCOPE", "Class scope requires a class")
		}
	}
	return nil
}

// Matches reports whether the profile falls inside the filter
func (a Applicability) Matches(p StudentProfile) bool {
	switch a.Scope {
	case ScopeStudent:
		return a.StudentID != nil && *a.StudentID == p.StudentID
	case ScopeCategory:
		if p.Category == "" || a.Category != p.Category {
			return false
		}
		return a.ClassID == "" || a.ClassID == p.ClassID
	case ScopeSection:
		return a.ClassID == p.ClassID && a.SectionID == p.SectionID
	case ScopeClass:
		return a.ClassID == p.ClassID
	case ScopeAll:
		return true
	}
	return false
}
