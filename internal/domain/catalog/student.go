package catalog

import (
	"strings"
	"time"

	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// StudentStatus represents whether a student is billable
type StudentStatus string

const (
	StudentStatusActive   StudentStatus = "ACTIVE"
	StudentStatusInactive StudentStatus = "INACTIVE"
)

// IsValid checks if the status is a known value
func (s StudentStatus) IsValid() bool {
	return s == StudentStatusActive || s == StudentStatusInactive
}

// StudentProfile is the slice of a student's enrolment the fee catalog
// matches against. It is owned by the school application and pushed here.
type StudentProfile struct {
	StudentID uuid.UUID
	FullName  string
	ClassID   string
	SectionID string
	Category  string
	Status    StudentStatus
	UpdatedAt time.Time
}

// NewStudentProfile validates and normalizes a profile
func NewStudentProfile(studentID uuid.UUID, fullName, classID, sectionID, category string) (*StudentProfile, error) {
	if studentID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_STUDENT", "Student ID cannot be empty")
	}
	classID = strings.TrimSpace(classID)
	if classID == "" {
		return nil, shared.NewDomainError("INVALID_CLASS", "Class is required")
	}
	if len(classID) > 50 || len(sectionID) > 50 || len(category) > 50 {
		return nil, shared.NewDomainError("INVALID_PROFILE", "Class, section and category cannot exceed 50 characters")
	}
	return &StudentProfile{
		StudentID: studentID,
		FullName:  strings.TrimSpace(fullName),
		ClassID:   classID,
		SectionID: strings.TrimSpace(sectionID),
		Category:  strings.ToUpper(strings.TrimSpace(category)),
		Status:    StudentStatusActive,
		UpdatedAt: time.Now(),
	}, nil
}

// IsActive returns true if the student can be invoiced
func (p *StudentProfile) IsActive() bool {
	return p.Status == StudentStatusActive
}

// Deactivate stops future invoicing for the student
func (p *StudentProfile) Deactivate() {
	p.Status = StudentStatusInactive
	p.UpdatedAt = time.Now()
}
