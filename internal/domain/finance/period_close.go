package finance

import (
	"time"

	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// PeriodCloseStatus is the state of a period close record
type PeriodCloseStatus string

const (
	PeriodCloseStatusClosed   PeriodCloseStatus = "CLOSED"
	PeriodCloseStatusReopened PeriodCloseStatus = "REOPENED"
)

// PeriodClose records that a billing period has been reconciled
type PeriodClose struct {
	ID                 uuid.UUID
	BillingPeriod      string
	Status             PeriodCloseStatus
	Forced             bool
	ClosedAt           time.Time
	ClosedBy           string
	ReopenedAt         *time.Time
	ReopenedBy         string
	InvoicesReconciled int
	FinesApplied       valueobject.Money
	CarriedDebt        valueobject.Money
	CarriedCredit      valueobject.Money
	ReportLocation     string
}

// NewPeriodClose builds the close record from a finished report
func NewPeriodClose(report *ReconciliationReport, actor string) *PeriodClose {
	return &PeriodClose{
		ID:                 uuid.New(),
		BillingPeriod:      report.Period,
		Status:             PeriodCloseStatusClosed,
		Forced:             report.Forced,
		ClosedAt:           report.ClosedAt,
		ClosedBy:           actor,
		InvoicesReconciled: report.InvoicesReconciled,
		FinesApplied:       report.FinesTotal,
		CarriedDebt:        report.CarriedDebt,
		CarriedCredit:      report.CarriedCredit,
	}
}

// IsClosed returns true while the period is closed
func (pc *PeriodClose) IsClosed() bool {
	return pc != nil && pc.Status == PeriodCloseStatusClosed
}

// Reopen marks the period open again. Already reconciled invoices stay reconciled.
func (pc *PeriodClose) Reopen(actor string, at time.Time) error {
	if !pc.IsClosed() {
		return shared.NewDomainError("PERIOD_NOT_CLOSED", "Period is not closed")
	}
	t := at
	pc.Status = PeriodCloseStatusReopened
	pc.ReopenedAt = &t
	pc.ReopenedBy = actor
	return nil
}

// CarryForwardSummary is one carry-forward created by a close
type CarryForwardSummary struct {
	StudentID uuid.UUID         `json:"studentId"`
	InvoiceID uuid.UUID         `json:"invoiceId"`
	EntryID   uuid.UUID         `json:"carryForwardId"`
	Amount    valueobject.Money `json:"amount"`
	ToPeriod  string            `json:"toPeriod"`
}

// FineSummary is one fine applied by a close
type FineSummary struct {
	StudentID uuid.UUID         `json:"studentId"`
	InvoiceID uuid.UUID         `json:"invoiceId"`
	LineID    uuid.UUID         `json:"lineId"`
	Amount    valueobject.Money `json:"amount"`
}

// StudentFailure is a student whose close could not be written
type StudentFailure struct {
	StudentID uuid.UUID `json:"studentId"`
	Error     string    `json:"error"`
}

// ReconciliationReport summarizes a period close
type ReconciliationReport struct {
	Period             string                `json:"period"`
	NextPeriod         string                `json:"nextPeriod"`
	ClosedAt           time.Time             `json:"closedAt"`
	Forced             bool                  `json:"forced"`
	FineRuleID         *uuid.UUID            `json:"fineRuleId,omitempty"`
	StudentsProcessed  int                   `json:"studentsProcessed"`
	InvoicesExamined   int                   `json:"invoicesExamined"`
	InvoicesReconciled int                   `json:"invoicesReconciled"`
	InvoicesOverdue    int                   `json:"invoicesOverdue"`
	InvoicesSkipped    int                   `json:"invoicesSkipped"`
	InvoicesNotYetDue  int                   `json:"invoicesNotYetDue"`
	Fines              []FineSummary         `json:"fines"`
	FinesTotal         valueobject.Money     `json:"finesTotal"`
	CarryForwards      []CarryForwardSummary `json:"carryForwards"`
	CarriedDebt        valueobject.Money     `json:"carriedDebt"`
	CarriedCredit      valueobject.Money     `json:"carriedCredit"`
	Failures           []StudentFailure      `json:"failures,omitempty"`
	ReportLocation     string                `json:"reportLocation,omitempty"`
}

// NewReconciliationReport starts an empty report
func NewReconciliationReport(period, next string, currency valueobject.Currency, forced bool, at time.Time) *ReconciliationReport {
	zero := valueobject.Zero(currency)
	return &ReconciliationReport{
		Period:        period,
		NextPeriod:    next,
		ClosedAt:      at,
		Forced:        forced,
		Fines:         []FineSummary{},
		FinesTotal:    zero,
		CarryForwards: []CarryForwardSummary{},
		CarriedDebt:   zero,
		CarriedCredit: zero,
	}
}

// Merge folds one student's outcome into the report
func (r *ReconciliationReport) Merge(o *StudentCloseOutcome) {
	r.StudentsProcessed++
	r.InvoicesExamined += o.Examined
	r.InvoicesSkipped += o.Skipped
	r.InvoicesNotYetDue += o.NotYetDue
	for _, res := range o.Results {
		r.InvoicesReconciled++
		if res.Invoice.Status == InvoiceStatusOverdue {
			r.InvoicesOverdue++
		}
		if res.FineLine != nil {
			r.Fines = append(r.Fines, FineSummary{
				StudentID: res.Invoice.StudentID,
				InvoiceID: res.Invoice.ID,
				LineID:    res.FineLine.ID,
				Amount:    res.FineLine.Net,
			})
			r.FinesTotal = r.FinesTotal.MustAdd(res.FineLine.Net)
		}
		if res.CarryForward != nil {
			e := res.CarryForward
			r.CarryForwards = append(r.CarryForwards, CarryForwardSummary{
				StudentID: e.StudentID,
				InvoiceID: res.Invoice.ID,
				EntryID:   e.ID,
				Amount:    e.Amount,
				ToPeriod:  e.ToPeriod,
			})
			if e.IsCredit() {
				r.CarriedCredit = r.CarriedCredit.MustAdd(e.Amount.Negate())
			} else {
				r.CarriedDebt = r.CarriedDebt.MustAdd(e.Amount)
			}
		}
	}
}

// Fail records a student whose close failed
func (r *ReconciliationReport) Fail(studentID uuid.UUID, err error) {
	r.Failures = append(r.Failures, StudentFailure{StudentID: studentID, Error: err.Error()})
}

// Complete returns true if every student was closed and every invoice of the
// period was reconciled. An incomplete close leaves the period open.
func (r *ReconciliationReport) Complete() bool {
	return len(r.Failures) == 0 && r.InvoicesNotYetDue == 0
}
