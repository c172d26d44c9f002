package dto

import (
	"time"

	financeapp "github.com/feeledger/backend/internal/application/finance"
	"github.com/feeledger/backend/internal/domain/finance"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// InvoiceLineView is one line of an invoice
type InvoiceLineView struct {
	ID              uuid.UUID         `json:"id"`
	Position        int               `json:"position"`
	Kind            string            `json:"kind"`
	ItemKey         string            `json:"itemKey,omitempty"`
	FeeItemID       *uuid.UUID        `json:"feeItemId,omitempty"`
	FeeItemRevision int               `json:"feeItemRevision,omitempty"`
	CarryForwardID  *uuid.UUID        `json:"carryForwardId,omitempty"`
	DiscountRuleID  *uuid.UUID        `json:"discountRuleId,omitempty"`
	Description     string            `json:"description"`
	Gross           valueobject.Money `json:"gross"`
	Discount        valueobject.Money `json:"discount"`
	Net             valueobject.Money `json:"net"`
	AmountPaid      valueobject.Money `json:"amountPaid"`
	AmountCarried   valueobject.Money `json:"amountCarried"`
	Remaining       valueobject.Money `json:"remaining"`
}

// InvoiceView is an invoice with its derived totals
type InvoiceView struct {
	ID            uuid.UUID         `json:"id"`
	InvoiceNumber string            `json:"invoiceNumber"`
	StudentID     uuid.UUID         `json:"studentId"`
	BillingPeriod string            `json:"billingPeriod"`
	Sequence      int64             `json:"sequence"`
	Status        string            `json:"status"`
	Currency      string            `json:"currency"`
	DueDate       time.Time         `json:"dueDate"`
	Gross         valueobject.Money `json:"gross"`
	Discount      valueobject.Money `json:"discount"`
	Net           valueobject.Money `json:"net"`
	Paid          valueobject.Money `json:"paid"`
	Outstanding   valueobject.Money `json:"outstanding"`
	Reconciled    bool              `json:"reconciled"`
	ReconciledAt  *time.Time        `json:"reconciledAt,omitempty"`
	VoidedAt      *time.Time        `json:"voidedAt,omitempty"`
	VoidReason    string            `json:"voidReason,omitempty"`
	CreatedBy     string            `json:"createdBy"`
	CreatedAt     time.Time         `json:"createdAt"`
	Version       int               `json:"version"`
	Lines         []InvoiceLineView `json:"lines"`
}

// NewInvoiceView converts an invoice aggregate
func NewInvoiceView(inv *finance.Invoice) InvoiceView {
	lines := make([]InvoiceLineView, 0, len(inv.Lines))
	for i := range inv.Lines {
		l := &inv.Lines[i]
		lines = append(lines, InvoiceLineView{
			ID:              l.ID,
			Position:        l.Position,
			Kind:            string(l.Kind),
			ItemKey:         l.ItemKey,
			FeeItemID:       l.FeeItemID,
			FeeItemRevision: l.FeeItemRevision,
			CarryForwardID:  l.CarryForwardID,
			DiscountRuleID:  l.DiscountRuleID,
			Description:     l.Description,
			Gross:           l.Gross,
			Discount:        l.Discount,
			Net:             l.Net,
			AmountPaid:      l.AmountPaid,
			AmountCarried:   l.AmountCarried,
			Remaining:       l.Remaining(),
		})
	}
	return InvoiceView{
		ID:            inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		StudentID:     inv.StudentID,
		BillingPeriod: inv.BillingPeriod,
		Sequence:      inv.Sequence,
		Status:        string(inv.Status),
		Currency:      string(inv.Currency),
		DueDate:       inv.DueDate,
		Gross:         inv.TotalGross(),
		Discount:      inv.TotalDiscount(),
		Net:           inv.TotalNet(),
		Paid:          inv.TotalPaid(),
		Outstanding:   inv.Outstanding(),
		Reconciled:    inv.IsReconciled(),
		ReconciledAt:  inv.ReconciledAt,
		VoidedAt:      inv.VoidedAt,
		VoidReason:    inv.VoidReason,
		CreatedBy:     inv.CreatedBy,
		CreatedAt:     inv.CreatedAt,
		Version:       inv.Version,
		Lines:         lines,
	}
}

// NewInvoiceViews converts a list of invoices
func NewInvoiceViews(invoices []*finance.Invoice) []InvoiceView {
	views := make([]InvoiceView, 0, len(invoices))
	for _, inv := range invoices {
		views = append(views, NewInvoiceView(inv))
	}
	return views
}

// GeneratedInvoiceView is the body of a successful generation
type GeneratedInvoiceView struct {
	Invoice       InvoiceView `json:"invoice"`
	CreditApplied bool        `json:"creditApplied"`
}

// AllocationView is one part of a payment bound to an obligation
type AllocationView struct {
	Sequence       int               `json:"sequence"`
	TargetType     string            `json:"targetType"`
	InvoiceID      *uuid.UUID        `json:"invoiceId,omitempty"`
	InvoiceLineID  *uuid.UUID        `json:"invoiceLineId,omitempty"`
	CarryForwardID *uuid.UUID        `json:"carryForwardId,omitempty"`
	Amount         valueobject.Money `json:"amount"`
}

// PaymentView is a recorded payment
type PaymentView struct {
	ID                uuid.UUID         `json:"id"`
	StudentID         uuid.UUID         `json:"studentId"`
	Method            string            `json:"method"`
	Amount            valueobject.Money `json:"amount"`
	ExternalReference string            `json:"externalReference,omitempty"`
	RecordedAt        time.Time         `json:"recordedAt"`
	RecordedBy        string            `json:"recordedBy"`
	Note              string            `json:"note,omitempty"`
	Reversed          bool              `json:"reversed"`
	Allocations       []AllocationView  `json:"allocations"`
}

// NewPaymentView converts a payment aggregate
func NewPaymentView(p *finance.Payment, reversed bool) PaymentView {
	allocations := make([]AllocationView, 0, len(p.Allocations))
	for _, a := range p.Allocations {
		allocations = append(allocations, AllocationView{
			Sequence:       a.Sequence,
			TargetType:     string(a.TargetType),
			InvoiceID:      a.InvoiceID,
			InvoiceLineID:  a.InvoiceLineID,
			CarryForwardID: a.CarryForwardID,
			Amount:         a.Amount,
		})
	}
	return PaymentView{
		ID:                p.ID,
		StudentID:         p.StudentID,
		Method:            string(p.Method),
		Amount:            p.Amount,
		ExternalReference: p.Reference(),
		RecordedAt:        p.RecordedAt,
		RecordedBy:        p.RecordedBy,
		Note:              p.Note,
		Reversed:          reversed,
		Allocations:       allocations,
	}
}

// CarryForwardView is a carry-forward entry
type CarryForwardView struct {
	ID              uuid.UUID          `json:"id"`
	StudentID       uuid.UUID          `json:"studentId"`
	FromPeriod      string             `json:"fromPeriod"`
	ToPeriod        string             `json:"toPeriod"`
	Amount          valueobject.Money  `json:"amount"`
	Source          string             `json:"source"`
	Credit          bool               `json:"credit"`
	SourceInvoiceID *uuid.UUID         `json:"sourceInvoiceId,omitempty"`
	SourcePaymentID *uuid.UUID         `json:"sourcePaymentId,omitempty"`
	DueDate         time.Time          `json:"dueDate"`
	CreatedAt       time.Time          `json:"createdAt"`
	Pending         *bool              `json:"pending,omitempty"`
	Settled         *valueobject.Money `json:"settled,omitempty"`
}

// NewCarryForwardView converts an entry; pending state is attached separately
func NewCarryForwardView(e *finance.CarryForwardEntry) CarryForwardView {
	return CarryForwardView{
		ID:              e.ID,
		StudentID:       e.StudentID,
		FromPeriod:      e.FromPeriod,
		ToPeriod:        e.ToPeriod,
		Amount:          e.Amount,
		Source:          string(e.Source),
		Credit:          e.IsCredit(),
		SourceInvoiceID: e.SourceInvoiceID,
		SourcePaymentID: e.SourcePaymentID,
		DueDate:         e.DueDate,
		CreatedAt:       e.CreatedAt,
	}
}

func newTrackedCarryForwardView(v financeapp.CarryForwardView) CarryForwardView {
	view := NewCarryForwardView(v.Entry)
	pending := v.Pending
	settled := v.Settled
	view.Pending = &pending
	view.Settled = &settled
	return view
}

// AdjustmentView is one append-only ledger correction
type AdjustmentView struct {
	ID             uuid.UUID         `json:"id"`
	Kind           string            `json:"kind"`
	InvoiceID      *uuid.UUID        `json:"invoiceId,omitempty"`
	InvoiceLineID  *uuid.UUID        `json:"invoiceLineId,omitempty"`
	PaymentID      *uuid.UUID        `json:"paymentId,omitempty"`
	CarryForwardID *uuid.UUID        `json:"carryForwardId,omitempty"`
	Amount         valueobject.Money `json:"amount"`
	Reason         string            `json:"reason,omitempty"`
	Actor          string            `json:"actor"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// NewAdjustmentView converts an adjustment
func NewAdjustmentView(a *finance.Adjustment) AdjustmentView {
	return AdjustmentView{
		ID:             a.ID,
		Kind:           string(a.Kind),
		InvoiceID:      a.InvoiceID,
		InvoiceLineID:  a.InvoiceLineID,
		PaymentID:      a.PaymentID,
		CarryForwardID: a.CarryForwardID,
		Amount:         a.Amount,
		Reason:         a.Reason,
		Actor:          a.Actor,
		CreatedAt:      a.CreatedAt,
	}
}

// BalanceView is a student's folded ledger balance.
// Balance is what is owed now; Net is Balance minus Credit.
type BalanceView struct {
	StudentID    uuid.UUID          `json:"studentId"`
	Currency     string             `json:"currency"`
	Balance      valueobject.Money  `json:"balance"`
	Credit       valueobject.Money  `json:"credit"`
	Net          valueobject.Money  `json:"net"`
	Charged      valueobject.Money  `json:"charged"`
	Paid         valueobject.Money  `json:"paid"`
	Checksum     string             `json:"checksum"`
	OpenInvoices []InvoiceView      `json:"openInvoices"`
	Pending      []CarryForwardView `json:"pendingCarryForwards"`
}

// NewBalanceView converts a folded balance
func NewBalanceView(b *finance.LedgerBalance) BalanceView {
	pending := make([]CarryForwardView, 0, len(b.Pending))
	for _, p := range b.Pending {
		view := NewCarryForwardView(p.Entry)
		yes := true
		settled := p.Settled
		view.Pending = &yes
		view.Settled = &settled
		pending = append(pending, view)
	}
	return BalanceView{
		StudentID:    b.StudentID,
		Currency:     string(b.Currency),
		Balance:      b.Outstanding,
		Credit:       b.Credit,
		Net:          b.Net,
		Charged:      b.Charged,
		Paid:         b.Paid,
		Checksum:     b.Checksum,
		OpenInvoices: NewInvoiceViews(b.OpenInvoices),
		Pending:      pending,
	}
}

// CollectionView is the body of a collected payment
type CollectionView struct {
	Payment     PaymentView       `json:"payment"`
	Allocations []AllocationView  `json:"allocations"`
	Credit      *CarryForwardView `json:"credit,omitempty"`
	NewBalance  BalanceView       `json:"newBalance"`
	Replayed    bool              `json:"replayed"`
}

// NewCollectionView converts a collection outcome
func NewCollectionView(o *financeapp.CollectionOutcome) CollectionView {
	payment := NewPaymentView(o.Payment, false)
	view := CollectionView{
		Payment:     payment,
		Allocations: payment.Allocations,
		NewBalance:  NewBalanceView(o.Balance),
		Replayed:    o.Replayed,
	}
	if o.Credit != nil {
		credit := NewCarryForwardView(o.Credit)
		view.Credit = &credit
	}
	return view
}

// VoidView is the body of a voided invoice
type VoidView struct {
	Invoice      InvoiceView       `json:"invoice"`
	Compensation *CarryForwardView `json:"compensation,omitempty"`
	Adjustment   *AdjustmentView   `json:"adjustment,omitempty"`
}

// NewVoidView converts a void result
func NewVoidView(r *finance.VoidResult) VoidView {
	view := VoidView{Invoice: NewInvoiceView(r.Invoice)}
	if r.Compensation != nil {
		c := NewCarryForwardView(r.Compensation)
		view.Compensation = &c
	}
	if r.Adjustment != nil {
		a := NewAdjustmentView(r.Adjustment)
		view.Adjustment = &a
	}
	return view
}

// ReversalView is the body of a reversed payment
type ReversalView struct {
	Payment       PaymentView        `json:"payment"`
	Invoices      []InvoiceView      `json:"invoices"`
	CarryForwards []CarryForwardView `json:"carryForwards"`
	Adjustment    *AdjustmentView    `json:"adjustment,omitempty"`
}

// NewReversalView converts a reversal result
func NewReversalView(r *finance.ReversalResult) ReversalView {
	entries := make([]CarryForwardView, 0, len(r.CarryForwards))
	for _, e := range r.CarryForwards {
		entries = append(entries, NewCarryForwardView(e))
	}
	view := ReversalView{
		Payment:       NewPaymentView(r.Payment, true),
		Invoices:      NewInvoiceViews(r.Touched),
		CarryForwards: entries,
	}
	if r.Adjustment != nil {
		a := NewAdjustmentView(r.Adjustment)
		view.Adjustment = &a
	}
	return view
}

// StatementView is a student's complete ledger
type StatementView struct {
	Balance       BalanceView        `json:"balance"`
	Invoices      []InvoiceView      `json:"invoices"`
	Payments      []PaymentView      `json:"payments"`
	CarryForwards []CarryForwardView `json:"carryForwards"`
	Adjustments   []AdjustmentView   `json:"adjustments"`
}

// NewStatementView converts a statement
func NewStatementView(s *financeapp.Statement) StatementView {
	payments := make([]PaymentView, 0, len(s.Payments))
	for _, p := range s.Payments {
		payments = append(payments, NewPaymentView(p.Payment, p.Reversed))
	}
	adjustments := make([]AdjustmentView, 0, len(s.Adjustments))
	for _, a := range s.Adjustments {
		adjustments = append(adjustments, NewAdjustmentView(a))
	}
	return StatementView{
		Balance:       NewBalanceView(s.Balance),
		Invoices:      NewInvoiceViews(s.Invoices),
		Payments:      payments,
		CarryForwards: NewCarryForwardViews(s.CarryForwards),
		Adjustments:   adjustments,
	}
}

// NewCarryForwardViews converts tracked carry-forward entries
func NewCarryForwardViews(entries []financeapp.CarryForwardView) []CarryForwardView {
	views := make([]CarryForwardView, 0, len(entries))
	for _, e := range entries {
		views = append(views, newTrackedCarryForwardView(e))
	}
	return views
}

// PeriodCloseView is the persisted outcome of a period close
type PeriodCloseView struct {
	ID                 uuid.UUID         `json:"id"`
	BillingPeriod      string            `json:"billingPeriod"`
	Status             string            `json:"status"`
	Forced             bool              `json:"forced"`
	ClosedAt           time.Time         `json:"closedAt"`
	ClosedBy           string            `json:"closedBy"`
	ReopenedAt         *time.Time        `json:"reopenedAt,omitempty"`
	ReopenedBy         string            `json:"reopenedBy,omitempty"`
	InvoicesReconciled int               `json:"invoicesReconciled"`
	FinesApplied       valueobject.Money `json:"finesApplied"`
	CarriedDebt        valueobject.Money `json:"carriedDebt"`
	CarriedCredit      valueobject.Money `json:"carriedCredit"`
	ReportLocation     string            `json:"reportLocation,omitempty"`
}

// NewPeriodCloseView converts a period close record
func NewPeriodCloseView(pc *finance.PeriodClose) PeriodCloseView {
	return PeriodCloseView{
		ID:                 pc.ID,
		BillingPeriod:      pc.BillingPeriod,
		Status:             string(pc.Status),
		Forced:             pc.Forced,
		ClosedAt:           pc.ClosedAt,
		ClosedBy:           pc.ClosedBy,
		ReopenedAt:         pc.ReopenedAt,
		ReopenedBy:         pc.ReopenedBy,
		InvoicesReconciled: pc.InvoicesReconciled,
		FinesApplied:       pc.FinesApplied,
		CarriedDebt:        pc.CarriedDebt,
		CarriedCredit:      pc.CarriedCredit,
		ReportLocation:     pc.ReportLocation,
	}
}

// CloseReportView wraps a reconciliation report with its completeness
type CloseReportView struct {
	Report   *finance.ReconciliationReport `json:"report"`
	Complete bool                          `json:"complete"`
}

// ArchivedReportView is a download link for an archived report
type ArchivedReportView struct {
	Period    string    `json:"period"`
	Location  string    `json:"location"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// NewArchivedReportView converts an archived report link
func NewArchivedReportView(r *financeapp.ArchivedReport) ArchivedReportView {
	return ArchivedReportView{Period: r.Period, Location: r.Location, URL: r.URL, ExpiresAt: r.ExpiresAt}
}
