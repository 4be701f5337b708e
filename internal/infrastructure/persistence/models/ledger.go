package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/report"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Read table names. Projections are named after the table they own.
const (
	TableAccountViews    = "account_views"
	TableInvoiceViews    = "invoice_views"
	TablePaymentViews    = "payment_views"
	TableJournalViews    = "journal_views"
	TableAccountBalances = "account_balances"
	TablePeriodSummaries = "period_summaries"
	TableClosedPeriods   = "closed_periods"

	TableAppliedEvents      = "projection_applied_events"
	TableProjectionFailures = "projection_failures"
)

// TenantViewModel provides the key shared by every read row: rows are
// partitioned by tenant and carry the sequence of the last applied event.
type TenantViewModel struct {
	TenantID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	LastSequence int64     `gorm:"not null;default:0"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// AccountViewModel is the persistence model for account_views
type AccountViewModel struct {
	TenantViewModel
	Code          string          `gorm:"size:50;not null"`
	Name          string          `gorm:"size:200;not null"`
	Type          string          `gorm:"size:20;not null;index"`
	ParentID      *uuid.UUID      `gorm:"type:uuid"`
	Currency      string          `gorm:"size:3;not null"`
	Balance       decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Active        bool            `gorm:"not null"`
	DeactivatedAt *time.Time
}

// TableName returns the table name for GORM
func (AccountViewModel) TableName() string {
	return TableAccountViews
}

// ToView converts the model to the read view
func (m *AccountViewModel) ToView() (*report.AccountView, error) {
	code, err := valueobject.NewAccountCode(m.Code)
	if err != nil {
		return nil, fmt.Errorf("account view %s: %w", m.ID, err)
	}
	v := &report.AccountView{
		ID:            valueobject.AccountID(m.ID),
		TenantID:      valueobject.TenantID(m.TenantID),
		Code:          code,
		Name:          m.Name,
		Type:          finance.AccountType(m.Type),
		Currency:      valueobject.Currency(m.Currency),
		Balance:       m.Balance,
		Active:        m.Active,
		LastSequence:  m.LastSequence,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
		DeactivatedAt: m.DeactivatedAt,
	}
	if m.ParentID != nil {
		parent := valueobject.AccountID(*m.ParentID)
		v.ParentID = &parent
	}
	return v, nil
}

// AccountViewModelFromView converts a read view to its persistence model
func AccountViewModelFromView(v *report.AccountView) *AccountViewModel {
	m := &AccountViewModel{
		TenantViewModel: TenantViewModel{
			TenantID:     v.TenantID.UUID(),
			ID:           v.ID.UUID(),
			LastSequence: v.LastSequence,
			CreatedAt:    v.CreatedAt,
			UpdatedAt:    v.UpdatedAt,
		},
		Code:          v.Code.String(),
		Name:          v.Name,
		Type:          string(v.Type),
		Currency:      string(v.Currency),
		Balance:       v.Balance,
		Active:        v.Active,
		DeactivatedAt: v.DeactivatedAt,
	}
	if v.ParentID != nil {
		parent := v.ParentID.UUID()
		m.ParentID = &parent
	}
	return m
}

// InvoiceViewModel is the persistence model for invoice_views
type InvoiceViewModel struct {
	TenantViewModel
	Number           string          `gorm:"size:50;not null"`
	VendorID         uuid.UUID       `gorm:"type:uuid;not null"`
	CustomerID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	Currency         string          `gorm:"size:3;not null"`
	IssueDate        time.Time       `gorm:"not null"`
	DueDate          *time.Time      `gorm:"index"`
	FiscalYear       string          `gorm:"size:20;not null;index"`
	FiscalPeriod     string          `gorm:"size:20;not null"`
	Status           string          `gorm:"size:20;not null;index"`
	LinesJSON        string          `gorm:"column:lines;type:jsonb;not null"`
	Subtotal         decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	VATTotal         decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	DutyTotal        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	AdvanceTaxTotal  decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	GrandTotal       decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	PaidAmount       decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	RemainingBalance decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	RegulatoryNumber string          `gorm:"size:100"`
	CancelReason     string          `gorm:"size:500"`
}

// TableName returns the table name for GORM
func (InvoiceViewModel) TableName() string {
	return TableInvoiceViews
}

// ToView converts the model to the read view
func (m *InvoiceViewModel) ToView() (*report.InvoiceView, error) {
	var lines []report.InvoiceLineView
	if m.LinesJSON != "" {
		if err := json.Unmarshal([]byte(m.LinesJSON), &lines); err != nil {
			return nil, fmt.Errorf("invoice view %s: failed to decode lines: %w", m.ID, err)
		}
	}
	return &report.InvoiceView{
		ID:               valueobject.InvoiceID(m.ID),
		TenantID:         valueobject.TenantID(m.TenantID),
		Number:           m.Number,
		VendorID:         valueobject.PartyID(m.VendorID),
		CustomerID:       valueobject.PartyID(m.CustomerID),
		Currency:         valueobject.Currency(m.Currency),
		IssueDate:        m.IssueDate,
		DueDate:          m.DueDate,
		FiscalYear:       m.FiscalYear,
		FiscalPeriod:     m.FiscalPeriod,
		Status:           finance.InvoiceStatus(m.Status),
		Lines:            lines,
		Subtotal:         m.Subtotal,
		VATTotal:         m.VATTotal,
		DutyTotal:        m.DutyTotal,
		AdvanceTaxTotal:  m.AdvanceTaxTotal,
		GrandTotal:       m.GrandTotal,
		PaidAmount:       m.PaidAmount,
		RemainingBalance: m.RemainingBalance,
		RegulatoryNumber: m.RegulatoryNumber,
		CancelReason:     m.CancelReason,
		LastSequence:     m.LastSequence,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}, nil
}

// InvoiceViewModelFromView converts a read view to its persistence model
func InvoiceViewModelFromView(v *report.InvoiceView) (*InvoiceViewModel, error) {
	lines := v.Lines
	if lines == nil {
		lines = []report.InvoiceLineView{}
	}
	linesJSON, err := json.Marshal(lines)
	if err != nil {
		return nil, fmt.Errorf("failed to encode invoice lines: %w", err)
	}
	return &InvoiceViewModel{
		TenantViewModel: TenantViewModel{
			TenantID:     v.TenantID.UUID(),
			ID:           v.ID.UUID(),
			LastSequence: v.LastSequence,
			CreatedAt:    v.CreatedAt,
			UpdatedAt:    v.UpdatedAt,
		},
		Number:           v.Number,
		VendorID:         v.VendorID.UUID(),
		CustomerID:       v.CustomerID.UUID(),
		Currency:         string(v.Currency),
		IssueDate:        v.IssueDate,
		DueDate:          v.DueDate,
		FiscalYear:       v.FiscalYear,
		FiscalPeriod:     v.FiscalPeriod,
		Status:           string(v.Status),
		LinesJSON:        string(linesJSON),
		Subtotal:         v.Subtotal,
		VATTotal:         v.VATTotal,
		DutyTotal:        v.DutyTotal,
		AdvanceTaxTotal:  v.AdvanceTaxTotal,
		GrandTotal:       v.GrandTotal,
		PaidAmount:       v.PaidAmount,
		RemainingBalance: v.RemainingBalance,
		RegulatoryNumber: v.RegulatoryNumber,
		CancelReason:     v.CancelReason,
	}, nil
}

// PaymentViewModel is the persistence model for payment_views
type PaymentViewModel struct {
	TenantViewModel
	Number            string          `gorm:"size:50;not null"`
	InvoiceID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	Amount            decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Currency          string          `gorm:"size:3;not null"`
	Method            string          `gorm:"size:30;not null"`
	Status            string          `gorm:"size:20;not null;index"`
	WalletReference   string          `gorm:"size:100"`
	ExternalReference string          `gorm:"size:100"`
	BankReference     string          `gorm:"size:100"`
	FailureReason     string          `gorm:"size:500"`
	InvoiceApplied    bool            `gorm:"not null;default:false"`
	SyncError         string          `gorm:"size:1000"`
	SyncAttempts      int             `gorm:"not null;default:0"`
	CompletedAt       *time.Time
}

// TableName returns the table name for GORM
func (PaymentViewModel) TableName() string {
	return TablePaymentViews
}

// ToView converts the model to the read view
func (m *PaymentViewModel) ToView() *report.PaymentView {
	return &report.PaymentView{
		ID:                valueobject.PaymentID(m.ID),
		TenantID:          valueobject.TenantID(m.TenantID),
		Number:            m.Number,
		InvoiceID:         valueobject.InvoiceID(m.InvoiceID),
		Amount:            m.Amount,
		Currency:          valueobject.Currency(m.Currency),
		Method:            finance.PaymentMethod(m.Method),
		Status:            finance.PaymentStatus(m.Status),
		WalletReference:   m.WalletReference,
		ExternalReference: m.ExternalReference,
		BankReference:     m.BankReference,
		FailureReason:     m.FailureReason,
		InvoiceApplied:    m.InvoiceApplied,
		SyncError:         m.SyncError,
		SyncAttempts:      m.SyncAttempts,
		LastSequence:      m.LastSequence,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
		CompletedAt:       m.CompletedAt,
	}
}

// PaymentViewModelFromView converts a read view to its persistence model
func PaymentViewModelFromView(v *report.PaymentView) *PaymentViewModel {
	return &PaymentViewModel{
		TenantViewModel: TenantViewModel{
			TenantID:     v.TenantID.UUID(),
			ID:           v.ID.UUID(),
			LastSequence: v.LastSequence,
			CreatedAt:    v.CreatedAt,
			UpdatedAt:    v.UpdatedAt,
		},
		Number:            v.Number,
		InvoiceID:         v.InvoiceID.UUID(),
		Amount:            v.Amount,
		Currency:          string(v.Currency),
		Method:            string(v.Method),
		Status:            string(v.Status),
		WalletReference:   v.WalletReference,
		ExternalReference: v.ExternalReference,
		BankReference:     v.BankReference,
		FailureReason:     v.FailureReason,
		InvoiceApplied:    v.InvoiceApplied,
		SyncError:         v.SyncError,
		SyncAttempts:      v.SyncAttempts,
		CompletedAt:       v.CompletedAt,
	}
}

// JournalViewModel is the persistence model for journal_views
type JournalViewModel struct {
	TenantViewModel
	Number       string          `gorm:"size:50;not null"`
	Type         string          `gorm:"size:30;not null"`
	JournalDate  time.Time       `gorm:"not null;index"`
	Description  string          `gorm:"size:500"`
	Currency     string          `gorm:"size:3;not null"`
	FiscalYear   string          `gorm:"size:20;not null"`
	FiscalPeriod string          `gorm:"size:20;not null;index"`
	Status       string          `gorm:"size:20;not null;index"`
	LinesJSON    string          `gorm:"column:lines;type:jsonb;not null"`
	TotalDebit   decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	TotalCredit  decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	IsReversing  bool            `gorm:"not null;default:false"`
	ReversesID   *uuid.UUID      `gorm:"type:uuid"`
	ReversedByID *uuid.UUID      `gorm:"type:uuid"`
	PostedAt     *time.Time
}

// TableName returns the table name for GORM
func (JournalViewModel) TableName() string {
	return TableJournalViews
}

// ToView converts the model to the read view
func (m *JournalViewModel) ToView() (*report.JournalView, error) {
	var lines []report.JournalLineView
	if m.LinesJSON != "" {
		if err := json.Unmarshal([]byte(m.LinesJSON), &lines); err != nil {
			return nil, fmt.Errorf("journal view %s: failed to decode lines: %w", m.ID, err)
		}
	}
	v := &report.JournalView{
		ID:           valueobject.JournalID(m.ID),
		TenantID:     valueobject.TenantID(m.TenantID),
		Number:       m.Number,
		Type:         finance.JournalType(m.Type),
		JournalDate:  m.JournalDate,
		Description:  m.Description,
		Currency:     valueobject.Currency(m.Currency),
		FiscalYear:   m.FiscalYear,
		FiscalPeriod: m.FiscalPeriod,
		Status:       finance.JournalStatus(m.Status),
		Lines:        lines,
		TotalDebit:   m.TotalDebit,
		TotalCredit:  m.TotalCredit,
		IsReversing:  m.IsReversing,
		LastSequence: m.LastSequence,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
		PostedAt:     m.PostedAt,
	}
	if m.ReversesID != nil {
		id := valueobject.JournalID(*m.ReversesID)
		v.ReversesID = &id
	}
	if m.ReversedByID != nil {
		id := valueobject.JournalID(*m.ReversedByID)
		v.ReversedByID = &id
	}
	return v, nil
}

// JournalViewModelFromView converts a read view to its persistence model
func JournalViewModelFromView(v *report.JournalView) (*JournalViewModel, error) {
	lines := v.Lines
	if lines == nil {
		lines = []report.JournalLineView{}
	}
	linesJSON, err := json.Marshal(lines)
	if err != nil {
		return nil, fmt.Errorf("failed to encode journal lines: %w", err)
	}
	m := &JournalViewModel{
		TenantViewModel: TenantViewModel{
			TenantID:     v.TenantID.UUID(),
			ID:           v.ID.UUID(),
			LastSequence: v.LastSequence,
			CreatedAt:    v.CreatedAt,
			UpdatedAt:    v.UpdatedAt,
		},
		Number:       v.Number,
		Type:         string(v.Type),
		JournalDate:  v.JournalDate,
		Description:  v.Description,
		Currency:     string(v.Currency),
		FiscalYear:   v.FiscalYear,
		FiscalPeriod: v.FiscalPeriod,
		Status:       string(v.Status),
		LinesJSON:    string(linesJSON),
		TotalDebit:   v.TotalDebit,
		TotalCredit:  v.TotalCredit,
		IsReversing:  v.IsReversing,
		PostedAt:     v.PostedAt,
	}
	if v.ReversesID != nil {
		id := v.ReversesID.UUID()
		m.ReversesID = &id
	}
	if v.ReversedByID != nil {
		id := v.ReversedByID.UUID()
		m.ReversedByID = &id
	}
	return m, nil
}

// AccountBalanceModel is the persistence model for account_balances
type AccountBalanceModel struct {
	TenantID        uuid.UUID       `gorm:"type:uuid;primaryKey"`
	AccountID       uuid.UUID       `gorm:"type:uuid;primaryKey"`
	FiscalYear      string          `gorm:"size:20;primaryKey"`
	FiscalYearStart int             `gorm:"not null;index"`
	DebitTotal      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	CreditTotal     decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	PostingCount    int64           `gorm:"not null;default:0"`
	UpdatedAt       time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AccountBalanceModel) TableName() string {
	return TableAccountBalances
}

// ToView converts the model to the read view
func (m *AccountBalanceModel) ToView() *report.AccountBalanceView {
	return &report.AccountBalanceView{
		TenantID:        valueobject.TenantID(m.TenantID),
		AccountID:       valueobject.AccountID(m.AccountID),
		FiscalYear:      m.FiscalYear,
		FiscalYearStart: m.FiscalYearStart,
		DebitTotal:      m.DebitTotal,
		CreditTotal:     m.CreditTotal,
		PostingCount:    m.PostingCount,
		UpdatedAt:       m.UpdatedAt,
	}
}

// PeriodSummaryModel is the persistence model for period_summaries
type PeriodSummaryModel struct {
	TenantID        uuid.UUID       `gorm:"type:uuid;primaryKey"`
	FiscalPeriod    string          `gorm:"size:20;primaryKey"`
	FiscalYear      string          `gorm:"size:20;not null;index"`
	InvoicedAmount  decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Subtotal        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	VATAmount       decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	ZeroRatedAmount decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	ExemptAmount    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	DutyAmount      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	AdvanceTax      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	PaidAmount      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	InvoiceCount    int64           `gorm:"not null;default:0"`
	PaymentCount    int64           `gorm:"not null;default:0"`
	CancelledCount  int64           `gorm:"not null;default:0"`
	UpdatedAt       time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PeriodSummaryModel) TableName() string {
	return TablePeriodSummaries
}

// NewPeriodSummaryModel returns an all-zero summary row
func NewPeriodSummaryModel(tenantID uuid.UUID, fiscalPeriod, fiscalYear string) *PeriodSummaryModel {
	return &PeriodSummaryModel{
		TenantID:        tenantID,
		FiscalPeriod:    fiscalPeriod,
		FiscalYear:      fiscalYear,
		InvoicedAmount:  decimal.Zero,
		Subtotal:        decimal.Zero,
		VATAmount:       decimal.Zero,
		ZeroRatedAmount: decimal.Zero,
		ExemptAmount:    decimal.Zero,
		DutyAmount:      decimal.Zero,
		AdvanceTax:      decimal.Zero,
		PaidAmount:      decimal.Zero,
	}
}

// Add applies an additive delta to the summary
func (m *PeriodSummaryModel) Add(d report.PeriodSummaryDelta) {
	m.InvoicedAmount = m.InvoicedAmount.Add(d.InvoicedAmount)
	m.Subtotal = m.Subtotal.Add(d.Subtotal)
	m.VATAmount = m.VATAmount.Add(d.VATAmount)
	m.ZeroRatedAmount = m.ZeroRatedAmount.Add(d.ZeroRatedAmount)
	m.ExemptAmount = m.ExemptAmount.Add(d.ExemptAmount)
	m.DutyAmount = m.DutyAmount.Add(d.DutyAmount)
	m.AdvanceTax = m.AdvanceTax.Add(d.AdvanceTax)
	m.PaidAmount = m.PaidAmount.Add(d.PaidAmount)
	m.InvoiceCount += d.InvoiceCount
	m.PaymentCount += d.PaymentCount
	m.CancelledCount += d.CancelledCount
}

// ToView converts the model to the read view
func (m *PeriodSummaryModel) ToView() *report.PeriodSummaryView {
	return &report.PeriodSummaryView{
		TenantID:        valueobject.TenantID(m.TenantID),
		FiscalPeriod:    m.FiscalPeriod,
		FiscalYear:      m.FiscalYear,
		InvoicedAmount:  m.InvoicedAmount,
		Subtotal:        m.Subtotal,
		VATAmount:       m.VATAmount,
		ZeroRatedAmount: m.ZeroRatedAmount,
		ExemptAmount:    m.ExemptAmount,
		DutyAmount:      m.DutyAmount,
		AdvanceTax:      m.AdvanceTax,
		PaidAmount:      m.PaidAmount,
		InvoiceCount:    m.InvoiceCount,
		PaymentCount:    m.PaymentCount,
		CancelledCount:  m.CancelledCount,
		UpdatedAt:       m.UpdatedAt,
	}
}

// ClosedPeriodModel is the persistence model for closed_periods
type ClosedPeriodModel struct {
	TenantID uuid.UUID `gorm:"type:uuid;primaryKey"`
	Label    string    `gorm:"size:20;primaryKey"`
	Start    time.Time `gorm:"column:period_start;not null"`
	End      time.Time `gorm:"column:period_end;not null"`
	ClosedAt time.Time `gorm:"not null"`
	ClosedBy string    `gorm:"size:100"`
}

// TableName returns the table name for GORM
func (ClosedPeriodModel) TableName() string {
	return TableClosedPeriods
}

// ToView converts the model to the read view
func (m *ClosedPeriodModel) ToView() *report.ClosedPeriodView {
	return &report.ClosedPeriodView{
		TenantID: valueobject.TenantID(m.TenantID),
		Label:    m.Label,
		Start:    m.Start,
		End:      m.End,
		ClosedAt: m.ClosedAt,
		ClosedBy: m.ClosedBy,
	}
}

// AppliedEventModel marks an event as applied by an additive projection
type AppliedEventModel struct {
	Projection string    `gorm:"size:100;primaryKey"`
	EventID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID   uuid.UUID `gorm:"type:uuid;not null;index"`
	AppliedAt  time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AppliedEventModel) TableName() string {
	return TableAppliedEvents
}

// ProjectionFailureModel is the persistence model for projection_failures
type ProjectionFailureModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID      uuid.UUID `gorm:"type:uuid;not null;index:idx_projection_failures_tenant_status,priority:1"`
	Kind          string    `gorm:"size:20;not null"`
	Handler       string    `gorm:"size:100;not null;uniqueIndex:uq_projection_failures_handler_event,priority:1"`
	EventID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_projection_failures_handler_event,priority:2"`
	EventType     string    `gorm:"size:100;not null"`
	AggregateID   uuid.UUID `gorm:"type:uuid;not null"`
	AggregateType string    `gorm:"size:50;not null"`
	Sequence      int64     `gorm:"not null"`
	Position      int64     `gorm:"not null;default:0"`
	LastError     string    `gorm:"type:text"`
	Attempts      int       `gorm:"not null;default:1"`
	Status        string    `gorm:"size:20;not null;index:idx_projection_failures_tenant_status,priority:2"`
	ResolvedAt    *time.Time
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ProjectionFailureModel) TableName() string {
	return TableProjectionFailures
}

// ToDomain converts the model to a processing failure
func (m *ProjectionFailureModel) ToDomain() *shared.ProcessingFailure {
	return &shared.ProcessingFailure{
		ID:            m.ID,
		TenantID:      m.TenantID,
		Kind:          shared.FailureKind(m.Kind),
		Handler:       m.Handler,
		EventID:       m.EventID,
		EventType:     m.EventType,
		AggregateID:   m.AggregateID,
		AggregateType: m.AggregateType,
		Sequence:      m.Sequence,
		Position:      m.Position,
		LastError:     m.LastError,
		Attempts:      m.Attempts,
		Status:        shared.FailureStatus(m.Status),
		ResolvedAt:    m.ResolvedAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// ProjectionFailureModelFromDomain converts a processing failure to its persistence model
func ProjectionFailureModelFromDomain(f *shared.ProcessingFailure) *ProjectionFailureModel {
	return &ProjectionFailureModel{
		ID:            f.ID,
		TenantID:      f.TenantID,
		Kind:          string(f.Kind),
		Handler:       f.Handler,
		EventID:       f.EventID,
		EventType:     f.EventType,
		AggregateID:   f.AggregateID,
		AggregateType: f.AggregateType,
		Sequence:      f.Sequence,
		Position:      f.Position,
		LastError:     f.LastError,
		Attempts:      f.Attempts,
		Status:        string(f.Status),
		ResolvedAt:    f.ResolvedAt,
		CreatedAt:     f.CreatedAt,
		UpdatedAt:     f.UpdatedAt,
	}
}
