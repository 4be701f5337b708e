package finance

import (
	"context"

	"github.com/erp/ledger/internal/application"
	"github.com/erp/ledger/internal/application/numbering"
	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"go.uber.org/zap"
)

// InvoiceService handles invoice commands
type InvoiceService struct {
	invoices finance.InvoiceRepository
	calendar finance.FiscalCalendar
	numbers  *numbering.Generator
	opts     serviceOptions
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(
	invoices finance.InvoiceRepository,
	calendar finance.FiscalCalendar,
	numbers *numbering.Generator,
	opts ...ServiceOption,
) *InvoiceService {
	return &InvoiceService{
		invoices: invoices,
		calendar: calendar,
		numbers:  numbers,
		opts:     newServiceOptions(opts),
	}
}

// Create creates a draft invoice together with its initial lines. The
// invoice and its lines are appended as one batch.
func (s *InvoiceService) Create(ctx context.Context, cmd CreateInvoiceCommand) (application.CommandResult, error) {
	if err := s.opts.validator.Struct(cmd); err != nil {
		return application.CommandResult{}, err
	}
	currency, err := s.opts.currencyOr(cmd.Currency)
	if err != nil {
		return application.CommandResult{}, err
	}
	number := cmd.Number
	if number == "" {
		number = s.numbers.InvoiceNumber()
	}

	inv, err := finance.CreateInvoice(cmd.TenantID, s.calendar, finance.CreateInvoiceInput{
		Number:     number,
		VendorID:   cmd.VendorID,
		CustomerID: cmd.CustomerID,
		Currency:   currency,
		IssueDate:  cmd.IssueDate,
		DueDate:    cmd.DueDate,
	})
	if err != nil {
		return application.CommandResult{}, err
	}
	for _, lc := range cmd.Lines {
		input, err := lineItemInput(lc, currency)
		if err != nil {
			return application.CommandResult{}, err
		}
		if _, err := inv.AddLineItem(input); err != nil {
			return application.CommandResult{}, err
		}
	}

	result, err := create(ctx, s.invoices.Save, inv)
	if err != nil {
		return result, err
	}
	s.opts.logger.Info("invoice created",
		zap.String("tenant_id", cmd.TenantID.String()),
		zap.String("invoice_id", inv.ID().String()),
		zap.String("number", number),
		zap.Int("lines", len(cmd.Lines)),
	)
	return result, nil
}

// AddLine adds a line item to a draft invoice
func (s *InvoiceService) AddLine(ctx context.Context, cmd AddInvoiceLineCommand) (application.CommandResult, error) {
	if err := s.opts.validator.Struct(cmd); err != nil {
		return application.CommandResult{}, err
	}
	return execute(ctx, s.opts.retry,
		s.loader(cmd.TenantID, cmd.InvoiceID),
		s.invoices.Save,
		func(inv *finance.Invoice) error {
			input, err := lineItemInput(cmd.Line, inv.State().Currency)
			if err != nil {
				return err
			}
			_, err = inv.AddLineItem(input)
			return err
		},
	)
}

// RemoveLine removes a line item from a draft invoice
func (s *InvoiceService) RemoveLine(ctx context.Context, cmd RemoveInvoiceLineCommand) (application.CommandResult, error) {
	if err := s.opts.validator.Struct(cmd); err != nil {
		return application.CommandResult{}, err
	}
	return execute(ctx, s.opts.retry,
		s.loader(cmd.TenantID, cmd.InvoiceID),
		s.invoices.Save,
		func(inv *finance.Invoice) error {
			return inv.RemoveLineItem(cmd.LineNo)
		},
	)
}

// Approve approves a draft invoice, generating a regulatory number when none is given
func (s *InvoiceService) Approve(ctx context.Context, cmd ApproveInvoiceCommand) (application.CommandResult, error) {
	if err := s.opts.validator.Struct(cmd); err != nil {
		return application.CommandResult{}, err
	}
	regNo := cmd.RegulatoryNumber
	if regNo == "" {
		regNo = s.numbers.RegulatoryNumber()
	}
	result, err := execute(ctx, s.opts.retry,
		s.loader(cmd.TenantID, cmd.InvoiceID),
		s.invoices.Save,
		func(inv *finance.Invoice) error {
			return inv.Approve(regNo)
		},
	)
	if err != nil {
		return result, err
	}
	s.opts.logger.Info("invoice approved",
		zap.String("tenant_id", cmd.TenantID.String()),
		zap.String("invoice_id", cmd.InvoiceID.String()),
		zap.String("regulatory_number", regNo),
	)
	return result, nil
}

// Cancel cancels an unpaid invoice
func (s *InvoiceService) Cancel(ctx context.Context, cmd CancelInvoiceCommand) (application.CommandResult, error) {
	if err := s.opts.validator.Struct(cmd); err != nil {
		return application.CommandResult{}, err
	}
	return execute(ctx, s.opts.retry,
		s.loader(cmd.TenantID, cmd.InvoiceID),
		s.invoices.Save,
		func(inv *finance.Invoice) error {
			return inv.Cancel(cmd.Reason)
		},
	)
}

// RecordPayment applies an amount to an approved invoice outside the payment
// saga. Recording the same payment id twice is a no-op.
func (s *InvoiceService) RecordPayment(ctx context.Context, cmd RecordInvoicePaymentCommand) (application.CommandResult, error) {
	if err := s.opts.validator.Struct(cmd); err != nil {
		return application.CommandResult{}, err
	}
	return execute(ctx, s.opts.retry,
		s.loader(cmd.TenantID, cmd.InvoiceID),
		s.invoices.Save,
		func(inv *finance.Invoice) error {
			amount, err := money(cmd.Amount, inv.State().Currency)
			if err != nil {
				return err
			}
			_, err = inv.RecordPayment(cmd.PaymentID, amount)
			return err
		},
	)
}

func (s *InvoiceService) loader(tenantID valueobject.TenantID, id valueobject.InvoiceID) func(context.Context) (*finance.Invoice, error) {
	return func(ctx context.Context) (*finance.Invoice, error) {
		return s.invoices.Load(ctx, tenantID, id)
	}
}

func lineItemInput(cmd LineItemCommand, currency valueobject.Currency) (finance.LineItemInput, error) {
	category, err := finance.ParseVATCategory(cmd.VATCategory)
	if err != nil {
		return finance.LineItemInput{}, err
	}
	unitPrice, err := money(cmd.UnitPrice, currency)
	if err != nil {
		return finance.LineItemInput{}, err
	}
	duty, err := optionalMoney(cmd.Duty, currency)
	if err != nil {
		return finance.LineItemInput{}, err
	}
	advanceTax, err := optionalMoney(cmd.AdvanceTax, currency)
	if err != nil {
		return finance.LineItemInput{}, err
	}
	return finance.LineItemInput{
		Description: cmd.Description,
		Quantity:    cmd.Quantity,
		UnitPrice:   unitPrice,
		VATCategory: category,
		Duty:        duty,
		AdvanceTax:  advanceTax,
	}, nil
}
