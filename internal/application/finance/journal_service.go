package finance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/ledger/internal/application"
	"github.com/erp/ledger/internal/application/numbering"
	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"go.uber.org/zap"
)

// ReverseJournalResult reports both sides of a reversal
type ReverseJournalResult struct {
	Original application.CommandResult `json:"original"`
	Reversal application.CommandResult `json:"reversal"`
}

// JournalService handles journal entry commands
type JournalService struct {
	journals finance.JournalRepository
	accounts finance.AccountRepository
	periods  finance.AccountingPeriodsRepository
	calendar finance.FiscalCalendar
	numbers  *numbering.Generator
	opts     serviceOptions
}

// NewJournalService creates a new JournalService
func NewJournalService(
	journals finance.JournalRepository,
	accounts finance.AccountRepository,
	periods finance.AccountingPeriodsRepository,
	calendar finance.FiscalCalendar,
	numbers *numbering.Generator,
	opts ...ServiceOption,
) *JournalService {
	return &JournalService{
		journals: journals,
		accounts: accounts,
		periods:  periods,
		calendar: calendar,
		numbers:  numbers,
		opts:     newServiceOptions(opts),
	}
}

// Create creates a draft journal and, when asked, posts it in the same append
func (s *JournalService) Create(ctx context.Context, cmd CreateJournalCommand) (application.CommandResult, error) {
	if err := s.opts.validator.Struct(cmd); err != nil {
		return application.CommandResult{}, err
	}
	currency, err := s.opts.currencyOr(cmd.Currency)
	if err != nil {
		return application.CommandResult{}, err
	}
	journalType := finance.JournalType(cmd.Type)
	number := cmd.Number
	if number == "" {
		number = s.numbers.JournalNumber(journalType)
	}
	lines := make([]finance.JournalLineInput, 0, len(cmd.Lines))
	for _, lc := range cmd.Lines {
		input, err := journalLineInput(lc, currency)
		if err != nil {
			return application.CommandResult{}, err
		}
		lines = append(lines, input)
	}

	journal, err := finance.NewJournalEntry(cmd.TenantID, s.calendar, finance.CreateJournalInput{
		Number:      number,
		Type:        journalType,
		JournalDate: cmd.JournalDate,
		Description: cmd.Description,
		Currency:    currency,
		Lines:       lines,
	})
	if err != nil {
		return application.CommandResult{}, err
	}
	if cmd.Post {
		if err := s.post(ctx, cmd.TenantID, journal); err != nil {
			return application.CommandResult{}, err
		}
	}

	result, err := create(ctx, s.journals.Save, journal)
	if err != nil {
		return result, err
	}
	s.opts.logger.Info("journal created",
		zap.String("tenant_id", cmd.TenantID.String()),
		zap.String("journal_id", journal.ID().String()),
		zap.String("number", number),
		zap.Bool("posted", cmd.Post),
	)
	return result, nil
}

// AddLine adds a line to a draft journal
func (s *JournalService) AddLine(ctx context.Context, cmd AddJournalLineCommand) (application.CommandResult, error) {
	if err := s.opts.validator.Struct(cmd); err != nil {
		return application.CommandResult{}, err
	}
	return execute(ctx, s.opts.retry,
		s.loader(cmd.TenantID, cmd.JournalID),
		s.journals.Save,
		func(j *finance.JournalEntry) error {
			input, err := journalLineInput(cmd.Line, j.State().Currency)
			if err != nil {
				return err
			}
			_, err = j.AddLine(input)
			return err
		},
	)
}

// RemoveLine removes a line from a draft journal
func (s *JournalService) RemoveLine(ctx context.Context, cmd RemoveJournalLineCommand) (application.CommandResult, error) {
	if err := s.opts.validator.Struct(cmd); err != nil {
		return application.CommandResult{}, err
	}
	return execute(ctx, s.opts.retry,
		s.loader(cmd.TenantID, cmd.JournalID),
		s.journals.Save,
		func(j *finance.JournalEntry) error {
			return j.RemoveLine(cmd.LineNo)
		},
	)
}

// Post posts a balanced draft journal into an open period. Account balances
// follow through the journal→account saga once the posted event is dispatched.
func (s *JournalService) Post(ctx context.Context, cmd PostJournalCommand) (application.CommandResult, error) {
	if err := s.opts.validator.Struct(cmd); err != nil {
		return application.CommandResult{}, err
	}
	result, err := execute(ctx, s.opts.retry,
		s.loader(cmd.TenantID, cmd.JournalID),
		s.journals.Save,
		func(j *finance.JournalEntry) error {
			return s.post(ctx, cmd.TenantID, j)
		},
	)
	if err != nil {
		return result, err
	}
	s.opts.logger.Info("journal posted",
		zap.String("tenant_id", cmd.TenantID.String()),
		zap.String("journal_id", cmd.JournalID.String()),
	)
	return result, nil
}

// post checks the touched accounts and the period register, then posts
func (s *JournalService) post(ctx context.Context, tenantID valueobject.TenantID, j *finance.JournalEntry) error {
	if err := s.checkAccounts(ctx, tenantID, j); err != nil {
		return err
	}
	periods, err := s.periods.Load(ctx, tenantID)
	if err != nil {
		return err
	}
	return j.Post(periods, s.opts.clock.Now())
}

// checkAccounts rejects postings to unknown, inactive or foreign-currency accounts
func (s *JournalService) checkAccounts(ctx context.Context, tenantID valueobject.TenantID, j *finance.JournalEntry) error {
	currency := j.State().Currency
	for _, p := range j.Postings() {
		account, err := s.accounts.Load(ctx, tenantID, p.AccountID)
		if err != nil {
			if shared.IsNotFound(err) {
				return shared.ErrNotFound.WithDetail("account_id", p.AccountID.String())
			}
			return err
		}
		if !account.IsActive() {
			return finance.ErrAccountInactive.WithDetail("account_code", account.Code().String())
		}
		if account.Currency() != currency {
			return shared.ErrCurrencyMismatch.
				WithDetail("account_currency", string(account.Currency())).
				WithDetail("journal_currency", string(currency))
		}
	}
	return nil
}

// Reverse issues the posted reversing journal of a posted journal.
//
// The original is marked Reversed first, so of two concurrent reversals only
// one passes the version check. The reversal stream is written second; when
// an earlier attempt marked the original but never wrote the reversal, the
// reversal is reissued from the original's recorded reversal details.
func (s *JournalService) Reverse(ctx context.Context, cmd ReverseJournalCommand) (ReverseJournalResult, error) {
	if err := s.opts.validator.Struct(cmd); err != nil {
		return ReverseJournalResult{}, err
	}
	periods, err := s.periods.Load(ctx, cmd.TenantID)
	if err != nil {
		return ReverseJournalResult{}, err
	}
	number := cmd.Number
	if number == "" {
		number = s.numbers.JournalNumber(finance.JournalTypeReversal)
	}

	var reversal *finance.JournalEntry
	original, err := execute(ctx, s.opts.retry,
		s.loader(cmd.TenantID, cmd.JournalID),
		s.journals.Save,
		func(j *finance.JournalEntry) error {
			reversalDate := j.State().JournalDate
			if cmd.ReversalDate != nil {
				reversalDate = *cmd.ReversalDate
			}
			var err error
			reversal, err = j.Reverse(s.calendar, periods, finance.ReverseInput{
				Number:       number,
				ReversalDate: reversalDate,
				Reason:       cmd.Reason,
			}, s.opts.clock.Now())
			return err
		},
	)
	if err != nil {
		if !isAlreadyReversed(err) {
			return ReverseJournalResult{}, err
		}
		return s.reissueReversal(ctx, cmd.TenantID, cmd.JournalID, periods, err)
	}

	reversed, err := s.saveReversal(ctx, cmd.TenantID, reversal)
	if err != nil {
		return ReverseJournalResult{Original: original}, err
	}
	s.opts.logger.Info("journal reversed",
		zap.String("tenant_id", cmd.TenantID.String()),
		zap.String("journal_id", cmd.JournalID.String()),
		zap.String("reversal_id", reversal.ID().String()),
	)
	return ReverseJournalResult{Original: original, Reversal: reversed}, nil
}

// reissueReversal writes a missing reversal stream for an already reversed
// journal. When the reversal exists the original error is returned.
func (s *JournalService) reissueReversal(ctx context.Context, tenantID valueobject.TenantID, id valueobject.JournalID, periods finance.PeriodStatus, reversedErr error) (ReverseJournalResult, error) {
	exists, err := s.journals.Exists(ctx, tenantID, finance.ReversalIDFor(id))
	if err != nil {
		return ReverseJournalResult{}, err
	}
	if exists {
		return ReverseJournalResult{}, reversedErr
	}
	j, err := s.journals.Load(ctx, tenantID, id)
	if err != nil {
		return ReverseJournalResult{}, err
	}
	reversal, err := j.ReissueReversal(s.calendar, periods, s.opts.clock.Now())
	if err != nil {
		return ReverseJournalResult{}, err
	}
	reversed, err := s.saveReversal(ctx, tenantID, reversal)
	if err != nil {
		return ReverseJournalResult{}, err
	}
	s.opts.logger.Warn("reissued missing reversal journal",
		zap.String("tenant_id", tenantID.String()),
		zap.String("journal_id", id.String()),
		zap.String("reversal_id", reversal.ID().String()),
	)
	return ReverseJournalResult{Original: application.ResultOf(j, 0), Reversal: reversed}, nil
}

// saveReversal appends a new reversal stream. A conflict means another
// attempt already wrote it, which counts as success.
func (s *JournalService) saveReversal(ctx context.Context, tenantID valueobject.TenantID, reversal *finance.JournalEntry) (application.CommandResult, error) {
	result, err := create(ctx, s.journals.Save, reversal)
	if err == nil {
		return result, nil
	}
	if !shared.IsConflict(err) {
		return result, err
	}
	existing, loadErr := s.journals.Load(ctx, tenantID, reversal.ID())
	if loadErr != nil {
		return application.CommandResult{}, err
	}
	return application.ResultOf(existing, 0), nil
}

func (s *JournalService) loader(tenantID valueobject.TenantID, id valueobject.JournalID) func(context.Context) (*finance.JournalEntry, error) {
	return func(ctx context.Context) (*finance.JournalEntry, error) {
		return s.journals.Load(ctx, tenantID, id)
	}
}

func isAlreadyReversed(err error) bool {
	return errors.Is(err, finance.ErrJournalAlreadyReversed)
}

func journalLineInput(cmd JournalLineCommand, currency valueobject.Currency) (finance.JournalLineInput, error) {
	debit, err := optionalMoney(cmd.Debit, currency)
	if err != nil {
		return finance.JournalLineInput{}, err
	}
	credit, err := optionalMoney(cmd.Credit, currency)
	if err != nil {
		return finance.JournalLineInput{}, err
	}
	return finance.JournalLineInput{
		AccountID: cmd.AccountID,
		Debit:     debit,
		Credit:    credit,
		Memo:      cmd.Memo,
	}, nil
}

// ===================== Journal → Account saga =====================

// PostingSaga moves account balances after a journal posts. It handles
// JournalEntryPosted and applies each account's share with retry on
// conflict. Each balance change claims its (account, journal) pair in the
// event store, and a rejected claim counts as already applied, so redelivery
// and repair are both safe.
type PostingSaga struct {
	accounts finance.AccountRepository
	journals finance.JournalRepository
	failures shared.FailureRecorder
	opts     serviceOptions
}

// NewPostingSaga creates a new PostingSaga. failures may be nil.
func NewPostingSaga(
	accounts finance.AccountRepository,
	journals finance.JournalRepository,
	failures shared.FailureRecorder,
	opts ...ServiceOption,
) *PostingSaga {
	return &PostingSaga{
		accounts: accounts,
		journals: journals,
		failures: failures,
		opts:     newServiceOptions(opts),
	}
}

// Name returns the handler name
func (s *PostingSaga) Name() string {
	return SagaJournalAccounts
}

// EventTypes returns the handled event types
func (s *PostingSaga) EventTypes() []string {
	return []string{finance.EventTypeJournalEntryPosted}
}

// Handle applies a posted journal to its accounts. Failures are recorded as
// saga failures and not returned, so the rest of the stream keeps flowing.
func (s *PostingSaga) Handle(ctx context.Context, event shared.DomainEvent) error {
	e, ok := event.(*finance.JournalEntryPostedEvent)
	if !ok {
		return nil
	}
	tenantID := valueobject.TenantID(e.TenantID())
	postings := finance.PostingsByAccount(e.TotalDebit.Currency(), e.Lines)
	if err := s.apply(ctx, tenantID, e.JournalID, postings); err != nil {
		s.opts.logger.Warn("journal posting not applied to all accounts",
			zap.String("tenant_id", tenantID.String()),
			zap.String("journal_id", e.JournalID.String()),
			zap.Error(err),
		)
		s.opts.metrics.RecordSagaFailure(ctx, SagaJournalAccounts)
		recordSagaFailure(ctx, s.failures, s.opts.logger, SagaJournalAccounts, event, err)
	}
	return nil
}

// RetryAccountPostings applies a posted journal to any account that does not
// hold it yet
func (s *PostingSaga) RetryAccountPostings(ctx context.Context, tenantID valueobject.TenantID, journalID valueobject.JournalID) error {
	j, err := s.journals.Load(ctx, tenantID, journalID)
	if err != nil {
		return err
	}
	if j.Status() == finance.JournalStatusDraft {
		return finance.ErrJournalNotPosted.WithDetail("status", j.Status().String())
	}
	return s.apply(ctx, tenantID, journalID, j.Postings())
}

// apply updates every account independently and joins the failures
func (s *PostingSaga) apply(ctx context.Context, tenantID valueobject.TenantID, journalID valueobject.JournalID, postings []finance.AccountPosting) error {
	var errs []error
	start := time.Now()
	for _, p := range postings {
		_, err := execute(ctx, s.opts.retry,
			func(ctx context.Context) (*finance.Account, error) {
				return s.accounts.Load(ctx, tenantID, p.AccountID)
			},
			s.accounts.Save,
			func(a *finance.Account) error {
				return a.ApplyJournalPosting(journalID, p.Debit, p.Credit)
			},
		)
		if finance.IsPostingApplied(err) {
			s.opts.logger.Debug("journal already applied to account",
				zap.String("journal_id", journalID.String()),
				zap.String("account_id", p.AccountID.String()),
			)
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("account %s: %w", p.AccountID, err))
		}
	}
	s.opts.logger.Debug("journal postings applied",
		zap.String("journal_id", journalID.String()),
		zap.Int("accounts", len(postings)),
		zap.Int("failed", len(errs)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return errors.Join(errs...)
}

var _ shared.NamedHandler = (*PostingSaga)(nil)
