// Package numbering issues human-readable document numbers.
package numbering

import (
	"crypto/rand"
	"io"
	"sync"

	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/oklog/ulid/v2"
)

// Document number prefixes
const (
	PrefixInvoice    = "INV"
	PrefixPayment    = "PAY"
	PrefixRegulatory = "REG"
)

// Generator produces <prefix>-<ulid> numbers. ULIDs sort by issue time, so
// numbers issued by one generator are strictly increasing.
type Generator struct {
	mu      sync.Mutex
	clock   shared.Clock
	entropy io.Reader
}

// Option configures a Generator
type Option func(*Generator)

// WithClock sets the clock used for the time part of each number
func WithClock(clock shared.Clock) Option {
	return func(g *Generator) {
		g.clock = clock
	}
}

// WithEntropy sets the random source, mainly for tests
func WithEntropy(r io.Reader) Option {
	return func(g *Generator) {
		g.entropy = r
	}
}

// New creates a Generator
func New(opts ...Option) *Generator {
	g := &Generator{clock: shared.SystemClock{}}
	for _, opt := range opts {
		opt(g)
	}
	if g.entropy == nil {
		g.entropy = rand.Reader
	}
	g.entropy = ulid.Monotonic(g.entropy, 0)
	return g
}

func (g *Generator) next(prefix string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(g.clock.Now()), g.entropy)
	return prefix + "-" + id.String()
}

// InvoiceNumber returns a new INV- number
func (g *Generator) InvoiceNumber() string {
	return g.next(PrefixInvoice)
}

// PaymentNumber returns a new PAY- number
func (g *Generator) PaymentNumber() string {
	return g.next(PrefixPayment)
}

// JournalNumber returns a new number carrying the journal type's prefix
func (g *Generator) JournalNumber(t finance.JournalType) string {
	return g.next(t.Prefix())
}

// RegulatoryNumber returns a new REG- number for invoice approval
func (g *Generator) RegulatoryNumber() string {
	return g.next(PrefixRegulatory)
}
