package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/lodging-engine/core"
)

// Gateway moves money. The engine records the intent and the outcome;
// retries of the gateway call belong to the gateway itself.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (Result, error)
	Refund(ctx context.Context, req RefundRequest) (Result, error)
}

type ChargeRequest struct {
	BookingID string
	Amount    decimal.Decimal
	Currency  string
	Method    core.PaymentMethod
	// Token is the opaque instrument reference from the client (card token,
	// wallet id). Never stored.
	Token string
}

type RefundRequest struct {
	BookingID     string
	PaymentID     string
	ExternalTxnID string
	Amount        decimal.Decimal
	Currency      string
}

// Result is the gateway's answer. A declined charge returns
// Approved=false with a nil error; err is reserved for transport failures.
type Result struct {
	Approved      bool
	ExternalTxnID string
	Message       string
}

// ManualGateway approves everything and mints local transaction ids. It
// stands in for cash desks and tests. Decline makes the next n calls fail.
type ManualGateway struct {
	mu       sync.Mutex
	declines int
}

func NewManualGateway() *ManualGateway {
	return &ManualGateway{}
}

// Decline makes the next n charges or refunds come back declined.
func (g *ManualGateway) Decline(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.declines = n
}

func (g *ManualGateway) Charge(_ context.Context, req ChargeRequest) (Result, error) {
	return g.answer("chg", req.Amount)
}

func (g *ManualGateway) Refund(_ context.Context, req RefundRequest) (Result, error) {
	return g.answer("ref", req.Amount)
}

func (g *ManualGateway) answer(prefix string, amount decimal.Decimal) (Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.declines > 0 {
		g.declines--
		return Result{Approved: false, Message: fmt.Sprintf("declined %s", amount)}, nil
	}
	return Result{Approved: true, ExternalTxnID: prefix + "_" + uuid.NewString()}, nil
}
