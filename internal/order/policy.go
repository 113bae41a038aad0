package order

import (
	"context"

	"gorm.io/gorm"

	"storefront/internal/inventory"
	"storefront/internal/model"
)

// TransitionPolicy decides whether an order may move from one status to
// another. Same-status writes are always allowed.
type TransitionPolicy interface {
	CanTransition(from, to model.OrderStatus) bool
}

type allowAll struct{}

func (allowAll) CanTransition(_, _ model.OrderStatus) bool { return true }

// AllowAll permits any status change.
func AllowAll() TransitionPolicy { return allowAll{} }

// Adjacency permits only the listed next statuses.
type Adjacency map[model.OrderStatus][]model.OrderStatus

func (a Adjacency) CanTransition(from, to model.OrderStatus) bool {
	if from == to {
		return true
	}
	for _, next := range a[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StrictLifecycle is the forward-only lifecycle. Delivered and cancelled are
// terminal.
func StrictLifecycle() Adjacency {
	return Adjacency{
		model.StatusPending:    {model.StatusConfirmed, model.StatusCancelled},
		model.StatusConfirmed:  {model.StatusProcessing, model.StatusCancelled},
		model.StatusProcessing: {model.StatusShipped, model.StatusCancelled},
		model.StatusShipped:    {model.StatusDelivered},
		model.StatusDelivered:  {},
		model.StatusCancelled:  {},
	}
}

// CancellationPolicy runs inside the status-change transaction when an order
// first moves into cancelled.
type CancellationPolicy interface {
	OnCancel(ctx context.Context, tx *gorm.DB, order *model.Order) error
}

type keepStock struct{}

func (keepStock) OnCancel(context.Context, *gorm.DB, *model.Order) error { return nil }

// KeepStock leaves inventory untouched on cancel.
func KeepStock() CancellationPolicy { return keepStock{} }

// Restock returns the order's units to its size row or legacy counter.
type Restock struct {
	Ledger *inventory.Ledger
}

func (r Restock) OnCancel(ctx context.Context, tx *gorm.DB, o *model.Order) error {
	_, err := r.Ledger.ReleaseTx(ctx, tx, inventory.Request{
		ProductID: o.ProductID,
		Size:      o.ProductSize,
		Quantity:  o.Quantity,
	})
	return err
}
