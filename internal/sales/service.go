package sales

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tienbob/Tubex-sub001/internal/observability"
	"github.com/tienbob/Tubex-sub001/internal/shared"
)

const defaultQuoteValidity = 30 * 24 * time.Hour

// Service implements the quote and order lifecycles.
type Service struct {
	repo    Repository
	audit   *shared.AuditLogger
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewService constructs a sales service.
func NewService(repo Repository, audit *shared.AuditLogger, metrics *observability.Metrics, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, metrics: metrics, logger: logger}
}

// priceItems validates every line against the catalog and computes totals.
// All referenced products must exist and be active.
func (s *Service) priceItems(ctx context.Context, items []ItemRequest) (decimal.Decimal, error) {
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	products, err := s.repo.FindProducts(ctx, ids)
	if err != nil {
		return decimal.Zero, fmt.Errorf("find products: %w", err)
	}

	lineTotals := make([]decimal.Decimal, 0, len(items))
	for _, it := range items {
		p, ok := products[it.ProductID]
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: product %d does not exist", shared.ErrValidation, it.ProductID)
		}
		if p.Status != "active" {
			return decimal.Zero, fmt.Errorf("%w: product %d is not active", shared.ErrValidation, it.ProductID)
		}
		if it.Quantity.IsZero() {
			return decimal.Zero, fmt.Errorf("%w: product %d has zero quantity", shared.ErrValidation, it.ProductID)
		}
		lt, err := shared.LineTotal(it.Quantity, it.UnitPrice, it.Discount, decimal.Zero)
		if err != nil {
			return decimal.Zero, err
		}
		lineTotals = append(lineTotals, lt)
	}
	return shared.SumLines(lineTotals), nil
}

// CreateQuote creates a draft quote with its items atomically.
func (s *Service) CreateQuote(ctx context.Context, actor shared.Actor, req CreateQuoteRequest) (*Quote, error) {
	if actor.Role == shared.RoleCustomer {
		return nil, fmt.Errorf("%w: customers cannot create quotes", shared.ErrForbidden)
	}

	total, err := s.priceItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	validUntil := time.Now().Add(defaultQuoteValidity)
	if req.ValidUntil != nil {
		if req.ValidUntil.Before(time.Now()) {
			return nil, fmt.Errorf("%w: valid_until must be in the future", shared.ErrValidation)
		}
		validUntil = *req.ValidUntil
	}

	var quoteID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextDocNumber(ctx, shared.DocPrefixQuote, time.Now())
		if err != nil {
			return err
		}
		quoteID, err = tx.CreateQuote(ctx, Quote{
			QuoteNumber: number,
			CompanyID:   req.CompanyID,
			CustomerID:  req.CustomerID,
			Status:      QuoteStatusDraft,
			TotalAmount: total,
			ValidUntil:  validUntil,
			Notes:       req.Notes,
			CreatedBy:   actor.ID,
		})
		if err != nil {
			return fmt.Errorf("create quote: %w", err)
		}
		for _, it := range req.Items {
			if _, err := tx.InsertQuoteItem(ctx, QuoteItem{
				QuoteID:   quoteID,
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				UnitPrice: it.UnitPrice,
				Discount:  it.Discount,
				Notes:     it.Notes,
			}); err != nil {
				return fmt.Errorf("insert quote item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.DocumentCreated("quote")
	s.recordAudit(ctx, actor, "quote.create", "quote", quoteID, nil)
	return s.repo.GetQuote(ctx, quoteID)
}

// GetQuote returns a quote with its items.
func (s *Service) GetQuote(ctx context.Context, id int64) (*Quote, error) {
	return s.repo.GetQuote(ctx, id)
}

// ListQuotes returns filtered quotes with pagination metadata.
func (s *Service) ListQuotes(ctx context.Context, req ListQuotesRequest) ([]QuoteWithDetails, int, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	return s.repo.ListQuotes(ctx, req)
}

// UpdateQuote edits a DRAFT or PENDING quote. When items are supplied they
// replace the existing set and the total is recomputed.
func (s *Service) UpdateQuote(ctx context.Context, actor shared.Actor, id int64, req UpdateQuoteRequest) (*Quote, error) {
	quote, err := s.repo.GetQuote(ctx, id)
	if err != nil {
		return nil, err
	}
	if !quote.Status.CanUpdate() {
		return nil, fmt.Errorf("%w: quote in status %s cannot be updated", shared.ErrValidation, quote.Status)
	}
	if actor.Role == shared.RoleCustomer {
		return nil, fmt.Errorf("%w: customers cannot edit quotes", shared.ErrForbidden)
	}

	updates := map[string]interface{}{}
	if req.ValidUntil != nil {
		updates["valid_until"] = *req.ValidUntil
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
	}
	if req.Items != nil {
		total, err := s.priceItems(ctx, *req.Items)
		if err != nil {
			return nil, err
		}
		updates["total_amount"] = total
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if req.Items != nil {
			if err := tx.DeleteQuoteItems(ctx, id); err != nil {
				return fmt.Errorf("delete quote items: %w", err)
			}
			for _, it := range *req.Items {
				if _, err := tx.InsertQuoteItem(ctx, QuoteItem{
					QuoteID:   id,
					ProductID: it.ProductID,
					Quantity:  it.Quantity,
					UnitPrice: it.UnitPrice,
					Discount:  it.Discount,
					Notes:     it.Notes,
				}); err != nil {
					return fmt.Errorf("insert quote item: %w", err)
				}
			}
		}
		if len(updates) > 0 {
			if err := tx.UpdateQuote(ctx, id, updates); err != nil {
				return fmt.Errorf("update quote: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actor, "quote.update", "quote", id, nil)
	return s.repo.GetQuote(ctx, id)
}

// SubmitQuote moves a DRAFT quote to PENDING so the customer can respond.
func (s *Service) SubmitQuote(ctx context.Context, actor shared.Actor, id int64) (*Quote, error) {
	return s.transitionQuote(ctx, actor, id, QuoteStatusPending, nil, func(q *Quote) error {
		if q.Status != QuoteStatusDraft {
			return fmt.Errorf("%w: only DRAFT quotes can be submitted, got %s", shared.ErrValidation, q.Status)
		}
		if actor.Role == shared.RoleCustomer {
			return fmt.Errorf("%w: customers cannot submit quotes", shared.ErrForbidden)
		}
		return nil
	})
}

// AcceptQuote moves a PENDING quote to ACCEPTED. Expired quotes are refused
// even when the expiry sweep has not caught them yet.
func (s *Service) AcceptQuote(ctx context.Context, actor shared.Actor, id int64) (*Quote, error) {
	return s.transitionQuote(ctx, actor, id, QuoteStatusAccepted, nil, func(q *Quote) error {
		if q.Status != QuoteStatusPending {
			return fmt.Errorf("%w: only PENDING quotes can be accepted, got %s", shared.ErrValidation, q.Status)
		}
		if time.Now().After(q.ValidUntil) {
			return fmt.Errorf("%w: quote expired on %s", shared.ErrValidation, q.ValidUntil.Format("2006-01-02"))
		}
		return nil
	})
}

// RejectQuote moves a PENDING quote to REJECTED with a mandatory reason.
func (s *Service) RejectQuote(ctx context.Context, actor shared.Actor, id int64, req RejectQuoteRequest) (*Quote, error) {
	return s.transitionQuote(ctx, actor, id, QuoteStatusRejected, &req.Reason, func(q *Quote) error {
		if q.Status != QuoteStatusPending {
			return fmt.Errorf("%w: only PENDING quotes can be rejected, got %s", shared.ErrValidation, q.Status)
		}
		return nil
	})
}

func (s *Service) transitionQuote(ctx context.Context, actor shared.Actor, id int64, target QuoteStatus, reason *string, check func(*Quote) error) (*Quote, error) {
	quote, err := s.repo.GetQuote(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := check(quote); err != nil {
		return nil, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateQuoteStatus(ctx, id, target, reason, nil)
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actor, "quote."+string(target), "quote", id, map[string]any{"from": quote.Status})
	return s.repo.GetQuote(ctx, id)
}

// DeleteQuote removes a quote that was never accepted or converted.
func (s *Service) DeleteQuote(ctx context.Context, actor shared.Actor, id int64) error {
	quote, err := s.repo.GetQuote(ctx, id)
	if err != nil {
		return err
	}
	if !quote.Status.CanDelete() {
		return fmt.Errorf("%w: quote in status %s cannot be deleted", shared.ErrValidation, quote.Status)
	}
	if actor.Role == shared.RoleCustomer {
		return fmt.Errorf("%w: customers cannot delete quotes", shared.ErrForbidden)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteQuoteItems(ctx, id); err != nil {
			return err
		}
		return tx.DeleteQuote(ctx, id)
	})
	if err != nil {
		return err
	}

	s.recordAudit(ctx, actor, "quote.delete", "quote", id, nil)
	return nil
}

// ConvertQuoteToOrder creates an order from an ACCEPTED quote and marks the
// quote CONVERTED, all in one transaction. Items and total are copied from
// the quote, never recomputed from current catalog prices.
func (s *Service) ConvertQuoteToOrder(ctx context.Context, actor shared.Actor, quoteID int64, req ConvertQuoteRequest) (*Order, error) {
	quote, err := s.repo.GetQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if quote.Status != QuoteStatusAccepted {
		return nil, fmt.Errorf("%w: only ACCEPTED quotes can be converted, got %s", shared.ErrValidation, quote.Status)
	}
	if time.Now().After(quote.ValidUntil) {
		return nil, fmt.Errorf("%w: quote expired on %s", shared.ErrValidation, quote.ValidUntil.Format("2006-01-02"))
	}
	if len(quote.Items) == 0 {
		return nil, fmt.Errorf("%w: quote %d has no items", shared.ErrValidation, quoteID)
	}

	var orderID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextDocNumber(ctx, shared.DocPrefixOrder, time.Now())
		if err != nil {
			return err
		}
		orderID, err = tx.CreateOrder(ctx, Order{
			OrderNumber:     number,
			CompanyID:       quote.CompanyID,
			CustomerID:      quote.CustomerID,
			QuoteID:         &quote.ID,
			Status:          OrderStatusPending,
			PaymentStatus:   PaymentStatusPending,
			PaymentMethod:   req.PaymentMethod,
			TotalAmount:     quote.TotalAmount,
			DeliveryAddress: req.DeliveryAddress,
			Notes:           quote.Notes,
			CreatedBy:       actor.ID,
		})
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		for _, it := range quote.Items {
			if _, err := tx.InsertOrderItem(ctx, OrderItem{
				OrderID:   orderID,
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				UnitPrice: it.UnitPrice,
				Discount:  it.Discount,
			}); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}
		return tx.UpdateQuoteStatus(ctx, quoteID, QuoteStatusConverted, nil, &orderID)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.DocumentCreated("order")
	s.recordAudit(ctx, actor, "quote.convert", "quote", quoteID, map[string]any{"order_id": orderID})
	return s.repo.GetOrder(ctx, orderID)
}

// ExpireStaleQuotes marks DRAFT and PENDING quotes past their valid_until as
// EXPIRED. Called by the scheduled sweep; returns how many were expired.
func (s *Service) ExpireStaleQuotes(ctx context.Context, asOf time.Time) (int, error) {
	ids, err := s.repo.ListExpirableQuoteIDs(ctx, asOf)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return tx.UpdateQuoteStatus(ctx, id, QuoteStatusExpired, nil, nil)
		})
		if err != nil {
			s.logger.Error("expire quote", "quote_id", id, "error", err)
			continue
		}
		expired++
	}
	if expired > 0 {
		s.logger.Info("expired stale quotes", "count", expired)
	}
	return expired, nil
}

// CreateOrder creates a standalone order, not backed by a quote.
func (s *Service) CreateOrder(ctx context.Context, actor shared.Actor, req CreateOrderRequest) (*Order, error) {
	total, err := s.priceItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	var orderID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextDocNumber(ctx, shared.DocPrefixOrder, time.Now())
		if err != nil {
			return err
		}
		orderID, err = tx.CreateOrder(ctx, Order{
			OrderNumber:     number,
			CompanyID:       req.CompanyID,
			CustomerID:      req.CustomerID,
			Status:          OrderStatusPending,
			PaymentStatus:   PaymentStatusPending,
			PaymentMethod:   req.PaymentMethod,
			TotalAmount:     total,
			DeliveryAddress: req.DeliveryAddress,
			Notes:           req.Notes,
			CreatedBy:       actor.ID,
		})
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		for _, it := range req.Items {
			if _, err := tx.InsertOrderItem(ctx, OrderItem{
				OrderID:   orderID,
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				UnitPrice: it.UnitPrice,
				Discount:  it.Discount,
			}); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.DocumentCreated("order")
	s.recordAudit(ctx, actor, "order.create", "order", orderID, nil)
	return s.repo.GetOrder(ctx, orderID)
}

// GetOrder returns an order with its items.
func (s *Service) GetOrder(ctx context.Context, id int64) (*Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// ListOrders returns filtered orders with pagination metadata.
func (s *Service) ListOrders(ctx context.Context, req ListOrdersRequest) ([]OrderWithDetails, int, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	return s.repo.ListOrders(ctx, req)
}

// CancelOrder cancels a PENDING or CONFIRMED order with a mandatory reason.
// Customers may cancel only their own orders.
func (s *Service) CancelOrder(ctx context.Context, actor shared.Actor, id int64, req CancelOrderRequest) (*Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == shared.RoleCustomer && order.CustomerID != actor.ID {
		return nil, fmt.Errorf("%w: order belongs to another customer", shared.ErrForbidden)
	}
	if !order.Status.CanCancel() {
		return nil, fmt.Errorf("%w: order in status %s cannot be cancelled", shared.ErrValidation, order.Status)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateOrderStatus(ctx, id, OrderStatusCancelled, map[string]interface{}{
			"cancel_reason": req.Reason,
		})
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actor, "order.cancel", "order", id, map[string]any{"reason": req.Reason})
	return s.repo.GetOrder(ctx, id)
}

// BulkProcessOrders applies one action to up to 100 orders. Each order is
// processed in its own transaction; one failure never rolls back the others.
func (s *Service) BulkProcessOrders(ctx context.Context, actor shared.Actor, req BulkProcessRequest) (*BulkResult, error) {
	if actor.Role == shared.RoleCustomer {
		return nil, fmt.Errorf("%w: customers cannot bulk process orders", shared.ErrForbidden)
	}
	if !req.Action.IsValid() {
		return nil, fmt.Errorf("%w: unknown action %q", shared.ErrValidation, req.Action)
	}
	if req.Action == OrderActionCancel && (req.Reason == nil || *req.Reason == "") {
		return nil, fmt.Errorf("%w: cancel requires a reason", shared.ErrValidation)
	}

	result := &BulkResult{Processed: []int64{}, Failed: []BulkFailure{}}
	for _, orderID := range req.OrderIDs {
		if err := s.processOne(ctx, orderID, req.Action, req.Reason); err != nil {
			result.Failed = append(result.Failed, BulkFailure{OrderID: orderID, Reason: err.Error()})
			continue
		}
		result.Processed = append(result.Processed, orderID)
	}

	s.recordAudit(ctx, actor, "order.bulk_"+string(req.Action), "order", 0, map[string]any{
		"requested": len(req.OrderIDs),
		"processed": len(result.Processed),
		"failed":    len(result.Failed),
	})
	return result, nil
}

func (s *Service) processOne(ctx context.Context, orderID int64, action OrderAction, reason *string) error {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	next, err := ApplyOrderAction(order.Status, action)
	if err != nil {
		return err
	}

	updates := map[string]interface{}{}
	if action == OrderActionCancel {
		updates["cancel_reason"] = *reason
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateOrderStatus(ctx, orderID, next, updates)
	})
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Error("audit record", "action", action, "error", err)
	}
}
