package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/wahaj4311/microservices-demo/internal/orders/domain"
	"github.com/wahaj4311/microservices-demo/internal/shared/events"
	"github.com/wahaj4311/microservices-demo/internal/shared/types"

	"github.com/google/uuid"
)

type ledgerProduct struct {
	stock int
	price float64
}

// fakeLedger mimics the product-service ledger: reservations are atomic
// check-and-decrement under one lock, as the real conditional UPDATE is
// atomic per row.
type fakeLedger struct {
	mu       sync.Mutex
	products map[uuid.UUID]*ledgerProduct

	// transient transport failures per product, consumed one per call
	transientFailures map[uuid.UUID]int
	releaseErr        error
	releaseCalls      []types.OrderItem
	reserveRefs       map[uuid.UUID][]string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		products:          make(map[uuid.UUID]*ledgerProduct),
		transientFailures: make(map[uuid.UUID]int),
		reserveRefs:       make(map[uuid.UUID][]string),
	}
}

func (l *fakeLedger) addProduct(stock int, price float64) uuid.UUID {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := uuid.New()
	l.products[id] = &ledgerProduct{stock: stock, price: price}
	return id
}

func (l *fakeLedger) stock(id uuid.UUID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.products[id].stock
}

func (l *fakeLedger) setPrice(id uuid.UUID, price float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.products[id].price = price
}

func (l *fakeLedger) ReserveStock(ctx context.Context, productID uuid.UUID, quantity int, reference string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.reserveRefs[productID] = append(l.reserveRefs[productID], reference)
	if remaining := l.transientFailures[productID]; remaining > 0 {
		l.transientFailures[productID] = remaining - 1
		return 0, fmt.Errorf("%w: connection refused", types.ErrServiceUnavailable)
	}

	p, ok := l.products[productID]
	if !ok {
		return 0, types.ErrProductNotFound
	}
	if p.stock < quantity {
		return 0, &types.InsufficientStockError{
			ProductID: productID,
			Requested: quantity,
			Available: p.stock,
		}
	}
	p.stock -= quantity
	return p.price, nil
}

func (l *fakeLedger) ReleaseStock(ctx context.Context, productID uuid.UUID, quantity int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.releaseCalls = append(l.releaseCalls, types.OrderItem{ProductID: productID, Quantity: quantity})
	if l.releaseErr != nil {
		return l.releaseErr
	}

	p, ok := l.products[productID]
	if !ok {
		return types.ErrProductNotFound
	}
	p.stock += quantity
	return nil
}

type fakeOrderRepo struct {
	mu        sync.Mutex
	orders    map[uuid.UUID]*domain.OrderAggregate
	createErr error
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[uuid.UUID]*domain.OrderAggregate)}
}

func (r *fakeOrderRepo) Create(order *domain.OrderAggregate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.orders[order.ID] = order
	return nil
}

func (r *fakeOrderRepo) GetByID(orderID uuid.UUID) (*domain.OrderAggregate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return nil, types.ErrOrderNotFound
	}
	return order, nil
}

func (r *fakeOrderRepo) List(userID *uuid.UUID, skip, limit int) ([]*domain.OrderAggregate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.OrderAggregate
	for _, order := range r.orders {
		if userID == nil || order.UserID == *userID {
			out = append(out, order)
		}
	}
	return out, nil
}

func (r *fakeOrderRepo) UpdateStatus(order *domain.OrderAggregate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.ID]; !ok {
		return types.ErrOrderNotFound
	}
	r.orders[order.ID] = order
	return nil
}

func (r *fakeOrderRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *fakePublisher) PublishEvent(event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) byType(t events.EventType) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, e := range p.events {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

func makeService(ledger *fakeLedger) (*OrderService, *fakeOrderRepo, *fakePublisher) {
	repo := newFakeOrderRepo()
	publisher := &fakePublisher{}
	svc := NewOrderService(repo, ledger, publisher, WithRetryBackoff(0))
	return svc, repo, publisher
}

func orderRequest(lines ...domain.OrderItemRequest) domain.CreateOrderRequest {
	return domain.CreateOrderRequest{Items: lines}
}

// Scenario: stock 5, price 10.00, order quantity 3.
func TestCreateOrder_Success(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	productID := ledger.addProduct(5, 10.0)
	svc, repo, publisher := makeService(ledger)

	order, err := svc.CreateOrder(context.Background(), uuid.New(),
		orderRequest(domain.OrderItemRequest{ProductID: productID, Quantity: 3}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if order.TotalAmount != 30.0 {
		t.Fatalf("expected total 30.0, got %v", order.TotalAmount)
	}
	if order.Status != types.OrderStatusPending {
		t.Fatalf("expected pending status, got %s", order.Status)
	}
	if len(order.Items) != 1 || order.Items[0].Price != 10.0 {
		t.Fatalf("expected one line with captured price 10.0, got %+v", order.Items)
	}
	if got := ledger.stock(productID); got != 2 {
		t.Fatalf("expected stock 2, got %d", got)
	}
	if repo.count() != 1 {
		t.Fatalf("expected 1 persisted order, got %d", repo.count())
	}
	if created := publisher.byType(events.OrderCreatedEvent); len(created) != 1 {
		t.Fatalf("expected 1 order.created event, got %d", len(created))
	}
}

func TestCreateOrder_MixedPriceBasket(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	cheap := ledger.addProduct(10, 2.5)
	pricey := ledger.addProduct(10, 100.0)
	svc, _, _ := makeService(ledger)

	order, err := svc.CreateOrder(context.Background(), uuid.New(), orderRequest(
		domain.OrderItemRequest{ProductID: cheap, Quantity: 4},
		domain.OrderItemRequest{ProductID: pricey, Quantity: 1},
	))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Per-line pricing: 4*2.5 + 1*100, never an even split of the total.
	if order.TotalAmount != 110.0 {
		t.Fatalf("expected total 110.0, got %v", order.TotalAmount)
	}
	if order.Items[0].Price != 2.5 || order.Items[1].Price != 100.0 {
		t.Fatalf("expected captured per-line prices, got %+v", order.Items)
	}
}

// Scenario: stock 2, order quantity 3.
func TestCreateOrder_InsufficientStock(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	productID := ledger.addProduct(2, 10.0)
	svc, repo, _ := makeService(ledger)

	_, err := svc.CreateOrder(context.Background(), uuid.New(),
		orderRequest(domain.OrderItemRequest{ProductID: productID, Quantity: 3}))

	var stockErr *types.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if stockErr.Requested != 3 || stockErr.Available != 2 {
		t.Fatalf("unexpected details: requested=%d, available=%d", stockErr.Requested, stockErr.Available)
	}
	if got := ledger.stock(productID); got != 2 {
		t.Fatalf("expected stock unchanged at 2, got %d", got)
	}
	if repo.count() != 0 {
		t.Fatalf("expected no persisted order, got %d", repo.count())
	}
}

// Scenario: first line reserves, second line hits an unknown product;
// the first line's stock must be restored and no order persisted.
func TestCreateOrder_CompensatesEarlierLines(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	productID := ledger.addProduct(5, 10.0)
	missing := uuid.New()
	svc, repo, _ := makeService(ledger)

	_, err := svc.CreateOrder(context.Background(), uuid.New(), orderRequest(
		domain.OrderItemRequest{ProductID: productID, Quantity: 2},
		domain.OrderItemRequest{ProductID: missing, Quantity: 1},
	))
	if !errors.Is(err, types.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}

	if got := ledger.stock(productID); got != 5 {
		t.Fatalf("expected stock restored to 5, got %d", got)
	}
	if len(ledger.releaseCalls) != 1 {
		t.Fatalf("expected 1 release call, got %d", len(ledger.releaseCalls))
	}
	if repo.count() != 0 {
		t.Fatalf("expected no persisted order, got %d", repo.count())
	}
}

// Scenario: two concurrent orders for quantity 3 against stock 5;
// exactly one wins.
func TestCreateOrder_ConcurrentOrdersNeverOversell(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	productID := ledger.addProduct(5, 10.0)
	svc, repo, _ := makeService(ledger)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CreateOrder(context.Background(), uuid.New(),
				orderRequest(domain.OrderItemRequest{ProductID: productID, Quantity: 3}))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var stockErr *types.InsufficientStockError
		if !errors.As(err, &stockErr) {
			t.Fatalf("expected InsufficientStockError for loser, got %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one successful order, got %d", succeeded)
	}
	if got := ledger.stock(productID); got != 2 {
		t.Fatalf("expected stock 2, got %d", got)
	}
	if repo.count() != 1 {
		t.Fatalf("expected 1 persisted order, got %d", repo.count())
	}
}

func TestCreateOrder_RetriesTransportErrors(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	productID := ledger.addProduct(5, 10.0)
	ledger.transientFailures[productID] = 2
	svc, _, _ := makeService(ledger)

	order, err := svc.CreateOrder(context.Background(), uuid.New(),
		orderRequest(domain.OrderItemRequest{ProductID: productID, Quantity: 1}))
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if order.TotalAmount != 10.0 {
		t.Fatalf("expected total 10.0, got %v", order.TotalAmount)
	}
}

// Every retry of one line must carry the same reservation reference, so
// the ledger can dedupe a retry whose timed-out first attempt committed.
// Distinct lines must carry distinct references.
func TestCreateOrder_RetriesReuseReservationReference(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	steady := ledger.addProduct(5, 10.0)
	flaky := ledger.addProduct(5, 1.0)
	ledger.transientFailures[flaky] = 2
	svc, _, _ := makeService(ledger)

	_, err := svc.CreateOrder(context.Background(), uuid.New(), orderRequest(
		domain.OrderItemRequest{ProductID: steady, Quantity: 1},
		domain.OrderItemRequest{ProductID: flaky, Quantity: 1},
	))
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}

	refs := ledger.reserveRefs[flaky]
	if len(refs) != 3 {
		t.Fatalf("expected 3 reservation attempts, got %d", len(refs))
	}
	for _, ref := range refs {
		if ref == "" {
			t.Fatalf("expected a non-empty reservation reference")
		}
		if ref != refs[0] {
			t.Fatalf("expected a stable reference across retries, got %v", refs)
		}
	}
	if refs[0] == ledger.reserveRefs[steady][0] {
		t.Fatalf("expected distinct references per line")
	}
}

func TestCreateOrder_TransportFailureAfterRetriesCompensates(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	first := ledger.addProduct(5, 10.0)
	flaky := ledger.addProduct(5, 1.0)
	ledger.transientFailures[flaky] = 10 // beyond the retry budget
	svc, repo, _ := makeService(ledger)

	_, err := svc.CreateOrder(context.Background(), uuid.New(), orderRequest(
		domain.OrderItemRequest{ProductID: first, Quantity: 2},
		domain.OrderItemRequest{ProductID: flaky, Quantity: 1},
	))
	if !errors.Is(err, types.ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}

	if got := ledger.stock(first); got != 5 {
		t.Fatalf("expected stock restored to 5, got %d", got)
	}
	if repo.count() != 0 {
		t.Fatalf("expected no persisted order, got %d", repo.count())
	}
}

func TestCreateOrder_CompensationFailureRecordsReconciliation(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	first := ledger.addProduct(5, 10.0)
	missing := uuid.New()
	ledger.releaseErr = fmt.Errorf("%w: ledger down", types.ErrServiceUnavailable)
	svc, _, publisher := makeService(ledger)

	_, err := svc.CreateOrder(context.Background(), uuid.New(), orderRequest(
		domain.OrderItemRequest{ProductID: first, Quantity: 2},
		domain.OrderItemRequest{ProductID: missing, Quantity: 1},
	))

	// The caller still sees the original failure, not the compensation one.
	if !errors.Is(err, types.ErrProductNotFound) {
		t.Fatalf("expected original ErrProductNotFound, got %v", err)
	}

	reconcile := publisher.byType(events.StockReconcileEvent)
	if len(reconcile) != 1 {
		t.Fatalf("expected 1 stock.reconcile event, got %d", len(reconcile))
	}
	payload, ok := reconcile[0].Payload.(events.StockReconcilePayload)
	if !ok {
		t.Fatalf("unexpected payload type %T", reconcile[0].Payload)
	}
	if payload.ProductID != first || payload.Quantity != 2 {
		t.Fatalf("unexpected reconcile payload: %+v", payload)
	}
}

func TestCreateOrder_PersistenceFailureReleasesStock(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	productID := ledger.addProduct(5, 10.0)
	svc, repo, _ := makeService(ledger)
	repo.createErr = fmt.Errorf("disk full")

	_, err := svc.CreateOrder(context.Background(), uuid.New(),
		orderRequest(domain.OrderItemRequest{ProductID: productID, Quantity: 3}))
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := ledger.stock(productID); got != 5 {
		t.Fatalf("expected stock restored to 5, got %d", got)
	}
}

// Catalog price drift after placement never changes a stored order.
func TestCreateOrder_TotalFrozenAgainstPriceDrift(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	productID := ledger.addProduct(5, 10.0)
	svc, _, _ := makeService(ledger)

	order, err := svc.CreateOrder(context.Background(), uuid.New(),
		orderRequest(domain.OrderItemRequest{ProductID: productID, Quantity: 2}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	ledger.setPrice(productID, 99.0)

	stored, err := svc.GetOrder(order.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if stored.TotalAmount != 20.0 {
		t.Fatalf("expected frozen total 20.0, got %v", stored.TotalAmount)
	}
	if stored.Items[0].Price != 10.0 {
		t.Fatalf("expected frozen line price 10.0, got %v", stored.Items[0].Price)
	}
}

func TestUpdateOrderStatus(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	productID := ledger.addProduct(5, 10.0)
	svc, _, publisher := makeService(ledger)

	order, err := svc.CreateOrder(context.Background(), uuid.New(),
		orderRequest(domain.OrderItemRequest{ProductID: productID, Quantity: 1}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	t.Run("cancel publishes event", func(t *testing.T) {
		updated, err := svc.UpdateOrderStatus(order.ID, types.OrderStatusCancelled)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if updated.Status != types.OrderStatusCancelled {
			t.Fatalf("expected cancelled, got %s", updated.Status)
		}
		if cancelled := publisher.byType(events.OrderCancelledEvent); len(cancelled) != 1 {
			t.Fatalf("expected 1 order.cancelled event, got %d", len(cancelled))
		}
	})

	t.Run("terminal state rejects further transitions", func(t *testing.T) {
		_, err := svc.UpdateOrderStatus(order.ID, types.OrderStatusConfirmed)
		var transitionErr *types.InvalidStatusTransitionError
		if !errors.As(err, &transitionErr) {
			t.Fatalf("expected InvalidStatusTransitionError, got %v", err)
		}
	})

	t.Run("unknown order", func(t *testing.T) {
		_, err := svc.UpdateOrderStatus(uuid.New(), types.OrderStatusConfirmed)
		if !errors.Is(err, types.ErrOrderNotFound) {
			t.Fatalf("expected ErrOrderNotFound, got %v", err)
		}
	})
}
