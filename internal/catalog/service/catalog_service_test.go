package service

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/wahaj4311/microservices-demo/internal/catalog/cache"
	"github.com/wahaj4311/microservices-demo/internal/catalog/domain"
	"github.com/wahaj4311/microservices-demo/internal/shared/events"
	"github.com/wahaj4311/microservices-demo/internal/shared/types"

	"github.com/google/uuid"
)

type fakeProductRepo struct {
	mu       sync.Mutex
	products map[uuid.UUID]*types.Product
	getCalls int
}

func newFakeProductRepo(products ...*types.Product) *fakeProductRepo {
	repo := &fakeProductRepo{products: make(map[uuid.UUID]*types.Product)}
	for _, p := range products {
		clone := *p
		repo.products[p.ID] = &clone
	}
	return repo
}

func (r *fakeProductRepo) GetByID(productID uuid.UUID) (*types.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getCalls++
	p, ok := r.products[productID]
	if !ok {
		return nil, types.ErrProductNotFound
	}
	clone := *p
	return &clone, nil
}

func (r *fakeProductRepo) List(skip, limit int) ([]*types.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Product
	for _, p := range r.products {
		clone := *p
		out = append(out, &clone)
	}
	return out, nil
}

func (r *fakeProductRepo) Create(product *types.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *product
	r.products[product.ID] = &clone
	return nil
}

func (r *fakeProductRepo) Update(product *types.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.products[product.ID]
	if !ok {
		return types.ErrProductNotFound
	}
	existing.Name = product.Name
	existing.Description = product.Description
	existing.Price = product.Price
	existing.Category = product.Category
	return nil
}

func (r *fakeProductRepo) Delete(productID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[productID]; !ok {
		return types.ErrProductNotFound
	}
	delete(r.products, productID)
	return nil
}

func (r *fakeProductRepo) AdjustStock(productID uuid.UUID, delta int) (int, float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[productID]
	if !ok {
		return 0, 0, types.ErrProductNotFound
	}
	if p.Stock+delta < 0 {
		return 0, 0, &types.InsufficientStockError{
			ProductID: productID,
			Requested: -delta,
			Available: p.Stock,
		}
	}
	p.Stock += delta
	return p.Stock, p.Price, nil
}

func (r *fakeProductRepo) stock(productID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.products[productID].Stock
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

func makeService(products ...*types.Product) (*CatalogService, *fakeProductRepo, *fakePublisher) {
	repo := newFakeProductRepo(products...)
	publisher := &fakePublisher{}
	svc := NewCatalogService(repo, cache.New(), publisher)
	return svc, repo, publisher
}

func TestCatalogService_GetProductCached(t *testing.T) {
	t.Parallel()

	product := &types.Product{ID: uuid.New(), Name: "widget", Price: 10.0, Stock: 5}
	svc, repo, _ := makeService(product)

	first, err := svc.GetProduct(product.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if first.Stock != 5 {
		t.Fatalf("expected stock 5, got %d", first.Stock)
	}

	// Second read must come from the cache.
	if _, err := svc.GetProduct(product.ID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if repo.getCalls != 1 {
		t.Fatalf("expected 1 repository read, got %d", repo.getCalls)
	}
}

func TestCatalogService_GetProductNotFound(t *testing.T) {
	t.Parallel()

	svc, _, _ := makeService()
	if _, err := svc.GetProduct(uuid.New()); !errors.Is(err, types.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestCatalogService_ReserveStock(t *testing.T) {
	t.Parallel()

	product := &types.Product{ID: uuid.New(), Name: "widget", Price: 10.0, Stock: 5}
	svc, repo, publisher := makeService(product)

	price, err := svc.ReserveStock(product.ID, 3, "reserve:line-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if price != 10.0 {
		t.Fatalf("expected captured price 10.0, got %v", price)
	}
	if got := repo.stock(product.ID); got != 2 {
		t.Fatalf("expected stock 2 after reservation, got %d", got)
	}

	adjusted := publisher.byType(events.StockAdjustedEvent)
	if len(adjusted) != 1 {
		t.Fatalf("expected 1 stock.adjusted event, got %d", len(adjusted))
	}
}

func TestCatalogService_ReserveStockInsufficient(t *testing.T) {
	t.Parallel()

	product := &types.Product{ID: uuid.New(), Name: "widget", Price: 10.0, Stock: 2}
	svc, repo, _ := makeService(product)

	_, err := svc.ReserveStock(product.ID, 3, "reserve:line-1")

	var stockErr *types.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if stockErr.Requested != 3 || stockErr.Available != 2 {
		t.Fatalf("unexpected error details: requested=%d, available=%d",
			stockErr.Requested, stockErr.Available)
	}
	if got := repo.stock(product.ID); got != 2 {
		t.Fatalf("expected stock unchanged at 2, got %d", got)
	}
}

func TestCatalogService_ConcurrentReservationsNeverOversell(t *testing.T) {
	t.Parallel()

	product := &types.Product{ID: uuid.New(), Name: "widget", Price: 10.0, Stock: 10}
	svc, repo, _ := makeService(product)

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			reference := fmt.Sprintf("reserve:worker-%d", worker)
			if _, err := svc.ReserveStock(product.ID, 1, reference); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if succeeded != 10 {
		t.Fatalf("expected exactly 10 successful reservations, got %d", succeeded)
	}
	if got := repo.stock(product.ID); got != 0 {
		t.Fatalf("expected stock 0, got %d", got)
	}
}

// A retry of a timed-out reservation that actually committed must not
// decrement stock a second time.
func TestCatalogService_ReserveStockDedupesByReference(t *testing.T) {
	t.Parallel()

	product := &types.Product{ID: uuid.New(), Name: "widget", Price: 10.0, Stock: 5}
	svc, repo, publisher := makeService(product)

	first, err := svc.ReserveStock(product.ID, 3, "reserve:retried-line")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	second, err := svc.ReserveStock(product.ID, 3, "reserve:retried-line")
	if err != nil {
		t.Fatalf("expected duplicate to succeed, got %v", err)
	}
	if second != first {
		t.Fatalf("expected duplicate to return captured price %v, got %v", first, second)
	}
	if got := repo.stock(product.ID); got != 2 {
		t.Fatalf("expected stock decremented once to 2, got %d", got)
	}
	if adjusted := publisher.byType(events.StockAdjustedEvent); len(adjusted) != 1 {
		t.Fatalf("expected 1 stock.adjusted event, got %d", len(adjusted))
	}

	// A different reference is a new reservation.
	if _, err := svc.ReserveStock(product.ID, 2, "reserve:other-line"); err != nil {
		t.Fatalf("expected new reference to reserve, got %v", err)
	}
	if got := repo.stock(product.ID); got != 0 {
		t.Fatalf("expected stock 0 after second reservation, got %d", got)
	}
}

func TestCatalogService_ReleaseStockHasNoUpperBound(t *testing.T) {
	t.Parallel()

	product := &types.Product{ID: uuid.New(), Name: "widget", Price: 10.0, Stock: 5}
	svc, repo, _ := makeService(product)

	if err := svc.ReleaseStock(product.ID, 100); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := repo.stock(product.ID); got != 105 {
		t.Fatalf("expected stock 105, got %d", got)
	}
}

// Scenario: a cached read must never survive a stock adjustment.
func TestCatalogService_AdjustStockInvalidatesCache(t *testing.T) {
	t.Parallel()

	product := &types.Product{ID: uuid.New(), Name: "widget", Price: 10.0, Stock: 5}
	svc, _, _ := makeService(product)

	before, err := svc.GetProduct(product.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if before.Stock != 5 {
		t.Fatalf("expected stock 5, got %d", before.Stock)
	}

	newStock, err := svc.AdjustStock(product.ID, -1)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if newStock != 4 {
		t.Fatalf("expected new stock 4, got %d", newStock)
	}

	after, err := svc.GetProduct(product.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if after.Stock != 4 {
		t.Fatalf("expected post-adjustment stock 4 from cache path, got %d", after.Stock)
	}
}

func TestCatalogService_AdjustStockRejectsNegativeResult(t *testing.T) {
	t.Parallel()

	product := &types.Product{ID: uuid.New(), Name: "widget", Price: 10.0, Stock: 2}
	svc, _, _ := makeService(product)

	_, err := svc.AdjustStock(product.ID, -5)
	var stockErr *types.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
}

func TestCatalogService_UpdateProductKeepsStock(t *testing.T) {
	t.Parallel()

	product := &types.Product{ID: uuid.New(), Name: "widget", Price: 10.0, Stock: 7, Category: "tools"}
	svc, repo, _ := makeService(product)

	updated, err := svc.UpdateProduct(product.ID, domain.ProductInput{
		Name:     "widget v2",
		Price:    12.5,
		Category: "tools",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if updated.Price != 12.5 {
		t.Fatalf("expected price 12.5, got %v", updated.Price)
	}
	if got := repo.stock(product.ID); got != 7 {
		t.Fatalf("expected stock untouched at 7, got %d", got)
	}
}

func TestCatalogService_HandleReconcileEvent(t *testing.T) {
	t.Parallel()

	product := &types.Product{ID: uuid.New(), Name: "widget", Price: 10.0, Stock: 3}
	svc, repo, _ := makeService(product)

	event := events.Event{
		ID:        uuid.New(),
		EventType: events.StockReconcileEvent,
		Service:   "order-service",
		Payload: events.StockReconcilePayload{
			ProductID: product.ID,
			Quantity:  2,
			Reference: "order-123",
			Reason:    "release failed during rollback",
		},
	}

	if err := svc.HandleReconcileEvent(event); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := repo.stock(product.ID); got != 5 {
		t.Fatalf("expected stock 5 after reconciliation, got %d", got)
	}
}
