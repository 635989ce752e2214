package service

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/wahaj4311/microservices-demo/internal/catalog/cache"
	"github.com/wahaj4311/microservices-demo/internal/catalog/domain"
	"github.com/wahaj4311/microservices-demo/internal/shared/events"
	"github.com/wahaj4311/microservices-demo/internal/shared/types"

	"github.com/google/uuid"
)

// ProductRepository is the persistence surface the catalog service
// needs. AdjustStock must be atomic per product row.
type ProductRepository interface {
	GetByID(productID uuid.UUID) (*types.Product, error)
	List(skip, limit int) ([]*types.Product, error)
	Create(product *types.Product) error
	Update(product *types.Product) error
	Delete(productID uuid.UUID) error
	AdjustStock(productID uuid.UUID, delta int) (newStock int, price float64, err error)
}

type EventPublisher interface {
	PublishEvent(event events.Event) error
}

const (
	defaultCacheTTL = 5 * time.Minute

	// How long a committed reservation reference is remembered. Must
	// comfortably exceed the orchestrator's retry window.
	reservationDedupeWindow = 10 * time.Minute
)

type reservation struct {
	price float64
	at    time.Time
}

// CatalogService owns the inventory ledger: authoritative stock and
// price per product, fronted by the versioned read cache.
type CatalogService struct {
	repo      ProductRepository
	cache     *cache.Cache
	publisher EventPublisher
	cacheTTL  time.Duration

	reservationMu sync.Mutex
	reservations  map[string]reservation
}

func NewCatalogService(repo ProductRepository, productCache *cache.Cache, publisher EventPublisher) *CatalogService {
	return &CatalogService{
		repo:         repo,
		cache:        productCache,
		publisher:    publisher,
		cacheTTL:     defaultCacheTTL,
		reservations: make(map[string]reservation),
	}
}

// GetProduct serves reads through the cache. The version snapshot is
// taken before the backing read so a concurrent invalidation kills the
// write-back instead of letting it resurrect stale data.
func (s *CatalogService) GetProduct(productID uuid.UUID) (*types.Product, error) {
	key := cache.ProductKey(productID)

	if raw, ok := s.cache.Get(key); ok {
		product := &types.Product{}
		if err := json.Unmarshal(raw, product); err == nil {
			return product, nil
		}
		// Undecodable entry: fall through to the store.
		s.cache.Invalidate(key)
	}

	version := s.cache.Snapshot(key)

	product, err := s.repo.GetByID(productID)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(product); err == nil {
		s.cache.Put(key, raw, s.cacheTTL, version)
	}

	return product, nil
}

func (s *CatalogService) ListProducts(skip, limit int) ([]*types.Product, error) {
	key := cache.ListKey(s.cache.ListGeneration(), skip, limit)

	if raw, ok := s.cache.Get(key); ok {
		var products []*types.Product
		if err := json.Unmarshal(raw, &products); err == nil {
			return products, nil
		}
		s.cache.Invalidate(key)
	}

	version := s.cache.Snapshot(key)

	products, err := s.repo.List(skip, limit)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(products); err == nil {
		s.cache.Put(key, raw, s.cacheTTL, version)
	}

	return products, nil
}

func (s *CatalogService) CreateProduct(in domain.ProductInput) (*types.Product, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	product := domain.NewProduct(in)
	if err := s.repo.Create(product); err != nil {
		return nil, err
	}

	s.cache.BumpListGeneration()
	log.Printf("Product created: ID=%s, Name=%s, Stock=%d", product.ID, product.Name, product.Stock)
	return product, nil
}

// UpdateProduct mutates catalog attributes only; stock is untouched.
// A price change here affects future reservations, never past orders.
func (s *CatalogService) UpdateProduct(productID uuid.UUID, in domain.ProductInput) (*types.Product, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	product, err := s.repo.GetByID(productID)
	if err != nil {
		return nil, err
	}

	product.Name = in.Name
	product.Description = in.Description
	product.Price = in.Price
	product.Category = in.Category

	if err := s.repo.Update(product); err != nil {
		return nil, err
	}

	s.invalidateProduct(productID)
	return product, nil
}

func (s *CatalogService) DeleteProduct(productID uuid.UUID) error {
	if err := s.repo.Delete(productID); err != nil {
		return err
	}

	s.invalidateProduct(productID)
	return nil
}

// ReserveStock atomically checks and decrements available stock on
// behalf of a pending order line, returning the unit price captured at
// reservation time. A non-empty reference makes the call idempotent
// within the dedupe window: a retry after a timed-out call that in fact
// committed returns the remembered price without touching stock again.
func (s *CatalogService) ReserveStock(productID uuid.UUID, quantity int, reference string) (float64, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("reservation quantity must be positive, got %d", quantity)
	}

	if price, ok := s.recentReservation(reference); ok {
		log.Printf("Duplicate reservation suppressed: ProductID=%s, Reference=%s", productID, reference)
		return price, nil
	}

	newStock, price, err := s.repo.AdjustStock(productID, -quantity)
	if err != nil {
		return 0, err
	}

	s.rememberReservation(reference, price)
	s.afterStockMutation(productID, -quantity, newStock)
	return price, nil
}

func (s *CatalogService) recentReservation(reference string) (float64, bool) {
	if reference == "" {
		return 0, false
	}

	s.reservationMu.Lock()
	defer s.reservationMu.Unlock()

	r, ok := s.reservations[reference]
	if !ok || time.Since(r.at) > reservationDedupeWindow {
		return 0, false
	}
	return r.price, true
}

func (s *CatalogService) rememberReservation(reference string, price float64) {
	if reference == "" {
		return
	}

	s.reservationMu.Lock()
	defer s.reservationMu.Unlock()

	for ref, r := range s.reservations {
		if time.Since(r.at) > reservationDedupeWindow {
			delete(s.reservations, ref)
		}
	}
	s.reservations[reference] = reservation{price: price, at: time.Now()}
}

// ReleaseStock returns previously reserved stock; used for compensation
// and out-of-band reconciliation. There is no upper stock bound, so it
// only fails when the product is gone.
func (s *CatalogService) ReleaseStock(productID uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("release quantity must be positive, got %d", quantity)
	}

	newStock, _, err := s.repo.AdjustStock(productID, quantity)
	if err != nil {
		return err
	}

	s.afterStockMutation(productID, quantity, newStock)
	return nil
}

// AdjustStock is the administrative adjustment primitive; delta may be
// negative but the resulting stock may not drop below zero.
func (s *CatalogService) AdjustStock(productID uuid.UUID, delta int) (int, error) {
	if delta == 0 {
		product, err := s.repo.GetByID(productID)
		if err != nil {
			return 0, err
		}
		return product.Stock, nil
	}

	newStock, _, err := s.repo.AdjustStock(productID, delta)
	if err != nil {
		return 0, err
	}

	s.afterStockMutation(productID, delta, newStock)
	return newStock, nil
}

// HandleReconcileEvent re-applies a stock release that failed in-line at
// the order orchestrator. At-least-once delivery is acceptable here: the
// event carries the exact quantity of a single failed compensation.
func (s *CatalogService) HandleReconcileEvent(event events.Event) error {
	var payload events.StockReconcilePayload
	if err := events.DecodePayload(event, &payload); err != nil {
		return err
	}

	log.Printf("Reconciling stock: ProductID=%s, Quantity=%d, Reference=%s",
		payload.ProductID, payload.Quantity, payload.Reference)

	if err := s.ReleaseStock(payload.ProductID, payload.Quantity); err != nil {
		return fmt.Errorf("stock reconciliation error: %v", err)
	}
	return nil
}

func (s *CatalogService) afterStockMutation(productID uuid.UUID, delta, newStock int) {
	s.invalidateProduct(productID)

	event := events.Event{
		ID:        uuid.New(),
		EventType: events.StockAdjustedEvent,
		Service:   "product-service",
		Payload: events.StockAdjustedPayload{
			ProductID: productID,
			Delta:     delta,
			NewStock:  newStock,
		},
	}

	// Best effort: a lost event never blocks or fails the mutation.
	if err := s.publisher.PublishEvent(event); err != nil {
		log.Printf("Stock adjusted event publish error: %v", err)
	}
}

func (s *CatalogService) invalidateProduct(productID uuid.UUID) {
	s.cache.Invalidate(cache.ProductKey(productID))
	s.cache.BumpListGeneration()
}
