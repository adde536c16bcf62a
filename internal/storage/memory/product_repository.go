package memory

import (
	"sort"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/cadm/internal/domain"
)

// productRepositoryInMemory — простая in-memory реализация ProductRepository.
type productRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Product
}

// NewProductRepository возвращает in-memory репозиторий каталога.
func NewProductRepository() domain.ProductRepository {
	return &productRepositoryInMemory{
		items: make(map[string]domain.Product),
	}
}

// Create сохраняет новый товар, если ID ещё не занят.
func (r *productRepositoryInMemory) Create(product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[product.ID]; exists {
		return domain.ErrVersionConflict
	}
	r.items[product.ID] = product
	return nil
}

// Get возвращает товар или ErrProductNotFound, если его нет.
func (r *productRepositoryInMemory) Get(id string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.items[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

// List возвращает страницу каталога по фильтру и keyset-курсору.
func (r *productRepositoryInMemory) List(q domain.Query) (domain.Page[domain.Product], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]domain.Product, 0, len(r.items))
	for _, product := range r.items {
		if !productMatches(product, q.Filter) {
			continue
		}
		matched = append(matched, product)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	return paginate(matched, q.After, q.Limit, func(p domain.Product) string { return p.ID }), nil
}

// Save перезаписывает товар, проверяя версию (optimistic locking).
func (r *productRepositoryInMemory) Save(product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[product.ID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if current.Version != product.Version {
		return domain.ErrVersionConflict
	}
	product.Version++
	r.items[product.ID] = product
	return nil
}

// Delete удаляет товар или возвращает ErrProductNotFound.
func (r *productRepositoryInMemory) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return domain.ErrProductNotFound
	}
	delete(r.items, id)
	return nil
}

// AdjustStock атомарно применяет приращения остатков: либо все строки,
// либо ни одной. Отрицательный итог по размеру отклоняет весь батч.
func (r *productRepositoryInMemory) AdjustStock(adjustments []domain.StockAdjustment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Первый проход: валидация без мутаций.
	for _, adj := range adjustments {
		product, ok := r.items[adj.ProductID]
		if !ok {
			return domain.ErrProductNotFound
		}
		idx := sizeIndex(product.Sizes, adj.Size)
		if idx < 0 {
			return domain.ErrSizeNotFound
		}
		if product.Sizes[idx].Stock+adj.Quantity < 0 {
			return domain.ErrStockNegative
		}
	}

	for _, adj := range adjustments {
		product := r.items[adj.ProductID]
		sizes := make([]domain.SizeVariant, len(product.Sizes))
		copy(sizes, product.Sizes)
		idx := sizeIndex(sizes, adj.Size)
		sizes[idx].Stock += adj.Quantity
		product.Sizes = sizes
		product.Version++
		r.items[adj.ProductID] = product
	}
	return nil
}

func sizeIndex(sizes []domain.SizeVariant, size string) int {
	for i, s := range sizes {
		if s.Size == size {
			return i
		}
	}
	return -1
}

// productMatches проверяет товар против фильтра: поисковая строка по
// идентификатору, названию и категории; категория — точное совпадение
// без учёта регистра; диапазон дат по CreatedAt.
func productMatches(product domain.Product, f domain.Filter) bool {
	if search := strings.ToLower(f.Search); search != "" {
		if !strings.Contains(strings.ToLower(product.ID), search) &&
			!strings.Contains(strings.ToLower(product.Name), search) &&
			!strings.Contains(strings.ToLower(product.Category), search) {
			return false
		}
	}
	if f.Category != "" && !strings.EqualFold(product.Category, f.Category) {
		return false
	}
	if !f.DateFrom.IsZero() && product.CreatedAt.Before(f.DateFrom) {
		return false
	}
	if !f.DateTo.IsZero() && product.CreatedAt.After(f.DateTo) {
		return false
	}
	return true
}
