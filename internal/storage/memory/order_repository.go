package memory

import (
	"sort"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/cadm/internal/domain"
)

// orderRepositoryInMemory — простая in-memory реализация OrderRepository.
type orderRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Order
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items: make(map[string]domain.Order),
	}
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r *orderRepositoryInMemory) Create(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.ID]; exists {
		return domain.ErrVersionConflict
	}
	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	r.items[order.ID] = order
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

// List возвращает страницу заказов по фильтру и keyset-курсору.
// Порядок — от новых к старым (CreatedAt, затем ID). Категория к заказам
// не применяется.
func (r *orderRepositoryInMemory) List(q domain.Query) (domain.Page[domain.Order], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]domain.Order, 0, len(r.items))
	for _, order := range r.items {
		if !orderMatches(order, q.Filter) {
			continue
		}
		matched = append(matched, order)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	return paginate(matched, q.After, q.Limit, func(o domain.Order) string { return o.ID }), nil
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
func (r *orderRepositoryInMemory) Save(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrVersionConflict
	}
	// Инкрементируем версию перед сохранением.
	order.Version++
	r.items[order.ID] = order
	return nil
}

// Delete удаляет заказ или возвращает ErrOrderNotFound.
func (r *orderRepositoryInMemory) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return domain.ErrOrderNotFound
	}
	delete(r.items, id)
	return nil
}

// orderMatches проверяет заказ против фильтра: поисковая строка по
// идентификатору, имени, телефону, адресу и названиям позиций корзины;
// диапазон дат по CreatedAt.
func orderMatches(order domain.Order, f domain.Filter) bool {
	if search := strings.ToLower(f.Search); search != "" {
		haystacks := []string{order.ID, order.CustomerName, order.Phone, order.Address}
		for _, line := range order.Cart {
			haystacks = append(haystacks, line.ProductName)
		}
		found := false
		for _, h := range haystacks {
			if strings.Contains(strings.ToLower(h), search) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.DateFrom.IsZero() && order.CreatedAt.Before(f.DateFrom) {
		return false
	}
	if !f.DateTo.IsZero() && order.CreatedAt.After(f.DateTo) {
		return false
	}
	return true
}

// paginate режет отсортированный набор по keyset-курсору after и limit.
// Неизвестный курсор (запись удалили между страницами) завершает набор.
func paginate[T any](sorted []T, after string, limit int, id func(T) string) domain.Page[T] {
	start := 0
	if after != "" {
		start = len(sorted)
		for i, item := range sorted {
			if id(item) == after {
				start = i + 1
				break
			}
		}
	}
	rest := sorted[start:]

	if limit <= 0 || len(rest) <= limit {
		return domain.Page[T]{Items: rest, HasMore: false}
	}
	return domain.Page[T]{Items: rest[:limit], HasMore: true}
}
