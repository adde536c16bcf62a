package mirror

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cadm/internal/domain"
	"github.com/vladislavdragonenkov/cadm/internal/metrics"
)

// Fetcher выдаёт страницы серверной коллекции для контроллера.
type Fetcher[T domain.Entity] interface {
	List(ctx context.Context, q domain.Query) (domain.Page[T], error)
}

// FetcherFunc адаптирует функцию под Fetcher.
type FetcherFunc[T domain.Entity] func(ctx context.Context, q domain.Query) (domain.Page[T], error)

// List вызывает функцию.
func (f FetcherFunc[T]) List(ctx context.Context, q domain.Query) (domain.Page[T], error) {
	return f(ctx, q)
}

// Controller выпускает replace- и append-выборки для одного представления
// и решает, применять ли пришедший ответ.
//
// Логические гонки между запросами снимаются двумя механизмами:
// поколением фильтра (ответ, выпущенный под устаревшим поколением,
// отбрасывается молча) и гвардом единственного append в полёте
// (повторный append при незавершённом — no-op, не очередь).
type Controller[T domain.Entity] struct {
	mu sync.Mutex

	collection string
	view       *View[T]
	fetch      Fetcher[T]
	pageSize   int
	logger     *log.Entry
	metrics    *metrics.SyncMetrics

	filter         domain.Filter
	generation     uint64
	loaded         bool
	hasMore        bool
	appendInFlight bool
}

// NewController создаёт контроллер для представления. metrics может быть nil.
func NewController[T domain.Entity](
	collection string,
	view *View[T],
	fetch Fetcher[T],
	pageSize int,
	logger *log.Entry,
	syncMetrics *metrics.SyncMetrics,
) *Controller[T] {
	if logger == nil {
		logger = log.New().WithField("component", "mirror")
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Controller[T]{
		collection: collection,
		view:       view,
		fetch:      fetch,
		pageSize:   pageSize,
		logger:     logger.WithField("collection", collection),
		metrics:    syncMetrics,
	}
}

// View возвращает представление, которым владеет контроллер.
func (c *Controller[T]) View() *View[T] {
	return c.view
}

// ActiveFilter возвращает фильтр, который представление отражает сейчас.
func (c *Controller[T]) ActiveFilter() domain.Filter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// HasMore сообщает, остались ли непрочитанные страницы активного фильтра.
func (c *Controller[T]) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded && c.hasMore
}

// AppendInFlight сообщает, выполняется ли append прямо сейчас.
func (c *Controller[T]) AppendInFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appendInFlight
}

// Replace устанавливает новый активный фильтр и выбирает первую страницу.
// Смена фильтра инвалидирует все выборки предыдущего поколения: их ответы
// будут отброшены, сетевые вызовы при этом не прерываются. При ошибке
// представление остаётся на прежнем содержимом.
func (c *Controller[T]) Replace(ctx context.Context, filter domain.Filter) error {
	filter = filter.Normalize()

	c.mu.Lock()
	c.generation++
	generation := c.generation
	c.filter = filter
	// Новый фильтр сбрасывает гвард: висящий append принадлежит
	// предыдущему поколению и уже не применится.
	c.appendInFlight = false
	c.loaded = false
	c.mu.Unlock()

	start := time.Now()
	page, err := c.fetch.List(ctx, domain.Query{Filter: filter, Limit: c.pageSize})
	if c.metrics != nil {
		c.metrics.ObserveFetchDuration(time.Since(start))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		// Ответ пережил смену фильтра: отбрасываем, даже успешный.
		if c.metrics != nil {
			c.metrics.RecordStaleDiscarded()
		}
		c.logger.WithField("search", filter.Search).Debug("stale replace response discarded")
		return nil
	}

	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordFetchFailed("replace")
		}
		c.logger.WithError(err).Warn("replace fetch failed")
		return err
	}

	size := c.view.reset(page.Items)
	c.loaded = true
	c.hasMore = page.HasMore && len(page.Items) >= c.pageSize

	if c.metrics != nil {
		c.metrics.RecordReplaceApplied()
		c.metrics.SetViewSize(c.collection, size)
	}
	c.logger.WithFields(log.Fields{
		"items":    len(page.Items),
		"has_more": c.hasMore,
	}).Debug("replace applied")
	return nil
}

// Append выбирает следующую страницу активного фильтра, используя id
// последней сущности как курсор. Повторный вызов при append в полёте,
// исчерпанном наборе или до первой успешной загрузки — no-op.
// При ошибке гвард снимается и представление не меняется.
func (c *Controller[T]) Append(ctx context.Context) error {
	c.mu.Lock()
	if c.appendInFlight || !c.loaded || !c.hasMore {
		if c.appendInFlight && c.metrics != nil {
			c.metrics.RecordAppendSkipped()
		}
		c.mu.Unlock()
		return nil
	}
	c.appendInFlight = true
	generation := c.generation
	filter := c.filter
	after := c.view.LastID()
	c.mu.Unlock()

	start := time.Now()
	page, err := c.fetch.List(ctx, domain.Query{Filter: filter, After: after, Limit: c.pageSize})
	if c.metrics != nil {
		c.metrics.ObserveFetchDuration(time.Since(start))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		// Гвард уже сброшен сменой фильтра; ответ принадлежит
		// вытесненному набору.
		if c.metrics != nil {
			c.metrics.RecordStaleDiscarded()
		}
		c.logger.Debug("stale append response discarded")
		return nil
	}

	c.appendInFlight = false

	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordFetchFailed("append")
		}
		c.logger.WithError(err).Warn("append fetch failed")
		return err
	}

	size := c.view.merge(page.Items)
	c.hasMore = page.HasMore && len(page.Items) >= c.pageSize

	if c.metrics != nil {
		c.metrics.RecordAppendApplied()
		c.metrics.SetViewSize(c.collection, size)
	}
	c.logger.WithFields(log.Fields{
		"items":    len(page.Items),
		"has_more": c.hasMore,
	}).Debug("append applied")
	return nil
}
