package mirror

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cadm/internal/domain"
	"github.com/vladislavdragonenkov/cadm/internal/metrics"
)

// Applier применяет результаты уже успешных единичных мутаций прямо в
// представление, минуя полную перевыборку. Сам Applier сетевых вызовов
// не делает; каждая операция идемпотентна, поэтому повторное применение
// одного и того же результата безопасно.
type Applier[T domain.Entity] struct {
	collection string
	view       *View[T]
	logger     *log.Entry
	metrics    *metrics.SyncMetrics
}

// NewApplier создаёт обработчик патчей над представлением. metrics может быть nil.
func NewApplier[T domain.Entity](
	collection string,
	view *View[T],
	logger *log.Entry,
	syncMetrics *metrics.SyncMetrics,
) *Applier[T] {
	if logger == nil {
		logger = log.New().WithField("component", "patch-applier")
	}
	return &Applier[T]{
		collection: collection,
		view:       view,
		logger:     logger.WithField("collection", collection),
		metrics:    syncMetrics,
	}
}

// ApplyCreate вставляет созданную сущность в начало представления
// (отображение — от новых к старым); no-op при уже известном id.
func (a *Applier[T]) ApplyCreate(entity T) {
	if !a.view.insertHead(entity) {
		a.logger.WithField("id", entity.EntityID()).Debug("create patch skipped: id already present")
		return
	}
	a.record("create")
}

// ApplyUpdate перезаписывает payload по id без изменения порядка.
// Отсутствующий id — промах, не ошибка: сущность могла быть вытеснена
// сменой фильтра.
func (a *Applier[T]) ApplyUpdate(entity T) {
	if !a.view.replaceExisting(entity) {
		a.logger.WithField("id", entity.EntityID()).Debug("update patch missed: id not materialized")
		return
	}
	a.record("update")
}

// ApplyDelete удаляет id из представления; no-op при отсутствии.
func (a *Applier[T]) ApplyDelete(id string) {
	if !a.view.remove(id) {
		a.logger.WithField("id", id).Debug("delete patch missed: id not materialized")
		return
	}
	a.record("delete")
}

func (a *Applier[T]) record(op string) {
	if a.metrics == nil {
		return
	}
	a.metrics.RecordPatch(op)
	a.metrics.SetViewSize(a.collection, a.view.Len())
}
