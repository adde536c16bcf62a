package mirror

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cadm/internal/domain"
)

// SentinelTrigger переводит сигнал видимости якоря в конце списка в
// запрос append. Срабатывает ровно один раз на переход «не виден →
// виден»; пока якорь остаётся видимым, повторных запросов нет.
// Авторитетная защита от конкурентных append — гвард контроллера,
// триггер лишь не создаёт лишних вызовов.
type SentinelTrigger[T domain.Entity] struct {
	mu      sync.Mutex
	ctrl    *Controller[T]
	visible bool
	logger  *log.Entry
}

// NewSentinelTrigger создаёт триггер над контроллером.
func NewSentinelTrigger[T domain.Entity](ctrl *Controller[T], logger *log.Entry) *SentinelTrigger[T] {
	if logger == nil {
		logger = log.New().WithField("component", "sentinel-trigger")
	}
	return &SentinelTrigger[T]{
		ctrl:   ctrl,
		logger: logger,
	}
}

// Observe принимает очередное состояние видимости якоря и на растущем
// фронте запрашивает append. Триггер обезоружен, пока append в полёте
// или набор исчерпан.
func (t *SentinelTrigger[T]) Observe(ctx context.Context, visible bool) error {
	t.mu.Lock()
	rising := visible && !t.visible
	t.visible = visible
	t.mu.Unlock()

	if !rising {
		return nil
	}
	if !t.ctrl.HasMore() || t.ctrl.AppendInFlight() {
		return nil
	}

	if err := t.ctrl.Append(ctx); err != nil {
		// Список остаётся как есть; следующий фронт видимости повторит попытку.
		t.logger.WithError(err).Warn("append triggered by sentinel failed")
		return err
	}
	return nil
}
