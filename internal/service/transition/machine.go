package transition

import (
	"context"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cadm/internal/domain"
	"github.com/vladislavdragonenkov/cadm/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/cadm/internal/metrics"
	"github.com/vladislavdragonenkov/cadm/internal/mirror"
)

// Machine выполняет переходы статусов заказов: валидирует переход,
// фиксирует его на бэкенде и патчит локальное представление. Для
// возвратов запускает вторую фазу — корректировку остатков, ошибка
// которой не откатывает уже зафиксированный статус.
type Machine struct {
	orders        domain.OrderAPI
	stock         domain.StockAPI
	courier       domain.CourierAPI
	applier       *mirror.Applier[domain.Order]
	logger        *log.Entry
	metrics       *metrics.SyncMetrics
	kafkaProducer *kafka.Producer // опциональный Kafka producer для event-driven архитектуры
}

// Result — итог перехода. StockWarning не nil, когда статус заказа
// зафиксирован, а корректировка остатков не прошла: заказ в новом
// статусе, склад требует ручной сверки.
type Result struct {
	Order        domain.Order
	StockWarning error
}

// NewMachine создаёт машину переходов. metrics может быть nil.
func NewMachine(
	orders domain.OrderAPI,
	stock domain.StockAPI,
	courier domain.CourierAPI,
	applier *mirror.Applier[domain.Order],
	logger *log.Entry,
	syncMetrics *metrics.SyncMetrics,
) *Machine {
	if logger == nil {
		logger = log.New().WithField("component", "transition")
	}
	return &Machine{
		orders:  orders,
		stock:   stock,
		courier: courier,
		applier: applier,
		logger:  logger,
		metrics: syncMetrics,
	}
}

// NewMachineWithKafka создаёт машину переходов с Kafka producer.
func NewMachineWithKafka(
	orders domain.OrderAPI,
	stock domain.StockAPI,
	courier domain.CourierAPI,
	applier *mirror.Applier[domain.Order],
	kafkaProducer *kafka.Producer,
	logger *log.Entry,
	syncMetrics *metrics.SyncMetrics,
) *Machine {
	m := NewMachine(orders, stock, courier, applier, logger, syncMetrics)
	m.kafkaProducer = kafkaProducer
	return m
}

// ChangeStatus переводит заказ в статус next. Повторный перевод в тот же
// статус — no-op. Для return после фиксации статуса выполняется возврат
// остатков; его ошибка возвращается в Result.StockWarning, статус при
// этом не откатывается.
func (m *Machine) ChangeStatus(ctx context.Context, order domain.Order, next domain.OrderStatus) (Result, error) {
	if !next.Valid() {
		return Result{}, domain.ErrStatusInvalid
	}
	if order.Status == next {
		m.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"status":   next,
		}).Debug("order already in requested status")
		return Result{Order: order}, nil
	}
	if !domain.CanTransition(order.Status, next) {
		m.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"from":     order.Status,
			"to":       next,
		}).Warn("transition rejected")
		return Result{}, domain.ErrTransitionInvalid
	}

	updated, err := m.orders.UpdateStatus(ctx, order.ID, next)
	if err != nil {
		m.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"to":       next,
		}).Warn("failed to persist status")
		return Result{}, err
	}

	// Статус зафиксирован: представление патчится до любой второй фазы.
	m.applier.ApplyUpdate(updated)
	if m.metrics != nil {
		m.metrics.RecordTransition(string(next))
	}
	m.publishOrderEvent(kafka.EventTypeStatusChanged, updated.ID, string(order.Status), string(next), nil)

	result := Result{Order: updated}
	if next == domain.OrderStatusReturn {
		result.StockWarning = m.returnStock(ctx, updated)
	}
	return result, nil
}

// Dispatch передаёт заказ курьеру и переводит его в shipped.
// Уже отправленный или закрытый заказ не отправляется повторно.
func (m *Machine) Dispatch(ctx context.Context, order domain.Order) (Result, error) {
	if order.Status.Dispatched() {
		return Result{}, domain.ErrAlreadyDispatched
	}

	if err := m.courier.Dispatch(ctx, order); err != nil {
		m.logger.WithError(err).WithField("order_id", order.ID).Warn("courier dispatch failed")
		return Result{}, err
	}

	updated, err := m.orders.UpdateStatus(ctx, order.ID, domain.OrderStatusShipped)
	if err != nil {
		// Курьер уже принял заказ; статус доедет при следующей выборке.
		m.logger.WithError(err).WithField("order_id", order.ID).Error("dispatched but failed to persist shipped status")
		return Result{}, err
	}

	m.applier.ApplyUpdate(updated)
	if m.metrics != nil {
		m.metrics.RecordTransition(string(domain.OrderStatusShipped))
		m.metrics.RecordDispatch()
	}
	m.publishOrderEvent(kafka.EventTypeOrderDispatched, updated.ID, string(order.Status), string(domain.OrderStatusShipped), nil)

	m.logger.WithField("order_id", updated.ID).Info("order dispatched")
	return Result{Order: updated}, nil
}

// returnStock выполняет вторую фазу возврата: приращения остатков по
// позициям корзины. Ошибка не откатывает статус и возвращается как
// предупреждение.
func (m *Machine) returnStock(ctx context.Context, order domain.Order) error {
	adjustments := order.StockReturns()
	if len(adjustments) == 0 {
		return nil
	}

	adjustmentID := uuid.NewString()
	if err := m.stock.Adjust(ctx, adjustmentID, adjustments); err != nil {
		m.logger.WithError(err).WithFields(log.Fields{
			"order_id":      order.ID,
			"adjustment_id": adjustmentID,
			"lines":         len(adjustments),
		}).Warn("stock adjustment after return failed, manual reconciliation required")
		if m.metrics != nil {
			m.metrics.RecordStockWarning()
		}
		m.publishStockEvent(kafka.EventTypeStockAdjustFailed, adjustmentID, order.ID, adjustments, err)
		return err
	}

	m.logger.WithFields(log.Fields{
		"order_id":      order.ID,
		"adjustment_id": adjustmentID,
		"lines":         len(adjustments),
	}).Debug("stock returned")
	m.publishStockEvent(kafka.EventTypeStockAdjusted, adjustmentID, order.ID, adjustments, nil)
	return nil
}

// publishOrderEvent публикует событие заказа в Kafka (если producer настроен)
func (m *Machine) publishOrderEvent(eventType kafka.EventType, orderID, from, to string, metadata map[string]interface{}) {
	if m.kafkaProducer == nil {
		return // Kafka не настроен, пропускаем
	}

	event := kafka.NewOrderEvent(eventType, orderID, from, to, metadata)
	if err := m.kafkaProducer.PublishEvent(kafka.TopicOrderEvents, orderID, event); err != nil {
		// Логируем ошибку, но не прерываем переход - Kafka опциональный
		m.logger.WithError(err).WithFields(log.Fields{
			"event_type": eventType,
			"order_id":   orderID,
		}).Warn("failed to publish order event to kafka")
	}
}

func (m *Machine) publishStockEvent(eventType kafka.EventType, adjustmentID, orderID string, adjustments []domain.StockAdjustment, adjustErr error) {
	if m.kafkaProducer == nil {
		return
	}

	lines := make([]kafka.StockLine, 0, len(adjustments))
	for _, a := range adjustments {
		lines = append(lines, kafka.StockLine{
			ProductID: a.ProductID,
			Size:      a.Size,
			Quantity:  a.Quantity,
		})
	}

	event := kafka.NewStockEvent(eventType, adjustmentID, orderID, lines, adjustErr)
	if err := m.kafkaProducer.PublishEvent(kafka.TopicStockEvents, orderID, event); err != nil {
		m.logger.WithError(err).WithFields(log.Fields{
			"event_type": eventType,
			"order_id":   orderID,
		}).Warn("failed to publish stock event to kafka")
	}
}
