package kafka

import "time"

// EventType определяет тип события
type EventType string

const (
	// Order события
	EventTypeStatusChanged   EventType = "order.status_changed"
	EventTypeOrderDispatched EventType = "order.dispatched"
	EventTypeOrderDeleted    EventType = "order.deleted"

	// Stock события
	EventTypeStockAdjusted     EventType = "stock.adjusted"
	EventTypeStockAdjustFailed EventType = "stock.adjust_failed"
)

// Topics для Kafka
const (
	TopicOrderEvents = "cadm.order.events"
	TopicStockEvents = "cadm.stock.events"
)

// OrderEvent представляет событие жизненного цикла заказа
type OrderEvent struct {
	EventType  EventType              `json:"event_type"`
	OrderID    string                 `json:"order_id"`
	FromStatus string                 `json:"from_status,omitempty"`
	ToStatus   string                 `json:"to_status,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// StockLine описывает одну корректировку остатка в событии
type StockLine struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Quantity  int32  `json:"quantity"`
}

// StockEvent представляет результат корректировки остатков после возврата
type StockEvent struct {
	EventType    EventType   `json:"event_type"`
	AdjustmentID string      `json:"adjustment_id"`
	OrderID      string      `json:"order_id"`
	Lines        []StockLine `json:"lines"`
	Error        string      `json:"error,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}

// NewOrderEvent создает новое событие заказа
func NewOrderEvent(eventType EventType, orderID, fromStatus, toStatus string, metadata map[string]interface{}) *OrderEvent {
	return &OrderEvent{
		EventType:  eventType,
		OrderID:    orderID,
		FromStatus: fromStatus,
		ToStatus:   toStatus,
		Timestamp:  time.Now(),
		Metadata:   metadata,
	}
}

// NewStockEvent создает новое событие корректировки остатков
func NewStockEvent(eventType EventType, adjustmentID, orderID string, lines []StockLine, adjustErr error) *StockEvent {
	event := &StockEvent{
		EventType:    eventType,
		AdjustmentID: adjustmentID,
		OrderID:      orderID,
		Lines:        lines,
		Timestamp:    time.Now(),
	}
	if adjustErr != nil {
		event.Error = adjustErr.Error()
	}
	return event
}
