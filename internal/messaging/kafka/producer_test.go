package kafka

import (
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

func TestProducer_PublishEvent(t *testing.T) {
	// Создаем mock producer
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	// Настраиваем ожидания
	mockProducer.ExpectSendMessageAndSucceed()

	event := NewOrderEvent(
		EventTypeStatusChanged,
		"order-123",
		"pending",
		"confirm",
		nil,
	)

	// Публикуем событие
	err := producer.PublishEvent(TopicOrderEvents, "order-123", event)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Проверяем, что все ожидания выполнены
	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	// Создаем mock producer с ошибкой
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	// Настраиваем ожидание ошибки
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	event := NewOrderEvent(EventTypeStatusChanged, "order-123", "pending", "confirm", nil)

	err := producer.PublishEvent(TopicOrderEvents, "order-123", event)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewOrderEvent(t *testing.T) {
	event := NewOrderEvent(
		EventTypeOrderDispatched,
		"order-123",
		"pack",
		"shipped",
		map[string]interface{}{"courier": "pathao"},
	)

	if event.EventType != EventTypeOrderDispatched {
		t.Errorf("expected event type %s, got %s", EventTypeOrderDispatched, event.EventType)
	}

	if event.OrderID != "order-123" {
		t.Errorf("expected order id order-123, got %s", event.OrderID)
	}

	if event.FromStatus != "pack" || event.ToStatus != "shipped" {
		t.Errorf("unexpected transition %s -> %s", event.FromStatus, event.ToStatus)
	}

	if event.Metadata["courier"] != "pathao" {
		t.Error("metadata not set correctly")
	}

	// Проверяем, что timestamp установлен
	if event.Timestamp.IsZero() {
		t.Error("timestamp should not be zero")
	}

	if time.Since(event.Timestamp) > time.Second {
		t.Error("timestamp should be close to current time")
	}
}

func TestNewStockEvent(t *testing.T) {
	lines := []StockLine{
		{ProductID: "prod-1", Size: "M", Quantity: 2},
		{ProductID: "prod-2", Size: "L", Quantity: 1},
	}

	event := NewStockEvent(EventTypeStockAdjustFailed, "adj-1", "order-123", lines, errors.New("product not found"))

	if event.EventType != EventTypeStockAdjustFailed {
		t.Errorf("expected event type %s, got %s", EventTypeStockAdjustFailed, event.EventType)
	}

	if event.AdjustmentID != "adj-1" {
		t.Errorf("expected adjustment id adj-1, got %s", event.AdjustmentID)
	}

	if len(event.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(event.Lines))
	}

	if event.Error != "product not found" {
		t.Errorf("unexpected error text %q", event.Error)
	}

	ok := NewStockEvent(EventTypeStockAdjusted, "adj-2", "order-123", lines, nil)
	if ok.Error != "" {
		t.Errorf("successful event must carry no error, got %q", ok.Error)
	}
}
