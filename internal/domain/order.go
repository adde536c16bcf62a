package domain

import "time"

// OrderStatus описывает жизненный цикл заказа в админ-консоли.
type OrderStatus string

const (
	// OrderStatusPending — заказ принят, но ещё не подтверждён оператором.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirm — заказ подтверждён и ждёт сборки.
	OrderStatusConfirm OrderStatus = "confirm"
	// OrderStatusPack — заказ собран и упакован.
	OrderStatusPack OrderStatus = "pack"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusReturn — заказ возвращён; сток по позициям подлежит восстановлению.
	OrderStatusReturn OrderStatus = "return"
	// OrderStatusSuccessful — заказ доставлен и закрыт.
	OrderStatusSuccessful OrderStatus = "successful"
)

// статусная цепочка исполнения; return/successful стоят вне цепочки.
var statusRank = map[OrderStatus]int{
	OrderStatusPending: 0,
	OrderStatusConfirm: 1,
	OrderStatusPack:    2,
	OrderStatusShipped: 3,
}

// Valid сообщает, известен ли статус.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirm, OrderStatusPack,
		OrderStatusShipped, OrderStatusReturn, OrderStatusSuccessful:
		return true
	}
	return false
}

// Closed сообщает, завершён ли жизненный цикл заказа.
func (s OrderStatus) Closed() bool {
	return s == OrderStatusReturn || s == OrderStatusSuccessful
}

// Dispatched сообщает, что заказ уже отправлялся: для действия
// «передать курьеру» такие статусы терминальны.
func (s OrderStatus) Dispatched() bool {
	return s == OrderStatusShipped || s.Closed()
}

// CanTransition проверяет допустимость перехода между статусами:
// движение вперёд по цепочке pending → confirm → pack → shipped
// (с пропуском шагов), return/successful достижимы из любого
// незакрытого статуса.
func CanTransition(from, to OrderStatus) bool {
	if !from.Valid() || !to.Valid() || from == to {
		return false
	}
	if from.Closed() {
		return false
	}
	if to == OrderStatusReturn || to == OrderStatusSuccessful {
		return true
	}
	return statusRank[to] > statusRank[from]
}

// CartLine представляет одну позицию корзины заказа.
type CartLine struct {
	// ProductID ссылается на товар каталога.
	ProductID string `json:"productId"`
	// ProductName и ProductImage денормализованы для отображения.
	ProductName  string `json:"productName"`
	ProductImage string `json:"productImage,omitempty"`
	// Size — выбранный размер товара.
	Size string `json:"selectedSize"`
	// Quantity — количество единиц.
	Quantity int32 `json:"quantity"`
	// PriceMinor — цена за единицу в минимальных денежных единицах.
	PriceMinor int64 `json:"price"`
}

// Order агрегирует состояние заказа и его корзину.
type Order struct {
	ID            string      `json:"_id"`
	CustomerName  string      `json:"name"`
	Phone         string      `json:"phone"`
	Address       string      `json:"address"`
	Status        OrderStatus `json:"status"`
	Cart          []CartLine  `json:"cart"`
	TotalMinor    int64       `json:"totalPrice"`
	DeliveryMinor int64       `json:"deliveryCharge"`
	Version       int64       `json:"version"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// EntityID возвращает серверный идентификатор заказа.
func (o Order) EntityID() string { return o.ID }

// StockReturns строит приращения стока по корзине для возврата заказа.
func (o Order) StockReturns() []StockAdjustment {
	adjustments := make([]StockAdjustment, 0, len(o.Cart))
	for _, line := range o.Cart {
		adjustments = append(adjustments, StockAdjustment{
			ProductID: line.ProductID,
			Size:      line.Size,
			Quantity:  line.Quantity,
		})
	}
	return adjustments
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerName == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if len(o.Cart) == 0 {
		errs = append(errs, ErrCartRequired)
	}
	if o.Status != "" && !o.Status.Valid() {
		errs = append(errs, ErrStatusInvalid)
	}
	if o.DeliveryMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	// Сверяем сумму заказа с суммой позиций плюс доставка.
	var calc int64
	for _, line := range o.Cart {
		if line.ProductID == "" {
			errs = append(errs, ErrLineProductRequired)
		}
		if line.Quantity <= 0 {
			errs = append(errs, ErrLineQtyInvalid)
		}
		if line.PriceMinor < 0 {
			errs = append(errs, ErrLinePriceInvalid)
		}
		calc += int64(line.Quantity) * line.PriceMinor
	}
	if calc+o.DeliveryMinor != o.TotalMinor {
		errs = append(errs, ErrTotalMismatch)
	}

	return errs
}
