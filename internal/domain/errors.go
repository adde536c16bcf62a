package domain

import "errors"

var (
	// Ошибка отсутствующего имени клиента в заказе.
	ErrCustomerRequired = errors.New("customer name is required")
	// Ошибка пустой корзины заказа.
	ErrCartRequired = errors.New("order must contain at least one cart line")
	// Ошибка позиции без ссылки на товар.
	ErrLineProductRequired = errors.New("cart line product_id is required")
	// Ошибка при некорректном количестве в позиции (<= 0).
	ErrLineQtyInvalid = errors.New("cart line quantity must be greater than zero")
	// Ошибка отрицательной цены позиции.
	ErrLinePriceInvalid = errors.New("cart line price must be non-negative")
	// Ошибка отрицательной суммы доставки.
	ErrAmountNegative = errors.New("delivery charge must be non-negative")
	// Ошибка несоответствия итоговой суммы заказа и сумм позиций.
	ErrTotalMismatch = errors.New("order total does not match cart sum")
	// Ошибка отсутствующего имени товара.
	ErrProductNameRequired = errors.New("product name is required")
	// Ошибка товара без размеров.
	ErrSizesRequired = errors.New("product must contain at least one size")
	// Ошибка размера без имени.
	ErrSizeNameRequired = errors.New("size name is required")
	// Ошибка отрицательного остатка.
	ErrStockNegative = errors.New("size stock must be non-negative")

	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrProductNotFound возвращается, если товар не найден.
	ErrProductNotFound = errors.New("product not found")
	// ErrSizeNotFound возвращается при корректировке стока несуществующего размера.
	ErrSizeNotFound = errors.New("product size not found")
	// ErrVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrVersionConflict = errors.New("entity version conflict")

	// ErrStatusInvalid — неизвестный статус заказа.
	ErrStatusInvalid = errors.New("unknown order status")
	// ErrTransitionInvalid — недопустимый переход статуса.
	ErrTransitionInvalid = errors.New("status transition is not allowed")
	// ErrAlreadyDispatched — заказ уже передавался в доставку.
	ErrAlreadyDispatched = errors.New("order is already dispatched")

	// ErrTransient — временная транспортная ошибка; операцию можно повторить.
	ErrTransient = errors.New("transient transport error")
)

// IsTransient проверяет, является ли ошибка временной транспортной.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
