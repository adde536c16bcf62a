package domain

import "context"

// Entity — минимальный контракт сущности материализованного представления.
type Entity interface {
	EntityID() string
}

// OrderAPI описывает операции бэкенда над коллекцией заказов,
// которые потребляет движок синхронизации.
type OrderAPI interface {
	// List возвращает страницу заказов в порядке отображения.
	List(ctx context.Context, q Query) (Page[Order], error)
	// Create сохраняет новый заказ и возвращает серверную версию записи.
	Create(ctx context.Context, order Order) (Order, error)
	// Update применяет изменения к заказу целиком.
	Update(ctx context.Context, order Order) (Order, error)
	// UpdateStatus меняет только статус заказа.
	UpdateStatus(ctx context.Context, id string, status OrderStatus) (Order, error)
	// Delete удаляет заказ.
	Delete(ctx context.Context, id string) error
}

// ProductAPI описывает операции бэкенда над каталогом товаров.
type ProductAPI interface {
	List(ctx context.Context, q Query) (Page[Product], error)
	Create(ctx context.Context, product Product) (Product, error)
	Update(ctx context.Context, product Product) (Product, error)
	Delete(ctx context.Context, id string) error
}

// StockAPI описывает вторичную фазу возврата: корректировку стока
// по позициям корзины в коллекции товаров.
type StockAPI interface {
	// Adjust применяет набор приращений; должен быть идемпотентным
	// относительно adjustmentID на стороне бэкенда.
	Adjust(ctx context.Context, adjustmentID string, adjustments []StockAdjustment) error
}

// CourierAPI описывает передачу заказа в службу доставки.
type CourierAPI interface {
	// Dispatch отправляет заказ курьеру; успех означает, что заказ
	// можно переводить в статус shipped.
	Dispatch(ctx context.Context, order Order) error
}
