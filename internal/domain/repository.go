package domain

// OrderRepository описывает требования к хранилищу заказов на стороне бэкенда.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ошибку, если запись с таким ID уже существует.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(id string) (Order, error)
	// List возвращает страницу заказов по фильтру и keyset-курсору.
	List(q Query) (Page[Order], error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(order Order) error
	// Delete удаляет заказ или возвращает ErrOrderNotFound.
	Delete(id string) error
}

// ProductRepository описывает требования к хранилищу каталога.
type ProductRepository interface {
	Create(product Product) error
	Get(id string) (Product, error)
	List(q Query) (Page[Product], error)
	Save(product Product) error
	Delete(id string) error
	// AdjustStock атомарно применяет приращения остатков по размерам.
	AdjustStock(adjustments []StockAdjustment) error
}
