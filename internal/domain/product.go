package domain

import "time"

// SizeVariant описывает один размер товара с собственным стоком и ценой.
type SizeVariant struct {
	Size string `json:"size"`
	// Stock — доступный остаток по размеру.
	Stock int32 `json:"stock"`
	// PriceMinor и DiscountMinor — цена и цена со скидкой в минимальных единицах.
	PriceMinor    int64 `json:"price"`
	DiscountMinor int64 `json:"discountPrice,omitempty"`
}

// Product представляет карточку товара каталога.
type Product struct {
	ID        string        `json:"_id"`
	Name      string        `json:"name"`
	Category  string        `json:"category"`
	Images    []string      `json:"images"`
	Sizes     []SizeVariant `json:"sizes"`
	Version   int64         `json:"version"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// EntityID возвращает серверный идентификатор товара.
func (p Product) EntityID() string { return p.ID }

// ValidateInvariants проверяет базовые инварианты товара.
func (p *Product) ValidateInvariants() []error {
	var errs []error

	if p.Name == "" {
		errs = append(errs, ErrProductNameRequired)
	}
	if len(p.Sizes) == 0 {
		errs = append(errs, ErrSizesRequired)
	}
	for _, variant := range p.Sizes {
		if variant.Size == "" {
			errs = append(errs, ErrSizeNameRequired)
		}
		if variant.Stock < 0 {
			errs = append(errs, ErrStockNegative)
		}
		if variant.PriceMinor < 0 || variant.DiscountMinor < 0 {
			errs = append(errs, ErrLinePriceInvalid)
		}
	}

	return errs
}

// StockAdjustment описывает приращение (или списание) стока одного размера товара.
type StockAdjustment struct {
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	// Quantity — дельта; положительная при возврате.
	Quantity int32 `json:"quantity"`
}
