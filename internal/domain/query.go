package domain

import (
	"strings"
	"time"
)

// Filter задаёт фильтровую часть логического результирующего набора:
// поисковая строка плюс категория или диапазон дат. Пустые поля значат
// «совпадает всё».
type Filter struct {
	Search   string
	Category string
	DateFrom time.Time
	DateTo   time.Time
}

// Normalize обрезает пробелы; другой валидации у фильтра нет.
func (f Filter) Normalize() Filter {
	f.Search = strings.TrimSpace(f.Search)
	f.Category = strings.TrimSpace(f.Category)
	return f
}

// Equal сравнивает фильтровые части без учёта курсора.
// Два запроса с одинаковым фильтром принадлежат одному набору.
func (f Filter) Equal(other Filter) bool {
	return f.Search == other.Search &&
		f.Category == other.Category &&
		f.DateFrom.Equal(other.DateFrom) &&
		f.DateTo.Equal(other.DateTo)
}

// Query — фильтр плюс позиция в наборе: курсор After (идентификатор
// последней полученной сущности, пустой для первой страницы) и размер
// страницы.
type Query struct {
	Filter
	After string
	Limit int
}

// Page — страница ответа коллаборатора: элементы в порядке отображения
// и явный признак наличия продолжения.
type Page[T any] struct {
	Items   []T
	HasMore bool
}
