package mirror

import (
	"sync"

	"github.com/vladislavdragonenkov/cadm/internal/domain"
)

// View — материализованное представление серверной коллекции на стороне
// клиента: упорядоченная последовательность идентификаторов плюс индекс
// сущностей по id. Единственный источник данных для отображения.
//
// Инварианты: в ids нет дубликатов; каждый id из ids присутствует в byID;
// порядок ids — порядок прихода с сервера (replace, затем append), с
// точностью до точечных вставок и удалений.
//
// Мутаторы не экспортируются: запись идёт только через Controller
// (массовые выборки) и Applier (точечные патчи) этого же пакета.
type View[T domain.Entity] struct {
	mu   sync.RWMutex
	ids  []string
	byID map[string]T
}

// NewView создаёт пустое представление.
func NewView[T domain.Entity]() *View[T] {
	return &View[T]{
		byID: make(map[string]T),
	}
}

// Len возвращает количество материализованных сущностей.
func (v *View[T]) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.ids)
}

// IDs возвращает копию порядка отображения.
func (v *View[T]) IDs() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]string, len(v.ids))
	copy(out, v.ids)
	return out
}

// Get возвращает сущность по идентификатору.
func (v *View[T]) Get(id string) (T, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	entity, ok := v.byID[id]
	return entity, ok
}

// Snapshot возвращает сущности в порядке отображения.
func (v *View[T]) Snapshot() []T {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]T, 0, len(v.ids))
	for _, id := range v.ids {
		out = append(out, v.byID[id])
	}
	return out
}

// LastID возвращает идентификатор последней сущности — курсор для append.
func (v *View[T]) LastID() string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if len(v.ids) == 0 {
		return ""
	}
	return v.ids[len(v.ids)-1]
}

// reset заменяет содержимое целиком; внутри одной страницы при повторе
// id выигрывает первое вхождение. Возвращает размер представления.
func (v *View[T]) reset(items []T) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.ids = v.ids[:0]
	v.byID = make(map[string]T, len(items))
	for _, item := range items {
		id := item.EntityID()
		if _, exists := v.byID[id]; exists {
			continue
		}
		v.ids = append(v.ids, id)
		v.byID[id] = item
	}
	return len(v.ids)
}

// merge дописывает страницу в конец: уже известные id пропускаются без
// переупорядочивания и без перезаписи payload. Возвращает размер представления.
func (v *View[T]) merge(items []T) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, item := range items {
		id := item.EntityID()
		if _, exists := v.byID[id]; exists {
			continue
		}
		v.ids = append(v.ids, id)
		v.byID[id] = item
	}
	return len(v.ids)
}

// insertHead вставляет новую сущность в начало; no-op при существующем id.
func (v *View[T]) insertHead(item T) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := item.EntityID()
	if _, exists := v.byID[id]; exists {
		return false
	}
	v.ids = append([]string{id}, v.ids...)
	v.byID[id] = item
	return true
}

// replaceExisting перезаписывает payload без изменения порядка; промах — no-op.
func (v *View[T]) replaceExisting(item T) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := item.EntityID()
	if _, exists := v.byID[id]; !exists {
		return false
	}
	v.byID[id] = item
	return true
}

// remove удаляет id из обеих структур, сохраняя порядок остальных; промах — no-op.
func (v *View[T]) remove(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, exists := v.byID[id]; !exists {
		return false
	}
	delete(v.byID, id)
	for i, existing := range v.ids {
		if existing == id {
			v.ids = append(v.ids[:i], v.ids[i+1:]...)
			break
		}
	}
	return true
}
