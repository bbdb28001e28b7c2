package crdt

import "github.com/google/uuid"

// Ordering результат сравнения двух векторных часов.
type Ordering int

const (
	// OrderingBefore часы A причинно предшествуют часам B.
	OrderingBefore Ordering = iota
	// OrderingAfter часы A причинно следуют за часами B.
	OrderingAfter
	// OrderingEqual часы идентичны.
	OrderingEqual
	// OrderingConcurrent ни одни часы не доминируют - конкурентные записи.
	OrderingConcurrent
)

// String возвращает человекочитаемое имя результата сравнения.
func (o Ordering) String() string {
	switch o {
	case OrderingBefore:
		return "before"
	case OrderingAfter:
		return "after"
	case OrderingEqual:
		return "equal"
	case OrderingConcurrent:
		return "concurrent"
	default:
		return "unknown"
	}
}

// Clock представляет векторные часы: счетчик на каждый известный узел.
// Инвариант: узел инкрементирует только собственный счетчик.
// Отсутствующая запись эквивалентна нулю.
type Clock map[string]uint64

// NewClock создает пустые векторные часы.
func NewClock() Clock {
	return make(Clock)
}

// NewNodeID генерирует уникальный идентификатор узла (UUID).
func NewNodeID() string {
	return uuid.New().String()
}

// Increment увеличивает счетчик заданного узла.
func (c Clock) Increment(nodeID string) {
	c[nodeID]++
}

// Get возвращает счетчик узла (0, если узел неизвестен).
func (c Clock) Get(nodeID string) uint64 {
	return c[nodeID]
}

// Clone создает глубокую копию часов.
func (c Clock) Clone() Clock {
	out := make(Clock, len(c))
	for node, counter := range c {
		out[node] = counter
	}
	return out
}

// Max возвращает поэлементный максимум двух часов по объединению узлов.
// Используется при слиянии конкурентных версий.
func Max(a, b Clock) Clock {
	out := a.Clone()
	for node, counter := range b {
		if counter > out[node] {
			out[node] = counter
		}
	}
	return out
}

// Compare сравнивает часы a и b по объединению известных узлов.
// Часы конкурентны тогда и только тогда, когда существует узел, где a > b,
// и другой узел, где b > a.
func Compare(a, b Clock) Ordering {
	var less, greater bool

	nodes := make(map[string]struct{}, len(a)+len(b))
	for node := range a {
		nodes[node] = struct{}{}
	}
	for node := range b {
		nodes[node] = struct{}{}
	}

	for node := range nodes {
		av, bv := a[node], b[node]
		switch {
		case av < bv:
			less = true
		case av > bv:
			greater = true
		}
	}

	switch {
	case less && greater:
		return OrderingConcurrent
	case less:
		return OrderingBefore
	case greater:
		return OrderingAfter
	default:
		return OrderingEqual
	}
}

// Concurrent сообщает, являются ли две версии конкурентными.
// Отношение симметрично: Concurrent(a, b) == Concurrent(b, a).
func Concurrent(a, b Clock) bool {
	return Compare(a, b) == OrderingConcurrent
}
