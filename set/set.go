package set

import (
	"cmp"
	"slices"
)

type empty struct{}

// Set is an unordered collection of unique values.
type Set[T cmp.Ordered] map[T]empty

func New[T cmp.Ordered](elems ...T) Set[T] {
	s := make(Set[T], len(elems))
	s.Add(elems...)
	return s
}

func (s Set[T]) Add(elems ...T) {
	for _, elem := range elems {
		s[elem] = empty{}
	}
}

func (s Set[T]) Has(elem T) bool {
	_, ok := s[elem]
	return ok
}

func (s Set[T]) Len() int {
	return len(s)
}

// Sorted returns the members in ascending order.
func (s Set[T]) Sorted() []T {
	out := make([]T, 0, len(s))
	for elem := range s {
		out = append(out, elem)
	}
	slices.Sort(out)
	return out
}
