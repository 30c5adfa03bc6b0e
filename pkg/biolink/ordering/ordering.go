// Package ordering computes dense display orders for a profile's links.
//
// Every operation renumbers the whole list 0..N-1 and returns a WriteSet with
// one Position per element. Callers persist the WriteSet as a single batch and
// keep the pre-move list around to restore if the batch fails.
package ordering

import (
	"fmt"

	"github.com/mikepea/biolink/pkg/biolink/apperrors"
)

// Item is an orderable element addressed by a stable key
type Item interface {
	OrderKey() string
	SetOrderIndex(int)
}

// Position is one entry of a WriteSet
type Position struct {
	ID         string `json:"id"`
	OrderIndex int    `json:"order_index"`
}

// WriteSet lists the order index every element must be persisted with
type WriteSet []Position

// Map returns the write-set keyed by element ID
func (ws WriteSet) Map() map[string]int {
	m := make(map[string]int, len(ws))
	for _, p := range ws {
		m[p.ID] = p.OrderIndex
	}
	return m
}

// Reorder moves the element at source to destination and renumbers the
// result. The input slice is not modified.
//
// A nil destination means the gesture was dropped outside any target; that,
// like a list of zero or one elements, is a no-op with an empty WriteSet.
func Reorder[T any, P interface {
	*T
	Item
}](list []T, source int, destination *int) ([]T, WriteSet, error) {
	out := make([]T, len(list))
	copy(out, list)

	if destination == nil || len(out) <= 1 {
		return out, WriteSet{}, nil
	}

	dest := *destination
	if source < 0 || source >= len(out) {
		return nil, nil, apperrors.Validation(fmt.Sprintf("source position %d is out of range", source))
	}
	if dest < 0 || dest >= len(out) {
		return nil, nil, apperrors.Validation(fmt.Sprintf("destination position %d is out of range", dest))
	}

	moved := out[source]
	out = append(out[:source], out[source+1:]...)
	out = append(out[:dest], append([]T{moved}, out[dest:]...)...)

	return out, Renumber[T, P](out), nil
}

// InsertAtHead places items, in the given order, in front of list and
// renumbers everything. The input slices are not modified.
func InsertAtHead[T any, P interface {
	*T
	Item
}](list []T, items ...T) ([]T, WriteSet) {
	out := make([]T, 0, len(items)+len(list))
	out = append(out, items...)
	out = append(out, list...)
	return out, Renumber[T, P](out)
}

// Renumber assigns each element its index in list and returns the WriteSet
func Renumber[T any, P interface {
	*T
	Item
}](list []T) WriteSet {
	ws := make(WriteSet, len(list))
	for i := range list {
		p := P(&list[i])
		p.SetOrderIndex(i)
		ws[i] = Position{ID: p.OrderKey(), OrderIndex: i}
	}
	return ws
}
