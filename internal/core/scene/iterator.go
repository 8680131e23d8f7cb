package scene

// Iterator walks a snapshot of query results.
// Next advances to the next item, Item returns the current one.
// ToSlice drains the remaining items into a slice.
type Iterator[T any] interface {
	Next() bool
	Item() T
	Error() error
	Close() error
	ToSlice() []T
	Count() int
}

type sliceIterator[T any] struct {
	items []T
	pos   int
}

func newSliceIterator[T any](items []T) *sliceIterator[T] {
	return &sliceIterator[T]{items: items, pos: -1}
}

func (it *sliceIterator[T]) Next() bool {
	if it.pos+1 >= len(it.items) {
		it.pos = len(it.items)
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator[T]) Item() T {
	if it.pos < 0 || it.pos >= len(it.items) {
		var zero T
		return zero
	}
	return it.items[it.pos]
}

func (it *sliceIterator[T]) Error() error { return nil }

func (it *sliceIterator[T]) Close() error {
	it.items = nil
	it.pos = 0
	return nil
}

func (it *sliceIterator[T]) ToSlice() []T {
	start := it.pos + 1
	if start >= len(it.items) {
		return nil
	}
	out := make([]T, len(it.items)-start)
	copy(out, it.items[start:])
	it.pos = len(it.items)
	return out
}

// Count returns the total number of items in the snapshot.
func (it *sliceIterator[T]) Count() int { return len(it.items) }
