package reelguess

type fifo[Item any] struct {
	items []Item
}

func newFifo[Item any]() *fifo[Item] {
	return &fifo[Item]{
		items: make([]Item, 0),
	}
}

func (f *fifo[Item]) Push(item Item) {
	f.items = append(f.items, item)
}

func (f *fifo[Item]) Pop() (Item, bool) {
	var zero Item
	if len(f.items) == 0 {
		return zero, false
	}
	item := f.items[0]
	f.items[0] = zero
	f.items = f.items[1:]
	return item, true
}

func (f *fifo[Item]) Size() int {
	return len(f.items)
}

func (f *fifo[Item]) Reset() {
	clear(f.items)
	f.items = f.items[:0]
}
