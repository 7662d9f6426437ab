package events

import "sync"

// envelope is one pending event: its kind plus the already-marshalled payload.
type envelope struct {
	Kind string
	Data []byte
	next *envelope
}

// buffer is a FIFO of pending envelopes. The producer goroutine pops while
// callers push, so every access takes the lock.
type buffer struct {
	lock sync.Mutex
	head *envelope
	tail *envelope
	size int
}

func newBuffer() *buffer {
	return &buffer{}
}

func (b *buffer) PushBack(e *envelope) {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.head == nil {
		b.head = e
	} else {
		b.tail.next = e
	}
	b.tail = e
	b.size++
}

func (b *buffer) Pop() *envelope {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.head == nil {
		return nil
	}

	e := b.head
	b.head = e.next
	if b.head == nil {
		b.tail = nil
	}
	b.size--
	return e
}

func (b *buffer) Size() int {
	b.lock.Lock()
	defer b.lock.Unlock()

	return b.size
}
