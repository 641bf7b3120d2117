package core

import (
	"fmt"

	"github.com/spaghettifunk/anima-rhi/engine/containers"
)

type handleSlot[T any] struct {
	owner      T
	generation uint32
	live       bool
}

// HandleTable maps opaque integer tokens to the objects that own them.
// A token packs a slot index with the generation of that slot, so a token
// that was released is never mistaken for the object that later reuses the
// slot. The zero token is never issued.
//
// HandleTable is not safe for concurrent use; backends only touch it from
// their command thread.
type HandleTable[T any] struct {
	slots    []handleSlot[T]
	free     *containers.RingQueue[uint32]
	capacity int
	live     int
}

func NewHandleTable[T any](capacity int) *HandleTable[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &HandleTable[T]{
		slots:    make([]handleSlot[T], 0, min(capacity, 64)),
		free:     containers.NewRingQueue[uint32](capacity),
		capacity: capacity,
	}
}

func packToken(index, generation uint32) uint64 {
	return uint64(generation)<<32 | uint64(index)
}

func unpackToken(token uint64) (index, generation uint32) {
	return uint32(token), uint32(token >> 32)
}

// Acquire stores owner in a free slot and returns its token.
func (t *HandleTable[T]) Acquire(owner T) (uint64, error) {
	// Existing free spot. Take it.
	if index, err := t.free.Dequeue(); err == nil {
		slot := &t.slots[index]
		slot.owner = owner
		slot.live = true
		t.live++
		return packToken(index, slot.generation), nil
	}

	if len(t.slots) >= t.capacity {
		return 0, &BackendAllocationError{
			Backend:    "handle table",
			Diagnostic: fmt.Sprintf("all %d handles are in use", t.capacity),
		}
	}

	// No free slot, push a new one.
	t.slots = append(t.slots, handleSlot[T]{owner: owner, generation: 1, live: true})
	t.live++
	return packToken(uint32(len(t.slots)-1), 1), nil
}

// Get returns the owner of a live token.
func (t *HandleTable[T]) Get(token uint64) (T, bool) {
	slot, ok := t.lookup(token)
	if !ok {
		var zero T
		return zero, false
	}
	return slot.owner, true
}

// Release frees the slot of a live token and returns its owner. Releasing a
// token twice, or a token this table never issued, is a usage error.
func (t *HandleTable[T]) Release(token uint64) (T, error) {
	var zero T
	slot, ok := t.lookup(token)
	if !ok {
		return zero, NewFatalUsageError("release", "handle %#x is not live in this table", token)
	}
	owner := slot.owner
	slot.owner = zero
	slot.live = false
	slot.generation++
	if slot.generation == 0 {
		slot.generation = 1
	}
	t.live--

	index, _ := unpackToken(token)
	if err := t.free.Enqueue(index); err != nil {
		// The free queue is sized to the table capacity, so it cannot fill up.
		return owner, NewFatalUsageError("release", "free list overflow: %s", err)
	}
	return owner, nil
}

// Live returns the number of tokens currently issued.
func (t *HandleTable[T]) Live() int {
	return t.live
}

// Each calls fn for every live token in slot order.
func (t *HandleTable[T]) Each(fn func(token uint64, owner T)) {
	for i := range t.slots {
		if t.slots[i].live {
			fn(packToken(uint32(i), t.slots[i].generation), t.slots[i].owner)
		}
	}
}

func (t *HandleTable[T]) lookup(token uint64) (*handleSlot[T], bool) {
	index, generation := unpackToken(token)
	if int(index) >= len(t.slots) {
		return nil, false
	}
	slot := &t.slots[index]
	if !slot.live || slot.generation != generation {
		return nil, false
	}
	return slot, true
}
