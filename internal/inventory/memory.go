package inventory

import (
	"context"
	"errors"
	"sync"

	"github.com/ashgrove-games/tradepost/internal/trade/domain"
)

// DefaultMaxStack is the largest quantity one slot can hold.
const DefaultMaxStack = 64

// Memory is a slot-based in-memory inventory. It is safe for
// concurrent use.
type Memory struct {
	mu       sync.RWMutex
	slots    []*domain.ItemEntry
	maxStack int
}

// NewMemory creates an empty in-memory inventory with the given number
// of slots and the default stack limit.
func NewMemory(capacity int) *Memory {
	return &Memory{
		slots:    make([]*domain.ItemEntry, capacity),
		maxStack: DefaultMaxStack,
	}
}

// Capacity returns the total number of slots.
func (m *Memory) Capacity() int {
	if m == nil {
		return 0
	}
	return len(m.slots)
}

// Entries returns a deep copy of all occupied stacks in slot order.
func (m *Memory) Entries(ctx context.Context) ([]domain.ItemEntry, error) {
	if m == nil {
		return nil, errors.New("memory inventory is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]domain.ItemEntry, 0, len(m.slots))
	for _, slot := range m.slots {
		if slot != nil {
			entries = append(entries, slot.Clone())
		}
	}
	return entries, nil
}

// FreeSlots returns the number of empty slots.
func (m *Memory) FreeSlots(ctx context.Context) (int, error) {
	if m == nil {
		return 0, errors.New("memory inventory is nil")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	free := 0
	for _, slot := range m.slots {
		if slot == nil {
			free++
		}
	}
	return free, nil
}

// Withdraw removes entry.Quantity of the matching item, draining
// partial stacks first so the inventory fragments as little as
// possible. Nothing changes when the total on hand is short.
func (m *Memory) Withdraw(ctx context.Context, entry domain.ItemEntry) error {
	if m == nil {
		return errors.New("memory inventory is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := entry.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for _, slot := range m.slots {
		if slot != nil && slot.StacksWith(entry) {
			total += slot.Quantity
		}
	}
	if total < entry.Quantity {
		return ErrMissingItems
	}

	remaining := entry.Quantity
	for i, slot := range m.slots {
		if remaining == 0 {
			break
		}
		if slot == nil || !slot.StacksWith(entry) || slot.Quantity >= m.maxStack {
			continue
		}
		remaining = m.drainSlot(i, remaining)
	}
	for i, slot := range m.slots {
		if remaining == 0 {
			break
		}
		if slot == nil || !slot.StacksWith(entry) {
			continue
		}
		remaining = m.drainSlot(i, remaining)
	}
	return nil
}

func (m *Memory) drainSlot(index, remaining int) int {
	slot := m.slots[index]
	take := slot.Quantity
	if take > remaining {
		take = remaining
	}
	slot.Quantity -= take
	if slot.Quantity == 0 {
		m.slots[index] = nil
	}
	return remaining - take
}

// Deposit adds the entry, topping up matching stacks before opening a
// new slot for the remainder.
func (m *Memory) Deposit(ctx context.Context, entry domain.ItemEntry) error {
	if m == nil {
		return errors.New("memory inventory is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := entry.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Plan the whole deposit before touching a slot so a failure
	// leaves the inventory untouched.
	room := 0
	for _, slot := range m.slots {
		if slot == nil {
			room += m.maxStack
		} else if slot.StacksWith(entry) {
			room += m.maxStack - slot.Quantity
		}
	}
	if room < entry.Quantity {
		return ErrInsufficientSpace
	}

	remaining := entry.Quantity
	for _, slot := range m.slots {
		if remaining == 0 {
			return nil
		}
		if slot == nil || !slot.StacksWith(entry) || slot.Quantity >= m.maxStack {
			continue
		}
		add := m.maxStack - slot.Quantity
		if add > remaining {
			add = remaining
		}
		slot.Quantity += add
		remaining -= add
	}
	for i, slot := range m.slots {
		if remaining == 0 {
			return nil
		}
		if slot != nil {
			continue
		}
		add := m.maxStack
		if add > remaining {
			add = remaining
		}
		fresh := entry.Clone()
		fresh.Quantity = add
		m.slots[i] = &fresh
		remaining -= add
	}
	return nil
}

// Replace discards current contents and installs the given stacks.
// Entries beyond capacity are rejected before anything changes.
func (m *Memory) Replace(ctx context.Context, entries []domain.ItemEntry) error {
	if m == nil {
		return errors.New("memory inventory is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(entries) > len(m.slots) {
		return ErrInsufficientSpace
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.slots {
		m.slots[i] = nil
	}
	for i, entry := range entries {
		cloned := entry.Clone()
		m.slots[i] = &cloned
	}
	return nil
}
