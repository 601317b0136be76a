package gpio

import (
	"fmt"
	"sync"
)

// MaxPins bounds the pin numbers a driver will address.
const MaxPins = 64

// irqTable routes edge events to at most one handler per pin. A handler
// runs with its pin masked: edges arriving meanwhile are dropped, not queued.
type irqTable struct {
	mu    sync.Mutex
	slots [MaxPins]*irqSlot
}

type irqSlot struct {
	edge    Edge
	handler EdgeHandler
	active  sync.Mutex
}

func (t *irqTable) register(pin int, edge Edge, h EdgeHandler) error {
	if err := checkPin(pin); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.slots[pin] != nil {
		return fmt.Errorf("watch pin %d: %w", pin, ErrPinInUse)
	}
	t.slots[pin] = &irqSlot{edge: edge, handler: h}
	return nil
}

func (t *irqTable) unregister(pin int) {
	if checkPin(pin) != nil {
		return
	}
	t.mu.Lock()
	t.slots[pin] = nil
	t.mu.Unlock()
}

func (t *irqTable) watched(pin int) bool {
	if checkPin(pin) != nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.slots[pin] != nil
}

func (t *irqTable) clear() {
	t.mu.Lock()
	t.slots = [MaxPins]*irqSlot{}
	t.mu.Unlock()
}

// dispatch delivers edge to the pin's handler if it is armed for it.
func (t *irqTable) dispatch(pin int, edge Edge) {
	if checkPin(pin) != nil {
		return
	}
	t.mu.Lock()
	slot := t.slots[pin]
	t.mu.Unlock()
	if slot == nil || slot.edge&edge == 0 {
		return
	}
	if !slot.active.TryLock() {
		return
	}
	defer slot.active.Unlock()
	slot.handler(pin, edge)
}
