package modbus

import (
	"reflect"
	"sync"
)

// DeviceMap maps unit ids to the RequestHandler bound to them. It is
// built empty, populated with AddEndpoint, and consumed (drained) when a
// Server starts serving; additions made to the same DeviceMap value after
// that point have no effect on the running server, since the server holds
// its own private copy of the bindings.
type DeviceMap struct {
	mu       sync.Mutex
	handlers map[UnitId]*sharedHandler
}

// NewDeviceMap returns an empty device map.
func NewDeviceMap() *DeviceMap {
	return &DeviceMap{handlers: make(map[UnitId]*sharedHandler)}
}

// AddEndpoint binds handler to unitId. Returns false without overwriting
// the existing binding if unitId is already bound.
func (m *DeviceMap) AddEndpoint(unitId UnitId, handler RequestHandler) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.handlers[unitId]; exists {
		return false
	}
	// A handler instance already bound under another unit id shares that
	// binding's reference count, so its Destroy hook still fires once.
	if handler != nil && reflect.TypeOf(handler).Comparable() {
		for _, sh := range m.handlers {
			if sh.handler == handler {
				sh.acquire()
				m.handlers[unitId] = sh
				return true
			}
		}
	}
	m.handlers[unitId] = newSharedHandler(handler)
	return true
}

// take moves the map's bindings into a boundDeviceMap for exclusive use by
// one Server, and empties m so the same DeviceMap instance cannot be
// shared between two running servers.
func (m *DeviceMap) take() *boundDeviceMap {
	m.mu.Lock()
	defer m.mu.Unlock()
	bound := &boundDeviceMap{handlers: m.handlers}
	m.handlers = make(map[UnitId]*sharedHandler)
	return bound
}

// boundDeviceMap is the read-only (with respect to its key set) view a
// running Server dispatches through. Handler instances are shared across
// every session the server accepts and must be safe for concurrent
// invocation.
type boundDeviceMap struct {
	handlers map[UnitId]*sharedHandler
}

func (b *boundDeviceMap) get(unitId UnitId) (RequestHandler, bool) {
	h, ok := b.handlers[unitId]
	if !ok {
		return nil, false
	}
	return h.handler, true
}

// destroy releases every bound handler, invoking each Destroy hook exactly
// once. Called when the server that owns this bound map stops.
func (b *boundDeviceMap) destroy() {
	for _, h := range b.handlers {
		h.release()
	}
}
