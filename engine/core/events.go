package core

import "sync"

// EventContext is the payload delivered with an event.
type EventContext struct {
	// Name of the resource the event is about, for example a shader name.
	Name string
	// Path on disk, when the event comes from the asset watcher.
	Path string
	// Data is freeform and understood by sender and listener.
	Data interface{}
}

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// A shader resource was created and owns a backend handle.
	/* Context usage:
	 * name = shader name
	 */
	EVENT_CODE_SHADER_CREATED SystemEventCode = 0x01

	// A shader resource was explicitly disposed.
	/* Context usage:
	 * name = shader name
	 */
	EVENT_CODE_SHADER_DISPOSED SystemEventCode = 0x02

	// A shader source or manifest changed on disk.
	/* Context usage:
	 * name = shader name, path = changed file
	 */
	EVENT_CODE_SHADER_SOURCE_CHANGED SystemEventCode = 0x03

	// A shader was rebuilt after its sources changed.
	/* Context usage:
	 * name = shader name
	 */
	EVENT_CODE_SHADER_RELOADED SystemEventCode = 0x04

	// A drawable target changed size.
	/* Context usage:
	 * data = [2]int{width, height}
	 */
	EVENT_CODE_TARGET_RESIZED SystemEventCode = 0x05

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

// Should return true if handled. A handled event is not passed to the
// listeners registered after this one.
type FnOnEvent func(code SystemEventCode, sender interface{}, listener interface{}, data EventContext) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

// EventSystem dispatches events synchronously on the goroutine that fires
// them. Listeners are compared by identity, so they must be comparable
// values (typically pointers).
type EventSystem struct {
	mu         sync.RWMutex
	registered map[SystemEventCode][]*registeredEvent
}

func NewEventSystem() *EventSystem {
	return &EventSystem{
		registered: make(map[SystemEventCode][]*registeredEvent),
	}
}

/**
 * Register to listen for when events are sent with the provided code. Events with duplicate
 * listener/callback combos will not be registered again and will cause this to return FALSE.
 */
func (es *EventSystem) Register(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	es.mu.Lock()
	defer es.mu.Unlock()

	for _, e := range es.registered[code] {
		if e.listener == listener {
			LogWarn("listener already registered for event code %d", code)
			return false
		}
	}
	es.registered[code] = append(es.registered[code], &registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

// Unregister removes listener from code. Returns false if it was not registered.
func (es *EventSystem) Unregister(code SystemEventCode, listener interface{}) bool {
	es.mu.Lock()
	defer es.mu.Unlock()

	events := es.registered[code]
	for i, e := range events {
		if e.listener == listener {
			es.registered[code] = append(events[:i:i], events[i+1:]...)
			return true
		}
	}
	return false
}

// Fire delivers the event to the listeners of code in registration order
// and reports whether one of them handled it.
func (es *EventSystem) Fire(code SystemEventCode, sender interface{}, data EventContext) bool {
	es.mu.RLock()
	events := append([]*registeredEvent(nil), es.registered[code]...)
	es.mu.RUnlock()

	for _, e := range events {
		if e.callback(code, sender, e.listener, data) {
			return true
		}
	}
	return false
}

// Shutdown drops every registration.
func (es *EventSystem) Shutdown() {
	es.mu.Lock()
	defer es.mu.Unlock()
	clear(es.registered)
}
