package store

// EventEmitter receives change notifications once a transaction has
// committed. Emit must not block.
type EventEmitter interface {
	Emit(event any)
}

// EmitterFunc adapts a function to EventEmitter.
type EmitterFunc func(event any)

// Emit calls f.
func (f EmitterFunc) Emit(event any) { f(event) }

// NewNoopEmitter returns an emitter that drops every event.
func NewNoopEmitter() EventEmitter {
	return EmitterFunc(func(any) {})
}
