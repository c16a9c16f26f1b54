package capability

import "sync"

// AuthListeners implementa OnAuthStateChanged para cualquier provider.
// El valor cero está listo para usar.
type AuthListeners struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(AuthEvent)
}

// Subscribe registra fn. La función devuelta es idempotente.
func (l *AuthListeners) Subscribe(fn func(AuthEvent)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.subs == nil {
		l.subs = make(map[int]func(AuthEvent))
	}
	id := l.nextID
	l.nextID++
	l.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
		})
	}
}

// Emit notifica a todos los listeners registrados, fuera del lock.
func (l *AuthListeners) Emit(ev AuthEvent) {
	l.mu.RLock()
	fns := make([]func(AuthEvent), 0, len(l.subs))
	for _, fn := range l.subs {
		fns = append(fns, fn)
	}
	l.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}
