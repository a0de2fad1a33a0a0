package orchestrator

import "sync"

// Environment is the flag/credential channel seen by a system under test.
//
// It is an explicit object owned by the Orchestrator rather than the process
// environment, so concurrent test contexts stay isolated by construction:
// each context's overlay records exactly the keys it touched and teardown
// restores exactly those.
type Environment interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Unset(key string)
	// Snapshot returns a copy of the full environment.
	Snapshot() map[string]string
}

// MapEnvironment is the in-memory Environment implementation.
// Safe for concurrent use.
type MapEnvironment struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMapEnvironment creates an environment seeded with the given values.
func NewMapEnvironment(seed map[string]string) *MapEnvironment {
	values := make(map[string]string, len(seed))
	for k, v := range seed {
		values[k] = v
	}
	return &MapEnvironment{values: values}
}

func (e *MapEnvironment) Get(key string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.values[key]
	return v, ok
}

func (e *MapEnvironment) Set(key, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.values[key] = value
}

func (e *MapEnvironment) Unset(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.values, key)
}

func (e *MapEnvironment) Snapshot() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]string, len(e.values))
	for k, v := range e.values {
		out[k] = v
	}
	return out
}

// envOverlay remembers the pre-setup value of every key a context touched.
// A nil entry means the key did not exist before setup.
type envOverlay struct {
	env  Environment
	prev map[string]*string
}

func newEnvOverlay(env Environment) *envOverlay {
	return &envOverlay{env: env, prev: make(map[string]*string)}
}

// set overlays one key, recording its pre-setup state on first touch.
func (o *envOverlay) set(key, value string) {
	if _, touched := o.prev[key]; !touched {
		if old, ok := o.env.Get(key); ok {
			copied := old
			o.prev[key] = &copied
		} else {
			o.prev[key] = nil
		}
	}
	o.env.Set(key, value)
}

// restore puts every touched key back to its exact pre-setup state,
// removing keys that did not previously exist. Idempotent: a second call
// finds an empty touch set.
func (o *envOverlay) restore() {
	for key, old := range o.prev {
		if old == nil {
			o.env.Unset(key)
		} else {
			o.env.Set(key, *old)
		}
	}
	o.prev = make(map[string]*string)
}
