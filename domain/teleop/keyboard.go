package teleop

import (
	"github.com/open-teleop/go2bridge/pkg/protocol"
)

// Keyboard tracks held keys and derives a command from them. Every press or
// release that changes the held set recomputes the command from scratch and
// passes it to emit.
type Keyboard struct {
	bindings map[string]KeyBinding
	active   []string // press order
	command  protocol.VelocityCommand
	emit     func(protocol.VelocityCommand)
}

// NewKeyboard creates a tracker for km. emit may be nil.
func NewKeyboard(km Keymap, emit func(protocol.VelocityCommand)) *Keyboard {
	if emit == nil {
		emit = func(protocol.VelocityCommand) {}
	}
	return &Keyboard{bindings: km.index(), emit: emit}
}

// Press records a key going down. It returns false for unmapped keys so the
// caller can let them through.
func (k *Keyboard) Press(key string) bool {
	if _, ok := k.bindings[key]; !ok {
		return false
	}
	if k.held(key) >= 0 {
		return true
	}
	k.active = append(k.active, key)
	k.recompute()
	return true
}

// Release records a key going up. Releasing a key that is not held changes
// nothing.
func (k *Keyboard) Release(key string) bool {
	if _, ok := k.bindings[key]; !ok {
		return false
	}
	i := k.held(key)
	if i < 0 {
		return true
	}
	k.active = append(k.active[:i], k.active[i+1:]...)
	k.recompute()
	return true
}

// ReleaseAll drops every held key, emitting once if any was held.
func (k *Keyboard) ReleaseAll() {
	if len(k.active) == 0 {
		return
	}
	k.active = k.active[:0]
	k.recompute()
}

// SetKeymap replaces the bindings. Held keys are released first.
func (k *Keyboard) SetKeymap(km Keymap) {
	k.ReleaseAll()
	k.bindings = km.index()
}

// Active returns the held keys in press order.
func (k *Keyboard) Active() []string {
	return append([]string(nil), k.active...)
}

func (k *Keyboard) Command() protocol.VelocityCommand { return k.command }

func (k *Keyboard) held(key string) int {
	for i, a := range k.active {
		if a == key {
			return i
		}
	}
	return -1
}

func (k *Keyboard) recompute() {
	var cmd protocol.VelocityCommand
	for _, key := range k.active {
		b := k.bindings[key]
		setAxis(&cmd, b.Axis, b.Value)
	}
	k.command = cmd
	k.emit(cmd)
}
