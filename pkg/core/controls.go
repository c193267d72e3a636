// pkg/core/controls.go
package core

// Key is an index into a Controls snapshot.
type Key int

const (
	KeyW     Key = 0
	KeyA     Key = 1
	KeyS     Key = 2
	KeyD     Key = 3
	KeyLMB   Key = 4
	KeyRMB   Key = 5
	KeyAngle Key = 6
)

// ControlSlots is the fixed size of an input snapshot.
const ControlSlots = 10

// ControlType tags what kind of signal a slot carries.
type ControlType int

const (
	ControlNone  ControlType = 0
	ControlPress ControlType = 1 // edge event, the only type that triggers actions
	ControlHold  ControlType = 2
	ControlAim   ControlType = 3
)

// ControlObject is the state of a single key or the mouse aim.
type ControlObject struct {
	Type   ControlType `json:"type" msgpack:"type"`
	IsDown bool        `json:"isDown" msgpack:"isDown"`
	Angle  float32     `json:"angle" msgpack:"angle"`
}

// Controls is the input snapshot a connection sends. It is replaced
// wholesale on receipt, never merged.
type Controls [ControlSlots]ControlObject

// Pressed reports a press edge on key: type press and currently down.
func (c *Controls) Pressed(k Key) bool {
	if c == nil || k < 0 || int(k) >= ControlSlots {
		return false
	}
	o := c[k]
	return o.Type == ControlPress && o.IsDown
}

// Angle returns the aim angle in degrees.
func (c *Controls) Angle() float32 {
	if c == nil {
		return 0
	}
	return c[KeyAngle].Angle
}

// Press returns a copy of c with a press edge set on k.
func (c Controls) Press(k Key) Controls {
	c[k] = ControlObject{Type: ControlPress, IsDown: true}
	return c
}

// Aim returns a copy of c with the aim angle set.
func (c Controls) Aim(angle float32) Controls {
	c[KeyAngle] = ControlObject{Type: ControlAim, Angle: angle}
	return c
}
