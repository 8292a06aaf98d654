package input

// Frame is a process-local tick counter. Both sides are expected to agree on
// it numerically but it is never exchanged on its own.
type Frame uint64

// State is the controller button set for one player on one frame.
type State struct {
	Up     bool `json:"up"`
	Down   bool `json:"down"`
	Left   bool `json:"left"`
	Right  bool `json:"right"`
	A      bool `json:"a"`
	B      bool `json:"b"`
	X      bool `json:"x"`
	Y      bool `json:"y"`
	L      bool `json:"l"`
	R      bool `json:"r"`
	Start  bool `json:"start"`
	Select bool `json:"select"`
}

type Button uint16

const (
	ButtonUp Button = 1 << iota
	ButtonDown
	ButtonLeft
	ButtonRight
	ButtonA
	ButtonB
	ButtonX
	ButtonY
	ButtonL
	ButtonR
	ButtonStart
	ButtonSelect
)

// Bits packs the state into a 12 bit mask, one bit per Button.
func (s State) Bits() uint16 {
	var b Button
	set := func(on bool, btn Button) {
		if on {
			b |= btn
		}
	}
	set(s.Up, ButtonUp)
	set(s.Down, ButtonDown)
	set(s.Left, ButtonLeft)
	set(s.Right, ButtonRight)
	set(s.A, ButtonA)
	set(s.B, ButtonB)
	set(s.X, ButtonX)
	set(s.Y, ButtonY)
	set(s.L, ButtonL)
	set(s.R, ButtonR)
	set(s.Start, ButtonStart)
	set(s.Select, ButtonSelect)
	return uint16(b)
}

func FromBits(bits uint16) State {
	b := Button(bits)
	return State{
		Up:     b&ButtonUp != 0,
		Down:   b&ButtonDown != 0,
		Left:   b&ButtonLeft != 0,
		Right:  b&ButtonRight != 0,
		A:      b&ButtonA != 0,
		B:      b&ButtonB != 0,
		X:      b&ButtonX != 0,
		Y:      b&ButtonY != 0,
		L:      b&ButtonL != 0,
		R:      b&ButtonR != 0,
		Start:  b&ButtonStart != 0,
		Select: b&ButtonSelect != 0,
	}
}
