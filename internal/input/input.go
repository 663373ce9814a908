// Package input implements the NES's two controller ports: standard
// gamepads, and a light-sensor device on port 2.
package input

// Button identifies one of the eight standard controller buttons, in
// the fixed order the serial shift register presents them.
type Button uint8

const (
	ButtonA Button = 1 << iota
	ButtonB
	ButtonSelect
	ButtonStart
	ButtonUp
	ButtonDown
	ButtonLeft
	ButtonRight
)

// Controller is a standard NES gamepad: an 8-bit latched button state
// behind a serial shift register. Writing the strobe bit high then low
// latches the current buttons; each subsequent read shifts out one bit,
// A first, Right last, then an endless stream of 1 bits.
type Controller struct {
	buttons  uint8
	strobe   bool
	shiftReg uint8
}

// SetButton updates one button's pressed state.
func (c *Controller) SetButton(b Button, pressed bool) {
	if pressed {
		c.buttons |= uint8(b)
	} else {
		c.buttons &^= uint8(b)
	}
	if c.strobe {
		c.shiftReg = c.buttons
	}
}

// Strobe writes the controller's strobe line. While held high the
// shift register continuously reloads from the live button state; the
// falling edge is what actually freezes the snapshot for reading.
func (c *Controller) Strobe(high bool) {
	c.strobe = high
	if high {
		c.shiftReg = c.buttons
	}
}

// Read returns the next serial bit (button state in bit 0, all higher
// bits zero) and advances the shift register, unless strobe is
// still held high, in which case A's state is returned every time.
func (c *Controller) Read() uint8 {
	if c.strobe {
		return c.buttons & 1
	}
	bit := c.shiftReg & 1
	c.shiftReg = (c.shiftReg >> 1) | 0x80
	return bit
}

func (c *Controller) Reset() {
	c.buttons = 0
	c.strobe = false
	c.shiftReg = 0
}

// State captures a Controller's mutable fields for save-state
// round-tripping.
type State struct {
	Buttons  uint8 `json:"buttons"`
	Strobe   bool  `json:"strobe"`
	ShiftReg uint8 `json:"shift_reg"`
}

func (c *Controller) State() State {
	return State{Buttons: c.buttons, Strobe: c.strobe, ShiftReg: c.shiftReg}
}

func (c *Controller) SetState(s State) {
	c.buttons, c.strobe, c.shiftReg = s.Buttons, s.Strobe, s.ShiftReg
}

// LightSensor models a light-gun class device (a "Zapper") on port 2,
// read alongside that port's standard controller. It holds only the aim
// position and trigger: the console checks whether the framebuffer pixel
// at the aim position is bright and passes the answer to Bits, so the
// sensor never reaches into the PPU directly.
type LightSensor struct {
	AimX, AimY int
	Trigger    bool
}

// Bits returns the two status bits the Zapper exposes on its port's
// read register: bit 4 is the trigger, bit 3 is "light not detected"
// (active low: set when the pixel under the crosshair is not bright).
func (s *LightSensor) Bits(lightDetected bool) uint8 {
	var v uint8
	if s.Trigger {
		v |= 0x10
	}
	if !lightDetected {
		v |= 0x08
	}
	return v
}

// IsBright reports whether a 64-entry NES palette index is one of the
// entries a photodiode would register as illuminated: every entry of the
// two brightest luma rows (0x20-0x3F) plus the light grey at 0x10.
func IsBright(paletteIndex uint8) bool {
	switch paletteIndex {
	case 0x20, 0x21, 0x22, 0x23, 0x24, 0x25, 0x26, 0x27,
		0x28, 0x29, 0x2A, 0x2B, 0x2C, 0x2D, 0x2E, 0x2F,
		0x30, 0x31, 0x32, 0x33, 0x34, 0x35, 0x36, 0x37,
		0x38, 0x39, 0x3A, 0x3B, 0x3C, 0x3D, 0x3E, 0x3F,
		0x10:
		return true
	default:
		return false
	}
}
