// Package console aggregates the CPU, PPU, APU, memory bus, cartridge
// and input devices into a single emulation core. It is the "arena
// with stable indices" the design notes call for: the Console owns
// every component by value or first-class pointer and resolves every
// CPU<->PPU<->Bus back-edge through plain field access instead of
// mutual setter calls installed after construction. Console.Read and
// Console.Write are the CPU's only path to memory, which makes them the
// single choke point for per-cycle bookkeeping, OAM-DMA interleaving and
// save-state snapshotting. The OAM-DMA copy and the DMC sample fetch,
// both run by the console itself, read the bus decoder directly.
package console

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"nesgo/internal/apu"
	"nesgo/internal/bus"
	"nesgo/internal/cartridge"
	"nesgo/internal/cpu"
	"nesgo/internal/input"
	"nesgo/internal/ppu"
)

// ErrStateLoad is the sentinel wrapped by every save-state loading
// failure: malformed stream or a state captured from a different
// cartridge.
var ErrStateLoad = errors.New("invalid save state")

// StepReason reports which of Step's two stopping conditions fired.
type StepReason int

const (
	// FrameReady means the PPU finished painting a frame.
	FrameReady StepReason = iota
	// InputPoll means the game just latched the controller shift
	// registers (strobe high-then-low on $4016), the moment a host
	// driving a light-gun or frame-precise input should have already
	// applied this step's button state.
	InputPoll
)

func (r StepReason) String() string {
	if r == FrameReady {
		return "FrameReady"
	}
	return "InputPoll"
}

// dmcBus adapts Console's raw bus decoder (no per-access cycle
// accounting) for the APU's DMC sample reader. The DMC fetch runs
// inside an in-progress APU.Step call already driven by Console's own
// per-cycle tick; routing it back through Console.Read would re-enter
// the tick machinery and double-count cycles.
type dmcBus struct{ c *Console }

func (d dmcBus) Read(addr uint16) uint8 { return d.c.Bus.Read(addr) }

// Console owns one complete system: CPU, PPU, APU, Bus and the loaded
// Cartridge, plus the two controller ports and their optional light
// sensor. All mutable mapper mirroring/bank state lives inside
// Cart.Mapper; Console never duplicates it.
type Console struct {
	CPU *cpu.CPU
	PPU *ppu.PPU
	APU *apu.APU
	Bus *bus.Bus
	Cart *cartridge.Cartridge

	Controller1, Controller2 input.Controller
	LightSensor               input.LightSensor

	// CycleCount is the master CPU-cycle clock: it advances by exactly
	// one for every tick, whether that tick was driven by a genuine CPU
	// bus access or by an OAM-DMA/DMC stall cycle. The
	// PPU's own tick count is always exactly 3x this value.
	CycleCount uint64

	strobeHigh       bool
	inputPollPending bool
}

// New parses romBytes as an iNES cartridge, wires up every component,
// and runs Power() so the returned Console is ready to Step().
func New(romBytes []byte) (*Console, error) {
	cart, err := cartridge.Load(romBytes)
	if err != nil {
		return nil, err
	}

	c := &Console{Cart: cart}
	c.PPU = ppu.New(cart.Mapper)
	c.APU = apu.New(dmcBus{c})
	c.Bus = bus.New(c.PPU, c.APU, cart.Mapper, c)
	c.CPU = cpu.New(c)

	c.Power()
	return c, nil
}

// Framebuffer returns the live 256x240 palette-index pixel buffer. The
// pointer aliases PPU-owned storage and is only safe to read between
// Step calls.
func (c *Console) Framebuffer() *[256 * 240]uint8 { return c.PPU.Framebuffer() }

// DrainAudio returns and clears the 8-bit 44100Hz mono samples
// produced since the last call.
func (c *Console) DrainAudio() []uint8 { return c.APU.DrainSamples() }

// SetButton updates one standard-controller button on port 0 or 1.
func (c *Console) SetButton(port int, b input.Button, pressed bool) {
	if port == 0 {
		c.Controller1.SetButton(b, pressed)
	} else {
		c.Controller2.SetButton(b, pressed)
	}
}

// SetLightAim moves the light sensor's screen-space aim position.
func (c *Console) SetLightAim(x, y int) {
	c.LightSensor.AimX, c.LightSensor.AimY = x, y
}

// SetLightTrigger sets the light sensor's trigger line.
func (c *Console) SetLightTrigger(pressed bool) {
	c.LightSensor.Trigger = pressed
}

// Reset performs the 6502's reset sequence (preserves RAM/SRAM, forces
// interrupt-disable, loads PC from the reset vector) without touching
// PPU, APU or mapper state, matching real hardware's reset line.
func (c *Console) Reset() {
	c.CPU.Reset()
}

// Power re-initializes RAM, PPU, APU, mapper RAM (unless
// battery-backed) and the CPU, as if the console had just been
// switched on with this cartridge inserted.
func (c *Console) Power() {
	for i := range c.Bus.RAM {
		c.Bus.RAM[i] = 0
	}
	c.PPU.Reset()
	c.APU.Reset()
	c.Controller1.Reset()
	c.Controller2.Reset()
	c.LightSensor = input.LightSensor{}

	if !c.Cart.HasBattery {
		st := c.Cart.Mapper.State()
		for i := range st.SRAM {
			st.SRAM[i] = 0
		}
		for i := range st.CHRRAM {
			st.CHRRAM[i] = 0
		}
		c.Cart.Mapper.SetState(st)
	}

	c.CPU = cpu.New(c)
	c.CycleCount = 0
	c.strobeHigh = false
	c.inputPollPending = false
	// Reset last: its seven vector-fetch cycles tick the PPU/APU like any
	// others, so the 3-dots-per-counted-cycle invariant holds from cycle 0.
	c.CPU.Reset()
}

// Step runs CPU instructions, ticking the PPU three times and the APU
// once per consumed CPU cycle, until the PPU finishes a frame or the
// game latches the controller shift registers, whichever comes first.
// A runtime error (unimplemented opcode, unimplemented memory region,
// or a mapper's fatal ROM write) terminates the step and is returned
// without corrupting state: it is always raised by a panic inside the
// offending instruction, before that instruction's side effects are
// visible to the rest of the step.
func (c *Console) Step() (reason StepReason, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("console: %v", r)
			}
		}
	}()

	startFrame := c.PPU.FrameCount()
	c.inputPollPending = false
	for {
		c.CPU.Step()
		if c.inputPollPending {
			return InputPoll, nil
		}
		if c.PPU.FrameCount() != startFrame {
			return FrameReady, nil
		}
	}
}

// Read implements cpu.Memory: the CPU's single access point for
// instruction fetch, operand fetch, stack traffic and vector reads.
// Every call is exactly one CPU cycle.
func (c *Console) Read(addr uint16) uint8 {
	v := c.Bus.Read(addr)
	c.tick()
	return v
}

// Write implements cpu.Memory. $4014 is intercepted here rather than
// left to Bus: the write itself is one ordinary CPU cycle, but it also
// triggers OAM DMA, which the console models as a further 513 or 514
// stall cycles (514 if the write lands on an odd CPU cycle), each one
// ticking the PPU and APU exactly like any other cycle so the rest of
// the system keeps running while the CPU is halted.
func (c *Console) Write(addr uint16, value uint8) {
	c.Bus.Write(addr, value)
	c.tick()
	if addr == 0x4014 {
		c.runOAMDMA(value)
	}
}

// ReadPort implements bus.Ports for $4016 (port 0) and $4017 (port 1).
// Port 1's standard-controller bit is OR'd with the light sensor's
// trigger/light-detect bits, matching how a Zapper shares port 2 with
// (or replaces) a second gamepad.
func (c *Console) ReadPort(port int) uint8 {
	if port == 0 {
		return 0x40 | c.Controller1.Read()
	}
	bit := c.Controller2.Read()
	lit := c.lightDetected()
	return 0x40 | bit | c.LightSensor.Bits(lit)
}

// WritePort implements bus.Ports for $4016's strobe write, which
// latches both controller shift registers simultaneously. A
// high-then-low transition also satisfies Step's InputPoll condition.
func (c *Console) WritePort(_ int, value uint8) {
	high := value&1 != 0
	if c.strobeHigh && !high {
		c.inputPollPending = true
	}
	c.strobeHigh = high
	c.Controller1.Strobe(high)
	c.Controller2.Strobe(high)
}

// lightDetected reports whether the framebuffer pixel under the light
// sensor's aim position is one of the NES palette's bright entries.
func (c *Console) lightDetected() bool {
	x, y := c.LightSensor.AimX, c.LightSensor.AimY
	if x < 0 || x >= 256 || y < 0 || y >= 240 {
		return false
	}
	frame := c.PPU.Framebuffer()
	return input.IsBright(frame[y*256+x])
}

// tick is the per-CPU-cycle side effect shared by every real bus access
// and every stall cycle: three PPU dots, one APU clock, and sampling
// both interrupt lines back into the CPU. A DMC sample fetch
// discovered mid-tick charges its documented stall immediately, before
// control returns to whichever cycle requested the tick.
//
// tick never touches CPU.Cycles itself. A tick driven by a real bus
// access (Read/Write) is already counted by cpu.Step's own accesses
// tally; only stallCycles, whose ticks never pass through cpu.read or
// cpu.write, charges CPU.Cycles explicitly.
func (c *Console) tick() {
	c.PPU.Tick()
	c.PPU.Tick()
	c.PPU.Tick()
	c.CPU.SetNMI(c.PPU.NMI())
	c.APU.Step()
	c.CPU.SetIRQ(c.APU.IRQ())
	c.CycleCount++

	if stall := c.APU.TakeDMCStall(); stall > 0 {
		c.stallCycles(stall)
	}
}

// stallCycles runs n cycles with no bus access: the CPU is halted (OAM
// DMA, or a DMC fetch stalling an in-flight instruction) but the PPU
// and APU advance exactly as they would on any other cycle. Since
// these cycles never go through cpu.read/cpu.write, they're charged to
// CPU.Cycles here rather than inside cpu.Step.
func (c *Console) stallCycles(n int) {
	for i := 0; i < n; i++ {
		c.tick()
		c.CPU.AddCycles(1)
	}
}

// runOAMDMA performs the 256-byte copy from (page<<8) into OAM that
// $4014 triggers: one dummy cycle, one more if the triggering write
// landed on an odd CPU cycle, then 256 read/write pairs. Each copy
// reads through the raw bus decoder (not Console.Read, which would
// double-tick) and charges its own read and write stall cycles, so the
// PPU advances naturally through the whole transfer exactly as it
// would have if 513/514 ordinary cycles had simply elapsed.
func (c *Console) runOAMDMA(page uint8) {
	if c.CycleCount%2 == 1 {
		c.stallCycles(1)
	}
	c.stallCycles(1)

	base := uint16(page) << 8
	for i := 0; i < 256; i++ {
		v := c.Bus.Read(base + uint16(i))
		c.stallCycles(1)
		c.PPU.WriteOAMByte(uint8(i), v)
		c.stallCycles(1)
	}
}

const stateVersion = 1

// savedState is the versioned, field-by-field save-state envelope:
// every mutable component snapshot plus enough cartridge identity
// (never the ROM bytes themselves) to reject a state captured against
// a different game.
type savedState struct {
	Version      int                    `json:"version"`
	CartridgeHash uint64                `json:"cartridge_hash"`
	CPU          cpu.State              `json:"cpu"`
	PPU          ppu.State              `json:"ppu"`
	APU          apu.State              `json:"apu"`
	RAM          [0x0800]uint8          `json:"ram"`
	Mapper       cartridge.MapperState  `json:"mapper"`
	Controller1  input.State            `json:"controller1"`
	Controller2  input.State            `json:"controller2"`
	LightSensor  input.LightSensor      `json:"light_sensor"`
	CycleCount   uint64                 `json:"cycle_count"`
	StrobeHigh   bool                   `json:"strobe_high"`
}

// SaveState writes a complete, versioned snapshot of every mutable
// component to w. Immutable cartridge ROM is never serialized, only
// its content hash, so LoadState can verify the running cartridge
// matches.
func (c *Console) SaveState(w io.Writer) error {
	s := savedState{
		Version:       stateVersion,
		CartridgeHash: c.Cart.Hash,
		CPU:           c.CPU.State(),
		PPU:           c.PPU.State(),
		APU:           c.APU.State(),
		RAM:           c.Bus.RAM,
		Mapper:        c.Cart.Mapper.State(),
		Controller1:   c.Controller1.State(),
		Controller2:   c.Controller2.State(),
		LightSensor:   c.LightSensor,
		CycleCount:    c.CycleCount,
		StrobeHigh:    c.strobeHigh,
	}

	gz := gzip.NewWriter(w)
	if err := json.NewEncoder(gz).Encode(&s); err != nil {
		return fmt.Errorf("console: encoding save state: %w", err)
	}
	return gz.Close()
}

// LoadState restores a snapshot written by SaveState. It refuses to
// load a state captured against a different cartridge: ROM identity is
// checked by content hash since ROM bytes themselves are never stored
// in the state stream and are assumed to already be loaded.
func (c *Console) LoadState(r io.Reader) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("%w: not a gzip stream: %v", ErrStateLoad, err)
	}
	defer gz.Close()

	var s savedState
	if err := json.NewDecoder(gz).Decode(&s); err != nil {
		return fmt.Errorf("%w: malformed stream: %v", ErrStateLoad, err)
	}
	if s.Version != stateVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrStateLoad, s.Version)
	}
	if s.CartridgeHash != c.Cart.Hash {
		return fmt.Errorf("%w: state targets a different cartridge", ErrStateLoad)
	}

	c.CPU.SetState(s.CPU)
	c.PPU.SetState(s.PPU)
	c.APU.SetState(s.APU)
	c.Bus.RAM = s.RAM
	c.Cart.Mapper.SetState(s.Mapper)
	c.Controller1.SetState(s.Controller1)
	c.Controller2.SetState(s.Controller2)
	c.LightSensor = s.LightSensor
	c.CycleCount = s.CycleCount
	c.strobeHigh = s.StrobeHigh
	c.inputPollPending = false
	return nil
}
