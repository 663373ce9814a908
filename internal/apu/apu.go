// Package apu implements the 2A03 Audio Processing Unit: two pulse
// channels, a triangle channel, a noise channel, a delta-modulation
// (DMC) channel, the frame sequencer that clocks their envelopes and
// length counters, and the mixer that turns all five into one 8-bit
// sample stream.
package apu

const cpuClockHz = 1789773.0
const sampleRateHz = 44100.0
const cyclesPerSample = cpuClockHz / sampleRateHz

// Memory is the subset of the bus the DMC channel needs: raw reads of
// CPU address space to fetch sample bytes. Injected so apu never
// depends on the console or bus packages directly.
type Memory interface {
	Read(addr uint16) uint8
}

var lengthTable = [32]uint8{
	10, 254, 20, 2, 40, 4, 80, 6, 160, 8, 60, 10, 14, 12, 26, 14,
	12, 16, 24, 18, 48, 20, 96, 22, 192, 24, 72, 26, 16, 28, 32, 30,
}

var dutySequences = [4][8]uint8{
	{0, 1, 0, 0, 0, 0, 0, 0},
	{0, 1, 1, 0, 0, 0, 0, 0},
	{0, 1, 1, 1, 1, 0, 0, 0},
	{1, 0, 0, 1, 1, 1, 1, 1},
}

var noisePeriodTable = [16]uint16{
	4, 8, 16, 32, 64, 96, 128, 160, 202, 254, 380, 508, 762, 1016, 2034, 4068,
}

var dmcRateTable = [16]uint16{
	428, 380, 340, 320, 286, 254, 226, 214, 190, 160, 142, 128, 106, 84, 72, 54,
}

type envelope struct {
	startFlag      bool
	decayLevel     uint8
	divider        uint8
	loop           bool
	constantVolume bool
	volume         uint8
}

func (e *envelope) clock() {
	if e.startFlag {
		e.startFlag = false
		e.decayLevel = 15
		e.divider = e.volume
		return
	}
	if e.divider == 0 {
		e.divider = e.volume
		if e.decayLevel > 0 {
			e.decayLevel--
		} else if e.loop {
			e.decayLevel = 15
		}
	} else {
		e.divider--
	}
}

func (e *envelope) output() uint8 {
	if e.constantVolume {
		return e.volume
	}
	return e.decayLevel
}

type sweep struct {
	enabled bool
	period  uint8
	negate  bool
	shift   uint8
	reload  bool
	divider uint8
}

type pulseChannel struct {
	isPulse1     bool
	enabled      bool
	duty         uint8
	dutyPos      uint8
	timerPeriod  uint16
	timerValue   uint16
	lengthCount  uint8
	lengthHalt   bool
	env          envelope
	sw           sweep
}

func (p *pulseChannel) targetPeriod() uint16 {
	change := p.timerPeriod >> p.sw.shift
	if p.sw.negate {
		if p.isPulse1 {
			return p.timerPeriod - change - 1
		}
		return p.timerPeriod - change
	}
	return p.timerPeriod + change
}

func (p *pulseChannel) sweepMuted() bool {
	return p.timerPeriod < 8 || p.targetPeriod() > 0x7FF
}

func (p *pulseChannel) clockTimer() {
	if p.timerValue == 0 {
		p.timerValue = p.timerPeriod
		p.dutyPos = (p.dutyPos + 1) % 8
	} else {
		p.timerValue--
	}
}

func (p *pulseChannel) clockSweep() {
	if p.sw.divider == 0 && p.sw.enabled && !p.sweepMuted() {
		p.timerPeriod = p.targetPeriod()
	}
	if p.sw.divider == 0 || p.sw.reload {
		p.sw.divider = p.sw.period
		p.sw.reload = false
	} else {
		p.sw.divider--
	}
}

func (p *pulseChannel) clockLength() {
	if !p.lengthHalt && p.lengthCount > 0 {
		p.lengthCount--
	}
}

func (p *pulseChannel) output() uint8 {
	if !p.enabled || p.lengthCount == 0 || p.sweepMuted() || dutySequences[p.duty][p.dutyPos] == 0 {
		return 0
	}
	return p.env.output()
}

type triangleChannel struct {
	enabled        bool
	timerPeriod    uint16
	timerValue     uint16
	sequencePos    uint8
	lengthCount    uint8
	lengthHalt     bool
	linearCount    uint8
	linearReload   uint8
	linearReloadFl bool
}

func (t *triangleChannel) clockTimer() {
	if t.timerValue == 0 {
		t.timerValue = t.timerPeriod
		if t.lengthCount > 0 && t.linearCount > 0 {
			t.sequencePos = (t.sequencePos + 1) % 32
		}
	} else {
		t.timerValue--
	}
}

func (t *triangleChannel) clockLinear() {
	if t.linearReloadFl {
		t.linearCount = t.linearReload
	} else if t.linearCount > 0 {
		t.linearCount--
	}
	if !t.lengthHalt {
		t.linearReloadFl = false
	}
}

func (t *triangleChannel) clockLength() {
	if !t.lengthHalt && t.lengthCount > 0 {
		t.lengthCount--
	}
}

// output is the current 32-step sequence value. The sequencer freezes
// (rather than dropping to zero) when the length or linear counter runs
// out, so a silenced triangle holds its last level; ultrasonic periods
// are clamped to midscale instead of aliasing.
func (t *triangleChannel) output() uint8 {
	if t.timerPeriod < 2 {
		return 7
	}
	if t.sequencePos < 16 {
		return 15 - t.sequencePos
	}
	return t.sequencePos - 16
}

type noiseChannel struct {
	enabled     bool
	mode        bool
	timerPeriod uint16
	timerValue  uint16
	shiftReg    uint16
	lengthCount uint8
	lengthHalt  bool
	env         envelope
}

func (n *noiseChannel) clockTimer() {
	if n.timerValue == 0 {
		n.timerValue = n.timerPeriod
		var feedback uint16
		if n.mode {
			feedback = (n.shiftReg ^ (n.shiftReg >> 6)) & 1
		} else {
			feedback = (n.shiftReg ^ (n.shiftReg >> 1)) & 1
		}
		n.shiftReg >>= 1
		n.shiftReg |= feedback << 14
	} else {
		n.timerValue--
	}
}

func (n *noiseChannel) clockLength() {
	if !n.lengthHalt && n.lengthCount > 0 {
		n.lengthCount--
	}
}

func (n *noiseChannel) output() uint8 {
	if !n.enabled || n.lengthCount == 0 || n.shiftReg&1 != 0 {
		return 0
	}
	return n.env.output()
}

type dmcChannel struct {
	enabled       bool
	irqEnabled    bool
	loop          bool
	rateIndex     uint8
	timerValue    uint16
	outputLevel   uint8
	sampleAddress uint16
	sampleLength  uint16
	curAddress    uint16
	bytesLeft     uint16
	sampleBuffer  uint8
	bufferFilled  bool
	shiftReg      uint8
	bitsLeft      uint8
	silence       bool
	irqFlag       bool
}

// APU is one 2A03. It owns all five channels, the frame sequencer, and
// the sample-rate mixer; the console calls Step() once per CPU cycle,
// exactly in step with the CPU and three times slower than the PPU.
type APU struct {
	mem Memory

	pulse1, pulse2 pulseChannel
	triangle       triangleChannel
	noise          noiseChannel
	dmc            dmcChannel

	fiveStepMode  bool
	irqInhibit    bool
	frameIRQFlag  bool
	frameCycle    int
	apuCyclePhase bool

	dmcStallCycles int

	sampleTimer float64
	samples     []uint8

	pulseTable [31]float64
	tndTable   [203]float64
}

// New constructs an APU whose DMC channel fetches sample bytes through
// mem, matching the cpu.Memory/ppu.Mapper pattern used elsewhere: a
// narrow interface the console satisfies with a read-only view of its
// bus decoder, outside the CPU's cycle-counted access path.
func New(mem Memory) *APU {
	a := &APU{mem: mem}
	a.buildMixerTables()
	a.Reset()
	return a
}

// buildMixerTables precomputes the two non-linear mixing tables once,
// per the NES's documented mixer approximation, so the per-sample hot
// path is a pair of table lookups rather than floating-point division.
func (a *APU) buildMixerTables() {
	for i := range a.pulseTable {
		if i == 0 {
			a.pulseTable[i] = 0
			continue
		}
		a.pulseTable[i] = 95.52 / (8128.0/float64(i) + 100.0)
	}
	for i := range a.tndTable {
		if i == 0 {
			a.tndTable[i] = 0
			continue
		}
		a.tndTable[i] = 163.67 / (24329.0/float64(i) + 100.0)
	}
}

func (a *APU) Reset() {
	*a = APU{mem: a.mem, pulseTable: a.pulseTable, tndTable: a.tndTable}
	a.pulse1.isPulse1 = true
	a.noise.shiftReg = 1
	a.dmc.silence = true
	a.dmc.bitsLeft = 8
	a.sampleTimer = cyclesPerSample
}

// IRQ reports the APU's combined IRQ output line (frame sequencer OR
// DMC), which the console ORs into the CPU's level-triggered IRQ input.
func (a *APU) IRQ() bool { return a.frameIRQFlag || a.dmc.irqFlag }

// TakeDMCStall drains and resets the CPU-cycle stall the DMC channel
// has accumulated from sample-byte fetches since the last call. The
// console adds the result to the cycles it spends ticking without
// retiring a CPU instruction, per the documented 4-cycles-per-fetched-
// byte DMC stall.
func (a *APU) TakeDMCStall() int {
	n := a.dmcStallCycles
	a.dmcStallCycles = 0
	return n
}

// DrainSamples returns and clears the buffered output samples.
func (a *APU) DrainSamples() []uint8 {
	s := a.samples
	a.samples = nil
	return s
}

// Step advances the APU by one CPU cycle: the pulse and noise timers
// run at half that rate (one "APU cycle" every two CPU cycles); the
// triangle timer runs at the full CPU rate, matching real 2A03 wiring.
// The DMC output unit's rate table already counts raw CPU cycles, so
// its timer also runs at the full rate rather than the halved one.
func (a *APU) Step() {
	a.serviceDMCReader()
	a.triangle.clockTimer()
	a.clockDMCTimer()
	if a.apuCyclePhase {
		a.pulse1.clockTimer()
		a.pulse2.clockTimer()
		a.noise.clockTimer()
	}
	a.apuCyclePhase = !a.apuCyclePhase

	a.stepFrameSequencer()
	a.stepSampleClock()
}

// serviceDMCReader is the DMC's memory reader: a unit independent of
// the output-unit's bit timer that immediately fetches the next sample
// byte whenever the buffer runs empty and bytes remain, stalling the
// CPU for the fetch. Real hardware decouples the reader from the
// output unit's 8-bit shift counter this way; gating the fetch on the
// shift counter instead would silence the channel indefinitely on
// first use, since the buffer would never be primed in time.
func (a *APU) serviceDMCReader() {
	if !a.dmc.bufferFilled && a.dmc.bytesLeft > 0 {
		a.fetchDMCByte()
	}
}

// stepFrameSequencer clocks envelopes/linear-counter ("quarter frame")
// and length-counters/sweeps ("half frame") on the documented 4- or
// 5-step schedule. The step boundaries are the source's integer CPU-
// cycle approximations (7457/14913/22371/29829[/37281]) rather than the
// exact fractional NTSC values; REDESIGN FLAGS explicitly allows this.
func (a *APU) stepFrameSequencer() {
	a.frameCycle++
	if !a.fiveStepMode {
		switch a.frameCycle {
		case 7457:
			a.clockQuarterFrame()
		case 14913:
			a.clockQuarterFrame()
			a.clockHalfFrame()
		case 22371:
			a.clockQuarterFrame()
		case 29829:
			if !a.irqInhibit {
				a.frameIRQFlag = true
			}
			a.clockQuarterFrame()
			a.clockHalfFrame()
			a.frameCycle = 0
		}
		return
	}
	switch a.frameCycle {
	case 7457:
		a.clockQuarterFrame()
	case 14913:
		a.clockQuarterFrame()
		a.clockHalfFrame()
	case 22371:
		a.clockQuarterFrame()
	case 37281:
		a.clockQuarterFrame()
		a.clockHalfFrame()
		a.frameCycle = 0
	}
}

func (a *APU) clockQuarterFrame() {
	a.pulse1.env.clock()
	a.pulse2.env.clock()
	a.noise.env.clock()
	a.triangle.clockLinear()
}

func (a *APU) clockHalfFrame() {
	a.pulse1.clockLength()
	a.pulse2.clockLength()
	a.triangle.clockLength()
	a.noise.clockLength()
	a.pulse1.clockSweep()
	a.pulse2.clockSweep()
}

// clockDMCTimer runs the DMC output unit's bit shifter at its
// programmed rate and, after every 8 bits, reloads the shifter from the
// sample buffer or goes silent when the buffer is empty. Refilling the
// buffer (and charging the 4-cycle CPU stall) is fetchDMCByte's job.
func (a *APU) clockDMCTimer() {
	d := &a.dmc
	if d.timerValue == 0 {
		d.timerValue = dmcRateTable[d.rateIndex]
		if !d.silence {
			if d.shiftReg&1 != 0 {
				if d.outputLevel <= 125 {
					d.outputLevel += 2
				}
			} else if d.outputLevel >= 2 {
				d.outputLevel -= 2
			}
		}
		d.shiftReg >>= 1
		d.bitsLeft--
		if d.bitsLeft == 0 {
			d.bitsLeft = 8
			if !d.bufferFilled {
				d.silence = true
			} else {
				d.silence = false
				d.shiftReg = d.sampleBuffer
				d.bufferFilled = false
			}
		}
	} else {
		d.timerValue--
	}
}

func (a *APU) fetchDMCByte() {
	d := &a.dmc
	if d.bytesLeft == 0 {
		return
	}
	d.sampleBuffer = a.mem.Read(d.curAddress)
	d.bufferFilled = true
	a.dmcStallCycles += 4
	if d.curAddress == 0xFFFF {
		d.curAddress = 0x8000
	} else {
		d.curAddress++
	}
	d.bytesLeft--
	if d.bytesLeft == 0 {
		if d.loop {
			d.curAddress = d.sampleAddress
			d.bytesLeft = d.sampleLength
		} else if d.irqEnabled {
			d.irqFlag = true
		}
	}
}

// stepSampleClock emits one mixed sample every cyclesPerSample CPU
// cycles, landing on 44100 samples/s for the NTSC CPU clock.
func (a *APU) stepSampleClock() {
	a.sampleTimer--
	if a.sampleTimer > 0 {
		return
	}
	a.sampleTimer += cyclesPerSample
	a.samples = append(a.samples, a.mix())
}

func (a *APU) mix() uint8 {
	p1 := a.pulse1.output()
	p2 := a.pulse2.output()
	t := a.triangle.output()
	n := a.noise.output()
	d := a.dmc.outputLevel

	pulseOut := a.pulseTable[p1+p2]
	tndOut := a.tndTable[3*t+2*n+d]
	sample := pulseOut + tndOut // 0.0-~1.0 by construction of the tables
	if sample > 1 {
		sample = 1
	}
	return uint8(sample * 255.0)
}

// ReadStatus handles $4015 reads; every other APU address is write-only
// and reads back as open bus (0), which the bus enforces by never
// routing those addresses here.
func (a *APU) ReadStatus() uint8 {
	var v uint8
	if a.pulse1.lengthCount > 0 {
		v |= 0x01
	}
	if a.pulse2.lengthCount > 0 {
		v |= 0x02
	}
	if a.triangle.lengthCount > 0 {
		v |= 0x04
	}
	if a.noise.lengthCount > 0 {
		v |= 0x08
	}
	if a.dmc.bytesLeft > 0 {
		v |= 0x10
	}
	if a.frameIRQFlag {
		v |= 0x40
	}
	if a.dmc.irqFlag {
		v |= 0x80
	}
	a.frameIRQFlag = false
	return v
}

// EnvelopeState mirrors an envelope unit for serialization.
type EnvelopeState struct {
	StartFlag      bool
	DecayLevel     uint8
	Divider        uint8
	Loop           bool
	ConstantVolume bool
	Volume         uint8
}

func (e *envelope) state() EnvelopeState {
	return EnvelopeState{
		StartFlag: e.startFlag, DecayLevel: e.decayLevel, Divider: e.divider,
		Loop: e.loop, ConstantVolume: e.constantVolume, Volume: e.volume,
	}
}

func (e *envelope) setState(s EnvelopeState) {
	e.startFlag, e.decayLevel, e.divider = s.StartFlag, s.DecayLevel, s.Divider
	e.loop, e.constantVolume, e.volume = s.Loop, s.ConstantVolume, s.Volume
}

// SweepState mirrors a pulse channel's sweep unit for serialization.
type SweepState struct {
	Enabled bool
	Period  uint8
	Negate  bool
	Shift   uint8
	Reload  bool
	Divider uint8
}

// PulseState is one pulse channel's mutable state. The channel-1/
// channel-2 distinction is wiring, not state, and is not serialized.
type PulseState struct {
	Enabled     bool
	Duty        uint8
	DutyPos     uint8
	TimerPeriod uint16
	TimerValue  uint16
	LengthCount uint8
	LengthHalt  bool
	Envelope    EnvelopeState
	Sweep       SweepState
}

func (p *pulseChannel) state() PulseState {
	return PulseState{
		Enabled: p.enabled, Duty: p.duty, DutyPos: p.dutyPos,
		TimerPeriod: p.timerPeriod, TimerValue: p.timerValue,
		LengthCount: p.lengthCount, LengthHalt: p.lengthHalt,
		Envelope: p.env.state(),
		Sweep: SweepState{
			Enabled: p.sw.enabled, Period: p.sw.period, Negate: p.sw.negate,
			Shift: p.sw.shift, Reload: p.sw.reload, Divider: p.sw.divider,
		},
	}
}

func (p *pulseChannel) setState(s PulseState) {
	p.enabled, p.duty, p.dutyPos = s.Enabled, s.Duty, s.DutyPos
	p.timerPeriod, p.timerValue = s.TimerPeriod, s.TimerValue
	p.lengthCount, p.lengthHalt = s.LengthCount, s.LengthHalt
	p.env.setState(s.Envelope)
	p.sw = sweep{
		enabled: s.Sweep.Enabled, period: s.Sweep.Period, negate: s.Sweep.Negate,
		shift: s.Sweep.Shift, reload: s.Sweep.Reload, divider: s.Sweep.Divider,
	}
}

// TriangleState is the triangle channel's mutable state.
type TriangleState struct {
	Enabled      bool
	TimerPeriod  uint16
	TimerValue   uint16
	SequencePos  uint8
	LengthCount  uint8
	LengthHalt   bool
	LinearCount  uint8
	LinearReload uint8
	LinearReloadFlag bool
}

func (t *triangleChannel) state() TriangleState {
	return TriangleState{
		Enabled: t.enabled, TimerPeriod: t.timerPeriod, TimerValue: t.timerValue,
		SequencePos: t.sequencePos, LengthCount: t.lengthCount, LengthHalt: t.lengthHalt,
		LinearCount: t.linearCount, LinearReload: t.linearReload,
		LinearReloadFlag: t.linearReloadFl,
	}
}

func (t *triangleChannel) setState(s TriangleState) {
	t.enabled, t.timerPeriod, t.timerValue = s.Enabled, s.TimerPeriod, s.TimerValue
	t.sequencePos, t.lengthCount, t.lengthHalt = s.SequencePos, s.LengthCount, s.LengthHalt
	t.linearCount, t.linearReload, t.linearReloadFl = s.LinearCount, s.LinearReload, s.LinearReloadFlag
}

// NoiseState is the noise channel's mutable state.
type NoiseState struct {
	Enabled     bool
	Mode        bool
	TimerPeriod uint16
	TimerValue  uint16
	ShiftReg    uint16
	LengthCount uint8
	LengthHalt  bool
	Envelope    EnvelopeState
}

func (n *noiseChannel) state() NoiseState {
	return NoiseState{
		Enabled: n.enabled, Mode: n.mode,
		TimerPeriod: n.timerPeriod, TimerValue: n.timerValue, ShiftReg: n.shiftReg,
		LengthCount: n.lengthCount, LengthHalt: n.lengthHalt,
		Envelope: n.env.state(),
	}
}

func (n *noiseChannel) setState(s NoiseState) {
	n.enabled, n.mode = s.Enabled, s.Mode
	n.timerPeriod, n.timerValue, n.shiftReg = s.TimerPeriod, s.TimerValue, s.ShiftReg
	n.lengthCount, n.lengthHalt = s.LengthCount, s.LengthHalt
	n.env.setState(s.Envelope)
}

// DMCState is the DMC channel's mutable state: output unit, reader and
// IRQ latch together.
type DMCState struct {
	Enabled       bool
	IRQEnabled    bool
	Loop          bool
	RateIndex     uint8
	TimerValue    uint16
	OutputLevel   uint8
	SampleAddress uint16
	SampleLength  uint16
	CurAddress    uint16
	BytesLeft     uint16
	SampleBuffer  uint8
	BufferFilled  bool
	ShiftReg      uint8
	BitsLeft      uint8
	Silence       bool
	IRQFlag       bool
}

func (d *dmcChannel) state() DMCState {
	return DMCState{
		Enabled: d.enabled, IRQEnabled: d.irqEnabled, Loop: d.loop,
		RateIndex: d.rateIndex, TimerValue: d.timerValue, OutputLevel: d.outputLevel,
		SampleAddress: d.sampleAddress, SampleLength: d.sampleLength,
		CurAddress: d.curAddress, BytesLeft: d.bytesLeft,
		SampleBuffer: d.sampleBuffer, BufferFilled: d.bufferFilled,
		ShiftReg: d.shiftReg, BitsLeft: d.bitsLeft,
		Silence: d.silence, IRQFlag: d.irqFlag,
	}
}

func (d *dmcChannel) setState(s DMCState) {
	d.enabled, d.irqEnabled, d.loop = s.Enabled, s.IRQEnabled, s.Loop
	d.rateIndex, d.timerValue, d.outputLevel = s.RateIndex, s.TimerValue, s.OutputLevel
	d.sampleAddress, d.sampleLength = s.SampleAddress, s.SampleLength
	d.curAddress, d.bytesLeft = s.CurAddress, s.BytesLeft
	d.sampleBuffer, d.bufferFilled = s.SampleBuffer, s.BufferFilled
	d.shiftReg, d.bitsLeft = s.ShiftReg, s.BitsLeft
	d.silence, d.irqFlag = s.Silence, s.IRQFlag
}

// State is a field-by-field snapshot of every channel, the frame
// sequencer and the DMC reader for save-state round-tripping. The
// precomputed mixer tables and the pending sample buffer are excluded:
// the tables are a pure function of the APU's construction and the
// sample buffer is drained by the host every step, not meaningful to
// restore mid-drain.
type State struct {
	Pulse1, Pulse2 PulseState
	Triangle       TriangleState
	Noise          NoiseState
	DMC            DMCState

	FiveStepMode  bool
	IRQInhibit    bool
	FrameIRQFlag  bool
	FrameCycle    int
	APUCyclePhase bool

	DMCStallCycles int
	SampleTimer    float64
}

// State snapshots every mutable APU field.
func (a *APU) State() State {
	return State{
		Pulse1: a.pulse1.state(), Pulse2: a.pulse2.state(),
		Triangle: a.triangle.state(), Noise: a.noise.state(), DMC: a.dmc.state(),
		FiveStepMode: a.fiveStepMode, IRQInhibit: a.irqInhibit,
		FrameIRQFlag: a.frameIRQFlag, FrameCycle: a.frameCycle,
		APUCyclePhase:  a.apuCyclePhase,
		DMCStallCycles: a.dmcStallCycles,
		SampleTimer:    a.sampleTimer,
	}
}

// SetState restores a previously captured State. The drained-sample
// buffer is cleared, matching a fresh DrainAudio call.
func (a *APU) SetState(s State) {
	a.pulse1.setState(s.Pulse1)
	a.pulse2.setState(s.Pulse2)
	a.triangle.setState(s.Triangle)
	a.noise.setState(s.Noise)
	a.dmc.setState(s.DMC)
	a.fiveStepMode, a.irqInhibit = s.FiveStepMode, s.IRQInhibit
	a.frameIRQFlag, a.frameCycle = s.FrameIRQFlag, s.FrameCycle
	a.apuCyclePhase = s.APUCyclePhase
	a.dmcStallCycles = s.DMCStallCycles
	a.sampleTimer = s.SampleTimer
	a.samples = nil
}

// WriteRegister handles $4000-$4013, $4015 and $4017.
func (a *APU) WriteRegister(addr uint16, value uint8) {
	switch addr {
	case 0x4000:
		a.pulse1.duty = value >> 6
		a.pulse1.lengthHalt = value&0x20 != 0
		a.pulse1.env.loop = a.pulse1.lengthHalt
		a.pulse1.env.constantVolume = value&0x10 != 0
		a.pulse1.env.volume = value & 0x0F
	case 0x4001:
		a.pulse1.sw = sweep{
			enabled: value&0x80 != 0,
			period:  (value >> 4) & 0x07,
			negate:  value&0x08 != 0,
			shift:   value & 0x07,
			reload:  true,
		}
	case 0x4002:
		a.pulse1.timerPeriod = (a.pulse1.timerPeriod & 0xFF00) | uint16(value)
	case 0x4003:
		a.pulse1.timerPeriod = (a.pulse1.timerPeriod & 0x00FF) | (uint16(value&0x07) << 8)
		if a.pulse1.enabled {
			a.pulse1.lengthCount = lengthTable[value>>3]
		}
		a.pulse1.dutyPos = 0
		a.pulse1.env.startFlag = true

	case 0x4004:
		a.pulse2.duty = value >> 6
		a.pulse2.lengthHalt = value&0x20 != 0
		a.pulse2.env.loop = a.pulse2.lengthHalt
		a.pulse2.env.constantVolume = value&0x10 != 0
		a.pulse2.env.volume = value & 0x0F
	case 0x4005:
		a.pulse2.sw = sweep{
			enabled: value&0x80 != 0,
			period:  (value >> 4) & 0x07,
			negate:  value&0x08 != 0,
			shift:   value & 0x07,
			reload:  true,
		}
	case 0x4006:
		a.pulse2.timerPeriod = (a.pulse2.timerPeriod & 0xFF00) | uint16(value)
	case 0x4007:
		a.pulse2.timerPeriod = (a.pulse2.timerPeriod & 0x00FF) | (uint16(value&0x07) << 8)
		if a.pulse2.enabled {
			a.pulse2.lengthCount = lengthTable[value>>3]
		}
		a.pulse2.dutyPos = 0
		a.pulse2.env.startFlag = true

	case 0x4008:
		a.triangle.lengthHalt = value&0x80 != 0
		a.triangle.linearReload = value & 0x7F
	case 0x400A:
		a.triangle.timerPeriod = (a.triangle.timerPeriod & 0xFF00) | uint16(value)
	case 0x400B:
		a.triangle.timerPeriod = (a.triangle.timerPeriod & 0x00FF) | (uint16(value&0x07) << 8)
		if a.triangle.enabled {
			a.triangle.lengthCount = lengthTable[value>>3]
		}
		a.triangle.linearReloadFl = true

	case 0x400C:
		a.noise.lengthHalt = value&0x20 != 0
		a.noise.env.loop = a.noise.lengthHalt
		a.noise.env.constantVolume = value&0x10 != 0
		a.noise.env.volume = value & 0x0F
	case 0x400E:
		a.noise.mode = value&0x80 != 0
		a.noise.timerPeriod = noisePeriodTable[value&0x0F]
	case 0x400F:
		if a.noise.enabled {
			a.noise.lengthCount = lengthTable[value>>3]
		}
		a.noise.env.startFlag = true

	case 0x4010:
		a.dmc.irqEnabled = value&0x80 != 0
		a.dmc.loop = value&0x40 != 0
		a.dmc.rateIndex = value & 0x0F
		if !a.dmc.irqEnabled {
			a.dmc.irqFlag = false
		}
	case 0x4011:
		a.dmc.outputLevel = value & 0x7F
	case 0x4012:
		a.dmc.sampleAddress = 0xC000 | (uint16(value) << 6)
	case 0x4013:
		a.dmc.sampleLength = (uint16(value) << 4) | 1

	case 0x4015:
		a.pulse1.enabled = value&0x01 != 0
		a.pulse2.enabled = value&0x02 != 0
		a.triangle.enabled = value&0x04 != 0
		a.noise.enabled = value&0x08 != 0
		a.dmc.enabled = value&0x10 != 0
		if !a.pulse1.enabled {
			a.pulse1.lengthCount = 0
		}
		if !a.pulse2.enabled {
			a.pulse2.lengthCount = 0
		}
		if !a.triangle.enabled {
			a.triangle.lengthCount = 0
		}
		if !a.noise.enabled {
			a.noise.lengthCount = 0
		}
		a.dmc.irqFlag = false
		if !a.dmc.enabled {
			a.dmc.bytesLeft = 0
		} else if a.dmc.bytesLeft == 0 {
			a.dmc.curAddress = a.dmc.sampleAddress
			a.dmc.bytesLeft = a.dmc.sampleLength
		}

	case 0x4017:
		a.fiveStepMode = value&0x80 != 0
		a.irqInhibit = value&0x40 != 0
		if a.irqInhibit {
			a.frameIRQFlag = false
		}
		a.frameCycle = 0
		if a.fiveStepMode {
			a.clockQuarterFrame()
			a.clockHalfFrame()
		}
	}
}
