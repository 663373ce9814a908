// Package main implements the nesgo emulator executable: an ebiten
// window driving an internal/console.Console, with save states on the
// function keys and a -nogui headless mode for automation.
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"nesgo/internal/console"
	"nesgo/internal/input"
	"nesgo/internal/ppu"
	"nesgo/internal/version"
)

const sampleRate = 44100

func main() {
	var (
		romFile = flag.String("rom", "", "Path to NES ROM file")
		cfgFile = flag.String("config", "nesgo.json", "Path to host config file (missing file uses defaults)")
		nogui   = flag.Bool("nogui", false, "Run headless: execute a fixed number of frames and exit")
		frames  = flag.Int("frames", 120, "Frame count for -nogui mode")
		help    = flag.Bool("help", false, "Show help message")
		showVer = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *help {
		printUsage()
		os.Exit(0)
	}
	if *showVer {
		version.PrintBuildInfo()
		os.Exit(0)
	}
	if *romFile == "" {
		log.Fatal("a ROM file is required: nesgo -rom <file>")
	}

	setupGracefulShutdown()

	romBytes, err := os.ReadFile(*romFile)
	if err != nil {
		log.Fatalf("reading ROM: %v", err)
	}
	cons, err := console.New(romBytes)
	if err != nil {
		log.Fatalf("loading cartridge: %v", err)
	}
	fmt.Printf("loaded %s (mapper %d, mirroring %d)\n", *romFile, cons.Cart.MapperID, cons.Cart.Mirror)

	if *nogui {
		runHeadless(cons, *frames)
		return
	}

	cfg, err := loadConfig(*cfgFile)
	if err != nil {
		log.Printf("config: %v, using defaults", err)
	}
	if err := runGUI(cons, cfg); err != nil {
		log.Fatalf("gui mode failed: %v", err)
	}
}

// game adapts a Console to ebiten's Game interface: Update drains CPU
// steps until a frame is ready, Draw blits the palette-mapped
// framebuffer, and keyboard state maps directly onto the two standard
// controllers.
type game struct {
	console    *console.Console
	audioPlr   *audio.Player
	screen     *ebiten.Image
	keyBinds   [2]map[ebiten.Key]input.Button
	quitTapped time.Time
}

func newGame(c *console.Console, cfg config) (*game, error) {
	g := &game{
		console: c,
		screen:  ebiten.NewImage(256, 240),
	}
	g.keyBinds[0] = cfg.Input.Player1Keys.binds()
	g.keyBinds[1] = cfg.Input.Player2Keys.binds()

	if cfg.Audio.Enabled {
		ctx := audio.NewContext(sampleRate)
		player, err := ctx.NewPlayer(&sampleStream{g: g})
		if err != nil {
			return nil, fmt.Errorf("audio player: %w", err)
		}
		player.SetBufferSize(time.Duration(cfg.Audio.Latency) * time.Millisecond)
		player.Play()
		g.audioPlr = player
	}
	return g, nil
}

// sampleStream adapts the console's drained 8-bit unsigned mono
// samples to ebiten's expected 16-bit signed little-endian stereo PCM
// stream. It never blocks: if the console hasn't produced enough
// samples yet it emits silence.
type sampleStream struct {
	g       *game
	pending []uint8
}

func (s *sampleStream) Read(p []byte) (int, error) {
	const bytesPerFrame = 4 // 2 channels * 2-byte int16
	frames := len(p) / bytesPerFrame
	if len(s.pending) < frames {
		s.pending = append(s.pending, s.g.console.DrainAudio()...)
	}
	n := len(s.pending)
	if n > frames {
		n = frames
	}
	for i := 0; i < n; i++ {
		sample := int16((int(s.pending[i]) - 128) * 256)
		off := i * bytesPerFrame
		putInt16LE(p[off:], sample)
		putInt16LE(p[off+2:], sample)
	}
	for i := n; i < frames; i++ {
		off := i * bytesPerFrame
		putInt16LE(p[off:], 0)
		putInt16LE(p[off+2:], 0)
	}
	s.pending = s.pending[n:]
	return frames * bytesPerFrame, nil
}

func putInt16LE(b []byte, v int16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func (g *game) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		if time.Since(g.quitTapped) < 3*time.Second {
			return errQuit
		}
		g.quitTapped = time.Now()
	}

	for port, binds := range g.keyBinds {
		for key, btn := range binds {
			g.console.SetButton(port, btn, ebiten.IsKeyPressed(key))
		}
	}

	for i, key := range []ebiten.Key{ebiten.KeyF1, ebiten.KeyF2, ebiten.KeyF3} {
		if inpututil.IsKeyJustPressed(key) {
			g.saveState(i)
		}
	}
	for i, key := range []ebiten.Key{ebiten.KeyF5, ebiten.KeyF6, ebiten.KeyF7} {
		if inpututil.IsKeyJustPressed(key) {
			g.loadState(i)
		}
	}

	for {
		reason, err := g.console.Step()
		if err != nil {
			return err
		}
		if reason == console.FrameReady {
			return nil
		}
	}
}

var errQuit = fmt.Errorf("quit requested")

func (g *game) Draw(screen *ebiten.Image) {
	frame := g.console.Framebuffer()
	for y := 0; y < 240; y++ {
		for x := 0; x < 256; x++ {
			c := ppu.Palette[frame[y*256+x]&0x3F]
			g.screen.Set(x, y, color.RGBA{R: c[0], G: c[1], B: c[2], A: 0xFF})
		}
	}
	screen.DrawImage(g.screen, nil)
}

func (g *game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return 256, 240
}

func (g *game) saveStatePath(slot int) string {
	return fmt.Sprintf("nesgo-state-%d.sav", slot)
}

func (g *game) saveState(slot int) {
	f, err := os.Create(g.saveStatePath(slot))
	if err != nil {
		log.Printf("save state %d: %v", slot, err)
		return
	}
	defer f.Close()
	if err := g.console.SaveState(f); err != nil {
		log.Printf("save state %d: %v", slot, err)
		return
	}
	fmt.Printf("saved state to slot %d\n", slot)
}

func (g *game) loadState(slot int) {
	f, err := os.Open(g.saveStatePath(slot))
	if err != nil {
		log.Printf("load state %d: %v", slot, err)
		return
	}
	defer f.Close()
	if err := g.console.LoadState(f); err != nil {
		log.Printf("load state %d: %v", slot, err)
		return
	}
	fmt.Printf("loaded state from slot %d\n", slot)
}

func runGUI(c *console.Console, cfg config) error {
	g, err := newGame(c, cfg)
	if err != nil {
		return err
	}
	ebiten.SetWindowSize(256*cfg.Window.Scale, 240*cfg.Window.Scale)
	ebiten.SetWindowTitle("nesgo")
	if cfg.Window.Resizable {
		ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	}

	if err := ebiten.RunGame(g); err != nil && err != errQuit {
		return err
	}
	return nil
}

// runHeadless steps the console for a fixed number of frames with no
// window: useful for smoke-testing a ROM or a mapper from a script.
func runHeadless(c *console.Console, frameCount int) {
	for i := 0; i < frameCount; i++ {
		for {
			reason, err := c.Step()
			if err != nil {
				log.Fatalf("frame %d: %v", i, err)
			}
			if reason == console.FrameReady {
				break
			}
		}
	}
	fmt.Printf("ran %d frames\n", frameCount)
}

func setupGracefulShutdown() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Println("\ninterrupt received, shutting down")
		os.Exit(0)
	}()
}

func printUsage() {
	fmt.Println("nesgo - a cycle-accurate NES emulator")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  nesgo -rom <file>            Start with a ROM loaded")
	fmt.Println("  nesgo -rom <file> -nogui     Run headless for a fixed frame count")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("CONTROLS (defaults, rebindable via nesgo.json):")
	fmt.Println("  Arrow keys  D-Pad")
	fmt.Println("  Z / X       A / B")
	fmt.Println("  Enter       Start")
	fmt.Println("  Right Shift Select")
	fmt.Println("  F1-F3       Save state")
	fmt.Println("  F5-F7       Load state")
	fmt.Println("  Escape x2   Quit (within 3 seconds)")
}
