package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hajimehoshi/ebiten/v2"

	"nesgo/internal/input"
)

// config holds the host binary's preferences: window scale, audio
// buffering, and the keyboard layout for both controller ports. It is
// read from the JSON file named by -config (nesgo.json in the working
// directory by default) and never written back; a missing file means
// defaults.
type config struct {
	Window windowConfig `json:"window"`
	Audio  audioConfig  `json:"audio"`
	Input  inputConfig  `json:"input"`
}

type windowConfig struct {
	Scale     int  `json:"scale"` // NES resolution multiplier
	Resizable bool `json:"resizable"`
}

type audioConfig struct {
	Enabled bool `json:"enabled"`
	Latency int  `json:"latency"` // target player buffer in milliseconds
}

type inputConfig struct {
	Player1Keys keyMapping `json:"player1_keys"`
	Player2Keys keyMapping `json:"player2_keys"`
}

// keyMapping names the key bound to each controller button. Names are
// ebiten key identifiers ("Z", "Enter", "ArrowUp", ...); an empty or
// unknown name leaves the button unbound.
type keyMapping struct {
	Up     string `json:"up"`
	Down   string `json:"down"`
	Left   string `json:"left"`
	Right  string `json:"right"`
	A      string `json:"a"`
	B      string `json:"b"`
	Start  string `json:"start"`
	Select string `json:"select"`
}

func defaultConfig() config {
	return config{
		Window: windowConfig{Scale: 2, Resizable: true},
		Audio:  audioConfig{Enabled: true, Latency: 50},
		Input: inputConfig{
			Player1Keys: keyMapping{
				Up:     "ArrowUp",
				Down:   "ArrowDown",
				Left:   "ArrowLeft",
				Right:  "ArrowRight",
				A:      "Z",
				B:      "X",
				Start:  "Enter",
				Select: "ShiftRight",
			},
			Player2Keys: keyMapping{
				Up:    "W",
				Down:  "S",
				Left:  "A",
				Right: "D",
				A:     "J",
				B:     "K",
			},
		},
	}
}

// loadConfig reads path if it exists, overlaying its values on the
// defaults. A missing file is not an error; a malformed one is.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.Window.Scale < 1 {
		cfg.Window.Scale = 1
	}
	return cfg, nil
}

var keyNames = map[string]ebiten.Key{
	"A": ebiten.KeyA, "B": ebiten.KeyB, "C": ebiten.KeyC, "D": ebiten.KeyD,
	"E": ebiten.KeyE, "F": ebiten.KeyF, "G": ebiten.KeyG, "H": ebiten.KeyH,
	"I": ebiten.KeyI, "J": ebiten.KeyJ, "K": ebiten.KeyK, "L": ebiten.KeyL,
	"M": ebiten.KeyM, "N": ebiten.KeyN, "O": ebiten.KeyO, "P": ebiten.KeyP,
	"Q": ebiten.KeyQ, "R": ebiten.KeyR, "S": ebiten.KeyS, "T": ebiten.KeyT,
	"U": ebiten.KeyU, "V": ebiten.KeyV, "W": ebiten.KeyW, "X": ebiten.KeyX,
	"Y": ebiten.KeyY, "Z": ebiten.KeyZ,
	"ArrowUp":    ebiten.KeyArrowUp,
	"ArrowDown":  ebiten.KeyArrowDown,
	"ArrowLeft":  ebiten.KeyArrowLeft,
	"ArrowRight": ebiten.KeyArrowRight,
	"Enter":      ebiten.KeyEnter,
	"Space":      ebiten.KeySpace,
	"Tab":        ebiten.KeyTab,
	"ShiftLeft":  ebiten.KeyShiftLeft,
	"ShiftRight": ebiten.KeyShiftRight,
}

// binds converts a keyMapping into the key->button lookup Update polls
// each frame. Unknown key names are skipped.
func (m keyMapping) binds() map[ebiten.Key]input.Button {
	out := make(map[ebiten.Key]input.Button, 8)
	for name, btn := range map[string]input.Button{
		m.Up: input.ButtonUp, m.Down: input.ButtonDown,
		m.Left: input.ButtonLeft, m.Right: input.ButtonRight,
		m.A: input.ButtonA, m.B: input.ButtonB,
		m.Start: input.ButtonStart, m.Select: input.ButtonSelect,
	} {
		if key, ok := keyNames[name]; ok {
			out[key] = btn
		}
	}
	return out
}
