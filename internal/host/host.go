// Package host wraps a gameboy.Gameboy in an ebiten window: it paces
// M-cycles against real time, maps the keyboard to the joypad, and
// blits the PPU's frame buffer once per completed frame. It is a
// collaborator, not part of the core: the core has no notion of a
// window, a clock, or a keyboard.
package host

import (
	"fmt"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/jlrosen/dmg-core/internal/bus"
	"github.com/jlrosen/dmg-core/internal/gameboy"
	"github.com/jlrosen/dmg-core/internal/ppu"
)

// Config holds window/input settings for the host.
type Config struct {
	Title string
	Scale int
}

// Defaults fills in zero-valued fields with sensible defaults.
func (c *Config) Defaults() {
	if c.Title == "" {
		c.Title = "dmgrun"
	}
	if c.Scale <= 0 {
		c.Scale = 3
	}
}

// mCyclesPerFrame is 1.048576 MHz / 59.7275 Hz, the real M-cycle
// budget of one DMG video frame (70224 T-cycles).
const mCyclesPerFrame = 17556

// App is an ebiten.Game driving a Gameboy at one frame of emulated
// time per Update call.
type App struct {
	cfg Config
	gb  *gameboy.Gameboy
	tex *ebiten.Image
	rgb [ppu.ScreenWidth * ppu.ScreenHeight * 4]byte

	paused bool
}

// NewApp constructs a host App around an already-loaded Gameboy.
func NewApp(cfg Config, gb *gameboy.Gameboy) *App {
	cfg.Defaults()
	ebiten.SetWindowTitle(cfg.Title)
	ebiten.SetWindowSize(ppu.ScreenWidth*cfg.Scale, ppu.ScreenHeight*cfg.Scale)
	return &App{cfg: cfg, gb: gb}
}

// Run opens the window and blocks until it is closed.
func (a *App) Run() error { return ebiten.RunGame(a) }

func (a *App) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyP) {
		a.paused = !a.paused
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyN) && a.paused {
		a.stepFrame()
	}

	a.gb.SetButtons(readButtons())

	if !a.paused {
		a.stepFrame()
	}
	return nil
}

// stepFrame advances the machine until the PPU reports a completed
// frame or the M-cycle budget for one frame is exhausted, whichever
// comes first (LCD-off runs never set FrameReady).
func (a *App) stepFrame() {
	for i := 0; i < mCyclesPerFrame; i++ {
		a.gb.StepOneMCycle()
		if a.gb.FrameReady() {
			return
		}
	}
}

func readButtons() byte {
	var mask byte
	if ebiten.IsKeyPressed(ebiten.KeyRight) {
		mask |= bus.JoypRight
	}
	if ebiten.IsKeyPressed(ebiten.KeyLeft) {
		mask |= bus.JoypLeft
	}
	if ebiten.IsKeyPressed(ebiten.KeyUp) {
		mask |= bus.JoypUp
	}
	if ebiten.IsKeyPressed(ebiten.KeyDown) {
		mask |= bus.JoypDown
	}
	if ebiten.IsKeyPressed(ebiten.KeyZ) {
		mask |= bus.JoypA
	}
	if ebiten.IsKeyPressed(ebiten.KeyX) {
		mask |= bus.JoypB
	}
	if ebiten.IsKeyPressed(ebiten.KeyEnter) {
		mask |= bus.JoypStart
	}
	if ebiten.IsKeyPressed(ebiten.KeyShiftRight) {
		mask |= bus.JoypSelectBtn
	}
	return mask
}

func (a *App) Draw(screen *ebiten.Image) {
	if a.tex == nil {
		a.tex = ebiten.NewImage(ppu.ScreenWidth, ppu.ScreenHeight)
	}
	GrayToRGBA(a.gb.PixelBuffer(), a.rgb[:])
	a.tex.WritePixels(a.rgb[:])
	screen.DrawImage(a.tex, nil)
	if a.paused {
		ebiten.SetWindowTitle(fmt.Sprintf("%s (paused)", a.cfg.Title))
	} else {
		ebiten.SetWindowTitle(a.cfg.Title)
	}
}

func (a *App) Layout(outsideWidth, outsideHeight int) (int, int) {
	return ppu.ScreenWidth, ppu.ScreenHeight
}

// GrayToRGBA expands a one-byte-per-pixel grayscale frame buffer into
// a 4-byte-per-pixel RGBA buffer, the shape ebiten.Image.WritePixels
// and image.RGBA both expect. dst must be 4x the length of src.
func GrayToRGBA(src, dst []byte) {
	for i, v := range src {
		j := i * 4
		dst[j+0] = v
		dst[j+1] = v
		dst[j+2] = v
		dst[j+3] = 0xFF
	}
}
