// Command dmgrun loads a ROM into the core and either opens a window
// or, with -headless, drives a fixed number of frames and checks the
// resulting framebuffer's CRC32 against an expected value.
package main

import (
	"flag"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jlrosen/dmg-core/internal/cart"
	"github.com/jlrosen/dmg-core/internal/gameboy"
	"github.com/jlrosen/dmg-core/internal/host"
	"github.com/jlrosen/dmg-core/internal/ppu"
)

type cliFlags struct {
	ROMPath string
	BootROM string
	Scale   int
	Title   string
	SaveRAM bool

	Headless bool
	Frames   int
	PNGOut   string
	Expect   string
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.ROMPath, "rom", "", "path to ROM (.gb)")
	flag.StringVar(&f.BootROM, "bootrom", "", "optional DMG boot ROM")
	flag.IntVar(&f.Scale, "scale", 3, "window scale")
	flag.StringVar(&f.Title, "title", "dmgrun", "window title")
	flag.BoolVar(&f.SaveRAM, "save", true, "persist battery RAM to ROM.sav on exit and load on start")

	flag.BoolVar(&f.Headless, "headless", false, "run without a window")
	flag.IntVar(&f.Frames, "frames", 300, "frames to run in headless mode")
	flag.StringVar(&f.PNGOut, "outpng", "", "write last framebuffer to PNG at path")
	flag.StringVar(&f.Expect, "expect", "", "assert framebuffer CRC32 (hex)")
	flag.Parse()
	return f
}

func runHeadless(gb *gameboyStepper, frames int, pngPath, expectCRC string) error {
	if frames <= 0 {
		frames = 1
	}

	start := time.Now()
	for i := 0; i < frames; i++ {
		gb.stepFrame()
	}
	dur := time.Since(start)

	rgba := make([]byte, ppu.ScreenWidth*ppu.ScreenHeight*4)
	host.GrayToRGBA(gb.gb.PixelBuffer(), rgba)
	crc := crc32.ChecksumIEEE(rgba)
	fps := float64(frames) / dur.Seconds()

	log.Printf("headless: frames=%d elapsed=%s fps=%.2f fb_crc32=%08x",
		frames, dur.Truncate(time.Millisecond), fps, crc)

	if pngPath != "" {
		if err := saveFramePNG(rgba, ppu.ScreenWidth, ppu.ScreenHeight, pngPath); err != nil {
			return fmt.Errorf("write PNG: %w", err)
		}
		log.Printf("wrote %s", pngPath)
	}

	if expectCRC != "" {
		want := strings.TrimPrefix(strings.ToLower(expectCRC), "0x")
		got := fmt.Sprintf("%08x", crc)
		if got != want {
			return fmt.Errorf("checksum mismatch: got %s, want %s", got, want)
		}
	}
	return nil
}

func saveFramePNG(pix []byte, w, h int, path string) error {
	img := &image.RGBA{
		Pix:    make([]byte, len(pix)),
		Stride: 4 * w,
		Rect:   image.Rect(0, 0, w, h),
	}
	copy(img.Pix, pix)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func mustRead(path string) []byte {
	if path == "" {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read %s: %v", path, err)
	}
	return b
}

// gameboyStepper paces StepOneMCycle for the headless path, which has
// no ebiten Update tick to ride on.
type gameboyStepper struct {
	gb *gameboy.Gameboy
}

const mCyclesPerFrame = 17556

func (s *gameboyStepper) stepFrame() {
	for i := 0; i < mCyclesPerFrame; i++ {
		s.gb.StepOneMCycle()
		if s.gb.FrameReady() {
			return
		}
	}
}

func main() {
	f := parseFlags()
	if f.ROMPath == "" {
		log.Fatal("-rom is required")
	}
	rom := mustRead(f.ROMPath)
	boot := mustRead(f.BootROM)

	if len(rom) >= 0x150 {
		if h, err := cart.ParseHeader(rom); err == nil {
			log.Printf("ROM: %q type=%s banks=%d ram=%dB", h.Title, h.CartTypeStr, h.ROMBanks, h.RAMSizeBytes)
		}
	}

	var bootROM []byte
	if len(boot) >= 0x100 {
		bootROM = boot
	}
	gb, err := gameboy.New(rom, bootROM)
	if err != nil {
		log.Fatalf("load cart: %v", err)
	}

	savPath := strings.TrimSuffix(f.ROMPath, ".gb") + ".sav"
	if f.SaveRAM {
		if data, err := os.ReadFile(savPath); err == nil {
			gb.LoadRAM(data)
			log.Printf("loaded save RAM: %s (%d bytes)", savPath, len(data))
		}
	}

	if f.Headless {
		if err := runHeadless(&gameboyStepper{gb: gb}, f.Frames, f.PNGOut, f.Expect); err != nil {
			log.Fatal(err)
		}
		saveBattery(gb, f.SaveRAM, savPath)
		return
	}

	app := host.NewApp(host.Config{Title: f.Title, Scale: f.Scale}, gb)
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
	saveBattery(gb, f.SaveRAM, savPath)
}

func saveBattery(gb *gameboy.Gameboy, enabled bool, path string) {
	if !enabled {
		return
	}
	data := gb.SaveRAM()
	if data == nil {
		return
	}
	if err := os.WriteFile(path, data, 0644); err == nil {
		log.Printf("wrote %s", path)
	}
}
