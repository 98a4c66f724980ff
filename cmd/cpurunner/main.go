// Command cpurunner drives a ROM headlessly and watches its serial
// port output for a pass/fail marker, the harness shape blargg-style
// test ROMs expect: no window, just M-cycles and a byte stream.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/jlrosen/dmg-core/internal/gameboy"
)

type writerFunc func(p []byte) (n int, err error)

func (f writerFunc) Write(p []byte) (n int, err error) { return f(p) }

// postBootDefaults writes the DMG hardware register values the boot
// ROM would otherwise have established, for runs started without one.
func postBootDefaults(gb *gameboy.Gameboy) {
	b := gb.Bus()
	b.Write(0xFF00, 0xCF)
	b.Write(0xFF05, 0x00) // TIMA
	b.Write(0xFF06, 0x00) // TMA
	b.Write(0xFF07, 0x00) // TAC
	b.Write(0xFF40, 0x91) // LCDC on, BG on, tile data at 0x8000; sprites off
	b.Write(0xFF42, 0x00) // SCY
	b.Write(0xFF43, 0x00) // SCX
	b.Write(0xFF45, 0x00) // LYC
	b.Write(0xFF47, 0xFC) // BGP
	b.Write(0xFF48, 0xFF) // OBP0
	b.Write(0xFF49, 0xFF) // OBP1
	b.Write(0xFF4A, 0x00) // WY
	b.Write(0xFF4B, 0x00) // WX
	b.Write(0xFFFF, 0x00) // IE
}

func main() {
	romPath := flag.String("rom", "", "path to ROM (.gb)")
	bootPath := flag.String("bootrom", "", "optional DMG boot ROM to run from 0x0000 until FF50 disables it")
	steps := flag.Int("steps", 5_000_000, "max M-cycles to run")
	startPC := flag.Int("pc", 0x0100, "initial PC value when no boot ROM is given")
	trace := flag.Bool("trace", false, "print PC/opcodes")
	until := flag.String("until", "Passed", "stop when serial output contains this substring (case-insensitive); empty to disable")
	auto := flag.Bool("auto", false, "auto-detect 'Passed' or 'Failed N tests' in serial output and exit with code 0/1")
	timeout := flag.Duration("timeout", 0, "optional wall-clock timeout (e.g. 30s, 2m); 0 disables")
	traceOnFail := flag.Bool("traceOnFail", false, "when -auto detects failure, print a recent trace window (slows down)")
	traceWindow := flag.Int("traceWindow", 200, "number of recent M-cycles to include in 'traceOnFail' dump")
	serialWindowFlag := flag.Int("serialWindow", 8192, "number of recent serial bytes to retain for diagnostics on fail")
	flag.Parse()

	if *romPath == "" {
		log.Fatal("-rom is required")
	}
	rom, err := os.ReadFile(*romPath)
	if err != nil {
		log.Fatalf("read rom: %v", err)
	}
	var boot []byte
	if *bootPath != "" {
		if b, err := os.ReadFile(*bootPath); err == nil {
			boot = b
		} else {
			log.Fatalf("read bootrom: %v", err)
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
	if bootROM == nil {
		gb.CPU().SetPC(uint16(*startPC))
		postBootDefaults(gb)
	}

	var ser bytes.Buffer
	serialWindow := *serialWindowFlag
	if serialWindow < 256 {
		serialWindow = 256
	}
	serRing := make([]byte, serialWindow)
	serRingIdx, serRingFill := 0, 0
	w := io.Writer(os.Stdout)
	if *until != "" || *auto {
		w = io.MultiWriter(os.Stdout, &ser, writerFunc(func(p []byte) (int, error) {
			for _, ch := range p {
				serRing[serRingIdx] = ch
				serRingIdx = (serRingIdx + 1) % serialWindow
				if serRingFill < serialWindow {
					serRingFill++
				}
			}
			return len(p), nil
		}))
	}
	gb.SetSerialWriter(w)

	start := time.Now()
	var deadline time.Time
	if *timeout > 0 {
		deadline = start.Add(*timeout)
	}
	failRe := regexp.MustCompile(`(?i)failed\s+(\d+)\s+tests?`)
	stageRe := regexp.MustCompile(`\b(\d{2}:\d{2})\b`)
	lastStage := ""

	type traceEntry struct {
		pc                     uint16
		op                     byte
		a, f, b, c, d, e, h, l byte
		sp                     uint16
		ime                    bool
		ifreg, ie              byte
	}
	ring := make([]traceEntry, *traceWindow)
	ringIdx, ringFill := 0, 0

	dumpTrace := func() {
		if !*traceOnFail || ringFill == 0 {
			return
		}
		fmt.Printf("\n--- recent trace (last %d M-cycles) ---\n", ringFill)
		startIdx := (ringIdx - ringFill + *traceWindow) % *traceWindow
		for j := 0; j < ringFill; j++ {
			te := ring[(startIdx+j)%*traceWindow]
			fmt.Printf("PC=%04X OP=%02X A=%02X F=%02X B=%02X C=%02X D=%02X E=%02X H=%02X L=%02X SP=%04X IME=%t IF=%02X IE=%02X\n",
				te.pc, te.op, te.a, te.f, te.b, te.c, te.d, te.e, te.h, te.l, te.sp, te.ime, te.ifreg, te.ie)
		}
		fmt.Printf("--- end trace ---\n")
	}
	dumpSerial := func() {
		if serRingFill == 0 {
			return
		}
		fmt.Printf("\n--- recent serial (last %d bytes) ---\n", serRingFill)
		startIdx := (serRingIdx - serRingFill + serialWindow) % serialWindow
		for j := 0; j < serRingFill; j++ {
			fmt.Printf("%c", serRing[(startIdx+j)%serialWindow])
		}
		fmt.Printf("\n--- end serial ---\n")
	}

	for i := 0; i < *steps; i++ {
		pc := gb.CPU().PC
		var op byte
		if *trace || *traceOnFail {
			op = gb.Bus().Read(pc)
		}
		gb.StepOneMCycle()
		if *trace || *traceOnFail {
			r := gb.CPU()
			te := traceEntry{
				pc: pc, op: op,
				a: r.A, f: r.F, b: r.B, c: r.C, d: r.D, e: r.E, h: r.H, l: r.L,
				sp: r.SP, ime: r.IME, ifreg: gb.Bus().Read(0xFF0F), ie: gb.Bus().Read(0xFFFF),
			}
			if *trace {
				fmt.Printf("PC=%04X OP=%02X A=%02X F=%02X B=%02X C=%02X D=%02X E=%02X H=%02X L=%02X SP=%04X IME=%t IF=%02X IE=%02X\n",
					te.pc, te.op, te.a, te.f, te.b, te.c, te.d, te.e, te.h, te.l, te.sp, te.ime, te.ifreg, te.ie)
			}
			if *traceOnFail && *traceWindow > 0 {
				ring[ringIdx] = te
				ringIdx = (ringIdx + 1) % *traceWindow
				if ringFill < *traceWindow {
					ringFill++
				}
			}
		}
		if *auto {
			s := ser.String()
			if mm := stageRe.FindAllString(s, -1); len(mm) > 0 {
				lastStage = mm[len(mm)-1]
			}
			if strings.Contains(strings.ToLower(s), "passed") {
				fmt.Printf("\nDetected PASS in serial output.\n")
				if lastStage != "" {
					fmt.Printf("Last stage seen: %s\n", lastStage)
				}
				fmt.Printf("\nDone: mcycles=%d elapsed=%s\n", i+1, time.Since(start).Truncate(time.Millisecond))
				os.Exit(0)
			}
			if m := failRe.FindStringSubmatch(s); m != nil {
				fmt.Printf("\nDetected %s in serial output.\n", m[0])
				if lastStage != "" {
					fmt.Printf("Last stage seen: %s\n", lastStage)
				}
				dumpTrace()
				dumpSerial()
				fmt.Printf("\nDone: mcycles=%d elapsed=%s\n", i+1, time.Since(start).Truncate(time.Millisecond))
				os.Exit(1)
			}
		} else if *until != "" {
			if strings.Contains(strings.ToLower(ser.String()), strings.ToLower(*until)) {
				fmt.Printf("\nDetected '%s' in serial output.\n", *until)
				fmt.Printf("\nDone: mcycles=%d elapsed=%s\n", i+1, time.Since(start).Truncate(time.Millisecond))
				return
			}
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			fmt.Printf("\nTimeout after %s.\n", time.Since(start).Truncate(time.Millisecond))
			fmt.Printf("\nDone: mcycles=%d elapsed=%s\n", i+1, time.Since(start).Truncate(time.Millisecond))
			os.Exit(2)
		}
	}
}
