package gameboy

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
)

// findROMs recursively collects .gb files under dir.
func findROMs(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(strings.ToLower(d.Name()), ".gb") {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

// runBlargg drives rom headlessly for up to maxMCycles, watching its
// serial port for a pass/fail marker.
func runBlargg(t *testing.T, romPath string, maxMCycles int) {
	t.Helper()
	rom, err := os.ReadFile(romPath)
	if err != nil {
		t.Fatalf("read ROM: %v", err)
	}
	g, err := New(rom, nil)
	if err != nil {
		t.Fatalf("load ROM: %v", err)
	}

	var buf bytes.Buffer
	g.SetSerialWriter(&buf)

	for i := 0; i < maxMCycles; i++ {
		g.StepOneMCycle()
		out := buf.String()
		if strings.Contains(strings.ToLower(out), "passed") {
			return
		}
		if strings.Contains(strings.ToLower(out), "failed") {
			t.Fatalf("%s reported failure via serial:\n%s", filepath.Base(romPath), out)
		}
	}
	t.Fatalf("timeout waiting for serial 'Passed' in %s; last output:\n%s", filepath.Base(romPath), buf.String())
}

// TestBlargg scans testroms/blargg (or BLARGG_DIR) for .gb images and
// runs each headlessly. Opt-in via RUN_BLARGG since it needs ROMs this
// repository doesn't ship.
func TestBlargg(t *testing.T) {
	if os.Getenv("RUN_BLARGG") == "" {
		t.Skip("set RUN_BLARGG=1 and place ROMs under testroms/blargg or set BLARGG_DIR to run")
	}

	base := os.Getenv("BLARGG_DIR")
	if base == "" {
		var root string
		if _, file, _, ok := runtime.Caller(0); ok {
			dir := filepath.Dir(file)
			for {
				if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
					root = dir
					break
				}
				parent := filepath.Dir(dir)
				if parent == dir {
					break
				}
				dir = parent
			}
		}
		if root == "" {
			if wd, err := os.Getwd(); err == nil {
				root = wd
			} else {
				root = "."
			}
		}
		base = filepath.Join(root, "testroms", "blargg")
	}
	if _, err := os.Stat(base); err != nil {
		t.Skipf("blargg ROM dir missing: %s", base)
	}

	roms, err := findROMs(base)
	if err != nil {
		t.Fatalf("scan ROMs: %v", err)
	}
	if len(roms) == 0 {
		t.Skipf("no ROMs found in %s", base)
	}

	maxMCycles := 1800 * 17556 // ~1800 frames' worth of M-cycles
	if v := os.Getenv("BLARGG_MAX_MCYCLES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxMCycles = n
		}
	}

	for _, rom := range roms {
		rom := rom
		name := strings.TrimSuffix(filepath.Base(rom), filepath.Ext(rom))
		t.Run(name, func(t *testing.T) { runBlargg(t, rom, maxMCycles) })
	}
}
