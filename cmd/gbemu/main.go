// Command gbemu is the windowed DMG front end: it opens an ebiten window,
// wires keyboard input and audio playback around a core Machine, and
// optionally runs headless for scripted screenshot/checksum testing.
package main

import (
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"log"
	"os"
	"strings"
	"time"

	"github.com/fennwood/dmgcore/internal/cart"
	"github.com/fennwood/dmgcore/internal/emu"
	"github.com/fennwood/dmgcore/internal/ui"
	"github.com/urfave/cli/v2"
)

func runHeadless(m *emu.Machine, frames int, pngPath, expectCRC string) error {
	if frames <= 0 {
		frames = 1
	}
	start := time.Now()
	for i := 0; i < frames; i++ {
		m.StepFrame()
	}
	dur := time.Since(start)

	fb := m.Framebuffer()
	crc := crc32.ChecksumIEEE(fb)
	fps := float64(frames) / dur.Seconds()
	log.Printf("headless: frames=%d elapsed=%s fps=%.2f fb_crc32=%08x",
		frames, dur.Truncate(time.Millisecond), fps, crc)

	if pngPath != "" {
		if err := saveFramePNG(fb, 160, 144, pngPath); err != nil {
			return fmt.Errorf("write PNG: %w", err)
		}
		log.Printf("wrote %s", pngPath)
	}
	if expectCRC != "" {
		want := strings.TrimPrefix(strings.ToLower(expectCRC), "0x")
		if got := fmt.Sprintf("%08x", crc); got != want {
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

func main() {
	app := &cli.App{
		Name:  "gbemu",
		Usage: "windowed DMG emulator front end",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "rom", Usage: "path to ROM (.gb)"},
			&cli.IntFlag{Name: "scale", Value: 3, Usage: "window scale"},
			&cli.StringFlag{Name: "title", Value: "gbemu", Usage: "window title"},
			&cli.BoolFlag{Name: "save", Value: true, Usage: "persist battery RAM to ROM.sav on exit and load on start"},
			&cli.BoolFlag{Name: "headless", Usage: "run without a window"},
			&cli.IntFlag{Name: "frames", Value: 300, Usage: "frames to run in headless mode"},
			&cli.StringFlag{Name: "outpng", Usage: "write last framebuffer to PNG at path"},
			&cli.StringFlag{Name: "expect", Usage: "assert framebuffer CRC32 (hex)"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	romPath := c.String("rom")
	m := emu.New(emu.Config{})

	var savPath string
	if romPath != "" {
		if rom, err := os.ReadFile(romPath); err == nil {
			if h, err := cart.ParseHeader(rom); err == nil {
				log.Printf("ROM: %q type=%s banks=%d ram=%dB", h.Title, h.CartTypeStr, h.ROMBanks, h.RAMSizeBytes)
			}
			if err := m.LoadCartridge(rom); err != nil {
				return fmt.Errorf("load cart: %w", err)
			}
			_ = m.LoadROMFromFile(romPath)
		} else {
			return fmt.Errorf("read rom: %w", err)
		}
		if c.Bool("save") {
			savPath = strings.TrimSuffix(romPath, ".gb") + ".sav"
			if data, err := os.ReadFile(savPath); err == nil {
				if m.LoadBattery(data) {
					log.Printf("loaded save RAM: %s (%d bytes)", savPath, len(data))
				}
			}
		}
	}

	if c.Bool("headless") {
		if err := runHeadless(m, c.Int("frames"), c.String("outpng"), c.String("expect")); err != nil {
			return err
		}
		return persistBattery(m, savPath)
	}

	uiCfg := ui.Config{Title: c.String("title"), Scale: c.Int("scale")}
	a := ui.NewApp(uiCfg, m)
	if err := a.Run(); err != nil {
		return err
	}
	a.SaveSettings()
	if savPath == "" && m.ROMPath() != "" && strings.HasSuffix(strings.ToLower(m.ROMPath()), ".gb") {
		savPath = strings.TrimSuffix(m.ROMPath(), ".gb") + ".sav"
	}
	return persistBattery(m, savPath)
}

func persistBattery(m *emu.Machine, savPath string) error {
	if savPath == "" {
		return nil
	}
	data, ok := m.SaveBattery()
	if !ok {
		return nil
	}
	if err := os.WriteFile(savPath, data, 0644); err != nil {
		return err
	}
	log.Printf("wrote %s", savPath)
	return nil
}
