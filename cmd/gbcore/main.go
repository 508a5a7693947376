// Command gbcore is a headless CPU runner: it drives a ROM with no PPU
// front end attached, watching the serial port for the "Passed"/"Failed"
// markers Blargg-style test ROMs report, the way a CI job would.
package main

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/fennwood/dmgcore/internal/bus"
	"github.com/fennwood/dmgcore/internal/cpu"
	"github.com/urfave/cli/v2"
)

type ringWriter struct {
	buf []byte
	pos int
	n   int
}

func newRingWriter(size int) *ringWriter {
	if size < 256 {
		size = 256
	}
	return &ringWriter{buf: make([]byte, size)}
}

func (r *ringWriter) Write(p []byte) (int, error) {
	for _, ch := range p {
		r.buf[r.pos] = ch
		r.pos = (r.pos + 1) % len(r.buf)
		if r.n < len(r.buf) {
			r.n++
		}
	}
	return len(p), nil
}

func (r *ringWriter) String() string {
	if r.n == 0 {
		return ""
	}
	start := (r.pos - r.n + len(r.buf)) % len(r.buf)
	out := make([]byte, 0, r.n)
	for i := 0; i < r.n; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return string(out)
}

var (
	failRe  = regexp.MustCompile(`(?i)failed\s+(\d+)\s+tests?`)
	stageRe = regexp.MustCompile(`\b(\d{2}:\d{2})\b`)
)

func main() {
	app := &cli.App{
		Name:  "gbcore",
		Usage: "headless CPU/bus test runner, driven over the serial port",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "rom", Required: true, Usage: "path to ROM (.gb)"},
			&cli.IntFlag{Name: "steps", Value: 5_000_000, Usage: "max CPU steps to run"},
			&cli.IntFlag{Name: "pc", Value: 0x0100, Usage: "initial PC value"},
			&cli.BoolFlag{Name: "trace", Usage: "print PC/opcode/register trace"},
			&cli.StringFlag{Name: "until", Value: "Passed", Usage: "stop when serial output contains this substring; empty disables"},
			&cli.BoolFlag{Name: "auto", Usage: "auto-detect Passed/Failed in serial output and exit 0/1"},
			&cli.DurationFlag{Name: "timeout", Usage: "optional wall-clock timeout, e.g. 30s; 0 disables"},
			&cli.IntFlag{Name: "serial-window", Value: 8192, Usage: "bytes of recent serial output retained for diagnostics"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	rom, err := os.ReadFile(c.String("rom"))
	if err != nil {
		return fmt.Errorf("read rom: %w", err)
	}

	b := bus.New(rom)
	var ser bytes.Buffer
	serRing := newRingWriter(c.Int("serial-window"))
	until, auto := c.String("until"), c.Bool("auto")
	if until != "" || auto {
		b.SetSerialWriter(io.MultiWriter(os.Stdout, &ser, serRing))
	} else {
		b.SetSerialWriter(os.Stdout)
	}

	cp := cpu.New(b)
	cp.ResetNoBoot()
	cp.SetPC(uint16(c.Int("pc")))

	start := time.Now()
	var deadline time.Time
	if d := c.Duration("timeout"); d > 0 {
		deadline = start.Add(d)
	}

	lastStage := ""
	trace := c.Bool("trace")
	var cycles int
	steps := c.Int("steps")
	for i := 0; i < steps; i++ {
		pc := cp.PC
		cyc := cp.Step()
		cycles += cyc
		if trace {
			fmt.Printf("PC=%04X cyc=%d A=%02X F=%02X B=%02X C=%02X D=%02X E=%02X H=%02X L=%02X SP=%04X IME=%t\n",
				pc, cyc, cp.A, cp.F, cp.B, cp.C, cp.D, cp.E, cp.H, cp.L, cp.SP, cp.IME())
		}
		if auto {
			s := ser.String()
			if mm := stageRe.FindAllString(s, -1); len(mm) > 0 {
				lastStage = mm[len(mm)-1]
			}
			if strings.Contains(strings.ToLower(s), "passed") {
				report("Detected PASS in serial output.", lastStage, i, cycles, start)
				os.Exit(0)
			}
			if m := failRe.FindStringSubmatch(s); m != nil {
				report(fmt.Sprintf("Detected %s in serial output.", m[0]), lastStage, i, cycles, start)
				fmt.Printf("\n--- recent serial ---\n%s\n--- end serial ---\n", serRing.String())
				os.Exit(1)
			}
		} else if until != "" && strings.Contains(strings.ToLower(ser.String()), strings.ToLower(until)) {
			fmt.Printf("\nDetected %q in serial output.\n", until)
			report("", "", i, cycles, start)
			return nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			fmt.Printf("\nTimeout after %s.\n", time.Since(start).Truncate(time.Millisecond))
			report("", "", i, cycles, start)
			os.Exit(2)
		}
	}
	report("", "", steps, cycles, start)
	return nil
}

func report(msg, lastStage string, steps, cycles int, start time.Time) {
	if msg != "" {
		fmt.Printf("\n%s\n", msg)
	}
	if lastStage != "" {
		fmt.Printf("Last stage seen: %s\n", lastStage)
	}
	fmt.Printf("\nDone: steps=%d cycles~=%d elapsed=%s\n", steps, cycles, time.Since(start).Truncate(time.Millisecond))
}
