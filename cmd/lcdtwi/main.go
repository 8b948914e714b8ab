/*
Copyright 2024 Tim St. Pierre
Command lcdtwi writes to an HD44780 display on an MCP23008 I2C backpack.

Usage:

	lcdtwi [flags] [line ...]

Each positional argument is written to its own display line. With -i an
interactive console is started afterwards; type help for its commands.

Examples:

	# Two lines on the default bus, backpack jumpers at 0
	lcdtwi "Hello" "World"

	# 20x4 display on bus 1, console, record every transaction
	lcdtwi -bus 1 -cols 20 -rows 4 -i -trace session.cbor

	# Show what a session sent without touching hardware
	lcdtwi -dry-run -trace out.cbor "Test" && lcdtwi -replay out.cbor

	# Check that a session still sends exactly what was recorded
	lcdtwi -verify out.cbor "Test"
*/
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/chzyer/readline"
	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/tstpierre-tc/lcdtwi"
	"github.com/tstpierre-tc/lcdtwi/internal/bustrace"
	"github.com/tstpierre-tc/lcdtwi/internal/config"
	"github.com/tstpierre-tc/lcdtwi/internal/console"
)

type flags struct {
	configFile  string
	bus         string
	addr        uint
	cols        uint
	rows        uint
	tallFont    bool
	attempts    int
	timeout     time.Duration
	logLevel    string
	interactive bool
	dryRun      bool
	halt        bool
	trace       string
	replay      string
	verify      string
}

func newFlagSet(f *flags) *flag.FlagSet {
	fs := flag.NewFlagSet("lcdtwi", flag.ContinueOnError)
	fs.StringVar(&f.configFile, "config", "", "Configuration file path")
	fs.StringVar(&f.bus, "bus", "", "I²C bus name, empty for the default bus")
	fs.UintVar(&f.addr, "addr", 0, "Backpack address jumpers, 0-7")
	fs.UintVar(&f.cols, "cols", 16, "Display columns")
	fs.UintVar(&f.rows, "rows", 2, "Display rows")
	fs.BoolVar(&f.tallFont, "tall-font", false, "Use the 5x10 font, single line displays only")
	fs.IntVar(&f.attempts, "attempts", 0, "Tries per bus transaction, 0 retries forever")
	fs.DurationVar(&f.timeout, "timeout", 0, "Time limit per bus transaction, 0 for none")
	fs.StringVar(&f.logLevel, "log-level", "info", "Log level: trace, debug, info, warn, error")
	fs.BoolVar(&f.interactive, "i", false, "Start the interactive console")
	fs.BoolVar(&f.dryRun, "dry-run", false, "Do not open a bus, acknowledge every write")
	fs.BoolVar(&f.halt, "halt", false, "Clear the display and turn off the backlight on exit")
	fs.StringVar(&f.trace, "trace", "", "Write every bus transaction to this CBOR file")
	fs.StringVar(&f.replay, "replay", "", "Print the transactions in a trace file and exit")
	fs.StringVar(&f.verify, "verify", "", "Run the lines against a trace file instead of a bus and check they match")
	return fs
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "lcdtwi:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	var f flags
	fs := newFlagSet(&f)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(&f, fs)
	if err != nil {
		return err
	}
	logger, err := cfg.Logger(stderr)
	if err != nil {
		return err
	}

	if f.replay != "" {
		return replay(f.replay, stdout)
	}
	if f.verify != "" {
		return verify(f.verify, &cfg, logger, fs.Args(), f.halt, stdout)
	}

	var bus i2c.BusCloser
	var rec *bustrace.Recorder
	if f.dryRun {
		rec = &bustrace.Recorder{}
		bus = rec
	} else {
		if bus, err = openBus(cfg.Bus); err != nil {
			return err
		}
		if f.trace != "" {
			rec = &bustrace.Recorder{Bus: bus}
			bus = rec
		}
	}
	defer bus.Close()

	opts := cfg.Opts(logger)
	dev, err := lcdtwi.NewI2C(bus, &opts)
	if err != nil {
		return err
	}
	logger.WithField("dev", dev.String()).Info("Display ready")

	if err := show(dev, fs.Args()); err != nil {
		return err
	}

	if f.interactive {
		if err := interactive(dev, logger); err != nil {
			return err
		}
	}

	if f.halt {
		if err := dev.Halt(); err != nil {
			return err
		}
	}

	if f.trace != "" {
		return saveTrace(rec, f.trace)
	}
	return nil
}

// loadConfig starts from the file given with -config, or the defaults, and
// applies the flags that were set explicitly.
func loadConfig(f *flags, fs *flag.FlagSet) (config.Config, error) {
	cfg := config.Default()
	if f.configFile != "" {
		var err error
		if cfg, err = config.Load(f.configFile); err != nil {
			return cfg, err
		}
	}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "bus":
			cfg.Bus = f.bus
		case "addr":
			cfg.Addr = clampUint8(f.addr)
		case "cols":
			cfg.Cols = clampUint8(f.cols)
		case "rows":
			cfg.Rows = clampUint8(f.rows)
		case "tall-font":
			cfg.TallFont = f.tallFont
		case "attempts":
			cfg.Retry.Attempts = f.attempts
		case "timeout":
			cfg.Retry.Timeout = f.timeout
		case "log-level":
			cfg.Log.Level = f.logLevel
		}
	})
	return cfg, cfg.Validate()
}

func openBus(name string) (i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open I²C: %w", err)
	}
	return bus, nil
}

func interactive(dev *lcdtwi.Dev, logger *log.Logger) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "lcd> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    console.Completer(),
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()
	// Keep log lines from trampling the prompt while it is up.
	defer redirect(logger, rl.Stderr())()
	c := console.New(dev, rl.Stdout(), logger)
	fmt.Fprintln(rl.Stdout(), "type help for commands, quit to leave")
	return c.Run(rl)
}

// redirect points logger at w and returns a func that puts the previous
// output back.
func redirect(logger *log.Logger, w io.Writer) func() {
	prev := logger.Out
	logger.SetOutput(w)
	return func() { logger.SetOutput(prev) }
}

func clampUint8(v uint) uint8 {
	if v > 0xFF {
		return 0xFF
	}
	return uint8(v)
}

// show writes each line at the start of its own display row.
func show(dev *lcdtwi.Dev, lines []string) error {
	for i, line := range lines {
		if err := dev.SetCursor(0, uint8(i)); err != nil {
			return err
		}
		if _, err := dev.WriteString(line); err != nil {
			return err
		}
	}
	return nil
}

func readTrace(path string) ([]bustrace.Event, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	return bustrace.Decode(in)
}

func replay(path string, stdout io.Writer) error {
	events, err := readTrace(path)
	for _, e := range events {
		fmt.Fprintln(stdout, e)
	}
	return err
}

// verify drives a fresh session with lines against the successful
// transactions recorded in path. Any difference or leftover transaction is
// an error.
func verify(path string, cfg *config.Config, logger *log.Logger, lines []string, halt bool, stdout io.Writer) error {
	events, err := readTrace(path)
	if err != nil {
		return err
	}
	bus := bustrace.Playback(events)
	opts := cfg.Opts(logger)
	// A mismatch never goes away, retrying it would block forever.
	opts.Attempts = 1
	opts.Timeout = 0
	dev, err := lcdtwi.NewI2C(bus, &opts)
	if err != nil {
		return fmt.Errorf("verify %s: %w", path, err)
	}
	if err := show(dev, lines); err != nil {
		return fmt.Errorf("verify %s: %w", path, err)
	}
	if halt {
		if err := dev.Halt(); err != nil {
			return fmt.Errorf("verify %s: %w", path, err)
		}
	}
	if err := bus.Close(); err != nil {
		return fmt.Errorf("verify %s: %w", path, err)
	}
	fmt.Fprintf(stdout, "%s: %d transactions match\n", path, bus.Count)
	return nil
}

func saveTrace(rec *bustrace.Recorder, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := rec.Save(out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
