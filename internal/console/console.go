/*
Copyright 2024 Tim St. Pierre
Line oriented commands for driving a display interactively
*/
package console

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	log "github.com/sirupsen/logrus"

	"github.com/tstpierre-tc/lcdtwi"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("bad arguments")
	errQuit           = errors.New("quit")
)

// Display is the part of *lcdtwi.Dev the console drives.
type Display interface {
	Clear() error
	Home() error
	SetCursor(col, row uint8) error
	Display() error
	NoDisplay() error
	Cursor() error
	NoCursor() error
	Blink() error
	NoBlink() error
	SetBacklight(on bool) error
	ScrollDisplayLeft() error
	ScrollDisplayRight() error
	LeftToRight() error
	RightToLeft() error
	Autoscroll() error
	NoAutoscroll() error
	CreateChar(slot uint8, rows [8]byte) error
	Command(value byte) error
	WriteByte(value byte) error
	WriteString(s string) (int, error)
	State() lcdtwi.State
}

// LineReader is satisfied by *readline.Instance.
type LineReader interface {
	Readline() (string, error)
}

type command struct {
	usage string
	help  string
	run   func(c *Console, args []string) error
}

var commands map[string]command

var aliases = map[string]string{
	"goto": "cursor",
	"?":    "help",
	"exit": "quit",
}

func init() {
	commands = map[string]command{
		"clear": {"clear", "erase the display", noArgs(Display.Clear)},
		"home":  {"home", "cursor to origin, undo scrolling", noArgs(Display.Home)},
		"cursor": {"cursor <col> <row>", "move the cursor", func(c *Console, args []string) error {
			if len(args) != 2 {
				return ErrUsage
			}
			col, err := parseByte(args[0])
			if err != nil {
				return err
			}
			row, err := parseByte(args[1])
			if err != nil {
				return err
			}
			return c.d.SetCursor(col, row)
		}},
		"display":    {"display on|off", "show or blank the text", onOff(Display.Display, Display.NoDisplay)},
		"underline":  {"underline on|off", "underline cursor", onOff(Display.Cursor, Display.NoCursor)},
		"blink":      {"blink on|off", "blinking block cursor", onOff(Display.Blink, Display.NoBlink)},
		"autoscroll": {"autoscroll on|off", "shift the display as characters arrive", onOff(Display.Autoscroll, Display.NoAutoscroll)},
		"backlight": {"backlight on|off", "switch the backlight", onOff(
			func(d Display) error { return d.SetBacklight(true) },
			func(d Display) error { return d.SetBacklight(false) })},
		"scroll": {"scroll left|right", "shift the visible window", choice(map[string]func(Display) error{
			"left":  Display.ScrollDisplayLeft,
			"right": Display.ScrollDisplayRight,
		})},
		"direction": {"direction ltr|rtl", "text direction", choice(map[string]func(Display) error{
			"ltr": Display.LeftToRight,
			"rtl": Display.RightToLeft,
		})},
		"glyph": {"glyph <slot> <r0> .. <r7>", "program a custom character", func(c *Console, args []string) error {
			if len(args) != 9 {
				return ErrUsage
			}
			slot, err := parseByte(args[0])
			if err != nil {
				return err
			}
			var rows [8]byte
			for i := range rows {
				if rows[i], err = parseByte(args[i+1]); err != nil {
					return err
				}
			}
			return c.d.CreateChar(slot, rows)
		}},
		"cmd":  {"cmd <byte>", "send a raw instruction", oneByte(Display.Command)},
		"data": {"data <byte>", "send a raw character code", oneByte(Display.WriteByte)},
		"print": {"print <text>", "write text at the cursor", func(c *Console, args []string) error {
			_, err := c.d.WriteString(strings.Join(args, " "))
			return err
		}},
		"state": {"state", "show the driver state", func(c *Console, args []string) error {
			fmt.Fprintln(c.out, c.d.State())
			return nil
		}},
		"help": {"help", "list commands", func(c *Console, args []string) error {
			c.printHelp()
			return nil
		}},
		"quit": {"quit", "leave the console", func(c *Console, args []string) error {
			return errQuit
		}},
	}
}

type Console struct {
	d   Display
	out io.Writer
	log log.FieldLogger
}

func New(d Display, out io.Writer, logger log.FieldLogger) *Console {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Console{d: d, out: out, log: logger}
}

// Exec runs one command line. Blank lines and lines starting with # are
// ignored.
func (c *Console) Exec(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return nil
	}
	name := strings.ToLower(fields[0])
	if a, ok := aliases[name]; ok {
		name = a
	}
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownCommand, fields[0])
	}
	c.log.WithField("line", line).Debug("Console command")
	if err := cmd.run(c, fields[1:]); err != nil {
		if errors.Is(err, ErrUsage) {
			return fmt.Errorf("%w, usage: %s", err, cmd.usage)
		}
		return err
	}
	return nil
}

// Run executes lines from r until quit, EOF or a read error. Command errors
// are printed and do not stop the loop.
func (c *Console) Run(r LineReader) error {
	for {
		line, err := r.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := c.Exec(line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
	}
}

func (c *Console) printHelp() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(c.out, "  %-28s %s\n", commands[name].usage, commands[name].help)
	}
}

// Completer offers the command names to readline.
func Completer() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(commands))
	for name := range commands {
		items = append(items, readline.PcItem(name))
	}
	return readline.NewPrefixCompleter(items...)
}

func noArgs(f func(Display) error) func(*Console, []string) error {
	return func(c *Console, args []string) error {
		if len(args) != 0 {
			return ErrUsage
		}
		return f(c.d)
	}
}

func onOff(on, off func(Display) error) func(*Console, []string) error {
	return choice(map[string]func(Display) error{"on": on, "off": off})
}

func choice(opts map[string]func(Display) error) func(*Console, []string) error {
	return func(c *Console, args []string) error {
		if len(args) != 1 {
			return ErrUsage
		}
		f, ok := opts[strings.ToLower(args[0])]
		if !ok {
			return ErrUsage
		}
		return f(c.d)
	}
}

func oneByte(f func(Display, byte) error) func(*Console, []string) error {
	return func(c *Console, args []string) error {
		if len(args) != 1 {
			return ErrUsage
		}
		v, err := parseByte(args[0])
		if err != nil {
			return err
		}
		return f(c.d, v)
	}
}

// parseByte accepts any Go integer literal from 0 to 255.
func parseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a byte", ErrUsage, s)
	}
	return byte(v), nil
}
