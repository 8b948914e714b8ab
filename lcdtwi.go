/*
Copyright 2024 Tim St. Pierre
Controls an HD44780 character LCD through an MCP23008 I2C backpack
*/
package lcdtwi

import (
	"encoding/binary"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/mmr"
)

const (
	delayPowerOn = 50 * time.Millisecond
	delaySettle  = 5 * time.Millisecond
	delayClear   = 2 * time.Millisecond
)

// resetBursts is the software reset from the HD44780 datasheet (figure 24),
// sent as raw expander words: three 0011 nibbles then 0010, each strobed,
// with the backlight line high.
var resetBursts = [...]byte{0x9C, 0x98, 0x9C, 0x98, 0x9C, 0x98, 0x94, 0x90}

// rowOffsets are the DDRAM addresses of the first column of each row.
var rowOffsets = [4]byte{0x00, 0x40, 0x14, 0x54}

type Dev struct {
	c       mmr.Dev8
	addr    uint8
	i2cAddr uint16
	opts    Opts
	log     log.FieldLogger
	sleep   func(time.Duration)

	function Function
	control  Control
	entry    EntryMode
	cols     uint8
	lines    uint8
	line     uint8
	// Last word acknowledged by the expander output register. The register
	// is write only and fully overwritten by every burst; State reports it.
	out byte
}

func (d *Dev) String() string {
	return fmt.Sprintf("lcdtwi{%s}", d.c.Conn)
}

// New returns a device on the backpack with jumper address opts.Addr. Nothing
// is sent on the bus; call Init before anything else.
//
// Use default options if nil is used.
func New(b i2c.Bus, opts *Opts) *Dev {
	if opts == nil {
		opts = &DefaultOpts
	}
	addr, i2cAddr := opts.busAddr()
	return &Dev{
		c:        mmr.Dev8{Conn: &i2c.Dev{Bus: b, Addr: i2cAddr}, Order: binary.LittleEndian},
		addr:     addr,
		i2cAddr:  i2cAddr,
		opts:     *opts,
		log:      opts.logger().WithField("addr", fmt.Sprintf("%#x", i2cAddr)),
		sleep:    time.Sleep,
		function: Function{},
		lines:    1,
	}
}

// NewI2C returns a device that has been initialised with the geometry in opts.
//
// Use default options if nil is used.
func NewI2C(b i2c.Bus, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	d := New(b, opts)
	if err := d.Init(opts.Cols, opts.Lines, opts.TallFont); err != nil {
		return nil, err
	}
	return d, nil
}

// Addr returns the backpack jumper address, 0-7.
func (d *Dev) Addr() uint8 {
	return d.addr
}

// Init resets the controller into 4 bit mode and sets it up for the given
// geometry. The controller may be in any state when this is called, it is
// not assumed to have seen a power cycle. cols is informational only. The
// 5x10 font is only available on single line displays.
func (d *Dev) Init(cols, lines uint8, tallFont bool) error {
	d.log.WithFields(log.Fields{"cols": cols, "lines": lines, "tall": tallFont}).Debug("Initialising display")
	d.sleep(delayPowerOn)

	if err := d.configure(); err != nil {
		return err
	}

	if lines == 0 {
		lines = 1
	}
	d.cols = cols
	d.lines = lines
	d.line = 0
	d.function = Function{
		TwoLine:  lines > 1,
		TallFont: tallFont && lines == 1,
	}

	for _, b := range resetBursts {
		if err := d.burst(b); err != nil {
			return err
		}
	}
	d.sleep(delaySettle)

	// The first function set can be lost while the controller settles.
	for i := 0; i < 2; i++ {
		if err := d.command(d.function.bits()); err != nil {
			return err
		}
		d.sleep(delaySettle)
	}

	d.control = Control{Display: true}
	if err := d.writeControl(); err != nil {
		return err
	}
	if err := d.Clear(); err != nil {
		return err
	}
	d.entry = EntryMode{LeftToRight: true}
	if err := d.writeEntryMode(); err != nil {
		return err
	}
	return d.SetBacklight(true)
}

// Halt blanks the screen and turns off the backlight.
func (d *Dev) Halt() error {
	if err := d.Clear(); err != nil {
		return err
	}
	return d.SetBacklight(false)
}

// Clear erases the display and moves the cursor to the origin.
func (d *Dev) Clear() error {
	if err := d.command(CMD_Clear_Display); err != nil {
		return err
	}
	d.line = 0
	d.sleep(delayClear)
	return nil
}

// Home moves the cursor to the origin and undoes any display shift.
func (d *Dev) Home() error {
	if err := d.command(CMD_Return_Home); err != nil {
		return err
	}
	d.line = 0
	d.sleep(delayClear)
	return nil
}

// SetCursor moves the cursor to col, row. Both count from 0. Rows past the
// last line land on the last line.
func (d *Dev) SetCursor(col, row uint8) error {
	last := d.lines - 1
	if last >= uint8(len(rowOffsets)) {
		last = uint8(len(rowOffsets)) - 1
	}
	if row > last {
		row = last
	}
	if err := d.command(CMD_DDRAM_Set | (col + rowOffsets[row])); err != nil {
		return err
	}
	d.line = row
	return nil
}

func (d *Dev) Display() error {
	return d.setControl(func(c *Control) { c.Display = true })
}

func (d *Dev) NoDisplay() error {
	return d.setControl(func(c *Control) { c.Display = false })
}

// Cursor shows the underline cursor.
func (d *Dev) Cursor() error {
	return d.setControl(func(c *Control) { c.Cursor = true })
}

func (d *Dev) NoCursor() error {
	return d.setControl(func(c *Control) { c.Cursor = false })
}

// Blink turns on the blinking block cursor.
func (d *Dev) Blink() error {
	return d.setControl(func(c *Control) { c.Blink = true })
}

func (d *Dev) NoBlink() error {
	return d.setControl(func(c *Control) { c.Blink = false })
}

// SetBacklight switches the backlight. Only the expander output changes, the
// controller sees no command.
func (d *Dev) SetBacklight(on bool) error {
	d.control.Backlight = on
	d.log.WithField("backlight", on).Debug("Writing backlight")
	return d.burst(pinInterpret(BACKLIGHT, 0x00, on))
}

// ScrollDisplayLeft shifts the visible window without touching DDRAM.
func (d *Dev) ScrollDisplayLeft() error {
	return d.command(CMD_Cursor_Display_Shift | OPT_Display_Shift)
}

// ScrollDisplayRight shifts the visible window without touching DDRAM.
func (d *Dev) ScrollDisplayRight() error {
	return d.command(CMD_Cursor_Display_Shift | OPT_Display_Shift | OPT_Shift_Right)
}

func (d *Dev) LeftToRight() error {
	return d.setEntryMode(func(e *EntryMode) { e.LeftToRight = true })
}

func (d *Dev) RightToLeft() error {
	return d.setEntryMode(func(e *EntryMode) { e.LeftToRight = false })
}

// Autoscroll shifts the display on every character, right justifying text
// at the cursor.
func (d *Dev) Autoscroll() error {
	return d.setEntryMode(func(e *EntryMode) { e.Autoscroll = true })
}

func (d *Dev) NoAutoscroll() error {
	return d.setEntryMode(func(e *EntryMode) { e.Autoscroll = false })
}

// CreateChar programs one of the 8 CGRAM glyphs. slot is masked to 0-7 and
// each row uses the low 5 bits. The glyph is shown by writing byte slot.
// CGRAM addressing leaves the cursor in CGRAM; call SetCursor, Clear or
// Home before writing text again.
func (d *Dev) CreateChar(slot uint8, rows [8]byte) error {
	slot &= 0x7
	if err := d.command(CMD_CGRAM_Set | slot<<3); err != nil {
		return err
	}
	for _, r := range rows {
		if err := d.send(r, modeData); err != nil {
			return err
		}
	}
	return nil
}

// Command sends a raw controller instruction.
func (d *Dev) Command(value byte) error {
	return d.command(value)
}

// WriteByte sends one character code to the current DDRAM or CGRAM address.
func (d *Dev) WriteByte(value byte) error {
	return d.send(value, modeData)
}

// Write sends buf as raw character codes. It implements io.Writer.
func (d *Dev) Write(buf []byte) (int, error) {
	for i, c := range buf {
		if err := d.send(c, modeData); err != nil {
			return i, err
		}
	}
	return len(buf), nil
}

func (d *Dev) WriteString(s string) (int, error) {
	return d.Write([]byte(s))
}

// Line returns the row of the last SetCursor, or 0 after Clear and Home. The
// controller's own address counter is not read back.
func (d *Dev) Line() uint8 {
	return d.line
}

func (d *Dev) Cols() uint8 {
	return d.cols
}

func (d *Dev) Lines() uint8 {
	return d.lines
}

func (d *Dev) State() State {
	return State{
		Function:  d.function,
		Control:   d.control,
		EntryMode: d.entry,
		Lines:     d.lines,
		Line:      d.line,
		Output:    d.out,
	}
}

func (d *Dev) setControl(f func(*Control)) error {
	f(&d.control)
	return d.writeControl()
}

func (d *Dev) writeControl() error {
	d.log.WithField("control", fmt.Sprintf("%+v", d.control)).Debug("Writing display switch")
	return d.command(d.control.bits())
}

func (d *Dev) setEntryMode(f func(*EntryMode)) error {
	f(&d.entry)
	return d.writeEntryMode()
}

func (d *Dev) writeEntryMode() error {
	d.log.WithField("entry", fmt.Sprintf("%+v", d.entry)).Debug("Writing entry mode")
	return d.command(d.entry.bits())
}

var _ conn.Resource = &Dev{}
