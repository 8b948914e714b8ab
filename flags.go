/*
Copyright 2024 Tim St. Pierre
Logical display state and its HD44780 command encoding
*/
package lcdtwi

import "fmt"

const (
	// Commands
	CMD_Clear_Display        = 0x01
	CMD_Return_Home          = 0x02
	CMD_Entry_Mode           = 0x04
	CMD_Display_Control      = 0x08
	CMD_Cursor_Display_Shift = 0x10
	CMD_Function_Set         = 0x20
	CMD_CGRAM_Set            = 0x40
	CMD_DDRAM_Set            = 0x80

	// Options
	OPT_Entry_Left     = 0x02 // CMD_Entry_Mode 0 = right to left
	OPT_Entry_Shift    = 0x01 // CMD_Entry_Mode
	OPT_Enable_Display = 0x04 // CMD_Display_Control
	OPT_Enable_Cursor  = 0x02 // CMD_Display_Control
	OPT_Enable_Blink   = 0x01 // CMD_Display_Control
	OPT_Display_Shift  = 0x08 // CMD_Cursor_Display_Shift 0 = cursor move
	OPT_Shift_Right    = 0x04 // CMD_Cursor_Display_Shift 0 = Left
	OPT_2_Lines        = 0x08 // CMD_Function_Set 0 = 1 line
	OPT_5x10_Dots      = 0x04 // CMD_Function_Set 0 = 5x8 dots
)

// Control is the display on/off control state. Backlight is not an HD44780
// bit; it rides on the expander output with every burst.
type Control struct {
	Display   bool
	Cursor    bool
	Blink     bool
	Backlight bool
}

func (c Control) bits() byte {
	b := byte(CMD_Display_Control)
	if c.Display {
		b |= OPT_Enable_Display
	}
	if c.Cursor {
		b |= OPT_Enable_Cursor
	}
	if c.Blink {
		b |= OPT_Enable_Blink
	}
	return b
}

// EntryMode controls where the cursor goes after each character.
// Autoscroll shifts the display instead of the cursor.
type EntryMode struct {
	LeftToRight bool
	Autoscroll  bool
}

func (e EntryMode) bits() byte {
	b := byte(CMD_Entry_Mode)
	if e.LeftToRight {
		b |= OPT_Entry_Left
	}
	if e.Autoscroll {
		b |= OPT_Entry_Shift
	}
	return b
}

// Function is fixed by Init. The bus is always 4 bits wide, so the 8 bit
// interface flag (0x10) is never set.
type Function struct {
	TwoLine  bool
	TallFont bool
}

func (f Function) bits() byte {
	b := byte(CMD_Function_Set)
	if f.TwoLine {
		b |= OPT_2_Lines
	}
	if f.TallFont {
		b |= OPT_5x10_Dots
	}
	return b
}

// State is a snapshot of everything the session has told the controller.
type State struct {
	Function  Function
	Control   Control
	EntryMode EntryMode
	Lines     uint8
	Line      uint8
	// Output is the last word acknowledged by the expander output register.
	Output byte
}

func (s State) String() string {
	return fmt.Sprintf("function=0x%02x control=0x%02x entry=0x%02x backlight=%t lines=%d line=%d output=0x%02x",
		s.Function.bits(), s.Control.bits(), s.EntryMode.bits(), s.Control.Backlight, s.Lines, s.Line, s.Output)
}
