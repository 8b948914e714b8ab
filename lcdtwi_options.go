/*
Copyright 2024 Tim St. Pierre
Options for an HD44780 character display behind an MCP23008 I2C backpack
*/
package lcdtwi

import (
	"time"

	log "github.com/sirupsen/logrus"
)

type Opts struct {
	// Backpack address jumpers, 0-7. The expander answers on 0x20 | Addr.
	// Larger values are clamped to 7.
	Addr uint8
	// Geometry used by NewI2C to initialise the display.
	Cols     uint8
	Lines    uint8
	TallFont bool
	// Attempts bounds how many times a bus transaction is tried before it is
	// reported as not acknowledged. Zero retries forever.
	Attempts int
	// Timeout bounds the total time spent retrying one transaction. Zero
	// means no limit.
	Timeout time.Duration
	// RetryDelay is slept between failed attempts. Zero busy-loops.
	RetryDelay time.Duration
	// Logger receives driver logs. Defaults to the logrus standard logger.
	Logger log.FieldLogger
}

var DefaultOpts = Opts{
	Addr:  0,
	Cols:  16,
	Lines: 2,
}

// busAddr returns the clamped jumper address and the 7 bit I2C address of the
// expander.
func (o *Opts) busAddr() (uint8, uint16) {
	a := o.Addr
	if a > 7 {
		a = 7
	}
	return a, mcp23008Base | uint16(a)
}

func (o *Opts) logger() log.FieldLogger {
	if o.Logger == nil {
		return log.StandardLogger()
	}
	return o.Logger
}

// bounded reports whether transactions give up at some point.
func (o *Opts) bounded() bool {
	return o.Attempts > 0 || o.Timeout > 0
}
