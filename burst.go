/*
Copyright 2024 Tim St. Pierre
Raw writes to the MCP23008 port expander on the backpack
*/
package lcdtwi

import (
	"errors"
	"fmt"
	"time"
)

const (
	mcp23008Base uint16 = 0x20

	// MCP23008 registers
	REG_IODIR = 0x00
	REG_IPOL  = 0x01
	REG_GPIO  = 0x09
	REG_OLAT  = 0x0A

	// Expander pins
	RS        = 1
	EN        = 2
	D4        = 3
	D5        = 4
	D6        = 5
	D7        = 6
	BACKLIGHT = 7
)

var dataPins = [4]byte{D4, D5, D6, D7}

// ErrNotAcknowledged is returned once a bounded retry policy gives up on a
// bus transaction.
var ErrNotAcknowledged = errors.New("transaction not acknowledged")

// burst overwrites the expander output register with word. Every bit the
// caller does not set, backlight included, is driven low.
func (d *Dev) burst(word byte) error {
	if err := d.retry(func() error { return d.c.WriteUint8(REG_GPIO, word) }); err != nil {
		return err
	}
	d.out = word
	return nil
}

// configure puts the expander in a known state: a sequential write from
// IODIR sets every pin to input and zeroes IPOL through OLAT, then all pins
// become outputs.
func (d *Dev) configure() error {
	reset := make([]byte, 1+REG_OLAT+1)
	reset[0] = REG_IODIR
	reset[1] = 0xFF
	if err := d.retry(func() error { return d.c.Tx(reset, nil) }); err != nil {
		return err
	}
	return d.retry(func() error { return d.c.WriteUint8(REG_IODIR, 0x00) })
}

// retry runs tx until it succeeds. With the default options it never gives
// up; Opts.Attempts and Opts.Timeout bound it.
func (d *Dev) retry(tx func() error) error {
	var start time.Time
	if d.opts.Timeout > 0 {
		start = time.Now()
	}
	for attempt := 1; ; attempt++ {
		err := tx()
		if err == nil {
			return nil
		}
		if attempt == 1 {
			d.log.WithError(err).Warn("transaction not acknowledged, retrying")
		}
		if d.opts.bounded() &&
			((d.opts.Attempts > 0 && attempt >= d.opts.Attempts) ||
				(d.opts.Timeout > 0 && time.Since(start) >= d.opts.Timeout)) {
			d.log.WithError(err).WithField("attempts", attempt).Error("giving up on transaction")
			return fmt.Errorf("lcdtwi %#x: %w after %d attempts: %w", d.i2cAddr, ErrNotAcknowledged, attempt, err)
		}
		if d.opts.RetryDelay > 0 {
			d.sleep(d.opts.RetryDelay)
		}
	}
}
