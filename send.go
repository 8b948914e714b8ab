/*
Copyright 2024 Tim St. Pierre
4 bit transfer of command and data bytes through the expander
*/
package lcdtwi

import log "github.com/sirupsen/logrus"

type writeMode bool

const (
	modeCommand writeMode = false
	modeData    writeMode = true
)

func (m writeMode) String() string {
	if m == modeData {
		return "data"
	}
	return "command"
}

// word builds the expander output for one nibble with EN high. The
// backlight bit is taken from the current state on every call.
func (d *Dev) word(nibble byte, mode writeMode) byte {
	var data byte
	for i, pin := range dataPins {
		data = pinInterpret(pin, data, (nibble>>i)&0x01 == 0x01)
	}
	data = pinInterpret(RS, data, bool(mode))
	data = pinInterpret(EN, data, true)
	return pinInterpret(BACKLIGHT, data, d.control.Backlight)
}

// send clocks value into the controller high nibble first. Each nibble is
// presented with EN high and latched by the following write with EN low.
// The bus transactions themselves are longer than the enable pulse width so
// no extra delay is needed.
func (d *Dev) send(value byte, mode writeMode) error {
	d.log.WithFields(log.Fields{"mode": mode, "value": value}).Tracef("Writing %08b 0x%02x", value, value)
	for _, nibble := range [2]byte{value >> 4, value & 0x0F} {
		data := d.word(nibble, mode)
		if err := d.burst(data); err != nil {
			return err
		}
		if err := d.burst(pinInterpret(EN, data, false)); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dev) command(value byte) error {
	return d.send(value, modeCommand)
}

func pinInterpret(pin, data byte, value bool) byte {
	mask := byte(0x01) << pin
	if value {
		return data | mask
	}
	return data &^ mask
}
