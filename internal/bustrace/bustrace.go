/*
Copyright 2024 Tim St. Pierre
Capture and replay of I2C transactions as CBOR trace files
*/
package bustrace

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
)

// Event is one bus transaction.
type Event struct {
	Time  time.Time `cbor:"1,keyasint"`
	Addr  uint16    `cbor:"2,keyasint"`
	Write []byte    `cbor:"3,keyasint,omitempty"`
	Read  []byte    `cbor:"4,keyasint,omitempty"`
	Err   string    `cbor:"5,keyasint,omitempty"`
}

func (e Event) String() string {
	s := fmt.Sprintf("%s %#02x w=% x", e.Time.Format("15:04:05.000000"), e.Addr, e.Write)
	if len(e.Read) != 0 {
		s += fmt.Sprintf(" r=% x", e.Read)
	}
	if e.Err != "" {
		s += " err=" + e.Err
	}
	return s
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("bustrace: encoder mode: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("bustrace: decoder mode: %v", err))
	}
}

// Encode writes events as a CBOR sequence, one item per event.
func Encode(w io.Writer, events []Event) error {
	enc := encMode.NewEncoder(w)
	for i := range events {
		if err := enc.Encode(&events[i]); err != nil {
			return fmt.Errorf("bustrace: event %d: %w", i, err)
		}
	}
	return nil
}

// Decode reads a CBOR sequence written by Encode until EOF.
func Decode(r io.Reader) ([]Event, error) {
	dec := decMode.NewDecoder(r)
	var events []Event
	for {
		var e Event
		if err := dec.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				return events, nil
			}
			return events, fmt.Errorf("bustrace: event %d: %w", len(events), err)
		}
		events = append(events, e)
	}
}

// Recorder implements i2c.BusCloser. It forwards every transaction to Bus
// and remembers it. With a nil Bus it acknowledges every write and fails
// reads, which is enough to dry run a write-only device.
type Recorder struct {
	Bus i2c.Bus

	mu     sync.Mutex
	events []Event
	now    func() time.Time
}

func (r *Recorder) String() string {
	if r.Bus == nil {
		return "bustrace"
	}
	return "bustrace(" + r.Bus.String() + ")"
}

// Tx implements i2c.Bus.
func (r *Recorder) Tx(addr uint16, w, read []byte) error {
	var err error
	if r.Bus != nil {
		err = r.Bus.Tx(addr, w, read)
	} else if len(read) != 0 {
		err = errors.New("bustrace: read unsupported without a bus")
	}
	e := Event{Time: r.timestamp(), Addr: addr}
	if len(w) != 0 {
		e.Write = append([]byte(nil), w...)
	}
	if err != nil {
		e.Err = err.Error()
	} else if len(read) != 0 {
		e.Read = append([]byte(nil), read...)
	}
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return err
}

// SetSpeed implements i2c.Bus.
func (r *Recorder) SetSpeed(f physic.Frequency) error {
	if r.Bus != nil {
		return r.Bus.SetSpeed(f)
	}
	return nil
}

// Close implements i2c.BusCloser and closes the wrapped bus if it can be.
func (r *Recorder) Close() error {
	if c, ok := r.Bus.(i2c.BusCloser); ok {
		return c.Close()
	}
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Save encodes the recorded events to w.
func (r *Recorder) Save(w io.Writer) error {
	return Encode(w, r.Events())
}

func (r *Recorder) timestamp() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

// Playback returns a bus that expects exactly the successful transactions in
// events, in order. Failed transactions are skipped since a retrying driver
// repeats them.
func Playback(events []Event) *i2ctest.Playback {
	p := &i2ctest.Playback{DontPanic: true}
	for _, e := range events {
		if e.Err != "" {
			continue
		}
		p.Ops = append(p.Ops, i2ctest.IO{Addr: e.Addr, W: e.Write, R: e.Read})
	}
	return p
}

var _ i2c.BusCloser = &Recorder{}
