/*
Copyright 2024 Tim St. Pierre
*/
package bustrace

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"

	"github.com/tstpierre-tc/lcdtwi"
)

func fixedClock() func() time.Time {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return t0.Add(time.Duration(n) * time.Microsecond)
	}
}

func TestRecorderWithoutBus(t *testing.T) {
	r := &Recorder{now: fixedClock()}
	require.NoError(t, r.Tx(0x20, []byte{0x09, 0x80}, nil))
	assert.Error(t, r.Tx(0x20, []byte{0x09}, make([]byte, 1)))

	events := r.Events()
	require.Len(t, events, 2)
	assert.Equal(t, uint16(0x20), events[0].Addr)
	assert.Equal(t, []byte{0x09, 0x80}, events[0].Write)
	assert.Empty(t, events[0].Err)
	assert.NotEmpty(t, events[1].Err)
	assert.Nil(t, events[1].Read)
	assert.Equal(t, "bustrace", r.String())
	assert.NoError(t, r.Close())
}

func TestRecorderForwards(t *testing.T) {
	inner := &i2ctest.Playback{Ops: []i2ctest.IO{
		{Addr: 0x21, W: []byte{0x09}, R: []byte{0x5A}},
	}, DontPanic: true}
	r := &Recorder{Bus: inner}
	read := make([]byte, 1)
	require.NoError(t, r.Tx(0x21, []byte{0x09}, read))
	assert.Equal(t, []byte{0x5A}, read)
	assert.Equal(t, []byte{0x5A}, r.Events()[0].Read)

	assert.Error(t, r.Tx(0x21, []byte{0x0A}, nil))
	assert.NotEmpty(t, r.Events()[1].Err)
	assert.Equal(t, "bustrace(playback)", r.String())
}

func TestEncodeDecode(t *testing.T) {
	r := &Recorder{now: fixedClock()}
	for _, w := range [][]byte{{0x00, 0xFF}, {0x09, 0x84}, {0x09, 0x80}} {
		require.NoError(t, r.Tx(0x27, w, nil))
	}
	var buf bytes.Buffer
	require.NoError(t, r.Save(&buf))

	events, err := Decode(&buf)
	require.NoError(t, err)
	want := r.Events()
	require.Len(t, events, len(want))
	for i := range want {
		assert.True(t, want[i].Time.Equal(events[i].Time))
		assert.Equal(t, want[i].Addr, events[i].Addr)
		assert.Equal(t, want[i].Write, events[i].Write)
	}
}

func TestDecodeTruncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, []Event{{Addr: 0x20, Write: []byte{1, 2, 3}}}))
	b := buf.Bytes()
	events, err := Decode(bytes.NewReader(b[:len(b)-1]))
	assert.Error(t, err)
	assert.Empty(t, events)
}

func TestPlaybackSkipsFailures(t *testing.T) {
	events := []Event{
		{Addr: 0x20, Write: []byte{0x09, 0x84}, Err: "nack"},
		{Addr: 0x20, Write: []byte{0x09, 0x84}},
	}
	p := Playback(events)
	require.Len(t, p.Ops, 1)
	require.NoError(t, p.Tx(0x20, []byte{0x09, 0x84}, nil))
	assert.NoError(t, p.Close())
}

func TestReplayDriverSession(t *testing.T) {
	rec := &Recorder{}
	dev, err := lcdtwi.NewI2C(rec, &lcdtwi.Opts{Addr: 1, Cols: 16, Lines: 2})
	require.NoError(t, err)
	_, err = dev.WriteString("trace")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, rec.Save(&buf))
	events, err := Decode(&buf)
	require.NoError(t, err)

	bus := Playback(events)
	dev, err = lcdtwi.NewI2C(bus, &lcdtwi.Opts{Addr: 1, Cols: 16, Lines: 2})
	require.NoError(t, err)
	_, err = dev.WriteString("trace")
	require.NoError(t, err)
	require.NoError(t, bus.Close())
}
