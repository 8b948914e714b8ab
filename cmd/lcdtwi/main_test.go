/*
Copyright 2024 Tim St. Pierre
*/
package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tstpierre-tc/lcdtwi"
	"github.com/tstpierre-tc/lcdtwi/internal/bustrace"
	"github.com/tstpierre-tc/lcdtwi/internal/config"
)

func parse(t *testing.T, args ...string) (config.Config, error) {
	t.Helper()
	var f flags
	fs := newFlagSet(&f)
	fs.SetOutput(io.Discard)
	require.NoError(t, fs.Parse(args))
	return loadConfig(&f, fs)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := parse(t)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoadConfigFlags(t *testing.T) {
	cfg, err := parse(t, "-bus", "1", "-addr", "4", "-cols", "20", "-rows", "4",
		"-attempts", "3", "-timeout", "20ms", "-log-level", "debug")
	require.NoError(t, err)
	assert.Equal(t, "1", cfg.Bus)
	assert.Equal(t, uint8(4), cfg.Addr)
	assert.Equal(t, uint8(20), cfg.Cols)
	assert.Equal(t, uint8(4), cfg.Rows)
	assert.Equal(t, 3, cfg.Retry.Attempts)
	assert.Equal(t, 20*time.Millisecond, cfg.Retry.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigFileThenFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lcd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: 2\nrows: 1\ntall_font: true\n"), 0o644))
	cfg, err := parse(t, "-config", path, "-addr", "6")
	require.NoError(t, err)
	assert.Equal(t, uint8(6), cfg.Addr)
	assert.Equal(t, uint8(1), cfg.Rows)
	assert.True(t, cfg.TallFont)
}

func TestLoadConfigInvalid(t *testing.T) {
	_, err := parse(t, "-addr", "300")
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestDryRunTraceReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.cbor")
	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{"-dry-run", "-addr", "1", "-halt", "-trace", path, "Hi", "there"}, &stdout, &stderr))

	in, err := os.Open(path)
	require.NoError(t, err)
	events, err := bustrace.Decode(in)
	in.Close()
	require.NoError(t, err)
	require.NotEmpty(t, events)
	for _, e := range events {
		assert.Equal(t, uint16(0x21), e.Addr)
	}
	// Halt leaves the backlight off.
	assert.Equal(t, []byte{0x09, 0x00}, events[len(events)-1].Write)

	stdout.Reset()
	require.NoError(t, run([]string{"-replay", path}, &stdout, &stderr))
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	assert.Len(t, lines, len(events))
	assert.Contains(t, lines[0], "0x21 w=00 ff 00")
}

func TestDryRunWithoutTrace(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{"-dry-run", "-log-level", "warn", "x"}, &stdout, &stderr))
	assert.Empty(t, stderr.String())
}

func TestReplayMissingFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run([]string{"-replay", filepath.Join(t.TempDir(), "nope.cbor")}, &stdout, &stderr)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestVerify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.cbor")
	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{"-dry-run", "-addr", "1", "-halt", "-trace", path, "Hi", "there"}, &stdout, &stderr))

	stdout.Reset()
	require.NoError(t, run([]string{"-verify", path, "-addr", "1", "-halt", "Hi", "there"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "transactions match")
}

func TestVerifyMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.cbor")
	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{"-dry-run", "-trace", path, "Hi"}, &stdout, &stderr))

	stdout.Reset()
	err := run([]string{"-verify", path, "Ho"}, &stdout, &stderr)
	assert.ErrorIs(t, err, lcdtwi.ErrNotAcknowledged)
	assert.Empty(t, stdout.String())

	// Stopping short leaves recorded transactions unplayed.
	err = run([]string{"-verify", path}, &stdout, &stderr)
	assert.Error(t, err)
	assert.Empty(t, stdout.String())
}

func TestVerifyMissingFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run([]string{"-verify", filepath.Join(t.TempDir(), "nope.cbor"), "x"}, &stdout, &stderr)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRedirectRestoresOutput(t *testing.T) {
	var orig, prompt bytes.Buffer
	logger := log.New()
	logger.SetOutput(&orig)

	restore := redirect(logger, &prompt)
	logger.Warn("during")
	restore()
	logger.Warn("after")

	assert.Contains(t, prompt.String(), "during")
	assert.NotContains(t, prompt.String(), "after")
	assert.Contains(t, orig.String(), "after")
	assert.Same(t, &orig, logger.Out)
}

func TestBadFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Error(t, run([]string{"-nope"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "nope")
}

func TestClampUint8(t *testing.T) {
	assert.Equal(t, uint8(7), clampUint8(7))
	assert.Equal(t, uint8(0xFF), clampUint8(1000))
}
