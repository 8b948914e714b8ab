/*
Copyright 2024 Tim St. Pierre
Configuration file for the lcdtwi tool
*/
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/tstpierre-tc/lcdtwi"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid value")

type Config struct {
	// Bus is the periph I²C bus name, empty for the default bus.
	Bus      string `yaml:"bus"`
	Addr     uint8  `yaml:"addr"`
	Cols     uint8  `yaml:"cols"`
	Rows     uint8  `yaml:"rows"`
	TallFont bool   `yaml:"tall_font"`
	Retry    Retry  `yaml:"retry"`
	Log      Log    `yaml:"log"`
}

// Retry maps onto the driver's transaction retry policy. The zero value
// retries forever.
type Retry struct {
	Attempts int           `yaml:"attempts"`
	Timeout  time.Duration `yaml:"timeout"`
	Delay    time.Duration `yaml:"delay"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() Config {
	return Config{
		Cols: lcdtwi.DefaultOpts.Cols,
		Rows: lcdtwi.DefaultOpts.Lines,
		Log:  Log{Level: "info", Format: "text"},
	}
}

// Load reads path on top of the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	defer f.Close()
	c, err := Decode(f)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

func Decode(r io.Reader) (Config, error) {
	c := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	return c, c.Validate()
}

func (c *Config) Validate() error {
	switch {
	case c.Addr > 7:
		return invalid("addr", c.Addr)
	case c.Cols == 0 || c.Cols > 40:
		return invalid("cols", c.Cols)
	case c.Rows == 0 || c.Rows > 4:
		return invalid("rows", c.Rows)
	case c.Retry.Attempts < 0:
		return invalid("retry.attempts", c.Retry.Attempts)
	case c.Retry.Timeout < 0:
		return invalid("retry.timeout", c.Retry.Timeout)
	case c.Retry.Delay < 0:
		return invalid("retry.delay", c.Retry.Delay)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", c.Log.Level)
	}
	if _, err := c.Formatter(); err != nil {
		return err
	}
	return nil
}

// Opts converts the configuration into driver options.
func (c *Config) Opts(logger log.FieldLogger) lcdtwi.Opts {
	return lcdtwi.Opts{
		Addr:       c.Addr,
		Cols:       c.Cols,
		Lines:      c.Rows,
		TallFont:   c.TallFont,
		Attempts:   c.Retry.Attempts,
		Timeout:    c.Retry.Timeout,
		RetryDelay: c.Retry.Delay,
		Logger:     logger,
	}
}

// Logger builds a logrus logger writing to w at the configured level and
// format.
func (c *Config) Logger(w io.Writer) (*log.Logger, error) {
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, invalid("log.level", c.Log.Level)
	}
	f, err := c.Formatter()
	if err != nil {
		return nil, err
	}
	l := log.New()
	l.SetOutput(w)
	l.SetLevel(level)
	l.SetFormatter(f)
	return l, nil
}

func (c *Config) Formatter() (log.Formatter, error) {
	switch strings.ToLower(c.Log.Format) {
	case "", "text":
		return &log.TextFormatter{FullTimestamp: true}, nil
	case "json":
		return &log.JSONFormatter{}, nil
	default:
		return nil, invalid("log.format", c.Log.Format)
	}
}

func invalid(key string, v interface{}) error {
	return fmt.Errorf("%s %v: %w", key, v, ErrInvalid)
}
