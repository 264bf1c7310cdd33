// Package config reads cpufreqctl's settings from the environment. Values
// can also come from .env files; variables already set in the environment
// win over the files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/Jon-Bright/cpufreqctl/cpufreq"
	"github.com/joho/godotenv"
)

const (
	EnvBase        = "CPUFREQCTL_BASE"
	EnvSim         = "CPUFREQCTL_SIM"
	EnvJournal     = "CPUFREQCTL_JOURNAL"
	EnvPort        = "CPUFREQCTL_PORT"
	EnvHTTP        = "CPUFREQCTL_HTTP"
	EnvTimeout     = "CPUFREQCTL_TIMEOUT"
	EnvInterval    = "CPUFREQCTL_INTERVAL"
	EnvStableReads = "CPUFREQCTL_STABLE_READS"
	EnvForceBits   = "CPUFREQCTL_FORCE_BITS"
	EnvBoost       = "CPUFREQCTL_BOOST"
)

// DefaultEnvFile is loaded if it exists and no other files are named.
const DefaultEnvFile = ".env"

type Config struct {
	// Base is the clock manager's physical address. Zero means detect it
	// from the device tree.
	Base uint64
	// Sim runs against a simulated clock manager instead of /dev/mem.
	Sim bool
	// Journal is the SQLite transition journal. Empty disables it.
	Journal string
	// Port is the line-protocol control server's TCP port.
	Port int
	// HTTP is the monitor's listen address. Empty disables it.
	HTTP        string
	Timeout     time.Duration
	Interval    time.Duration
	StableReads int
	// ForceBits are ORed into every VCO write.
	ForceBits uint32
	// Boost enables the boost operating points at start-up.
	Boost bool
}

// Default is the configuration with nothing set.
func Default() Config {
	return Config{
		Port:        24601,
		HTTP:        "localhost:24602",
		Timeout:     cpufreq.DefaultWaitPolicy.Timeout,
		Interval:    cpufreq.DefaultWaitPolicy.Interval,
		StableReads: cpufreq.DefaultWaitPolicy.StableReads,
	}
}

// Load loads files into the environment and reads the configuration from
// it. With no files, DefaultEnvFile is loaded if it exists.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		err := godotenv.Load(DefaultEnvFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("couldn't load %s: %v", DefaultEnvFile, err)
		}
	} else {
		err := godotenv.Load(files...)
		if err != nil {
			return Config{}, fmt.Errorf("couldn't load %v: %v", files, err)
		}
	}
	return FromEnv()
}

// FromEnv reads the configuration from the environment only.
func FromEnv() (Config, error) {
	c := Default()
	var err error
	if s, ok := os.LookupEnv(EnvBase); ok {
		c.Base, err = strconv.ParseUint(s, 0, 64)
		if err != nil {
			return Config{}, envErr(EnvBase, s, err)
		}
	}
	if s, ok := os.LookupEnv(EnvSim); ok {
		c.Sim, err = strconv.ParseBool(s)
		if err != nil {
			return Config{}, envErr(EnvSim, s, err)
		}
	}
	if s, ok := os.LookupEnv(EnvJournal); ok {
		c.Journal = s
	}
	if s, ok := os.LookupEnv(EnvPort); ok {
		c.Port, err = strconv.Atoi(s)
		if err != nil {
			return Config{}, envErr(EnvPort, s, err)
		}
	}
	if s, ok := os.LookupEnv(EnvHTTP); ok {
		c.HTTP = s
	}
	if s, ok := os.LookupEnv(EnvTimeout); ok {
		c.Timeout, err = time.ParseDuration(s)
		if err != nil {
			return Config{}, envErr(EnvTimeout, s, err)
		}
	}
	if s, ok := os.LookupEnv(EnvInterval); ok {
		c.Interval, err = time.ParseDuration(s)
		if err != nil {
			return Config{}, envErr(EnvInterval, s, err)
		}
	}
	if s, ok := os.LookupEnv(EnvStableReads); ok {
		c.StableReads, err = strconv.Atoi(s)
		if err != nil {
			return Config{}, envErr(EnvStableReads, s, err)
		}
	}
	if s, ok := os.LookupEnv(EnvForceBits); ok {
		v, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return Config{}, envErr(EnvForceBits, s, err)
		}
		c.ForceBits = uint32(v)
	}
	if s, ok := os.LookupEnv(EnvBoost); ok {
		c.Boost, err = strconv.ParseBool(s)
		if err != nil {
			return Config{}, envErr(EnvBoost, s, err)
		}
	}
	return c, c.Validate()
}

func envErr(name, value string, err error) error {
	return fmt.Errorf("couldn't parse %s=%q: %v", name, value, err)
}

// Validate checks the values make sense together.
func (c Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("negative timeout %v", c.Timeout)
	}
	if c.Interval < 0 {
		return fmt.Errorf("negative poll interval %v", c.Interval)
	}
	if c.StableReads < 1 {
		return fmt.Errorf("need at least one stable lock read, got %d", c.StableReads)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	return nil
}

// WaitPolicy is the driver wait policy the configuration describes.
func (c Config) WaitPolicy() cpufreq.WaitPolicy {
	return cpufreq.WaitPolicy{
		Timeout:     c.Timeout,
		Interval:    c.Interval,
		StableReads: c.StableReads,
	}
}
