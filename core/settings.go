package core

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Settings contains all configurable properties of a ping session.
type Settings struct {
	// TTL is the set IP Time to Live
	TTL int `yaml:"ttl"`

	// Count is the max amount of ECHO_REQUEST packets sent before exiting, -1 for no limit.
	Count int `yaml:"count"`

	// Deadline is the time in seconds before ping exits regardless of how many packets have been sent or received,
	// -1 for no deadline.
	Deadline int `yaml:"deadline"`

	// Timeout is the time in seconds to wait for outstanding replies once Count requests have been sent.
	Timeout int `yaml:"timeout"`

	// VerifyChecksum defines if replies with an invalid ICMP checksum are dropped.
	VerifyChecksum bool `yaml:"verify_checksum"`

	// LoggingLevel is the logrus level used by the session logger.
	LoggingLevel uint32 `yaml:"logging_level"`
}

// DefaultSettings returns the default settings for a ping session, change as you wish.
func DefaultSettings() *Settings {
	return &Settings{
		TTL:            64,
		Count:          -1,
		Deadline:       -1,
		Timeout:        10,
		VerifyChecksum: true,
		LoggingLevel:   uint32(log.WarnLevel),
	}
}

// LoadSettings reads settings from a YAML file on top of the default settings.
func LoadSettings(path string) (*Settings, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read settings file %s: %w", path, err)
	}

	settings := DefaultSettings()
	if err := yaml.Unmarshal(buf, settings); err != nil {
		return nil, fmt.Errorf("could not parse settings file %s: %w", path, err)
	}

	return settings, nil
}

func (s *Settings) validate() error {
	if s.TTL <= 0 || s.TTL > 255 {
		return fmt.Errorf("ttl %d out of range, must be between 1 and 255", s.TTL)
	}
	if s.Count == 0 || s.Count < -1 {
		return fmt.Errorf("bad number of packets to transmit: %d", s.Count)
	}
	if s.Deadline == 0 || s.Deadline < -1 {
		return fmt.Errorf("bad deadline: %d", s.Deadline)
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("bad linger time: %d", s.Timeout)
	}
	if s.LoggingLevel > uint32(log.TraceLevel) {
		return fmt.Errorf("bad logging level: %d", s.LoggingLevel)
	}

	return nil
}
