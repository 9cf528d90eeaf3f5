package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/docker/go-units"
	"github.com/dustin/go-humanize"
)

// Size is a byte count written in configuration as a number or a human
// string like "10MB" or "512k". Suffixes are binary: "1k" is 1024 bytes.
// "unlimited" and -1 mean no limit.
type Size int64

// Unlimited is the Size meaning no limit.
const Unlimited Size = -1

// ParseSize parses a human readable byte count.
func ParseSize(s string) (Size, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "unlimited", "-1":
		return Unlimited, nil
	case "":
		return 0, nil
	}
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid size %q: negative", s)
	}
	return Size(n), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, used for flags and
// string config values.
func (s *Size) UnmarshalText(text []byte) error {
	v, err := ParseSize(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// UnmarshalJSON accepts a number of bytes or a human string.
func (s *Size) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		return s.UnmarshalText([]byte(str))
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid size %s", data)
	}
	if n < -1 {
		return fmt.Errorf("invalid size %d", n)
	}
	*s = Size(n)
	return nil
}

func (s Size) String() string {
	if s < 0 {
		return "unlimited"
	}
	return humanize.IBytes(uint64(s))
}
