package authcore

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseTTL parses "<n>s", "<n>m", "<n>h", "<n>d", or a bare integer number
// of seconds. n must be a non-negative integer.
func ParseTTL(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	unit := time.Second
	digits := s
	switch s[len(s)-1] {
	case 's':
		digits = s[:len(s)-1]
	case 'm':
		unit, digits = time.Minute, s[:len(s)-1]
	case 'h':
		unit, digits = time.Hour, s[:len(s)-1]
	case 'd':
		unit, digits = 24*time.Hour, s[:len(s)-1]
	}

	if digits == "" || strings.ContainsAny(digits, "+-") {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if n > int64(1<<63-1)/int64(unit) {
		return 0, fmt.Errorf("duration %q overflows", s)
	}
	return time.Duration(n) * unit, nil
}
