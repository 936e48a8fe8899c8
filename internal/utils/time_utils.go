package utils

import (
	"strconv"
	"strings"
	"time"

	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/logger"
)

var timeUnits = []struct {
	suffix string
	unit   time.Duration
}{
	{"ms", time.Millisecond},
	{"s", time.Second},
	{"m", time.Minute},
	{"h", time.Hour},
	{"d", 24 * time.Hour},
}

// ParseStringTime parses durations such as "500ms", "10s", "5m", "48h" or
// "2d". Invalid input is logged and yields 0; an empty string yields 0.
func ParseStringTime(timeString string) time.Duration {
	timeString = strings.ToLower(strings.TrimSpace(timeString))
	if timeString == "" {
		return 0
	}
	for _, u := range timeUnits {
		cutString, found := strings.CutSuffix(timeString, u.suffix)
		if !found {
			continue
		}
		number, err := strconv.Atoi(cutString)
		if err != nil {
			continue
		}
		return time.Duration(number) * u.unit
	}
	if d, err := time.ParseDuration(timeString); err == nil {
		return d
	}
	logger.ErrorF("invalid time format: %s", timeString)
	return 0
}
