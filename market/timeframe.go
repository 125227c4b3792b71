package market

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeframeLabel maps a bar interval to the MT4 style label (M5, H1, D1).
func TimeframeLabel(d time.Duration) string {
	sec := int64(d / time.Second)
	switch {
	case sec <= 0:
		return d.String()
	case sec < 3600 && sec%60 == 0:
		return fmt.Sprintf("M%d", sec/60)
	case sec < 86400 && sec%3600 == 0:
		return fmt.Sprintf("H%d", sec/3600)
	case sec%86400 == 0:
		if sec/86400 == 7 {
			return "W1"
		}
		return fmt.Sprintf("D%d", sec/86400)
	}
	return d.String()
}

func ParseTimeframe(s string) (time.Duration, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "W1" {
		return 7 * 24 * time.Hour, nil
	}
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid timeframe %q", s)
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid timeframe %q", s)
	}
	switch s[0] {
	case 'M':
		return time.Duration(n) * time.Minute, nil
	case 'H':
		return time.Duration(n) * time.Hour, nil
	case 'D':
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("invalid timeframe %q", s)
}
