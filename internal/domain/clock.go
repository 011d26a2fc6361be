package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Clock is a wall-clock time of day, stored as seconds since midnight.
type Clock int

const secondsPerDay = 24 * 60 * 60

func NewClock(hour, min int) Clock {
	return Clock(hour*3600 + min*60)
}

// ParseClock reads "HH:MM" or "HH:MM:SS". Anything after the last field
// is rejected.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	layout := "15:04"
	if strings.Count(s, ":") == 2 {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return 0, Invalid("time", "invalid time of day %q", s)
	}
	return Clock(t.Hour()*3600 + t.Minute()*60 + t.Second()), nil
}

func (c Clock) Hour() int   { return int(c) / 3600 }
func (c Clock) Minute() int { return int(c) % 3600 / 60 }
func (c Clock) Second() int { return int(c) % 60 }

func (c Clock) Duration() time.Duration {
	return time.Duration(c) * time.Second
}

func (c Clock) Valid() bool {
	return c >= 0 && c < secondsPerDay
}

func (c Clock) String() string {
	if c.Second() != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", c.Hour(), c.Minute(), c.Second())
	}
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
