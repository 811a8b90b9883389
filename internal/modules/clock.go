package modules

import (
	"strings"
	"time"

	"wlbar/internal/state"
)

// Clock is a time variable. Every Update formats the current time and asks
// for a wake at the next boundary the layout can show: layouts with a
// seconds field roll every second, the rest every minute.
type Clock struct {
	layout string
	step   time.Duration
	text   string
}

func NewClock(layout string) *Clock {
	if layout == "" {
		layout = "15:04"
	}
	step := time.Minute
	if strings.Contains(layout, "05") {
		step = time.Second
	}
	return &Clock{layout: layout, step: step}
}

func (c *Clock) Update(now time.Time, wake state.WakeRequester) bool {
	wake.RequestWakeAt(now.Truncate(c.step).Add(c.step))
	text := now.Format(c.layout)
	if text == c.text {
		return false
	}
	c.text = text
	return true
}

func (c *Clock) Read(key string) string {
	if key == "" {
		return c.text
	}
	return ""
}
