// Package modules provides the built-in variables and renderables bars are
// assembled from: the clock and static values on the data side, text and
// spacer items on the drawing side.
package modules

import (
	"sync"
	"time"

	"wlbar/internal/state"
)

// Value is a variable whose content is replaced wholesale by Set. Feeders
// stage the next value from any goroutine; the change is picked up by the
// following Update, so readers never observe a half-applied value.
type Value struct {
	mu      sync.Mutex
	current string
	next    string
}

func NewValue(v string) *Value {
	return &Value{current: v, next: v}
}

// Set stages v as the value to apply on the next update.
func (v *Value) Set(s string) {
	v.mu.Lock()
	v.next = s
	v.mu.Unlock()
}

func (v *Value) Update(now time.Time, wake state.WakeRequester) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	changed := v.next != v.current
	v.current = v.next
	return changed
}

func (v *Value) Read(key string) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if key == "" {
		return v.current
	}
	return ""
}
