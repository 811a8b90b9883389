// Package state owns the process-wide runtime: the named variable and item
// tables, the redraw signal and wake scheduler behind them, and the App
// that drives surfaces through the render tick.
package state

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"wlbar/internal/notify"
	"wlbar/internal/render"
	"wlbar/internal/wake"
)

// WakeRequester accepts requests to be woken no later than a deadline.
type WakeRequester interface {
	RequestWakeAt(t time.Time)
}

// Variable is one named data source. Update recomputes the value for the
// current tick, reporting whether it changed and optionally requesting a
// future wake; Read returns the value for a format key, the empty key
// being the primary value. Update runs only on the tick goroutine; Read
// must be safe against concurrent Set-style feeders.
type Variable interface {
	Update(now time.Time, wake WakeRequester) bool
	Read(key string) string
}

// Runtime is the shared context every data producer and surface sees. It
// carries the variable table, the item table bars resolve their module
// names against, and the redraw plumbing. Interest registries hold the
// Runtime as their notify.Waker.
type Runtime struct {
	log    zerolog.Logger
	redraw *notify.Signal
	wake   *wake.Scheduler

	mu          sync.Mutex
	names       []string
	vars        map[string]Variable
	items       map[string]render.Item
	dataChanged bool
}

func NewRuntime(log zerolog.Logger) *Runtime {
	redraw := notify.NewSignal()
	return &Runtime{
		log:    log,
		redraw: redraw,
		wake:   wake.New(redraw),
		vars:   map[string]Variable{},
		items:  map[string]render.Item{},
	}
}

// AddVariable registers v under name. Registration order is update order.
func (r *Runtime) AddVariable(name string, v Variable) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.vars[name]; exists {
		return fmt.Errorf("variable %q already defined", name)
	}
	r.names = append(r.names, name)
	r.vars[name] = v
	return nil
}

// AddItem registers a renderable under name for bars to reference.
func (r *Runtime) AddItem(name string, item render.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[name]; exists {
		return fmt.Errorf("item %q already defined", name)
	}
	r.items[name] = item
	return nil
}

// Item looks up a named renderable.
func (r *Runtime) Item(name string) (render.Item, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[name]
	return item, ok
}

// WakeData marks observed data stale and requests an immediate redraw.
func (r *Runtime) WakeData() {
	r.mu.Lock()
	r.dataChanged = true
	r.mu.Unlock()
	r.redraw.Notify()
}

// Redraw requests a repaint without marking data changed, for sizing and
// visibility changes that need pixels but no variable refresh.
func (r *Runtime) Redraw() {
	r.redraw.Notify()
}

// RequestWakeAt asks for a redraw no later than t.
func (r *Runtime) RequestWakeAt(t time.Time) {
	r.wake.RequestWakeAt(t)
}

// Format resolves {name} and {name.key} references against the variable
// table. A reference to an unknown variable substitutes the empty string
// and logs a warning; an unclosed reference is a syntax error.
func (r *Runtime) Format(format string) (string, error) {
	var out strings.Builder
	rest := format
	for {
		i := strings.IndexByte(rest, '{')
		if i < 0 {
			out.WriteString(rest)
			return out.String(), nil
		}
		out.WriteString(rest[:i])
		rest = rest[i+1:]
		j := strings.IndexByte(rest, '}')
		if j < 0 {
			r.log.Warn().Str("format", format).Msg("unclosed reference in format")
			return "", fmt.Errorf("format %q: unclosed reference", format)
		}
		name, key := rest[:j], ""
		rest = rest[j+1:]
		if k := strings.IndexByte(name, '.'); k >= 0 {
			name, key = name[:k], name[k+1:]
		}
		v, ok := r.lookup(name)
		if !ok {
			r.log.Warn().Str("variable", name).Msg("format references unknown variable")
			continue
		}
		out.WriteString(v.Read(key))
	}
}

func (r *Runtime) lookup(name string) (Variable, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vars[name]
	return v, ok
}

// updateAll runs every variable's Update in registration order and reports
// whether anything changed, folding in (and consuming) the data-changed
// flag set by interest notifications since the last tick.
func (r *Runtime) updateAll(now time.Time) bool {
	r.mu.Lock()
	changed := r.dataChanged
	r.dataChanged = false
	ordered := make([]Variable, len(r.names))
	for i, name := range r.names {
		ordered[i] = r.vars[name]
	}
	r.mu.Unlock()

	for _, v := range ordered {
		if v.Update(now, r) {
			changed = true
		}
	}
	return changed
}
