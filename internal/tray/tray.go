// Package tray implements the status-notifier host role: it discovers the
// tray items other applications publish on the session bus, mirrors their
// properties, fetches their context menus on demand, and routes clicks
// back to the owning application. Both the org.kde and org.freedesktop
// vendor namespaces are probed, so items registered under either
// convention appear.
package tray

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"

	"wlbar/internal/notify"
)

const (
	watcherPath = dbus.ObjectPath("/StatusNotifierWatcher")
	propsIface  = "org.freedesktop.DBus.Properties"
	callTimeout = 10 * time.Second
	scrollDelta = 15
)

// Bus is the slice of the session bus connection the tray uses.
// *dbus.Conn satisfies it.
type Bus interface {
	RequestName(name string, flags dbus.RequestNameFlags) (dbus.RequestNameReply, error)
	AddMatchSignal(options ...dbus.MatchOption) error
	RemoveMatchSignal(options ...dbus.MatchOption) error
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
}

func vendorName(kde bool) string {
	if kde {
		return "kde"
	}
	return "freedesktop"
}

func watcherName(kde bool) string {
	return "org." + vendorName(kde) + ".StatusNotifierWatcher"
}

func itemInterface(kde bool) string {
	return "org." + vendorName(kde) + ".StatusNotifierItem"
}

func hostName(kde bool) string {
	return fmt.Sprintf("org.%s.StatusNotifierHost-%d", vendorName(kde), os.Getpid())
}

// Item is one remote application's tray presence, keyed by the owning bus
// connection and object path.
type Item struct {
	Owner string
	Path  dbus.ObjectPath
	KDE   bool

	ID            string
	Title         string
	Status        string
	IconName      string
	IconThemePath string
	MenuPath      dbus.ObjectPath

	menu *MenuCache
}

// Menu returns the item's shared menu cache.
func (it *Item) Menu() *MenuCache { return it.menu }

// apply copies known properties into the item, skipping values of an
// unexpected type. Unknown keys are ignored.
func (it *Item) apply(props map[string]dbus.Variant) {
	for key, v := range props {
		switch key {
		case "Id":
			storeString(v, &it.ID)
		case "Title":
			storeString(v, &it.Title)
		case "Status":
			storeString(v, &it.Status)
		case "IconName":
			storeString(v, &it.IconName)
		case "IconThemePath":
			storeString(v, &it.IconThemePath)
		case "Menu":
			switch p := v.Value().(type) {
			case dbus.ObjectPath:
				it.setMenuPath(p)
			case string:
				it.setMenuPath(dbus.ObjectPath(p))
			}
		}
	}
}

func (it *Item) setMenuPath(p dbus.ObjectPath) {
	if it.MenuPath != "" && it.MenuPath != p {
		it.menu.Invalidate()
	}
	it.MenuPath = p
}

func storeString(v dbus.Variant, dst *string) {
	if s, ok := v.Value().(string); ok {
		*dst = s
	}
}

// splitItemSpec parses the "owner/path" strings the watcher hands out.
// Registrations without an object path are not addressable and are skipped.
func splitItemSpec(spec string) (owner string, path dbus.ObjectPath, ok bool) {
	idx := strings.IndexByte(spec, '/')
	if idx < 0 {
		return "", "", false
	}
	return spec[:idx], dbus.ObjectPath(spec[idx:]), true
}

// Directory tracks the live set of tray items and fans every change out to
// interested surfaces through its registry.
type Directory struct {
	bus      Bus
	log      zerolog.Logger
	interest notify.List

	mu    sync.Mutex
	items []*Item

	signals chan *dbus.Signal
}

// New creates a Directory on bus. Nothing touches the bus until Run.
func New(bus Bus, log zerolog.Logger) *Directory {
	return &Directory{
		bus:     bus,
		log:     log,
		signals: make(chan *dbus.Signal, 32),
	}
}

// Watch registers w for one notification on the next directory change.
func (d *Directory) Watch(w notify.Waker) {
	d.interest.Add(w)
}

// Items returns a snapshot of the live tray items in registration order.
func (d *Directory) Items() []Item {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Item, len(d.items))
	for i, it := range d.items {
		out[i] = *it
	}
	return out
}

// Run claims the host role in both vendor namespaces and processes bus
// signals until ctx ends. Run may be called once.
func (d *Directory) Run(ctx context.Context) error {
	d.bus.Signal(d.signals)
	defer d.bus.RemoveSignal(d.signals)

	// Property changes are matched broadly and filtered by interface when
	// handled; the bus cannot match on the interface argument's value.
	propsMatch := []dbus.MatchOption{
		dbus.WithMatchInterface(propsIface),
		dbus.WithMatchMember("PropertiesChanged"),
	}
	if err := d.bus.AddMatchSignal(propsMatch...); err != nil {
		return fmt.Errorf("subscribe to property changes: %w", err)
	}
	defer d.bus.RemoveMatchSignal(propsMatch...)

	ownerMatch := []dbus.MatchOption{
		dbus.WithMatchSender("org.freedesktop.DBus"),
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
	}
	if err := d.bus.AddMatchSignal(ownerMatch...); err != nil {
		return fmt.Errorf("subscribe to name changes: %w", err)
	}
	defer d.bus.RemoveMatchSignal(ownerMatch...)

	for _, kde := range []bool{true, false} {
		go d.claimNamespace(ctx, kde)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-d.signals:
			if !ok {
				return nil
			}
			d.dispatch(ctx, sig)
		}
	}
}

// claimNamespace registers as a StatusNotifierHost in one vendor namespace
// and pulls the watcher's current enumeration. Failures disable the
// namespace for the process lifetime; the other namespace is unaffected.
func (d *Directory) claimNamespace(ctx context.Context, kde bool) {
	vendor := vendorName(kde)
	host := hostName(kde)
	reply, err := d.bus.RequestName(host, dbus.NameFlagDoNotQueue)
	if err != nil || reply != dbus.RequestNameReplyPrimaryOwner {
		d.log.Warn().Str("vendor", vendor).Msg("could not claim tray host name")
		return
	}

	watcher := watcherName(kde)
	if err := d.bus.AddMatchSignal(dbus.WithMatchInterface(watcher)); err != nil {
		d.log.Warn().Err(err).Str("vendor", vendor).Msg("could not subscribe to tray watcher")
		return
	}

	obj := d.bus.Object(watcher, watcherPath)
	call := obj.CallWithContext(ctx, watcher+".RegisterStatusNotifierHost", 0, host)
	if call.Err != nil {
		d.log.Warn().Err(call.Err).Str("vendor", vendor).Msg("no status notifier watcher")
		return
	}

	var enum dbus.Variant
	call = obj.CallWithContext(ctx, propsIface+".Get", 0, watcher, "RegisteredStatusNotifierItems")
	if call.Err != nil {
		d.log.Warn().Err(call.Err).Str("vendor", vendor).Msg("could not enumerate tray items")
		return
	}
	var registered []string
	if err := call.Store(&enum); err == nil {
		err = enum.Store(&registered)
	}
	if err != nil {
		d.log.Warn().Err(err).Str("vendor", vendor).Msg("unexpected tray enumeration shape")
		return
	}

	for _, spec := range registered {
		d.addItem(ctx, kde, spec)
	}
}

func (d *Directory) dispatch(ctx context.Context, sig *dbus.Signal) {
	switch {
	case sig.Name == propsIface+".PropertiesChanged":
		d.handlePropertiesChanged(sig)
	case sig.Name == "org.freedesktop.DBus.NameOwnerChanged":
		d.handleNameOwnerChanged(sig)
	case strings.HasSuffix(sig.Name, ".StatusNotifierItemRegistered"):
		if spec, ok := firstString(sig); ok {
			d.addItem(ctx, strings.HasPrefix(sig.Name, "org.kde."), spec)
		}
	case strings.HasSuffix(sig.Name, ".StatusNotifierItemUnregistered"):
		if spec, ok := firstString(sig); ok {
			d.removeItem(spec)
		}
	}
}

func firstString(sig *dbus.Signal) (string, bool) {
	if len(sig.Body) == 0 {
		return "", false
	}
	s, ok := sig.Body[0].(string)
	return s, ok
}

// addItem publishes a fresh record for the item, then fetches its full
// property set in the background. The record must exist before the fetch
// completes so property-change signals racing the fetch are not lost.
func (d *Directory) addItem(ctx context.Context, kde bool, spec string) {
	owner, path, ok := splitItemSpec(spec)
	if !ok {
		d.log.Debug().Str("item", spec).Msg("ignoring tray item without object path")
		return
	}

	if err := d.bus.AddMatchSignal(itemMatch(owner, path)...); err != nil {
		d.log.Warn().Err(err).Str("item", spec).Msg("could not watch tray item")
	}

	item := &Item{Owner: owner, Path: path, KDE: kde, menu: newMenuCache(d.bus, d.log)}
	d.mu.Lock()
	replaced := false
	for i, existing := range d.items {
		if existing.Owner == owner && existing.Path == path {
			d.items[i] = item
			replaced = true
			break
		}
	}
	if !replaced {
		d.items = append(d.items, item)
	}
	d.mu.Unlock()
	d.interest.NotifyData()

	go d.fetchProperties(ctx, kde, owner, path)
}

func itemMatch(owner string, path dbus.ObjectPath) []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchInterface(propsIface),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchSender(owner),
		dbus.WithMatchObjectPath(path),
	}
}

func (d *Directory) fetchProperties(ctx context.Context, kde bool, owner string, path dbus.ObjectPath) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	obj := d.bus.Object(owner, path)
	call := obj.CallWithContext(ctx, propsIface+".GetAll", 0, itemInterface(kde))
	if call.Err != nil {
		d.log.Warn().Err(call.Err).Str("owner", owner).Msg("could not fetch tray item properties")
		return
	}
	var props map[string]dbus.Variant
	if err := call.Store(&props); err != nil {
		d.log.Warn().Err(err).Str("owner", owner).Msg("unexpected tray item property shape")
		return
	}
	d.updateItem(owner, path, props)
}

func (d *Directory) removeItem(spec string) {
	owner, path, ok := splitItemSpec(spec)
	if !ok {
		return
	}
	d.remove(owner, path)
}

func (d *Directory) remove(owner string, path dbus.ObjectPath) {
	d.mu.Lock()
	kept := d.items[:0]
	removed := false
	for _, it := range d.items {
		if it.Owner == owner && it.Path == path {
			removed = true
			continue
		}
		kept = append(kept, it)
	}
	d.items = kept
	d.mu.Unlock()
	if !removed {
		return
	}

	if err := d.bus.RemoveMatchSignal(itemMatch(owner, path)...); err != nil {
		d.log.Debug().Err(err).Str("owner", owner).Msg("could not drop tray item match")
	}
	d.interest.NotifyData()
}

func (d *Directory) handlePropertiesChanged(sig *dbus.Signal) {
	if len(sig.Body) < 2 {
		return
	}
	iface, _ := sig.Body[0].(string)
	if iface != itemInterface(true) && iface != itemInterface(false) {
		return
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}
	d.updateItem(sig.Sender, sig.Path, changed)
}

func (d *Directory) updateItem(owner string, path dbus.ObjectPath, props map[string]dbus.Variant) {
	d.mu.Lock()
	for _, it := range d.items {
		if it.Owner != owner || it.Path != path {
			continue
		}
		it.apply(props)
	}
	d.mu.Unlock()
	d.interest.NotifyData()
}

// handleNameOwnerChanged purges items whose owning connection left the bus
// without unregistering; the watcher does not always notice for us.
func (d *Directory) handleNameOwnerChanged(sig *dbus.Signal) {
	if len(sig.Body) != 3 {
		return
	}
	name, _ := sig.Body[0].(string)
	newOwner, _ := sig.Body[2].(string)
	if name == "" || newOwner != "" {
		return
	}

	d.mu.Lock()
	var stale []dbus.ObjectPath
	for _, it := range d.items {
		if it.Owner == name {
			stale = append(stale, it.Path)
		}
	}
	d.mu.Unlock()
	for _, path := range stale {
		d.remove(name, path)
	}
}

// Click maps a pointer button code onto the matching remote invocation for
// the item at (owner, path): 0, 1, 2 activate; 5 through 8 scroll. Unknown
// codes and unknown items are silently ignored.
func (d *Directory) Click(owner string, path dbus.ObjectPath, code uint32) {
	var method, direction string
	switch code {
	case 0:
		method = "Activate"
	case 1:
		method = "ContextMenu"
	case 2:
		method = "SecondaryActivate"
	case 5, 6:
		direction = "vertical"
	case 7, 8:
		direction = "horizontal"
	default:
		return
	}

	d.mu.Lock()
	var kde bool
	var id string
	found := false
	for _, it := range d.items {
		if it.Owner == owner && it.Path == path {
			kde, id, found = it.KDE, it.ID, true
			break
		}
	}
	d.mu.Unlock()
	if !found {
		return
	}

	iface := itemInterface(kde)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		obj := d.bus.Object(owner, path)
		var call *dbus.Call
		if method != "" {
			d.log.Debug().Str("method", method).Str("id", id).Msg("invoking tray item")
			call = obj.CallWithContext(ctx, iface+"."+method, 0, int32(0), int32(0))
		} else {
			d.log.Debug().Str("direction", direction).Str("id", id).Msg("scrolling tray item")
			call = obj.CallWithContext(ctx, iface+".Scroll", 0, int32(scrollDelta), direction)
		}
		if call.Err != nil {
			d.log.Debug().Err(call.Err).Str("id", id).Msg("tray invocation failed")
		}
	}()
}
