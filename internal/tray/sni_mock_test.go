//go:build (linux || freebsd || openbsd || netbsd) && !android

package tray

import (
	"bufio"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/require"
)

const mockItemPath = dbus.ObjectPath("/StatusNotifierItem")

// busDaemon is a private dbus-daemon owned by one test, so registrations
// never leak into the developer's real session bus.
type busDaemon struct {
	address string
}

func startBusDaemon(t *testing.T) *busDaemon {
	t.Helper()
	if _, err := exec.LookPath("dbus-daemon"); err != nil {
		t.Skip("dbus-daemon not installed")
	}

	cmd := exec.Command("dbus-daemon", "--session", "--nofork", "--print-address")
	stdout, err := cmd.StdoutPipe()
	require.NoError(t, err)
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		cmd.Process.Kill()
		cmd.Wait()
	})

	// The daemon prints its address as a single line once it is ready.
	addr, err := bufio.NewReader(stdout).ReadString('\n')
	require.NoError(t, err)
	return &busDaemon{address: strings.TrimSpace(addr)}
}

// connect opens a fresh connection the way dbus.SessionBus would, with the
// auth and hello handshakes completed.
func (d *busDaemon) connect(t *testing.T) *dbus.Conn {
	t.Helper()
	conn, err := dbus.Dial(d.address)
	require.NoError(t, err)
	if err := conn.Auth(nil); err != nil {
		conn.Close()
		t.Fatalf("authenticate to test bus: %v", err)
	}
	if err := conn.Hello(); err != nil {
		conn.Close()
		t.Fatalf("greet test bus: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitForChannel returns the next value on ch or fails the test after two
// seconds.
func waitForChannel[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a channel value")
	}
	panic("unreachable")
}

// mockWatcher simulates the tray daemon: it owns the well-known watcher
// name and turns item registrations into the signal real watchers emit.
type mockWatcher struct {
	conn *dbus.Conn

	mu    sync.Mutex
	items []string

	HostRegistered chan string
}

func startMockWatcher(t *testing.T, conn *dbus.Conn) *mockWatcher {
	t.Helper()
	w := &mockWatcher{conn: conn, HostRegistered: make(chan string, 4)}

	reply, err := conn.RequestName(watcherName(true), dbus.NameFlagDoNotQueue)
	require.NoError(t, err)
	require.Equal(t, dbus.RequestNameReplyPrimaryOwner, reply)

	require.NoError(t, conn.Export(w, watcherPath, watcherName(true)))
	require.NoError(t, conn.Export(w, watcherPath, propsIface))
	return w
}

func (w *mockWatcher) RegisterStatusNotifierHost(service string) *dbus.Error {
	select {
	case w.HostRegistered <- service:
	default:
	}
	return nil
}

func (w *mockWatcher) RegisterStatusNotifierItem(sender dbus.Sender, service string) *dbus.Error {
	spec := string(sender) + string(mockItemPath)
	if strings.HasPrefix(service, "/") {
		spec = string(sender) + service
	}
	w.mu.Lock()
	w.items = append(w.items, spec)
	w.mu.Unlock()
	w.conn.Emit(watcherPath, watcherName(true)+".StatusNotifierItemRegistered", spec)
	return nil
}

func (w *mockWatcher) Get(iface, prop string) (dbus.Variant, *dbus.Error) {
	if iface != watcherName(true) {
		return dbus.Variant{}, dbus.MakeFailedError(fmt.Errorf("wrong interface %s", iface))
	}
	switch prop {
	case "RegisteredStatusNotifierItems":
		w.mu.Lock()
		defer w.mu.Unlock()
		return dbus.MakeVariant(append([]string(nil), w.items...)), nil
	case "IsStatusNotifierHostRegistered":
		return dbus.MakeVariant(true), nil
	}
	return dbus.Variant{}, dbus.MakeFailedError(fmt.Errorf("unknown property %s", prop))
}

type itemCall struct {
	Method string
	X, Y   int32
}

type scrollCall struct {
	Delta       int32
	Orientation string
}

// mockItem publishes one tray item the way a real application would and
// records the activations routed back to it.
type mockItem struct {
	conn *dbus.Conn

	mu    sync.Mutex
	props map[string]dbus.Variant

	Invoked  chan itemCall
	Scrolled chan scrollCall
}

// startMockItem exports the item and announces it to the watcher. The
// export happens first so the host's property fetch cannot miss.
func startMockItem(t *testing.T, conn *dbus.Conn, props map[string]dbus.Variant) *mockItem {
	t.Helper()
	it := &mockItem{
		conn:     conn,
		props:    props,
		Invoked:  make(chan itemCall, 4),
		Scrolled: make(chan scrollCall, 4),
	}
	require.NoError(t, conn.Export(it, mockItemPath, itemInterface(true)))
	require.NoError(t, conn.Export(it, mockItemPath, propsIface))

	call := conn.Object(watcherName(true), watcherPath).Call(
		watcherName(true)+".RegisterStatusNotifierItem", 0, string(mockItemPath))
	require.NoError(t, call.Err)
	return it
}

func (m *mockItem) Activate(x, y int32) *dbus.Error {
	m.Invoked <- itemCall{Method: "Activate", X: x, Y: y}
	return nil
}

func (m *mockItem) SecondaryActivate(x, y int32) *dbus.Error {
	m.Invoked <- itemCall{Method: "SecondaryActivate", X: x, Y: y}
	return nil
}

func (m *mockItem) ContextMenu(x, y int32) *dbus.Error {
	m.Invoked <- itemCall{Method: "ContextMenu", X: x, Y: y}
	return nil
}

func (m *mockItem) Scroll(delta int32, orientation string) *dbus.Error {
	m.Scrolled <- scrollCall{Delta: delta, Orientation: orientation}
	return nil
}

func (m *mockItem) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	if iface != itemInterface(true) {
		return nil, dbus.MakeFailedError(fmt.Errorf("wrong interface %s", iface))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]dbus.Variant, len(m.props))
	for k, v := range m.props {
		out[k] = v
	}
	return out, nil
}

// change applies the properties locally and broadcasts them the way a real
// item notifies the bus.
func (m *mockItem) change(props map[string]dbus.Variant) error {
	m.mu.Lock()
	for k, v := range props {
		m.props[k] = v
	}
	m.mu.Unlock()
	return m.conn.Emit(mockItemPath, propsIface+".PropertiesChanged",
		itemInterface(true), props, []string{})
}

type menuEvent struct {
	ID   int32
	Name string
}

// layoutNode matches the (ia{sv}av) wire shape of a dbusmenu layout reply.
type layoutNode struct {
	ID       int32
	Props    map[string]dbus.Variant
	Children []dbus.Variant
}

func layoutChild(id int32, props map[string]dbus.Variant) dbus.Variant {
	return dbus.MakeVariant(layoutNode{ID: id, Props: props})
}

// mockMenu serves a fixed dbusmenu layout and records the events fired at
// its entries.
type mockMenu struct {
	layout layoutNode

	Events chan menuEvent
}

func startMockMenu(t *testing.T, conn *dbus.Conn, path dbus.ObjectPath, layout layoutNode) *mockMenu {
	t.Helper()
	m := &mockMenu{layout: layout, Events: make(chan menuEvent, 4)}
	require.NoError(t, conn.Export(m, path, "com.canonical.dbusmenu"))
	return m
}

func (m *mockMenu) AboutToShow(id int32) (bool, *dbus.Error) {
	return false, nil
}

func (m *mockMenu) GetLayout(parent, depth int32, props []string) (uint32, layoutNode, *dbus.Error) {
	return 1, m.layout, nil
}

func (m *mockMenu) Event(id int32, name string, data dbus.Variant, timestamp uint32) *dbus.Error {
	m.Events <- menuEvent{ID: id, Name: name}
	return nil
}
