package tray

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
)

// fakeBus implements Bus in process, delivering emitted signals straight
// to the channel the directory registers.
type fakeBus struct {
	mu      sync.Mutex
	replies map[string]dbus.RequestNameReply
	names   []string
	objects map[string]*fakeObject
	sig     chan<- *dbus.Signal
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		replies: map[string]dbus.RequestNameReply{},
		objects: map[string]*fakeObject{},
	}
}

func (b *fakeBus) RequestName(name string, flags dbus.RequestNameFlags) (dbus.RequestNameReply, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.names = append(b.names, name)
	if r, ok := b.replies[name]; ok {
		return r, nil
	}
	return dbus.RequestNameReplyPrimaryOwner, nil
}

func (b *fakeBus) AddMatchSignal(options ...dbus.MatchOption) error    { return nil }
func (b *fakeBus) RemoveMatchSignal(options ...dbus.MatchOption) error { return nil }

func (b *fakeBus) Signal(ch chan<- *dbus.Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sig = ch
}

func (b *fakeBus) RemoveSignal(ch chan<- *dbus.Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sig = nil
}

func (b *fakeBus) Object(dest string, path dbus.ObjectPath) dbus.BusObject {
	return b.object(dest, path)
}

// object returns the fake for dest+path, creating it on demand so tests
// can seed replies before the code under test looks the object up.
func (b *fakeBus) object(dest string, path dbus.ObjectPath) *fakeObject {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := dest + string(path)
	o, ok := b.objects[key]
	if !ok {
		o = newFakeObject(dest, path)
		b.objects[key] = o
	}
	return o
}

func (b *fakeBus) emit(sig *dbus.Signal) {
	b.mu.Lock()
	ch := b.sig
	b.mu.Unlock()
	if ch != nil {
		ch <- sig
	}
}

func (b *fakeBus) requested() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.names...)
}

var errNoReply = errors.New("no reply seeded")

type fakeCall struct {
	Method string
	Args   []interface{}
}

// fakeObject satisfies dbus.BusObject. Methods without a seeded reply fail
// the way a remote without the interface would.
type fakeObject struct {
	dest string
	path dbus.ObjectPath

	mu      sync.Mutex
	calls   []fakeCall
	replies map[string][]interface{}
	errs    map[string]error
}

func newFakeObject(dest string, path dbus.ObjectPath) *fakeObject {
	return &fakeObject{
		dest:    dest,
		path:    path,
		replies: map[string][]interface{}{},
		errs:    map[string]error{},
	}
}

func (o *fakeObject) reply(method string, body ...interface{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.replies[method] = body
}

func (o *fakeObject) fail(method string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs[method] = err
}

func (o *fakeObject) callsTo(method string) []fakeCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []fakeCall
	for _, c := range o.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (o *fakeObject) CallWithContext(_ context.Context, method string, _ dbus.Flags, args ...interface{}) *dbus.Call {
	o.mu.Lock()
	o.calls = append(o.calls, fakeCall{Method: method, Args: args})
	body, seeded := o.replies[method]
	err := o.errs[method]
	o.mu.Unlock()
	if err == nil && !seeded {
		err = errNoReply
	}
	return &dbus.Call{Method: method, Err: err, Body: body}
}

func (o *fakeObject) Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call {
	return o.CallWithContext(context.Background(), method, flags, args...)
}

func (o *fakeObject) Go(method string, flags dbus.Flags, ch chan *dbus.Call, args ...interface{}) *dbus.Call {
	call := o.Call(method, flags, args...)
	if ch != nil {
		ch <- call
	}
	return call
}

func (o *fakeObject) GoWithContext(_ context.Context, method string, flags dbus.Flags, ch chan *dbus.Call, args ...interface{}) *dbus.Call {
	return o.Go(method, flags, ch, args...)
}

func (o *fakeObject) AddMatchSignal(iface, member string, options ...dbus.MatchOption) *dbus.Call {
	return &dbus.Call{}
}

func (o *fakeObject) RemoveMatchSignal(iface, member string, options ...dbus.MatchOption) *dbus.Call {
	return &dbus.Call{}
}

func (o *fakeObject) GetProperty(p string) (dbus.Variant, error) {
	return dbus.Variant{}, errNoReply
}

func (o *fakeObject) StoreProperty(p string, value interface{}) error { return errNoReply }
func (o *fakeObject) SetProperty(p string, v interface{}) error       { return errNoReply }

func (o *fakeObject) Destination() string   { return o.dest }
func (o *fakeObject) Path() dbus.ObjectPath { return o.path }

// testWaker records data wakes on a drainable channel.
type testWaker struct {
	ch chan struct{}
}

func newTestWaker() *testWaker {
	return &testWaker{ch: make(chan struct{}, 16)}
}

func (w *testWaker) WakeData() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

func expectWake(t *testing.T, w *testWaker) {
	t.Helper()
	select {
	case <-w.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a data wake")
	}
}

func assertNoWake(t *testing.T, w *testWaker) {
	t.Helper()
	select {
	case <-w.ch:
		t.Fatal("unexpected data wake")
	case <-time.After(50 * time.Millisecond):
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
