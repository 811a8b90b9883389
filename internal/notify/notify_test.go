package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type countingWaker struct {
	woken int
}

func (w *countingWaker) WakeData() { w.woken++ }

func TestListDrainsOnNotify(t *testing.T) {
	var l List
	a := &countingWaker{}
	b := &countingWaker{}

	l.Add(a)
	l.Add(b)
	assert.Equal(t, 2, l.Len())

	l.NotifyData()
	assert.Equal(t, 1, a.woken)
	assert.Equal(t, 1, b.woken)
	assert.Equal(t, 0, l.Len(), "registry must be empty after firing")

	// A second change without re-registration reaches nobody.
	l.NotifyData()
	assert.Equal(t, 1, a.woken)
	assert.Equal(t, 1, b.woken)
}

func TestListReregistration(t *testing.T) {
	var l List
	a := &countingWaker{}
	b := &countingWaker{}

	l.Add(a)
	l.Add(b)
	l.NotifyData()

	// Only a re-registers; only a sees the next change.
	l.Add(a)
	l.NotifyData()
	assert.Equal(t, 2, a.woken)
	assert.Equal(t, 1, b.woken)
}

func TestListDuplicateAddIsHarmless(t *testing.T) {
	var l List
	a := &countingWaker{}

	l.Add(a)
	l.Add(a)
	l.NotifyData()

	// Duplicate wakeups are allowed by contract; they coalesce at the
	// signal level in real use.
	assert.Equal(t, 2, a.woken)
	assert.Equal(t, 0, l.Len())
}

func TestSignalCoalesces(t *testing.T) {
	s := NewSignal()
	s.Notify()
	s.Notify()
	s.Notify()

	<-s.Wait()
	select {
	case <-s.Wait():
		t.Fatal("burst of notifies must collapse into one wakeup")
	default:
	}

	// After consuming, a fresh notify wakes again.
	s.Notify()
	select {
	case <-s.Wait():
	default:
		t.Fatal("notify after consume must wake")
	}
}
