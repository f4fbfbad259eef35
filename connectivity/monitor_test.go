package connectivity

import "testing"

func TestManualMonitor_InitialState(t *testing.T) {
	if !NewManualMonitor(true).Connected() {
		t.Error("expected initial state true")
	}
	if NewManualMonitor(false).Connected() {
		t.Error("expected initial state false")
	}
}

func TestManualMonitor_NotifiesOnTransition(t *testing.T) {
	m := NewManualMonitor(true)

	var got []bool
	m.Subscribe(func(connected bool) {
		got = append(got, connected)
	})

	m.SetConnected(false)
	m.SetConnected(false) // duplicate, should not notify
	m.SetConnected(true)

	want := []bool{false, true}
	if len(got) != len(want) {
		t.Fatalf("got %d notifications, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("notification %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestManualMonitor_CancelDetachesObserver(t *testing.T) {
	m := NewManualMonitor(true)

	calls := 0
	cancel := m.Subscribe(func(bool) { calls++ })

	m.SetConnected(false)
	cancel()
	cancel() // double-cancel must be safe
	m.SetConnected(true)

	if calls != 1 {
		t.Errorf("observer called %d times after cancel, want 1", calls)
	}
}

func TestManualMonitor_ObserverMayResubscribe(t *testing.T) {
	m := NewManualMonitor(false)

	reentered := false
	m.Subscribe(func(bool) {
		if !reentered {
			reentered = true
			m.Subscribe(func(bool) {})
		}
	})

	m.SetConnected(true) // must not deadlock
	if !reentered {
		t.Error("observer never invoked")
	}
}
