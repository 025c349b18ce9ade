package tray

import "testing"

func TestTray_Toggle(t *testing.T) {
	tr := New()
	if !tr.IsEnabled() {
		t.Fatal("camera should start enabled")
	}

	// Without a callback the menu has nothing to toggle.
	tr.handleToggle()
	if !tr.IsEnabled() {
		t.Error("toggle without a callback changed the state")
	}

	owner := true
	calls := 0
	tr.OnToggle(func() bool {
		calls++
		owner = !owner
		return owner
	})

	tr.handleToggle()
	if calls != 1 || tr.IsEnabled() {
		t.Errorf("after one toggle: calls = %d, enabled = %v", calls, tr.IsEnabled())
	}

	// The owner was switched elsewhere; the next click follows the owner,
	// not the menu's last shown state.
	owner = true
	tr.handleToggle()
	if owner || tr.IsEnabled() {
		t.Errorf("toggle should turn the camera off, owner = %v, enabled = %v", owner, tr.IsEnabled())
	}
}

func TestTray_Callbacks(t *testing.T) {
	tr := New()

	// No callbacks registered.
	tr.handleReset()
	tr.handleQuit()

	var resets, quits int
	tr.OnReset(func() { resets++ })
	tr.OnQuit(func() { quits++ })

	tr.handleReset()
	tr.handleQuit()

	if resets != 1 || quits != 1 {
		t.Errorf("resets = %d, quits = %d, want 1 and 1", resets, quits)
	}
}

func TestTray_SetState(t *testing.T) {
	tr := New()

	tr.SetEnabled(false)
	if tr.IsEnabled() {
		t.Error("SetEnabled(false) did not disable")
	}

	tr.SetStatus("face detected (1)")
	if tr.Status() != "face detected (1)" {
		t.Errorf("Status() = %q", tr.Status())
	}
}

func TestTitles(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{name: "on", got: toggleTitle(true), want: "● Camera on"},
		{name: "off", got: toggleTitle(false), want: "○ Camera off"},
		{name: "status", got: statusTitle("camera off"), want: "Status: camera off"},
		{name: "empty status", got: statusTitle(""), want: "Status: idle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}
