package service

import (
	"bytes"
	"testing"
	"time"

	"droidagent/adb"
	"droidagent/config"
	"droidagent/models"
)

func newTestSession(t *testing.T) *AgentSession {
	t.Helper()
	db, err := config.InitDatabaseAt(":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	adbClient := adb.NewClient("adb")
	manager := NewSessionManager(adbClient, NewDeviceManager(adbClient), NewStepStore(db), nil)
	return newAgentSession(manager, &models.Device{
		ID:          "device_test",
		ADBDeviceID: "test-serial",
		Width:       1080,
		Height:      2400,
	})
}

func TestBuildFramePacket(t *testing.T) {
	payload := []byte{0xFF, 0xD8, 0xFF}
	pkt := buildFramePacket("device_a", payload)

	if pkt[0] != byte(len("device_a")) {
		t.Errorf("expected id length prefix %d, got %d", len("device_a"), pkt[0])
	}
	if string(pkt[1:1+len("device_a")]) != "device_a" {
		t.Errorf("device id not embedded, got %q", pkt[1:1+len("device_a")])
	}
	if !bytes.Equal(pkt[1+len("device_a"):], payload) {
		t.Error("payload not preserved after the id")
	}
}

func TestBuildFramePacketRejectsHugeID(t *testing.T) {
	id := make([]byte, 300)
	for i := range id {
		id[i] = 'x'
	}
	if pkt := buildFramePacket(string(id), []byte{1}); pkt != nil {
		t.Error("ids longer than 255 bytes cannot be length-prefixed")
	}
}

func TestConfirmationApproved(t *testing.T) {
	s := newTestSession(t)

	go func() {
		// Poll until the pending confirmation shows up, then approve it.
		for i := 0; i < 100; i++ {
			s.confirmMu.Lock()
			var id string
			for pending := range s.confirms {
				id = pending
			}
			s.confirmMu.Unlock()
			if id != "" {
				if !s.ResolveConfirmation(id, true) {
					t.Error("ResolveConfirmation should find the pending id")
				}
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	if !s.requestConfirmation("delete all messages?") {
		t.Error("approved confirmation should report true")
	}
}

func TestConfirmationDeclined(t *testing.T) {
	s := newTestSession(t)

	go func() {
		for i := 0; i < 100; i++ {
			s.confirmMu.Lock()
			var id string
			for pending := range s.confirms {
				id = pending
			}
			s.confirmMu.Unlock()
			if id != "" {
				s.ResolveConfirmation(id, false)
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	if s.requestConfirmation("wipe device?") {
		t.Error("declined confirmation should report false")
	}
}

func TestConfirmationTimeoutDeclines(t *testing.T) {
	s := newTestSession(t)
	s.confirmWait = 50 * time.Millisecond

	start := time.Now()
	if s.requestConfirmation("unanswered?") {
		t.Error("timed-out confirmation should report false")
	}
	if time.Since(start) > time.Second {
		t.Error("timeout should honor the configured window")
	}

	s.confirmMu.Lock()
	remaining := len(s.confirms)
	s.confirmMu.Unlock()
	if remaining != 0 {
		t.Errorf("timed-out confirmation should be unregistered, %d left", remaining)
	}
}

func TestResolveConfirmationUnknownID(t *testing.T) {
	s := newTestSession(t)
	if s.ResolveConfirmation("nope", true) {
		t.Error("unknown confirmation ids must not resolve")
	}
}

func TestTouchRequiresChannel(t *testing.T) {
	s := newTestSession(t)
	if err := s.Touch("down", 10, 10); err == nil {
		t.Error("touch without a display channel should fail")
	}
}

func TestTouchRejectsUnknownPhase(t *testing.T) {
	s := newTestSession(t)
	if err := s.Touch("sideways", 10, 10); err == nil {
		t.Error("unknown touch phase should fail")
	}
}

func TestStatusDefaults(t *testing.T) {
	s := newTestSession(t)
	status := s.Status()

	if status.State != "STOPPED" {
		t.Errorf("fresh session state should be STOPPED, got %s", status.State)
	}
	if status.Channel != "DISCONNECTED" {
		t.Errorf("fresh session channel should be DISCONNECTED, got %s", status.Channel)
	}
	if status.DecoderActive {
		t.Error("fresh session decoder should be inactive")
	}
}

func TestDisplayContextFallsBackToDeviceDims(t *testing.T) {
	s := newTestSession(t)
	dc := s.displayContext()

	if dc.Width != 1080 || dc.Height != 2400 {
		t.Errorf("without a channel the context should use device dims, got %dx%d", dc.Width, dc.Height)
	}
	if !dc.PixelInput {
		t.Error("controllers take pixel coordinates")
	}
	if dc.Controller == nil {
		t.Error("context must always carry a controller")
	}
}

func TestManagerStatusWithoutSession(t *testing.T) {
	db, err := config.InitDatabaseAt(":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	adbClient := adb.NewClient("adb")
	manager := NewSessionManager(adbClient, NewDeviceManager(adbClient), NewStepStore(db), nil)

	status := manager.Status("device_unknown")
	if status.State != "STOPPED" {
		t.Errorf("unknown device should read as STOPPED, got %s", status.State)
	}
	if manager.LatestFramePacket("device_unknown") != nil {
		t.Error("unknown device has no frames to replay")
	}
}
