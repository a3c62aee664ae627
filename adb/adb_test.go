package adb

import "testing"

func TestParseDeviceList(t *testing.T) {
	output := `List of devices attached
emulator-5554          device product:sdk_gphone64_x86_64 model:sdk_gphone64_x86_64 device:emu64xa transport_id:1
192.168.1.20:5555      device product:raven model:Pixel_6_Pro device:raven transport_id:2
0A031FDD4002XY         unauthorized transport_id:3
ZY22GX9PLV             offline

`
	devices := parseDeviceList(output)
	if len(devices) != 2 {
		t.Fatalf("expected 2 online devices, got %d", len(devices))
	}

	if devices[0].ADBDeviceID != "emulator-5554" {
		t.Errorf("expected first device emulator-5554, got %s", devices[0].ADBDeviceID)
	}
	if devices[0].Name != "sdk gphone64 x86 64" {
		t.Errorf("model underscores should become spaces, got %q", devices[0].Name)
	}
	if devices[0].ID != "device_emulator-5554" {
		t.Errorf("unexpected device id %q", devices[0].ID)
	}
	if devices[0].Status != "online" {
		t.Errorf("expected status online, got %q", devices[0].Status)
	}

	if devices[1].ADBDeviceID != "192.168.1.20:5555" {
		t.Errorf("expected second device 192.168.1.20:5555, got %s", devices[1].ADBDeviceID)
	}
	if devices[1].Name != "Pixel 6 Pro" {
		t.Errorf("expected Pixel 6 Pro, got %q", devices[1].Name)
	}
}

func TestParseDeviceListEmpty(t *testing.T) {
	devices := parseDeviceList("List of devices attached\n\n")
	if len(devices) != 0 {
		t.Fatalf("expected no devices, got %d", len(devices))
	}
}

func TestIsWiFiConnection(t *testing.T) {
	if !isWiFiConnection("192.168.1.20:5555") {
		t.Error("IP:port id should count as WiFi")
	}
	if isWiFiConnection("emulator-5554") {
		t.Error("emulator id should not count as WiFi")
	}
}

func TestPickResolution(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{
			name:   "physical only",
			output: "Physical size: 1080x2400\n",
			want:   "1080x2400",
		},
		{
			name:   "override wins",
			output: "Physical size: 1080x2400\nOverride size: 720x1600\n",
			want:   "720x1600",
		},
		{
			name:   "nothing parseable",
			output: "error: no devices found\n",
			want:   "unknown",
		},
	}
	for _, tt := range tests {
		if got := pickResolution(tt.output); got != tt.want {
			t.Errorf("%s: pickResolution() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestParseResolution(t *testing.T) {
	tests := []struct {
		in    string
		wantW int
		wantH int
	}{
		{"1080x2400", 1080, 2400},
		{" 720x1600 ", 720, 1600},
		{"unknown", 0, 0},
		{"1080x", 0, 0},
		{"x2400", 0, 0},
		{"-5x100", 0, 0},
		{"", 0, 0},
	}
	for _, tt := range tests {
		w, h := ParseResolution(tt.in)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("ParseResolution(%q) = %dx%d, want %dx%d", tt.in, w, h, tt.wantW, tt.wantH)
		}
	}
}

func TestParseBatteryLevel(t *testing.T) {
	output := `Current Battery Service state:
  AC powered: false
  USB powered: true
  level: 93
  scale: 100
`
	level, ok := parseBatteryLevel(output)
	if !ok || level != 93 {
		t.Errorf("parseBatteryLevel() = %d, %v, want 93, true", level, ok)
	}

	if _, ok := parseBatteryLevel("no battery info here"); ok {
		t.Error("expected no battery level in unrelated output")
	}
}
