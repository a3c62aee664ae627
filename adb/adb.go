package adb

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"droidagent/logger"
	"droidagent/models"
)

// Client wraps ADB command execution for one adb binary
type Client struct {
	Path string
}

// NewClient creates an ADB client. An empty path falls back to "adb" on PATH.
func NewClient(path string) *Client {
	if path == "" {
		path = "adb"
	}
	return &Client{Path: path}
}

// IsAvailable checks that the adb binary can be executed at all. Device
// sessions refuse to start when this fails.
func (c *Client) IsAvailable() error {
	cmd := exec.Command(c.Path, "version")
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("adb not available at %q: %w (%s)", c.Path, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// ListDevices returns all online Android devices.
// If the same physical device is connected via both USB and WiFi, WiFi wins.
func (c *Client) ListDevices() ([]models.Device, error) {
	cmd := exec.Command(c.Path, "devices", "-l")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	devices := parseDeviceList(string(output))
	devices = c.deduplicateDevices(devices)

	for i := range devices {
		c.enrichDeviceInfo(&devices[i])
	}
	return devices, nil
}

// parseDeviceList parses 'adb devices -l' output into bare device records.
// Offline and unauthorized devices are skipped.
func parseDeviceList(output string) []models.Device {
	var devices []models.Device
	for i, line := range strings.Split(output, "\n") {
		if i == 0 || strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		serial, state := parts[0], parts[1]
		if state != "device" {
			logger.Debugf("⚠️ [%s] Skipping device in state %s", serial, state)
			continue
		}

		device := models.Device{
			ID:          fmt.Sprintf("device_%s", serial),
			ADBDeviceID: serial,
			Name:        serial,
			Status:      "online",
			LastSeen:    time.Now().Unix(),
		}
		for _, part := range parts[2:] {
			if strings.HasPrefix(part, "model:") {
				device.Name = strings.ReplaceAll(strings.TrimPrefix(part, "model:"), "_", " ")
			}
		}
		devices = append(devices, device)
	}
	return devices
}

// isWiFiConnection reports whether the ADB id is an IP:port endpoint
func isWiFiConnection(adbDeviceID string) bool {
	return strings.Contains(adbDeviceID, ":")
}

// deduplicateDevices collapses USB+WiFi pairs of the same physical device,
// keyed by hardware serial, preferring the WiFi entry.
func (c *Client) deduplicateDevices(devices []models.Device) []models.Device {
	serialToDevice := make(map[string]models.Device)
	order := make([]string, 0, len(devices))

	for i := range devices {
		hwSerial := c.getSerialNumber(devices[i].ADBDeviceID)
		if hwSerial == "" {
			hwSerial = devices[i].ADBDeviceID
		}
		devices[i].HardwareSerial = hwSerial

		existing, exists := serialToDevice[hwSerial]
		if !exists {
			serialToDevice[hwSerial] = devices[i]
			order = append(order, hwSerial)
			continue
		}
		if isWiFiConnection(devices[i].ADBDeviceID) && !isWiFiConnection(existing.ADBDeviceID) {
			serialToDevice[hwSerial] = devices[i]
		}
	}

	result := make([]models.Device, 0, len(order))
	for _, key := range order {
		result = append(result, serialToDevice[key])
	}
	if len(result) != len(devices) {
		logger.Debugf("📊 Device dedup: %d devices from %d raw entries", len(result), len(devices))
	}
	return result
}

// enrichDeviceInfo fills in version, resolution and battery. Failures leave
// the field empty rather than dropping the device.
func (c *Client) enrichDeviceInfo(device *models.Device) {
	if version, err := c.getProperty(device.ADBDeviceID, "ro.build.version.release"); err == nil {
		device.AndroidVersion = strings.TrimSpace(version)
	}
	if resolution, err := c.getScreenResolution(device.ADBDeviceID); err == nil {
		device.Resolution = resolution
		device.Width, device.Height = ParseResolution(resolution)
	}
	if battery, err := c.getBatteryLevel(device.ADBDeviceID); err == nil {
		device.Battery = battery
	}
}

// getSerialNumber reads the hardware serial of the device
func (c *Client) getSerialNumber(adbDeviceID string) string {
	cmd := exec.Command(c.Path, "-s", adbDeviceID, "shell", "getprop", "ro.serialno")
	output, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(output))
}

// getProperty reads a system property from the device
func (c *Client) getProperty(deviceID, property string) (string, error) {
	cmd := exec.Command(c.Path, "-s", deviceID, "shell", "getprop", property)
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(output), nil
}

// getScreenResolution reads the screen size via 'wm size'. An override
// size takes precedence over the physical size because it is what the
// device actually renders.
func (c *Client) getScreenResolution(deviceID string) (string, error) {
	cmd := exec.Command(c.Path, "-s", deviceID, "shell", "wm", "size")
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return pickResolution(string(output)), nil
}

// pickResolution extracts the effective resolution from 'wm size' output
func pickResolution(output string) string {
	var physical, override string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if value, ok := strings.CutPrefix(line, "Physical size:"); ok {
			physical = strings.TrimSpace(value)
		}
		if value, ok := strings.CutPrefix(line, "Override size:"); ok {
			override = strings.TrimSpace(value)
		}
	}
	if override != "" {
		return override
	}
	if physical != "" {
		return physical
	}
	return "unknown"
}

// ParseResolution splits a "<width>x<height>" string into pixel dimensions.
// Returns zeros when the string does not parse.
func ParseResolution(resolution string) (int, int) {
	parts := strings.Split(strings.TrimSpace(resolution), "x")
	if len(parts) != 2 {
		return 0, 0
	}
	w, errW := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, errH := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0, 0
	}
	return w, h
}

// getBatteryLevel reads the battery level (0-100) from dumpsys
func (c *Client) getBatteryLevel(deviceID string) (int, error) {
	cmd := exec.Command(c.Path, "-s", deviceID, "shell", "dumpsys", "battery")
	output, err := cmd.Output()
	if err != nil {
		return 0, err
	}
	if level, ok := parseBatteryLevel(string(output)); ok {
		return level, nil
	}
	return 0, fmt.Errorf("battery level not found")
}

// parseBatteryLevel finds the "level:" line in dumpsys battery output
func parseBatteryLevel(output string) (int, bool) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if value, ok := strings.CutPrefix(line, "level:"); ok {
			if level, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
				return level, true
			}
		}
	}
	return 0, false
}

// Shell runs one shell command on the device and returns its output
func (c *Client) Shell(deviceID string, args ...string) (string, error) {
	fullArgs := append([]string{"-s", deviceID, "shell"}, args...)
	cmd := exec.Command(c.Path, fullArgs...)
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("shell command failed: %w", err)
	}
	return string(output), nil
}

// ScreenCapture captures the device screen and returns PNG bytes
func (c *Client) ScreenCapture(deviceID string) ([]byte, error) {
	cmd := exec.Command(c.Path, "-s", deviceID, "exec-out", "screencap", "-p")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("screencap failed: %w, stderr: %s", err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// SendTap sends a tap at pixel coordinates
func (c *Client) SendTap(deviceID string, x, y int) error {
	cmd := exec.Command(c.Path, "-s", deviceID, "shell", "input", "tap",
		strconv.Itoa(x), strconv.Itoa(y))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("tap failed: %w", err)
	}
	return nil
}

// SendSwipe sends a swipe gesture with a duration in milliseconds
func (c *Client) SendSwipe(deviceID string, x1, y1, x2, y2, durationMs int) error {
	cmd := exec.Command(c.Path, "-s", deviceID, "shell", "input", "swipe",
		strconv.Itoa(x1), strconv.Itoa(y1),
		strconv.Itoa(x2), strconv.Itoa(y2),
		strconv.Itoa(durationMs))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("swipe failed: %w", err)
	}
	return nil
}

// SendText types text into the focused input field.
// 'input text' does not accept literal spaces, they travel as %s.
func (c *Client) SendText(deviceID, text string) error {
	escaped := strings.ReplaceAll(text, " ", "%s")
	cmd := exec.Command(c.Path, "-s", deviceID, "shell", "input", "text", escaped)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("text input failed: %w", err)
	}
	return nil
}

// SendKey sends an Android keycode press
func (c *Client) SendKey(deviceID string, keycode int) error {
	cmd := exec.Command(c.Path, "-s", deviceID, "shell", "input", "keyevent",
		strconv.Itoa(keycode))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("key event failed: %w", err)
	}
	return nil
}

// OpenApp launches an app by package name via monkey
func (c *Client) OpenApp(deviceID, packageName string) error {
	cmd := exec.Command(c.Path, "-s", deviceID, "shell",
		"monkey", "-p", packageName, "-c", "android.intent.category.LAUNCHER", "1")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("app launch failed: %w", err)
	}
	return nil
}

// PushFile copies a local file onto the device
func (c *Client) PushFile(deviceID, localPath, remotePath string) error {
	cmd := exec.Command(c.Path, "-s", deviceID, "push", localPath, remotePath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("file push failed: %w, stderr: %s", err, stderr.String())
	}
	return nil
}

// Forward maps a local TCP port to an abstract socket on the device.
// Example: adb -s <deviceID> forward tcp:27183 localabstract:droidagent_1a2b3c4d
func (c *Client) Forward(deviceID string, localPort int, remoteSocket string) error {
	cmd := exec.Command(c.Path, "-s", deviceID, "forward",
		fmt.Sprintf("tcp:%d", localPort),
		fmt.Sprintf("localabstract:%s", remoteSocket))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("adb forward failed: %w", err)
	}
	return nil
}

// RemoveForward removes the forwarding for one local port
func (c *Client) RemoveForward(deviceID string, localPort int) error {
	cmd := exec.Command(c.Path, "-s", deviceID, "forward", "--remove",
		fmt.Sprintf("tcp:%d", localPort))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("adb forward remove failed: %w", err)
	}
	return nil
}

// ShellBackground starts a long-running shell command on the device without
// waiting for it. The caller owns the returned process.
func (c *Client) ShellBackground(deviceID string, args []string) (*exec.Cmd, error) {
	fullArgs := append([]string{"-s", deviceID, "shell"}, args...)
	cmd := exec.Command(c.Path, fullArgs...)
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start background command: %w", err)
	}
	return cmd, nil
}
