package service

import (
	"sync"
	"time"

	"droidagent/adb"
	"droidagent/logger"
	"droidagent/models"
)

// DeviceManager caches known devices and refreshes them via ADB scans
type DeviceManager struct {
	adb     *adb.Client
	devices map[string]*models.Device
	mu      sync.RWMutex
}

func NewDeviceManager(adbClient *adb.Client) *DeviceManager {
	return &DeviceManager{
		adb:     adbClient,
		devices: make(map[string]*models.Device),
	}
}

// ScanDevices refreshes the cache from adb. Devices that disappeared are
// marked offline rather than forgotten, so the UI can still show them.
func (m *DeviceManager) ScanDevices() error {
	found, err := m.adb.ListDevices()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool, len(found))
	for i := range found {
		device := found[i]
		device.LastSeen = time.Now().Unix()
		seen[device.ID] = true
		m.devices[device.ID] = &device
	}
	for id, device := range m.devices {
		if !seen[id] {
			device.Status = "offline"
		}
	}

	logger.Infof("📱 Device scan complete: %d online, %d known", len(found), len(m.devices))
	return nil
}

// GetAllDevices returns a snapshot of all known devices
func (m *DeviceManager) GetAllDevices() []models.Device {
	m.mu.RLock()
	defer m.mu.RUnlock()

	devices := make([]models.Device, 0, len(m.devices))
	for _, device := range m.devices {
		devices = append(devices, *device)
	}
	return devices
}

// GetDevice returns a copy of one device, or nil when unknown
func (m *DeviceManager) GetDevice(id string) *models.Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if device, ok := m.devices[id]; ok {
		snapshot := *device
		return &snapshot
	}
	return nil
}
