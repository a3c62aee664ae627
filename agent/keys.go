package agent

// Common Android keycodes, as injected via KEY commands or adb keyevent.
const (
	AKEYCODE_HOME        = 3
	AKEYCODE_BACK        = 4
	AKEYCODE_DPAD_UP     = 19
	AKEYCODE_DPAD_DOWN   = 20
	AKEYCODE_DPAD_LEFT   = 21
	AKEYCODE_DPAD_RIGHT  = 22
	AKEYCODE_VOLUME_UP   = 24
	AKEYCODE_VOLUME_DOWN = 25
	AKEYCODE_ENTER       = 66
	AKEYCODE_DEL         = 67 // Backspace
	AKEYCODE_APP_SWITCH  = 187
)
