package remote

// Display server line protocol. Commands go to the device as single text
// frames; replies come back as text lines dispatched by their first token.
// Binary frames on the same socket carry H.264 video chunks.
const (
	cmdCreateDisplay  = "CREATE_DISPLAY"
	cmdDestroyDisplay = "DESTROY_DISPLAY"
	cmdScreenshot     = "SCREENSHOT"
	cmdTap            = "TAP"
	cmdSwipe          = "SWIPE"
	cmdKey            = "KEY"
	cmdTouchDown      = "TOUCH_DOWN"
	cmdTouchMove      = "TOUCH_MOVE"
	cmdTouchUp        = "TOUCH_UP"
	cmdLaunchApp      = "LAUNCH_APP"

	respDisplayCreated  = "DISPLAY_CREATED"
	respDisplaySize     = "DISPLAY_SIZE"
	respScreenshotData  = "SCREENSHOT_DATA"
	respScreenshotError = "SCREENSHOT_ERROR"
)
