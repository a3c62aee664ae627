package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

var v *viper.Viper

func init() {
	v = viper.New()

	// Set default values
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("adb.path", "adb")
	v.SetDefault("display.width", 720)
	v.SetDefault("display.height", 1280)
	v.SetDefault("display.dpi", 320)
	v.SetDefault("display.bitrate_kbps", 8000)
	v.SetDefault("server.local_path", "./assets/droidagent-server.jar")
	v.SetDefault("server.device_path", "/data/local/tmp/droidagent-server.jar")
	v.SetDefault("ffmpeg.path", "ffmpeg")
	v.SetDefault("screenshot.timeout_ms", 3000)
	v.SetDefault("stream.jpeg_quality", 80)
	v.SetDefault("database.path", "./data/droidagent.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.dir", "logs")
	v.SetDefault("log.file_output", true)

	// Environment variables
	v.AutomaticEnv()
	v.BindEnv("http.addr", "HTTP_ADDR")
	v.BindEnv("adb.path", "ADB_PATH")
	v.BindEnv("display.width", "DISPLAY_WIDTH")
	v.BindEnv("display.height", "DISPLAY_HEIGHT")
	v.BindEnv("display.dpi", "DISPLAY_DPI")
	v.BindEnv("display.bitrate_kbps", "DISPLAY_BITRATE_KBPS")
	v.BindEnv("server.local_path", "SERVER_JAR_PATH")
	v.BindEnv("server.device_path", "SERVER_JAR_DEVICE_PATH")
	v.BindEnv("ffmpeg.path", "FFMPEG_PATH")
	v.BindEnv("screenshot.timeout_ms", "SCREENSHOT_TIMEOUT_MS")
	v.BindEnv("stream.jpeg_quality", "STREAM_JPEG_QUALITY")
	v.BindEnv("database.path", "DATABASE_PATH")
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.dir", "LOG_DIR")
	v.BindEnv("log.file_output", "LOG_FILE_OUTPUT")

	// Config file
	v.SetConfigName("droidagent")
	v.SetConfigType("yaml")

	configPaths := []string{
		".",
		"$HOME/.droidagent",
		"/etc/droidagent",
	}
	for _, path := range configPaths {
		v.AddConfigPath(os.ExpandEnv(path))
	}

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(fmt.Sprintf("Fatal error reading config file: %s", err))
		}
		// Config file not found; defaults and env vars apply
	}
}

// HTTPAddr returns the listen address for the HTTP API
func HTTPAddr() string {
	return v.GetString("http.addr")
}

// ADBPath returns the adb binary to use
func ADBPath() string {
	return v.GetString("adb.path")
}

// DisplayWidth returns the virtual display width in pixels
func DisplayWidth() int {
	return v.GetInt("display.width")
}

// DisplayHeight returns the virtual display height in pixels
func DisplayHeight() int {
	return v.GetInt("display.height")
}

// DisplayDPI returns the virtual display density
func DisplayDPI() int {
	return v.GetInt("display.dpi")
}

// DisplayBitrateKbps returns the encoder bitrate for the virtual display.
// Zero leaves the device-side default in place.
func DisplayBitrateKbps() int {
	return v.GetInt("display.bitrate_kbps")
}

// ServerJarLocalPath returns where the device server artifact lives locally
func ServerJarLocalPath() string {
	return v.GetString("server.local_path")
}

// ServerJarDevicePath returns where the server artifact is pushed on-device
func ServerJarDevicePath() string {
	return v.GetString("server.device_path")
}

// FFmpegPath returns the ffmpeg binary used for H.264 decoding
func FFmpegPath() string {
	return v.GetString("ffmpeg.path")
}

// ScreenshotTimeout returns how long to wait for a device-side screenshot
func ScreenshotTimeout() time.Duration {
	return time.Duration(v.GetInt("screenshot.timeout_ms")) * time.Millisecond
}

// JPEGQuality returns the quality used when encoding stream frames
func JPEGQuality() int {
	return v.GetInt("stream.jpeg_quality")
}

// DatabasePath returns the SQLite database location
func DatabasePath() string {
	return v.GetString("database.path")
}

// LogLevel returns the configured log verbosity
func LogLevel() string {
	return v.GetString("log.level")
}

// LogDir returns the directory for log files
func LogDir() string {
	return v.GetString("log.dir")
}

// LogFileOutput reports whether logs should also go to a file
func LogFileOutput() bool {
	return v.GetBool("log.file_output")
}
