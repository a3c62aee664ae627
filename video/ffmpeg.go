package video

import (
	"fmt"
	"image"
	"io"
	"os/exec"
	"sync"

	"droidagent/logger"
)

// NewFFmpegFactory returns a DecoderFactory that decodes H.264 through an
// ffmpeg child process: Annex-B units go in on stdin, raw RGBA frames come
// out on stdout. Output is scaled to the attach dimensions so every frame
// has a fixed byte size.
func NewFFmpegFactory(ffmpegPath string) DecoderFactory {
	return func(cfg DecoderConfig) (Decoder, error) {
		path := ffmpegPath
		if path == "" {
			path = "ffmpeg"
		}
		args := []string{
			"-hide_banner", "-loglevel", "error",
			"-fflags", "nobuffer",
			"-flags", "low_delay",
			"-f", "h264",
			"-i", "pipe:0",
			"-f", "rawvideo",
			"-pix_fmt", "rgba",
			"-vf", fmt.Sprintf("scale=%d:%d", cfg.Width, cfg.Height),
			"pipe:1",
		}
		cmd := exec.Command(path, args...)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("ffmpeg stdin: %w", err)
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("ffmpeg stdout: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("start ffmpeg: %w", err)
		}
		logger.Debugf("🎞️ ffmpeg decoder pid=%d scale=%dx%d", cmd.Process.Pid, cfg.Width, cfg.Height)

		d := &ffmpegDecoder{cmd: cmd, stdin: stdin}
		go d.readFrames(stdout, cfg)

		// The decoder needs the parameter sets before any frame data.
		if _, err := stdin.Write(cfg.CSD0); err != nil {
			d.Close()
			return nil, fmt.Errorf("write csd0: %w", err)
		}
		if _, err := stdin.Write(cfg.CSD1); err != nil {
			d.Close()
			return nil, fmt.Errorf("write csd1: %w", err)
		}
		return d, nil
	}
}

type ffmpegDecoder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	mu     sync.Mutex
	closed bool
}

// Submit writes one Annex-B chunk to the child process.
func (d *ffmpegDecoder) Submit(chunk []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("decoder closed")
	}
	if _, err := d.stdin.Write(chunk); err != nil {
		return fmt.Errorf("ffmpeg write: %w", err)
	}
	return nil
}

// Close stops the child process. Safe to call more than once.
func (d *ffmpegDecoder) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.stdin.Close()
	if d.cmd.Process != nil {
		d.cmd.Process.Kill()
	}
	go d.cmd.Wait() // reap without blocking the caller
}

// readFrames turns the fixed-size RGBA frames from ffmpeg into images.
func (d *ffmpegDecoder) readFrames(r io.Reader, cfg DecoderConfig) {
	frameSize := cfg.Width * cfg.Height * 4
	buf := make([]byte, frameSize)
	frames := 0
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				logger.Debugf("ffmpeg frame reader stopped: %v", err)
			}
			return
		}
		frames++
		if frames == 1 {
			logger.Debugf("🖼️ first decoded frame (%dx%d)", cfg.Width, cfg.Height)
		}
		img := &image.RGBA{
			Pix:    append([]byte(nil), buf...),
			Stride: cfg.Width * 4,
			Rect:   image.Rect(0, 0, cfg.Width, cfg.Height),
		}
		if cfg.Sink != nil {
			cfg.Sink.PushFrame(img)
		}
	}
}
