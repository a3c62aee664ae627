package remote

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"droidagent/logger"
)

// ConnState represents the display channel connection phase
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

// String returns a human-readable connection state
func (s ConnState) String() string {
	states := []string{"DISCONNECTED", "CONNECTING", "CONNECTED"}
	if int(s) < len(states) {
		return states[s]
	}
	return "UNKNOWN"
}

// connectTimeout bounds a single dial attempt, handshake included.
const connectTimeout = 5 * time.Second

// DisplayChannel drives one device's display server over a websocket.
// Text frames carry commands and replies, binary frames carry video.
// Sends are fail-fast: a channel that is not connected reports false
// instead of blocking the caller.
type DisplayChannel struct {
	addr    string
	onVideo func(chunk []byte)
	onClose func(err error)

	mu       sync.Mutex
	state    ConnState
	conn     *websocket.Conn
	dialWait chan struct{} // closed when the in-flight dial finishes
	closed   bool

	writeMu sync.Mutex // websocket allows one concurrent writer

	reqMu   sync.Mutex      // serializes screenshot requests
	pending *screenshotSlot // at most one in-flight screenshot

	displayID    int
	displayW     int
	displayH     int
	displayReady bool
}

// screenshotSlot holds the single in-flight screenshot request.
type screenshotSlot struct {
	done chan struct{}
	data []byte
	err  error
}

// NewDisplayChannel creates a channel for the given ws:// address.
// onVideo receives every binary frame; onClose fires when an established
// connection drops. Both callbacks may be nil.
func NewDisplayChannel(addr string, onVideo func([]byte), onClose func(error)) *DisplayChannel {
	return &DisplayChannel{
		addr:    addr,
		onVideo: onVideo,
		onClose: onClose,
		state:   StateDisconnected,
	}
}

// EnsureConnected returns true once the channel is connected, dialing if
// necessary. Only one dial is ever in flight: concurrent callers share the
// same attempt and its outcome, so the wait is bounded by one handshake
// timeout rather than one per caller.
func (c *DisplayChannel) EnsureConnected() bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	switch c.state {
	case StateConnected:
		c.mu.Unlock()
		return true
	case StateConnecting:
		wait := c.dialWait
		c.mu.Unlock()
		<-wait
		c.mu.Lock()
		ok := c.state == StateConnected
		c.mu.Unlock()
		return ok
	}

	// This caller owns the dial
	c.state = StateConnecting
	wait := make(chan struct{})
	c.dialWait = wait
	c.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: connectTimeout}
	conn, _, err := dialer.Dial(c.addr, nil)

	c.mu.Lock()
	defer close(wait)
	if err != nil {
		c.state = StateDisconnected
		c.mu.Unlock()
		logger.Warnf("⚠️ Display channel dial failed: %v", err)
		return false
	}
	if c.closed {
		c.state = StateDisconnected
		c.mu.Unlock()
		conn.Close()
		return false
	}
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()

	go c.readLoop(conn)
	logger.Debugf("🔌 Display channel connected: %s", c.addr)
	return true
}

// State returns the current connection state
func (c *DisplayChannel) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// DisplayReady reports whether the device confirmed the virtual display
func (c *DisplayChannel) DisplayReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.displayReady
}

// DisplayID returns the id the device assigned to the virtual display
func (c *DisplayChannel) DisplayID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.displayID
}

// DisplaySize returns the last size the device reported for the display
func (c *DisplayChannel) DisplaySize() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.displayW, c.displayH
}

// Send transmits one command line. It reports false when the channel is
// not connected or the write fails; it never waits for a connection.
func (c *DisplayChannel) Send(cmd string) bool {
	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil {
		c.mu.Unlock()
		return false
	}
	conn := c.conn
	c.mu.Unlock()

	c.writeMu.Lock()
	err := conn.WriteMessage(websocket.TextMessage, []byte(cmd))
	c.writeMu.Unlock()
	if err != nil {
		logger.Warnf("⚠️ Display channel write failed: %v", err)
		c.disconnect(err)
		return false
	}
	return true
}

// CreateDisplay asks the device to create a virtual display. A zero
// bitrate leaves the encoder at its device-side default.
func (c *DisplayChannel) CreateDisplay(width, height, dpi, bitrateKbps int) bool {
	if bitrateKbps > 0 {
		return c.Send(fmt.Sprintf("%s %d %d %d %d", cmdCreateDisplay, width, height, dpi, bitrateKbps))
	}
	return c.Send(fmt.Sprintf("%s %d %d %d", cmdCreateDisplay, width, height, dpi))
}

// Tap sends a tap at device pixel coordinates
func (c *DisplayChannel) Tap(x, y int) bool {
	return c.Send(fmt.Sprintf("%s %d %d", cmdTap, x, y))
}

// Swipe sends a swipe gesture with an explicit duration
func (c *DisplayChannel) Swipe(x1, y1, x2, y2, durationMs int) bool {
	return c.Send(fmt.Sprintf("%s %d %d %d %d %d", cmdSwipe, x1, y1, x2, y2, durationMs))
}

// Key sends an Android keycode press
func (c *DisplayChannel) Key(keycode int) bool {
	return c.Send(fmt.Sprintf("%s %d", cmdKey, keycode))
}

// TouchDown starts a raw touch contact
func (c *DisplayChannel) TouchDown(x, y int) bool {
	return c.Send(fmt.Sprintf("%s %d %d", cmdTouchDown, x, y))
}

// TouchMove moves a raw touch contact
func (c *DisplayChannel) TouchMove(x, y int) bool {
	return c.Send(fmt.Sprintf("%s %d %d", cmdTouchMove, x, y))
}

// TouchUp lifts a raw touch contact
func (c *DisplayChannel) TouchUp(x, y int) bool {
	return c.Send(fmt.Sprintf("%s %d %d", cmdTouchUp, x, y))
}

// LaunchApp opens an application on the virtual display
func (c *DisplayChannel) LaunchApp(pkg string) bool {
	return c.Send(fmt.Sprintf("%s %s", cmdLaunchApp, pkg))
}

// RequestScreenshot asks the display server for a screenshot and waits for
// the decoded reply. Requests are serialized: a second caller waits for the
// first to resolve, so a response can never be attributed to the wrong
// request. Returns nil when the channel is down, the device reported an
// error, or the timeout passed.
func (c *DisplayChannel) RequestScreenshot(timeout time.Duration) []byte {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	slot := &screenshotSlot{done: make(chan struct{})}
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.pending = slot
	c.mu.Unlock()

	if !c.Send(cmdScreenshot) {
		c.clearSlot(slot)
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-slot.done:
		if slot.err != nil {
			logger.Warnf("⚠️ Screenshot request failed: %v", slot.err)
			return nil
		}
		return slot.data
	case <-timer.C:
		c.clearSlot(slot)
		logger.Warnf("⚠️ Screenshot request timed out after %v", timeout)
		return nil
	}
}

// clearSlot unregisters slot if it is still the pending one. The identity
// check matters: a response may have resolved it between the timeout
// firing and this call, and a fresh request may already own the slot.
func (c *DisplayChannel) clearSlot(slot *screenshotSlot) {
	c.mu.Lock()
	if c.pending == slot {
		c.pending = nil
	}
	c.mu.Unlock()
}

// resolveScreenshot hands a decoded reply to the pending waiter. Late
// replies that arrive after a timeout find no slot and are dropped.
func (c *DisplayChannel) resolveScreenshot(data []byte, err error) {
	c.mu.Lock()
	slot := c.pending
	c.pending = nil
	c.mu.Unlock()
	if slot == nil {
		logger.Debugf("📷 Dropping stale screenshot reply")
		return
	}
	slot.data = data
	slot.err = err
	close(slot.done)
}

// readLoop dispatches incoming frames until the connection drops
func (c *DisplayChannel) readLoop(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			c.disconnect(err)
			return
		}
		switch msgType {
		case websocket.BinaryMessage:
			if c.onVideo != nil {
				c.onVideo(data)
			}
		case websocket.TextMessage:
			c.handleLine(string(data))
		}
	}
}

// handleLine routes one reply line by its first token. Unknown lines are
// logged and ignored so protocol additions never break the channel.
func (c *DisplayChannel) handleLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	fields := strings.Fields(line)
	switch fields[0] {
	case respDisplayCreated:
		if len(fields) > 1 {
			if id, err := strconv.Atoi(fields[1]); err == nil {
				c.mu.Lock()
				c.displayID = id
				c.displayReady = true
				c.mu.Unlock()
				logger.Successf("🖥️ Virtual display %d created", id)
			}
		}
	case respDisplaySize:
		if len(fields) > 2 {
			w, errW := strconv.Atoi(fields[1])
			h, errH := strconv.Atoi(fields[2])
			if errW == nil && errH == nil {
				c.mu.Lock()
				c.displayW, c.displayH = w, h
				c.mu.Unlock()
				logger.Debugf("📐 Display size reported: %dx%d", w, h)
			}
		}
	case respScreenshotData:
		if len(fields) < 2 {
			c.resolveScreenshot(nil, fmt.Errorf("empty screenshot payload"))
			return
		}
		data, err := base64.StdEncoding.DecodeString(fields[1])
		if err != nil {
			c.resolveScreenshot(nil, fmt.Errorf("decode screenshot payload: %w", err))
			return
		}
		c.resolveScreenshot(data, nil)
	case respScreenshotError:
		msg := strings.TrimSpace(strings.TrimPrefix(line, respScreenshotError))
		c.resolveScreenshot(nil, fmt.Errorf("device reported: %s", msg))
	default:
		logger.Debugf("📨 Display channel message: %s", truncateLine(line))
	}
}

// disconnect tears the socket down and fails any pending screenshot
func (c *DisplayChannel) disconnect(err error) {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	was := c.state
	c.state = StateDisconnected
	c.displayReady = false
	slot := c.pending
	c.pending = nil
	closed := c.closed
	c.mu.Unlock()

	if slot != nil {
		slot.err = fmt.Errorf("display channel disconnected")
		close(slot.done)
	}
	if was == StateConnected && !closed && c.onClose != nil {
		c.onClose(err)
	}
}

// Shutdown closes the channel for good. It sends a best-effort
// DESTROY_DISPLAY first so the device can release the virtual display;
// all errors along the way are swallowed because teardown must always
// complete. Safe to call more than once.
func (c *DisplayChannel) Shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		conn.WriteMessage(websocket.TextMessage, []byte(cmdDestroyDisplay))
		c.writeMu.Unlock()
	}
	c.disconnect(nil)
	logger.Debugf("🔌 Display channel shut down: %s", c.addr)
}

func truncateLine(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
