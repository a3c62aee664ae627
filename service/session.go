package service

import (
	"errors"
	"fmt"
	"image"
	"net"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"droidagent/action"
	"droidagent/adb"
	"droidagent/agent"
	"droidagent/config"
	"droidagent/logger"
	"droidagent/models"
	"droidagent/remote"
	"droidagent/video"
)

// Broadcaster interface to avoid an import cycle with the api package
type Broadcaster interface {
	BroadcastToDevice(deviceID string, message interface{})
	BroadcastToAll(message interface{})
}

var (
	ErrNoSession      = errors.New("no session for device")
	ErrDeviceNotFound = errors.New("device not found")
)

// SessionState tracks a device session lifecycle
type SessionState int

const (
	SessionStopped  SessionState = iota // Not running
	SessionStarting                     // Display server booting
	SessionRunning                      // Ready for steps
	SessionStopping                     // Cleanup in progress
)

func (s SessionState) String() string {
	return [...]string{"STOPPED", "STARTING", "RUNNING", "STOPPING"}[s]
}

const (
	maxReconnectAttempts   = 3
	confirmTimeout         = 60 * time.Second
	frameBroadcastInterval = 200 * time.Millisecond
	serverBootDelay        = 1500 * time.Millisecond
	dialRetries            = 10
	dialRetryDelay         = 300 * time.Millisecond
)

// AgentSession is the device-scoped agent context: display server process,
// websocket channel, video decoder, and the action dispatcher that runs
// steps against them. Lives across reconnects, not tied to any client.
type AgentSession struct {
	deviceID    string
	adbDeviceID string
	deviceW     int
	deviceH     int
	displayW    int
	displayH    int

	adb   *adb.Client
	store *StepStore
	hub   Broadcaster

	// Lifecycle state - protected by mu
	mu          sync.Mutex
	state       SessionState
	channel     *remote.DisplayChannel
	serverCmd   *exec.Cmd
	localPort   int
	socketName  string
	lastError   string
	lastJPEG    []byte
	lastFrameAt time.Time

	decoder *video.StreamDecoder
	frames  *video.FrameBuffer

	// One step at a time per device
	dispatcher      *agent.Dispatcher
	stepMu          sync.Mutex
	cancelRequested atomic.Bool

	confirmMu   sync.Mutex
	confirms    map[string]chan bool
	confirmWait time.Duration
}

func newAgentSession(m *SessionManager, device *models.Device) *AgentSession {
	s := &AgentSession{
		deviceID:    device.ID,
		adbDeviceID: device.ADBDeviceID,
		deviceW:     device.Width,
		deviceH:     device.Height,
		displayW:    config.DisplayWidth(),
		displayH:    config.DisplayHeight(),
		adb:         m.adb,
		store:       m.store,
		hub:         m.hub,
		decoder:     video.NewStreamDecoder(m.factory),
		frames:      video.NewFrameBuffer(),
		confirms:    make(map[string]chan bool),
		confirmWait: confirmTimeout,
	}
	s.decoder.SetQuality(config.JPEGQuality())
	s.frames.OnFrame(s.handleDecodedFrame)
	s.dispatcher = agent.NewDispatcher(agent.Callbacks{
		Confirm:   s.requestConfirmation,
		Takeover:  s.notifyTakeover,
		Cancelled: s.cancelRequested.Load,
	})
	return s
}

// State returns the current session state
func (s *AgentSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start transitions the session towards RUNNING. Duplicate starts while
// starting or running are no-ops.
func (s *AgentSession) Start() error {
	s.mu.Lock()
	switch s.state {
	case SessionStarting, SessionRunning:
		s.mu.Unlock()
		logger.Debugf("⏳ [%s] Session already active, skipping duplicate start", s.deviceID)
		return nil
	case SessionStopping:
		s.mu.Unlock()
		return fmt.Errorf("session is stopping, retry later")
	}
	s.state = SessionStarting
	s.lastError = ""
	s.mu.Unlock()

	logger.Infof("🆕 [%s] Starting agent session", s.deviceID)
	s.broadcastState()
	go s.run()
	return nil
}

// run boots the session and leaves it RUNNING, or tears it down on failure
func (s *AgentSession) run() {
	if err := s.bootstrap(); err != nil {
		logger.Errorf("❌ [%s] Session bootstrap failed: %v", s.deviceID, err)
		s.mu.Lock()
		s.lastError = err.Error()
		s.state = SessionStopping
		s.mu.Unlock()
		s.teardown()
		return
	}
	s.setState(SessionRunning)
	logger.Successf("✅ [%s] Agent session running", s.deviceID)
}

// bootstrap pushes the display server onto the device, boots it behind an
// adb forward, connects the websocket channel and requests the virtual
// display.
func (s *AgentSession) bootstrap() error {
	if err := s.adb.IsAvailable(); err != nil {
		return err
	}

	logger.Infof("📦 [%s] Pushing display server...", s.adbDeviceID)
	if err := s.adb.PushFile(s.adbDeviceID, config.ServerJarLocalPath(), config.ServerJarDevicePath()); err != nil {
		return fmt.Errorf("failed to push display server: %w", err)
	}

	port := findFreePort()
	if port == 0 {
		return fmt.Errorf("no free local port for adb forward")
	}
	socketName := fmt.Sprintf("droidagent_%s", uuid.NewString()[:8])
	logger.Infof("🔌 [%s] Setting up ADB forward on port %d (socket: %s)...", s.adbDeviceID, port, socketName)
	if err := s.adb.Forward(s.adbDeviceID, port, socketName); err != nil {
		return fmt.Errorf("failed to set up adb forward: %w", err)
	}

	serverArgs := []string{
		"CLASSPATH=" + config.ServerJarDevicePath(),
		"app_process",
		"/",
		"com.droidagent.server.DisplayServer",
		"socket=" + socketName,
	}
	cmd, err := s.adb.ShellBackground(s.adbDeviceID, serverArgs)
	if err != nil {
		s.adb.RemoveForward(s.adbDeviceID, port)
		return fmt.Errorf("failed to start display server: %w", err)
	}

	s.mu.Lock()
	s.serverCmd = cmd
	s.localPort = port
	s.socketName = socketName
	s.mu.Unlock()
	logger.Infof("🚀 [%s] Display server process started (PID: %d)", s.adbDeviceID, cmd.Process.Pid)

	// app_process needs a moment before the socket accepts connections
	time.Sleep(serverBootDelay)

	channel := remote.NewDisplayChannel(
		fmt.Sprintf("ws://127.0.0.1:%d/", port),
		s.handleVideoChunk,
		s.handleChannelClosed,
	)
	s.mu.Lock()
	s.channel = channel
	s.mu.Unlock()

	if !dialWithRetry(channel, dialRetries, dialRetryDelay) {
		return fmt.Errorf("display server did not accept a connection on port %d", port)
	}
	if s.State() != SessionStarting {
		return fmt.Errorf("session start aborted")
	}

	if !channel.CreateDisplay(s.displayW, s.displayH, config.DisplayDPI(), config.DisplayBitrateKbps()) {
		return fmt.Errorf("failed to request virtual display")
	}
	s.decoder.Attach(s.frames, s.displayW, s.displayH)
	return nil
}

// Stop tears the session down. Safe to call in any state.
func (s *AgentSession) Stop() {
	s.mu.Lock()
	if s.state == SessionStopping || s.state == SessionStopped {
		s.mu.Unlock()
		return
	}
	s.state = SessionStopping
	s.mu.Unlock()

	logger.Infof("🛑 [%s] Stopping agent session", s.deviceID)
	s.broadcastState()
	s.teardown()
}

// teardown releases everything the session holds. Every cleanup error is
// swallowed: teardown must always run to completion.
func (s *AgentSession) teardown() {
	s.mu.Lock()
	channel := s.channel
	s.channel = nil
	cmd := s.serverCmd
	s.serverCmd = nil
	port := s.localPort
	s.localPort = 0
	s.mu.Unlock()

	if channel != nil {
		channel.Shutdown()
	}
	s.decoder.Detach()
	if cmd != nil && cmd.Process != nil {
		cmd.Process.Kill()
		go cmd.Wait()
	}
	if port != 0 {
		if err := s.adb.RemoveForward(s.adbDeviceID, port); err != nil {
			logger.Debugf("⚠️ [%s] Forward cleanup: %v", s.adbDeviceID, err)
		}
	}
	s.setState(SessionStopped)
}

// handleVideoChunk feeds display server video into the decoder
func (s *AgentSession) handleVideoChunk(chunk []byte) {
	s.decoder.OnChunk(chunk)
}

// handleChannelClosed reacts to an established connection dropping
func (s *AgentSession) handleChannelClosed(err error) {
	if s.State() != SessionRunning {
		return
	}
	logger.Warnf("⚠️ [%s] Display channel dropped: %v", s.deviceID, err)
	go s.reconnect()
}

// reconnect re-dials the display server with exponential backoff. When all
// attempts fail the session stays RUNNING and device actions fall back to
// plain adb input.
func (s *AgentSession) reconnect() {
	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		backoff := time.Duration(1<<attempt) * time.Second
		logger.Infof("🔄 [%s] Reconnect attempt %d/%d in %v", s.deviceID, attempt, maxReconnectAttempts, backoff)
		time.Sleep(backoff)

		if s.State() != SessionRunning {
			return
		}
		s.mu.Lock()
		channel := s.channel
		s.mu.Unlock()
		if channel == nil {
			return
		}
		if !channel.EnsureConnected() {
			continue
		}
		if !channel.CreateDisplay(s.displayW, s.displayH, config.DisplayDPI(), config.DisplayBitrateKbps()) {
			continue
		}
		s.decoder.Attach(s.frames, s.displayW, s.displayH)
		logger.Successf("✅ [%s] Display channel reconnected", s.deviceID)
		return
	}
	logger.Errorf("❌ [%s] Display channel lost, device actions fall back to adb", s.deviceID)
}

// handleDecodedFrame throttles decoded frames to JPEG broadcasts for
// dashboard viewers and keeps the newest encoding for replay.
func (s *AgentSession) handleDecodedFrame(img image.Image) {
	s.mu.Lock()
	if time.Since(s.lastFrameAt) < frameBroadcastInterval {
		s.mu.Unlock()
		return
	}
	s.lastFrameAt = time.Now()
	s.mu.Unlock()

	data, err := video.EncodeJPEG(img, config.JPEGQuality())
	if err != nil {
		logger.Debugf("⚠️ [%s] Frame encode failed: %v", s.deviceID, err)
		return
	}

	s.mu.Lock()
	s.lastJPEG = data
	s.mu.Unlock()

	if s.hub != nil {
		s.hub.BroadcastToDevice(s.deviceID, buildFramePacket(s.deviceID, data))
	}
}

// ExecuteStep parses one line of model output and runs it. Steps are
// serialized per device; the cancel flag resets at the start of each step.
func (s *AgentSession) ExecuteStep(text string) (models.StepRecord, agent.Result) {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()

	s.cancelRequested.Store(false)
	act := action.Parse(text)
	logger.Infof("🤖 [%s] Executing step: %s", s.deviceID, act.Serialize())

	start := time.Now()
	result := s.dispatcher.Execute(act, s.displayContext())
	elapsed := time.Since(start)

	record := models.StepRecord{
		DeviceID:   s.deviceID,
		Text:       text,
		Kind:       string(act.Kind),
		Success:    result.Success,
		Finished:   result.ShouldFinish,
		Cancelled:  result.Cancelled,
		Message:    result.Message,
		DurationMs: elapsed.Milliseconds(),
	}
	stored, err := s.store.RecordStep(record)
	if err != nil {
		logger.Warnf("⚠️ [%s] Failed to persist step: %v", s.deviceID, err)
		stored = record
	}

	if s.hub != nil {
		s.hub.BroadcastToDevice(s.deviceID, map[string]interface{}{
			"type":      "step_result",
			"device_id": s.deviceID,
			"step":      stored,
			"result":    result,
		})
	}
	return stored, result
}

// displayContext snapshots where actions should land right now: the
// virtual display when the channel is up, the physical screen otherwise.
func (s *AgentSession) displayContext() agent.DisplayContext {
	dc := agent.DisplayContext{
		Controller: &sessionController{session: s},
		PixelInput: true,
		Width:      s.deviceW,
		Height:     s.deviceH,
	}
	s.mu.Lock()
	channel := s.channel
	s.mu.Unlock()
	if channel != nil && channel.State() == remote.StateConnected {
		if w, h := channel.DisplaySize(); w > 0 && h > 0 {
			dc.Width, dc.Height = w, h
		} else {
			dc.Width, dc.Height = s.displayW, s.displayH
		}
	}
	return dc
}

// CaptureScreen returns a screenshot and its content type. Source picks
// the tier: "remote" asks the display server, "stream" reads the decoder
// back, "device" shells out to screencap, "auto" tries them in that order.
func (s *AgentSession) CaptureScreen(source string) ([]byte, string, error) {
	switch source {
	case "", "auto":
		if data := s.remoteScreenshot(); data != nil {
			return data, "image/png", nil
		}
		if data := s.decoder.CaptureFrame(time.Second); data != nil {
			return data, "image/jpeg", nil
		}
		data, err := s.adb.ScreenCapture(s.adbDeviceID)
		if err != nil {
			return nil, "", fmt.Errorf("all screenshot tiers failed: %w", err)
		}
		return data, "image/png", nil
	case "remote":
		if data := s.remoteScreenshot(); data != nil {
			return data, "image/png", nil
		}
		return nil, "", fmt.Errorf("remote screenshot unavailable")
	case "stream":
		if data := s.decoder.CaptureFrame(time.Second); data != nil {
			return data, "image/jpeg", nil
		}
		return nil, "", fmt.Errorf("no decoded frame available")
	case "device":
		data, err := s.adb.ScreenCapture(s.adbDeviceID)
		if err != nil {
			return nil, "", err
		}
		return data, "image/png", nil
	default:
		return nil, "", fmt.Errorf("unknown screenshot source: %s", source)
	}
}

// remoteScreenshot asks the display server, retrying once because a single
// request can get lost around a reconnect.
func (s *AgentSession) remoteScreenshot() []byte {
	s.mu.Lock()
	channel := s.channel
	s.mu.Unlock()
	if channel == nil {
		return nil
	}
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			time.Sleep(300 * time.Millisecond)
		}
		if channel.State() != remote.StateConnected {
			return nil
		}
		if data := channel.RequestScreenshot(config.ScreenshotTimeout()); data != nil {
			return data
		}
	}
	return nil
}

// Touch forwards one raw touch event to the virtual display
func (s *AgentSession) Touch(phase string, x, y int) error {
	s.mu.Lock()
	channel := s.channel
	s.mu.Unlock()
	if channel == nil || channel.State() != remote.StateConnected {
		return fmt.Errorf("no display channel for touch events")
	}

	var ok bool
	switch phase {
	case "down":
		ok = channel.TouchDown(x, y)
	case "move":
		ok = channel.TouchMove(x, y)
	case "up":
		ok = channel.TouchUp(x, y)
	default:
		return fmt.Errorf("unknown touch phase: %s", phase)
	}
	if !ok {
		return fmt.Errorf("touch send failed")
	}
	return nil
}

// requestConfirmation parks a sensitive step until a client approves it,
// declines it, or the window times out (timeout counts as declined).
func (s *AgentSession) requestConfirmation(message string) bool {
	id := uuid.NewString()
	ch := make(chan bool, 1)
	s.confirmMu.Lock()
	s.confirms[id] = ch
	s.confirmMu.Unlock()
	defer func() {
		s.confirmMu.Lock()
		delete(s.confirms, id)
		s.confirmMu.Unlock()
	}()

	if s.hub != nil {
		s.hub.BroadcastToDevice(s.deviceID, map[string]interface{}{
			"type":       "confirmation_request",
			"device_id":  s.deviceID,
			"confirm_id": id,
			"message":    message,
		})
	}
	logger.Infof("🔐 [%s] Awaiting confirmation: %s", s.deviceID, message)

	select {
	case approve := <-ch:
		return approve
	case <-time.After(s.confirmWait):
		logger.Warnf("⚠️ [%s] Confirmation timed out, treating as declined", s.deviceID)
		return false
	}
}

// ResolveConfirmation answers one pending confirmation by id
func (s *AgentSession) ResolveConfirmation(id string, approve bool) bool {
	s.confirmMu.Lock()
	ch, ok := s.confirms[id]
	if ok {
		delete(s.confirms, id)
	}
	s.confirmMu.Unlock()
	if !ok {
		return false
	}
	ch <- approve
	return true
}

// notifyTakeover tells clients the agent paused for manual control
func (s *AgentSession) notifyTakeover(message string) {
	logger.Infof("🖐️ [%s] Takeover requested: %s", s.deviceID, message)
	if s.hub != nil {
		s.hub.BroadcastToDevice(s.deviceID, map[string]interface{}{
			"type":      "takeover",
			"device_id": s.deviceID,
			"message":   message,
		})
	}
}

// Status reports the session for the API
func (s *AgentSession) Status() models.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := models.SessionStatus{
		DeviceID:  s.deviceID,
		State:     s.state.String(),
		Channel:   remote.StateDisconnected.String(),
		LastError: s.lastError,
	}
	if s.channel != nil {
		status.Channel = s.channel.State().String()
		status.DisplayReady = s.channel.DisplayReady()
		status.DisplayWidth, status.DisplayHeight = s.channel.DisplaySize()
	}
	status.DecoderActive = s.decoder.Active()
	return status
}

func (s *AgentSession) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.broadcastState()
}

func (s *AgentSession) broadcastState() {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastToDevice(s.deviceID, map[string]interface{}{
		"type":      "session_state",
		"device_id": s.deviceID,
		"state":     s.State().String(),
	})
}

// sessionController routes device actions to the display channel when it
// is connected, falling back to plain adb input. Text input always goes
// through adb: the display server protocol has no text command.
type sessionController struct {
	session *AgentSession
}

func (c *sessionController) channel() *remote.DisplayChannel {
	c.session.mu.Lock()
	defer c.session.mu.Unlock()
	if c.session.channel != nil && c.session.channel.State() == remote.StateConnected {
		return c.session.channel
	}
	return nil
}

func (c *sessionController) Tap(x, y int) error {
	if ch := c.channel(); ch != nil && ch.Tap(x, y) {
		return nil
	}
	return c.session.adb.SendTap(c.session.adbDeviceID, x, y)
}

func (c *sessionController) Swipe(x1, y1, x2, y2 int, duration time.Duration) error {
	durationMs := int(duration.Milliseconds())
	if ch := c.channel(); ch != nil && ch.Swipe(x1, y1, x2, y2, durationMs) {
		return nil
	}
	return c.session.adb.SendSwipe(c.session.adbDeviceID, x1, y1, x2, y2, durationMs)
}

func (c *sessionController) Key(keycode int) error {
	if ch := c.channel(); ch != nil && ch.Key(keycode) {
		return nil
	}
	return c.session.adb.SendKey(c.session.adbDeviceID, keycode)
}

func (c *sessionController) InputText(text string) error {
	return c.session.adb.SendText(c.session.adbDeviceID, text)
}

func (c *sessionController) LaunchApp(pkg string) error {
	if ch := c.channel(); ch != nil && ch.LaunchApp(pkg) {
		return nil
	}
	return c.session.adb.OpenApp(c.session.adbDeviceID, pkg)
}

// SessionManager owns one AgentSession per device
type SessionManager struct {
	adb           *adb.Client
	deviceManager *DeviceManager
	store         *StepStore
	hub           Broadcaster
	factory       video.DecoderFactory

	sessions map[string]*AgentSession
	mu       sync.RWMutex
}

func NewSessionManager(adbClient *adb.Client, dm *DeviceManager, store *StepStore, hub Broadcaster) *SessionManager {
	return &SessionManager{
		adb:           adbClient,
		deviceManager: dm,
		store:         store,
		hub:           hub,
		factory:       video.NewFFmpegFactory(config.FFmpegPath()),
		sessions:      make(map[string]*AgentSession),
	}
}

// StartSession starts (or reuses) the session for a device
func (m *SessionManager) StartSession(deviceID string) error {
	m.mu.Lock()
	session, exists := m.sessions[deviceID]
	if !exists {
		device := m.deviceManager.GetDevice(deviceID)
		if device == nil {
			m.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
		}
		if device.Status != "online" {
			m.mu.Unlock()
			return fmt.Errorf("device offline: %s", deviceID)
		}
		session = newAgentSession(m, device)
		m.sessions[deviceID] = session
	}
	m.mu.Unlock()
	return session.Start()
}

// StopSession stops the session for a device, if any
func (m *SessionManager) StopSession(deviceID string) error {
	session := m.getSession(deviceID)
	if session == nil {
		return fmt.Errorf("%w: %s", ErrNoSession, deviceID)
	}
	session.Stop()
	return nil
}

// Status reports the session state for a device. Devices without a
// session read as stopped.
func (m *SessionManager) Status(deviceID string) models.SessionStatus {
	session := m.getSession(deviceID)
	if session == nil {
		return models.SessionStatus{
			DeviceID: deviceID,
			State:    SessionStopped.String(),
			Channel:  remote.StateDisconnected.String(),
		}
	}
	return session.Status()
}

// ExecuteStep runs one step against a device's session
func (m *SessionManager) ExecuteStep(deviceID, text string) (models.StepRecord, agent.Result, error) {
	session := m.getSession(deviceID)
	if session == nil {
		return models.StepRecord{}, agent.Result{}, fmt.Errorf("%w: %s", ErrNoSession, deviceID)
	}
	record, result := session.ExecuteStep(text)
	return record, result, nil
}

// CaptureScreen grabs a screenshot. Without a session only the adb tier
// is available.
func (m *SessionManager) CaptureScreen(deviceID, source string) ([]byte, string, error) {
	if session := m.getSession(deviceID); session != nil {
		return session.CaptureScreen(source)
	}
	if source == "remote" || source == "stream" {
		return nil, "", fmt.Errorf("%w: %s", ErrNoSession, deviceID)
	}
	device := m.deviceManager.GetDevice(deviceID)
	if device == nil {
		return nil, "", fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	data, err := m.adb.ScreenCapture(device.ADBDeviceID)
	if err != nil {
		return nil, "", err
	}
	return data, "image/png", nil
}

// Touch forwards a raw touch event to a device's virtual display
func (m *SessionManager) Touch(deviceID, phase string, x, y int) error {
	session := m.getSession(deviceID)
	if session == nil {
		return fmt.Errorf("%w: %s", ErrNoSession, deviceID)
	}
	return session.Touch(phase, x, y)
}

// ResolveConfirmation answers a pending sensitive-step confirmation
func (m *SessionManager) ResolveConfirmation(deviceID, confirmID string, approve bool) error {
	session := m.getSession(deviceID)
	if session == nil {
		return fmt.Errorf("%w: %s", ErrNoSession, deviceID)
	}
	if !session.ResolveConfirmation(confirmID, approve) {
		return fmt.Errorf("no pending confirmation: %s", confirmID)
	}
	return nil
}

// RequestCancel flags the in-flight step for cancellation
func (m *SessionManager) RequestCancel(deviceID string) error {
	session := m.getSession(deviceID)
	if session == nil {
		return fmt.Errorf("%w: %s", ErrNoSession, deviceID)
	}
	session.cancelRequested.Store(true)
	logger.Infof("✋ [%s] Cancel requested", deviceID)
	return nil
}

// LatestFramePacket returns the newest broadcast-framed JPEG for a device,
// or nil when nothing has been decoded yet. Used to warm up new
// dashboard subscribers.
func (m *SessionManager) LatestFramePacket(deviceID string) []byte {
	session := m.getSession(deviceID)
	if session == nil {
		return nil
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.lastJPEG == nil {
		return nil
	}
	return buildFramePacket(deviceID, session.lastJPEG)
}

func (m *SessionManager) getSession(deviceID string) *AgentSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[deviceID]
}

// buildFramePacket frames a payload as [1-byte id length][device id][payload]
// so one dashboard socket can carry frames for many devices.
func buildFramePacket(deviceID string, payload []byte) []byte {
	idLen := len(deviceID)
	if idLen > 255 {
		return nil
	}
	pkt := make([]byte, 1+idLen+len(payload))
	pkt[0] = byte(idLen)
	copy(pkt[1:], deviceID)
	copy(pkt[1+idLen:], payload)
	return pkt
}

// dialWithRetry lets the display server finish booting before giving up
func dialWithRetry(channel *remote.DisplayChannel, attempts int, delay time.Duration) bool {
	for i := 0; i < attempts; i++ {
		if channel.EnsureConnected() {
			return true
		}
		time.Sleep(delay)
	}
	return false
}

func findFreePort() int {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port
}
