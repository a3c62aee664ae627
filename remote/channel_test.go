package remote

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{}

// fakeDisplayServer stands in for the on-device display server. Each test
// gives it an onCommand handler that decides how to reply.
type fakeDisplayServer struct {
	srv       *httptest.Server
	onCommand func(conn *websocket.Conn, line string)

	mu       sync.Mutex
	received []string
	connects int
}

func newFakeDisplayServer(t *testing.T, onCommand func(conn *websocket.Conn, line string)) *fakeDisplayServer {
	f := &fakeDisplayServer{onCommand: onCommand}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.connects++
		f.mu.Unlock()
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			line := string(data)
			f.mu.Lock()
			f.received = append(f.received, line)
			f.mu.Unlock()
			if f.onCommand != nil {
				f.onCommand(conn, line)
			}
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeDisplayServer) url() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *fakeDisplayServer) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.received))
	copy(out, f.received)
	return out
}

func (f *fakeDisplayServer) connections() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func reply(conn *websocket.Conn, line string) {
	conn.WriteMessage(websocket.TextMessage, []byte(line))
}

func TestEnsureConnectedSharesOneDial(t *testing.T) {
	server := newFakeDisplayServer(t, nil)
	ch := NewDisplayChannel(server.url(), nil, nil)

	var wg sync.WaitGroup
	results := make([]bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = ch.EnsureConnected()
		}(i)
	}
	wg.Wait()

	for i, ok := range results {
		require.True(t, ok, "caller %d should see the shared dial succeed", i)
	}
	assert.Equal(t, 1, server.connections(), "concurrent callers must share one dial")
	assert.Equal(t, StateConnected, ch.State())
}

func TestEnsureConnectedFailsAgainstDeadServer(t *testing.T) {
	server := newFakeDisplayServer(t, nil)
	addr := server.url()
	server.srv.Close()

	ch := NewDisplayChannel(addr, nil, nil)
	assert.False(t, ch.EnsureConnected())
	assert.Equal(t, StateDisconnected, ch.State())
}

func TestSendFailsFastWhenDisconnected(t *testing.T) {
	ch := NewDisplayChannel("ws://127.0.0.1:1/ws", nil, nil)

	start := time.Now()
	ok := ch.Send("TAP 10 10")
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 100*time.Millisecond, "a disconnected send must not block")
}

func TestRequestScreenshotRoundTrip(t *testing.T) {
	payload := []byte("jpeg-bytes-here")
	server := newFakeDisplayServer(t, func(conn *websocket.Conn, line string) {
		if line == "SCREENSHOT" {
			reply(conn, "SCREENSHOT_DATA "+base64.StdEncoding.EncodeToString(payload))
		}
	})
	ch := NewDisplayChannel(server.url(), nil, nil)
	require.True(t, ch.EnsureConnected())

	data := ch.RequestScreenshot(2 * time.Second)
	assert.Equal(t, payload, data)
}

func TestRequestScreenshotDeviceError(t *testing.T) {
	server := newFakeDisplayServer(t, func(conn *websocket.Conn, line string) {
		if line == "SCREENSHOT" {
			reply(conn, "SCREENSHOT_ERROR display not ready")
		}
	})
	ch := NewDisplayChannel(server.url(), nil, nil)
	require.True(t, ch.EnsureConnected())

	assert.Nil(t, ch.RequestScreenshot(2*time.Second))
}

func TestRequestScreenshotTimeoutThenRecovery(t *testing.T) {
	fresh := []byte("fresh-frame")
	var screenshots int
	var mu sync.Mutex
	server := newFakeDisplayServer(t, func(conn *websocket.Conn, line string) {
		switch {
		case line == "SCREENSHOT":
			mu.Lock()
			screenshots++
			n := screenshots
			mu.Unlock()
			// First request is never answered; the second gets data.
			if n == 2 {
				reply(conn, "SCREENSHOT_DATA "+base64.StdEncoding.EncodeToString(fresh))
			}
		case strings.HasPrefix(line, "TAP"):
			// Simulates a reply arriving after its request timed out.
			reply(conn, "SCREENSHOT_DATA "+base64.StdEncoding.EncodeToString([]byte("stale")))
		}
	})
	ch := NewDisplayChannel(server.url(), nil, nil)
	require.True(t, ch.EnsureConnected())

	assert.Nil(t, ch.RequestScreenshot(50*time.Millisecond), "unanswered request must time out")

	// Provoke a stale reply; with no pending slot it must be dropped.
	require.True(t, ch.Tap(1, 1))
	time.Sleep(100 * time.Millisecond)

	data := ch.RequestScreenshot(2 * time.Second)
	assert.Equal(t, fresh, data, "stale reply must not satisfy a later request")
}

func TestDisplayCreatedAndSizeTracked(t *testing.T) {
	server := newFakeDisplayServer(t, func(conn *websocket.Conn, line string) {
		if strings.HasPrefix(line, "CREATE_DISPLAY") {
			reply(conn, "DISPLAY_CREATED 7")
			reply(conn, "DISPLAY_SIZE 720 1280")
		}
	})
	ch := NewDisplayChannel(server.url(), nil, nil)
	require.True(t, ch.EnsureConnected())
	require.True(t, ch.CreateDisplay(720, 1280, 320, 8000))

	assert.Eventually(t, func() bool {
		w, h := ch.DisplaySize()
		return ch.DisplayReady() && ch.DisplayID() == 7 && w == 720 && h == 1280
	}, 2*time.Second, 10*time.Millisecond)

	commands := server.commands()
	require.NotEmpty(t, commands)
	assert.Equal(t, "CREATE_DISPLAY 720 1280 320 8000", commands[0])
}

func TestCreateDisplayOmitsZeroBitrate(t *testing.T) {
	server := newFakeDisplayServer(t, nil)
	ch := NewDisplayChannel(server.url(), nil, nil)
	require.True(t, ch.EnsureConnected())
	require.True(t, ch.CreateDisplay(720, 1280, 320, 0))

	assert.Eventually(t, func() bool {
		cmds := server.commands()
		return len(cmds) == 1 && cmds[0] == "CREATE_DISPLAY 720 1280 320"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUnknownLinesAreIgnored(t *testing.T) {
	payload := []byte("frame")
	server := newFakeDisplayServer(t, func(conn *websocket.Conn, line string) {
		switch line {
		case "TAP 5 5":
			reply(conn, "BATTERY_LEVEL 93")
			reply(conn, "")
			reply(conn, "something entirely unexpected")
		case "SCREENSHOT":
			reply(conn, "SCREENSHOT_DATA "+base64.StdEncoding.EncodeToString(payload))
		}
	})
	ch := NewDisplayChannel(server.url(), nil, nil)
	require.True(t, ch.EnsureConnected())

	require.True(t, ch.Tap(5, 5))
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, StateConnected, ch.State(), "unknown lines must not drop the connection")
	assert.Equal(t, payload, ch.RequestScreenshot(2*time.Second))
}

func TestBinaryFramesReachVideoCallback(t *testing.T) {
	chunk := []byte{0x00, 0x00, 0x00, 0x01, 0x67, 0x42}
	server := newFakeDisplayServer(t, func(conn *websocket.Conn, line string) {
		if strings.HasPrefix(line, "CREATE_DISPLAY") {
			conn.WriteMessage(websocket.BinaryMessage, chunk)
		}
	})

	var mu sync.Mutex
	var got [][]byte
	ch := NewDisplayChannel(server.url(), func(data []byte) {
		mu.Lock()
		got = append(got, data)
		mu.Unlock()
	}, nil)
	require.True(t, ch.EnsureConnected())
	require.True(t, ch.CreateDisplay(720, 1280, 320, 0))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && assert.ObjectsAreEqual(chunk, got[0])
	}, 2*time.Second, 10*time.Millisecond)
}

func TestShutdownSendsDestroyDisplay(t *testing.T) {
	server := newFakeDisplayServer(t, nil)
	ch := NewDisplayChannel(server.url(), nil, nil)
	require.True(t, ch.EnsureConnected())

	ch.Shutdown()
	ch.Shutdown() // repeat must be harmless

	assert.Eventually(t, func() bool {
		for _, cmd := range server.commands() {
			if cmd == "DESTROY_DISPLAY" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, StateDisconnected, ch.State())
	assert.False(t, ch.Send("TAP 1 1"), "a shut-down channel refuses sends")
	assert.False(t, ch.EnsureConnected(), "a shut-down channel refuses reconnects")
}

func TestServerDropTriggersOnClose(t *testing.T) {
	server := newFakeDisplayServer(t, func(conn *websocket.Conn, line string) {
		if line == "QUIT" {
			conn.Close()
		}
	})

	closed := make(chan struct{})
	var once sync.Once
	ch := NewDisplayChannel(server.url(), nil, func(err error) {
		once.Do(func() { close(closed) })
	})
	require.True(t, ch.EnsureConnected())
	require.True(t, ch.Send("QUIT"))

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("onClose was not invoked after the server dropped the connection")
	}
	assert.Eventually(t, func() bool {
		return ch.State() == StateDisconnected
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGestureCommandFormats(t *testing.T) {
	server := newFakeDisplayServer(t, nil)
	ch := NewDisplayChannel(server.url(), nil, nil)
	require.True(t, ch.EnsureConnected())

	require.True(t, ch.Tap(100, 200))
	require.True(t, ch.Swipe(10, 20, 30, 40, 300))
	require.True(t, ch.Key(4))
	require.True(t, ch.TouchDown(1, 2))
	require.True(t, ch.TouchMove(3, 4))
	require.True(t, ch.TouchUp(5, 6))
	require.True(t, ch.LaunchApp("com.android.settings"))

	want := []string{
		"TAP 100 200",
		"SWIPE 10 20 30 40 300",
		"KEY 4",
		"TOUCH_DOWN 1 2",
		"TOUCH_MOVE 3 4",
		"TOUCH_UP 5 6",
		"LAUNCH_APP com.android.settings",
	}
	assert.Eventually(t, func() bool {
		return len(server.commands()) == len(want)
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, want, server.commands())
}
