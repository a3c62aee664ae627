package agent

import (
	"fmt"
	"sync/atomic"
	"time"

	"droidagent/action"
)

// State is the dispatcher's execution phase, observable while a step runs.
type State int32

const (
	StateIdle State = iota
	StateExecuting
	StateAwaitingConfirmation
	StateAwaitingTakeover
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	return [...]string{"IDLE", "EXECUTING", "AWAITING_CONFIRMATION", "AWAITING_TAKEOVER", "SUCCEEDED", "FAILED"}[s]
}

// DeviceController is the control surface an action executes on. Both the
// remote display channel and the adb fallback satisfy it.
type DeviceController interface {
	Tap(x, y int) error
	Swipe(x1, y1, x2, y2 int, duration time.Duration) error
	Key(keycode int) error
	InputText(text string) error
	LaunchApp(pkg string) error
}

// DisplayContext tells the dispatcher where an action lands.
type DisplayContext struct {
	Controller DeviceController
	Width      int  // device pixels; zero disables normalized-coordinate detection
	Height     int
	PixelInput bool // controller expects pixel coordinates
}

// Result is the outcome of a single dispatched action.
type Result struct {
	Success              bool   `json:"success"`
	ShouldFinish         bool   `json:"should_finish"`
	Cancelled            bool   `json:"cancelled,omitempty"`
	RequiresConfirmation bool   `json:"requires_confirmation,omitempty"`
	Message              string `json:"message,omitempty"`
}

// Callbacks let the session resolve pauses without the dispatcher knowing
// anything about transports or UIs. All fields are optional: a nil Confirm
// approves, a nil Cancelled never cancels.
type Callbacks struct {
	Confirm   func(message string) bool // gate for sensitive actions
	Takeover  func(message string)      // notice before a takeover pause
	Cancelled func() bool               // polled during waits and takeovers
}

// Dispatcher executes one parsed action at a time against a display context.
type Dispatcher struct {
	cb    Callbacks
	state atomic.Int32

	// Timing knobs, shortened by tests.
	settleDelay     time.Duration
	doubleTapGap    time.Duration
	longPressHold   time.Duration
	swipeDuration   time.Duration
	waitTick        time.Duration
	takeoverTick    time.Duration
	takeoverCeiling time.Duration
}

// NewDispatcher creates a dispatcher with production timings.
func NewDispatcher(cb Callbacks) *Dispatcher {
	return &Dispatcher{
		cb:              cb,
		settleDelay:     300 * time.Millisecond,
		doubleTapGap:    100 * time.Millisecond,
		longPressHold:   time.Second,
		swipeDuration:   300 * time.Millisecond,
		waitTick:        100 * time.Millisecond,
		takeoverTick:    200 * time.Millisecond,
		takeoverCeiling: 30 * time.Second,
	}
}

// State returns the current execution phase. After a step it keeps the
// terminal state until the next Execute call.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// Execute runs a single action synchronously and returns its result. It
// never panics: faults inside executor calls come back as failed results.
func (d *Dispatcher) Execute(act action.Action, dc DisplayContext) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Message: fmt.Sprintf("action %s panicked: %v", act.Kind, r)}
		}
		if res.Success {
			d.state.Store(int32(StateSucceeded))
		} else {
			d.state.Store(int32(StateFailed))
		}
	}()
	d.state.Store(int32(StateExecuting))

	// finish carries the model's result text and never touches the device.
	if act.Kind == action.KindFinish {
		msg := act.Message
		if msg == "" {
			msg = "task complete"
		}
		return Result{Success: true, ShouldFinish: true, Message: msg}
	}
	if act.Kind == action.KindUnknown {
		return Result{Message: "unknown action: " + truncate(act.Raw, 120)}
	}

	requiresConfirm := act.Sensitive && act.Message != ""
	if requiresConfirm {
		d.state.Store(int32(StateAwaitingConfirmation))
		if !d.confirm(act.Message) {
			return Result{ShouldFinish: true, RequiresConfirmation: true,
				Message: "user declined: " + act.Message}
		}
		d.state.Store(int32(StateExecuting))
	}

	res = d.perform(act, dc)
	res.RequiresConfirmation = requiresConfirm
	return res
}

// perform dispatches by kind. Wait and take_over never need a controller.
func (d *Dispatcher) perform(act action.Action, dc DisplayContext) Result {
	switch act.Kind {
	case action.KindWait:
		return d.performWait(act.Duration)
	case action.KindTakeOver:
		return d.performTakeover(act.Message)
	case action.KindNote, action.KindCallAPI, action.KindInteract:
		// Consumed by the agent layer, nothing to do on the device.
		return Result{Success: true, Message: string(act.Kind) + " acknowledged"}
	}

	ctl := dc.Controller
	if ctl == nil {
		return Result{Message: "no control channel available for device actions"}
	}

	switch act.Kind {
	case action.KindTap:
		x, y, ok := d.point(act, dc, 0)
		if !ok {
			return Result{Message: "tap requires coordinates"}
		}
		if err := ctl.Tap(x, y); err != nil {
			return Result{Message: err.Error()}
		}
		return Result{Success: true, Message: fmt.Sprintf("tapped (%d, %d)", x, y)}

	case action.KindDoubleTap:
		x, y, ok := d.point(act, dc, 0)
		if !ok {
			return Result{Message: "double_tap requires coordinates"}
		}
		if err := ctl.Tap(x, y); err != nil {
			return Result{Message: err.Error()}
		}
		time.Sleep(d.doubleTapGap)
		if err := ctl.Tap(x, y); err != nil {
			return Result{Message: err.Error()}
		}
		return Result{Success: true, Message: fmt.Sprintf("double-tapped (%d, %d)", x, y)}

	case action.KindLongPress:
		x, y, ok := d.point(act, dc, 0)
		if !ok {
			return Result{Message: "long_press requires coordinates"}
		}
		// A zero-distance swipe held down reads as a long press.
		if err := ctl.Swipe(x, y, x, y, d.longPressHold); err != nil {
			return Result{Message: err.Error()}
		}
		return Result{Success: true, Message: fmt.Sprintf("long-pressed (%d, %d)", x, y)}

	case action.KindSwipe:
		x1, y1, ok := d.point(act, dc, 0)
		if !ok {
			return Result{Message: "swipe requires start and end coordinates"}
		}
		x2, y2, ok := d.point(act, dc, 1)
		if !ok {
			return Result{Message: "swipe requires start and end coordinates"}
		}
		dur := act.Duration
		if dur <= 0 {
			dur = d.swipeDuration
		}
		if err := ctl.Swipe(x1, y1, x2, y2, dur); err != nil {
			return Result{Message: err.Error()}
		}
		return Result{Success: true, Message: fmt.Sprintf("swiped (%d, %d) -> (%d, %d)", x1, y1, x2, y2)}

	case action.KindType:
		if act.Text == "" {
			return Result{Success: true, Message: "nothing to type"}
		}
		// Give the focused field a moment before and after injection.
		time.Sleep(d.settleDelay)
		if err := ctl.InputText(act.Text); err != nil {
			return Result{Message: err.Error()}
		}
		time.Sleep(d.settleDelay)
		return Result{Success: true, Message: fmt.Sprintf("typed %d chars", len(act.Text))}

	case action.KindBack:
		if err := ctl.Key(AKEYCODE_BACK); err != nil {
			return Result{Message: err.Error()}
		}
		return Result{Success: true, Message: "pressed back"}

	case action.KindHome:
		if err := ctl.Key(AKEYCODE_HOME); err != nil {
			return Result{Message: err.Error()}
		}
		return Result{Success: true, Message: "pressed home"}

	case action.KindLaunch:
		if act.App == "" {
			return Result{Message: "launch requires an app name"}
		}
		if err := ctl.LaunchApp(act.App); err != nil {
			return Result{Message: err.Error()}
		}
		return Result{Success: true, Message: "launched " + act.App}
	}

	return Result{Message: fmt.Sprintf("action %s is not executable", act.Kind)}
}

// performWait sleeps in short ticks so a cancel request lands within one
// tick instead of after the full wait.
func (d *Dispatcher) performWait(dur time.Duration) Result {
	if dur <= 0 {
		dur = time.Second
	}
	deadline := time.Now().Add(dur)
	for {
		if d.isCancelled() {
			return Result{Cancelled: true, Message: "wait cancelled"}
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Result{Success: true, Message: fmt.Sprintf("waited %v", dur)}
		}
		if remaining > d.waitTick {
			remaining = d.waitTick
		}
		time.Sleep(remaining)
	}
}

// performTakeover hands the device to the user and polls for the end of the
// pause, up to a hard ceiling.
func (d *Dispatcher) performTakeover(msg string) Result {
	if msg == "" {
		msg = "manual control requested"
	}
	if d.cb.Takeover != nil {
		d.cb.Takeover(msg)
	}
	d.state.Store(int32(StateAwaitingTakeover))
	deadline := time.Now().Add(d.takeoverCeiling)
	for time.Now().Before(deadline) {
		if d.isCancelled() {
			return Result{Cancelled: true, Message: "takeover ended by user"}
		}
		time.Sleep(d.takeoverTick)
	}
	return Result{Success: true, Message: "takeover window elapsed, resuming"}
}

// point resolves the i-th coordinate of an action, converting model-space
// values to pixels when the context takes pixel input.
func (d *Dispatcher) point(act action.Action, dc DisplayContext, i int) (int, int, bool) {
	if len(act.Points) <= i {
		return 0, 0, false
	}
	p := act.Points[i]
	if dc.PixelInput {
		norm := NewCoordinateNormalizer(dc.Width, dc.Height)
		if norm.IsNormalized(p.X, p.Y) {
			x, y := norm.ToPixels(p.X, p.Y)
			return x, y, true
		}
	}
	return p.X, p.Y, true
}

func (d *Dispatcher) confirm(msg string) bool {
	if d.cb.Confirm == nil {
		return true
	}
	return d.cb.Confirm(msg)
}

func (d *Dispatcher) isCancelled() bool {
	return d.cb.Cancelled != nil && d.cb.Cancelled()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
