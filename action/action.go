package action

import (
	"fmt"
	"time"
)

// Kind identifies a single device action requested by the model.
type Kind string

const (
	KindLaunch    Kind = "launch"
	KindTap       Kind = "tap"
	KindDoubleTap Kind = "double_tap"
	KindLongPress Kind = "long_press"
	KindType      Kind = "type"
	KindSwipe     Kind = "swipe"
	KindBack      Kind = "back"
	KindHome      Kind = "home"
	KindWait      Kind = "wait"
	KindTakeOver  Kind = "take_over"
	KindFinish    Kind = "finish"
	KindNote      Kind = "note"
	KindCallAPI   Kind = "call_api"
	KindInteract  Kind = "interact"
	KindUnknown   Kind = "unknown"
)

// Point is a screen coordinate, either in device pixels or in the model's
// 0-1000 normalized space (the dispatcher decides which).
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Action is one parsed step command.
type Action struct {
	Kind      Kind          `json:"kind"`
	App       string        `json:"app,omitempty"`      // launch target
	Text      string        `json:"text,omitempty"`     // payload for type/note/call_api/interact
	Message   string        `json:"message,omitempty"`  // finish result, take_over notice, confirmation prompt
	Points    []Point       `json:"points,omitempty"`   // tap: one point; swipe: start then end
	Duration  time.Duration `json:"duration,omitempty"` // wait length or swipe duration
	Sensitive bool          `json:"sensitive,omitempty"`
	Raw       string        `json:"raw,omitempty"` // original text the action was parsed from
}

// Serialize renders the canonical text form of an action, the inverse of
// Parse. Unknown actions round-trip as their raw text.
func (a Action) Serialize() string {
	switch a.Kind {
	case KindFinish:
		return fmt.Sprintf("finish(%q)", a.Message)
	case KindTap, KindDoubleTap, KindLongPress:
		if len(a.Points) == 0 {
			return a.wrap(string(a.Kind))
		}
		return a.wrap(fmt.Sprintf("%s, element=%s", a.Kind, fmtPoint(a.Points[0])))
	case KindSwipe:
		if len(a.Points) < 2 {
			return a.wrap(string(a.Kind))
		}
		body := fmt.Sprintf("swipe, start=%s, end=%s", fmtPoint(a.Points[0]), fmtPoint(a.Points[1]))
		if a.Duration > 0 {
			body += fmt.Sprintf(", duration=%d", a.Duration.Milliseconds())
		}
		return a.wrap(body)
	case KindType:
		return a.wrap(fmt.Sprintf("type, text=%q", a.Text))
	case KindLaunch:
		return a.wrap(fmt.Sprintf("launch, app=%q", a.App))
	case KindWait:
		return a.wrap(fmt.Sprintf("wait, duration=%q", fmtDuration(a.Duration)))
	case KindTakeOver:
		if a.Message == "" {
			return a.wrap("take_over")
		}
		return a.wrap(fmt.Sprintf("take_over, message=%q", a.Message))
	case KindBack, KindHome, KindInteract:
		return a.wrap(string(a.Kind))
	case KindNote, KindCallAPI:
		return a.wrap(fmt.Sprintf("%s, text=%q", a.Kind, a.Text))
	default:
		return a.Raw
	}
}

// wrap builds do(...) and appends the sensitive suffix when set.
func (a Action) wrap(body string) string {
	if a.Sensitive && a.Kind != KindTakeOver {
		body += fmt.Sprintf(", sensitive=true, message=%q", a.Message)
	}
	return "do(" + body + ")"
}

func fmtPoint(p Point) string {
	return fmt.Sprintf("[%d, %d]", p.X, p.Y)
}

// fmtDuration renders whole seconds as "N seconds", anything else in ms.
func fmtDuration(d time.Duration) string {
	if d <= 0 {
		return "0 seconds"
	}
	if d%time.Second == 0 {
		return fmt.Sprintf("%d seconds", int(d/time.Second))
	}
	return fmt.Sprintf("%d ms", d.Milliseconds())
}
