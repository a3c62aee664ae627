package action

import (
	"strconv"
	"strings"
	"time"
	"unicode"
)

// synonyms maps every accepted action name to its canonical kind. Models
// drift between vocabularies, so the table is deliberately generous.
var synonyms = map[string]Kind{
	"launch": KindLaunch, "open": KindLaunch, "open_app": KindLaunch,
	"start": KindLaunch, "start_app": KindLaunch, "app": KindLaunch,

	"tap": KindTap, "click": KindTap, "touch": KindTap, "press": KindTap,

	"double_tap": KindDoubleTap, "doubletap": KindDoubleTap,
	"double_click": KindDoubleTap, "doubleclick": KindDoubleTap,

	"long_press": KindLongPress, "longpress": KindLongPress,
	"long_click": KindLongPress, "long_tap": KindLongPress,

	"type": KindType, "input": KindType, "input_text": KindType, "text": KindType,

	"swipe": KindSwipe, "scroll": KindSwipe, "drag": KindSwipe,

	"back": KindBack, "press_back": KindBack,
	"home": KindHome, "press_home": KindHome,

	"wait": KindWait, "sleep": KindWait, "pause": KindWait,

	"take_over": KindTakeOver, "takeover": KindTakeOver,

	"finish": KindFinish, "done": KindFinish, "complete": KindFinish,

	"note": KindNote, "memorize": KindNote,
	"call_api": KindCallAPI, "call_user": KindCallAPI,
	"interact": KindInteract,
}

// coordKeys are parameters whose values carry coordinates; a bare numeric
// token after one of these continues its value (start=100, 800).
var coordKeys = map[string]bool{
	"element": true, "point": true, "start": true, "end": true,
	"from": true, "to": true,
}

// Parse turns one line of model output into an Action. It is total: any
// input yields an Action, never an error. Empty input is an implicit
// finish, and text that names no recognizable action comes back as
// KindUnknown for the dispatcher to report.
func Parse(raw string) Action {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Action{Kind: KindFinish}
	}

	// finish("...") wins over any do(...) appearing later in the text.
	if inner, ok := callArgs(text, "finish"); ok {
		return Action{Kind: KindFinish, Message: unquote(strings.TrimSpace(inner)), Raw: text}
	}
	if inner, ok := callArgs(text, "do"); ok {
		return parseCommand(inner, text)
	}
	// Bare form: the action name is the call itself, e.g. tap(100, 200).
	if name, inner, ok := bareCall(text); ok {
		if inner == "" {
			return parseCommand(name, text)
		}
		return parseCommand(name+","+inner, text)
	}
	return Action{Kind: KindUnknown, Raw: text}
}

// parseCommand parses "name, params..." — the inside of a do(...) call.
func parseCommand(content, raw string) Action {
	tokens := splitTop(content)
	name := strings.ToLower(unquote(strings.TrimSpace(tokens[0])))
	kind, ok := synonyms[name]
	if !ok {
		return Action{Kind: KindUnknown, Raw: raw}
	}

	a := Action{Kind: kind, Raw: raw}
	params := map[string]string{}
	var positional []string
	lastKey := ""

	for _, tok := range tokens[1:] {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if eq := topLevelEq(tok); eq >= 0 {
			key := strings.ToLower(strings.TrimSpace(tok[:eq]))
			params[key] = strings.TrimSpace(tok[eq+1:])
			lastKey = key
			continue
		}
		// do(swipe, start=100, 800, ...): the 800 belongs to start.
		if coordKeys[lastKey] && isNumeric(tok) {
			params[lastKey] += "," + tok
			continue
		}
		positional = append(positional, tok)
	}

	pts := collectPoints(params, positional)

	switch kind {
	case KindLaunch:
		a.App = firstParam(params, positional, "app", "package", "name")
	case KindType:
		a.Text = firstParam(params, positional, "text", "content", "value")
	case KindNote, KindCallAPI, KindInteract:
		a.Text = firstParam(params, positional, "text", "content", "instruction")
	case KindTap, KindDoubleTap, KindLongPress:
		a.Points = pts
	case KindSwipe:
		a.Points = pts
		// Positional args are coordinates here, so duration is key-only.
		a.Duration = parseDuration(params["duration"], time.Millisecond)
	case KindWait:
		a.Duration = parseDuration(firstParam(params, positional, "duration", "time"), time.Second)
	case KindTakeOver:
		a.Message = firstParam(params, positional, "message", "reason")
	case KindFinish:
		a.Message = firstParam(params, positional, "message", "result")
	}

	if truthy(params["sensitive"]) {
		if msg := unquote(params["message"]); msg != "" {
			a.Sensitive = true
			a.Message = msg
		}
	}
	return a
}

// callArgs finds the first whole-word occurrence of name followed by "(" and
// returns the argument text inside the matching paren. The scan is quote
// aware, and unbalanced input falls back to the substring up to the last ")".
func callArgs(text, name string) (string, bool) {
	lower := strings.ToLower(text)
	if len(lower) != len(text) {
		lower = text // unicode case folding moved byte offsets
	}
	needle := name + "("
	for from := 0; ; {
		idx := strings.Index(lower[from:], needle)
		if idx < 0 {
			return "", false
		}
		idx += from
		if idx > 0 && isIdentChar(rune(text[idx-1])) {
			from = idx + len(name)
			continue
		}
		open := idx + len(name)
		if end := matchParen(text, open); end >= 0 {
			return text[open+1 : end], true
		}
		if last := strings.LastIndexByte(text, ')'); last > open {
			return text[open+1 : last], true
		}
		return text[open+1:], true
	}
}

// bareCall matches a leading identifier call like swipe(...) anywhere in the
// text and returns its lowercased name and argument text.
func bareCall(text string) (name, inner string, ok bool) {
	open := -1
	for i := 0; i < len(text); i++ {
		if text[i] != '(' {
			continue
		}
		// Walk back over the identifier preceding the paren.
		j := i
		for j > 0 && isIdentChar(rune(text[j-1])) {
			j--
		}
		if j == i {
			continue // "(" with no name in front
		}
		name = strings.ToLower(text[j:i])
		open = i
		break
	}
	if open < 0 {
		return "", "", false
	}
	if end := matchParen(text, open); end >= 0 {
		return name, text[open+1 : end], true
	}
	if last := strings.LastIndexByte(text, ')'); last > open {
		return name, text[open+1 : last], true
	}
	return name, text[open+1:], true
}

// matchParen returns the index of the ")" closing the "(" at open, skipping
// parens inside single- or double-quoted spans, or -1 if unbalanced.
func matchParen(text string, open int) int {
	depth := 0
	var quote byte
	for i := open; i < len(text); i++ {
		c := text[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTop splits on commas at bracket depth zero, outside quotes.
func splitTop(s string) []string {
	var parts []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '(', '[':
			depth++
		case ')', ']':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// topLevelEq returns the index of the first "=" outside quotes and brackets.
func topLevelEq(s string) int {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '(', '[':
			depth++
		case ')', ']':
			if depth > 0 {
				depth--
			}
		case '=':
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// collectPoints gathers coordinates from the named parameters, falling back
// to pairing bare numeric positional args. Accepted value forms: [x, y],
// (x, y), bare x, y.
func collectPoints(params map[string]string, positional []string) []Point {
	var pts []Point
	for _, key := range []string{"element", "point", "start", "from", "end", "to"} {
		if v, ok := params[key]; ok {
			pts = append(pts, parsePoints(v)...)
		}
	}
	if len(pts) > 0 {
		return pts
	}
	var nums []int
	for _, tok := range positional {
		nums = append(nums, parseNums(tok)...)
	}
	for i := 0; i+1 < len(nums); i += 2 {
		pts = append(pts, Point{X: nums[i], Y: nums[i+1]})
	}
	return pts
}

// parsePoints parses one coordinate value into pairs.
func parsePoints(s string) []Point {
	nums := parseNums(s)
	var pts []Point
	for i := 0; i+1 < len(nums); i += 2 {
		pts = append(pts, Point{X: nums[i], Y: nums[i+1]})
	}
	return pts
}

// parseNums extracts every number from s, rounding floats.
func parseNums(s string) []int {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '.' && r != '-'
	})
	var nums []int
	for _, f := range fields {
		if v, err := strconv.ParseFloat(f, 64); err == nil {
			nums = append(nums, int(v+0.5))
		}
	}
	return nums
}

// parseDuration parses a duration value; a bare number is scaled by
// defUnit, otherwise a trailing unit word decides.
func parseDuration(s string, defUnit time.Duration) time.Duration {
	s = strings.TrimSpace(unquote(s))
	if s == "" {
		return 0
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(v * float64(defUnit))
	}
	i := 0
	for i < len(s) && (unicode.IsDigit(rune(s[i])) || s[i] == '.') {
		i++
	}
	v, err := strconv.ParseFloat(s[:i], 64)
	if err != nil {
		return 0
	}
	unit := float64(defUnit)
	switch strings.ToLower(strings.TrimSpace(s[i:])) {
	case "ms", "msec", "millisecond", "milliseconds":
		unit = float64(time.Millisecond)
	case "s", "sec", "second", "seconds":
		unit = float64(time.Second)
	case "m", "min", "minute", "minutes":
		unit = float64(time.Minute)
	}
	return time.Duration(v * unit)
}

// firstParam returns the first present key, else the first positional arg.
func firstParam(params map[string]string, positional []string, keys ...string) string {
	for _, k := range keys {
		if v, ok := params[k]; ok {
			return unquote(v)
		}
	}
	if len(positional) > 0 {
		return unquote(strings.TrimSpace(positional[0]))
	}
	return ""
}

// unquote strips one level of matched quotes and unescapes \" \' \\.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		s = s[1 : len(s)-1]
		var b strings.Builder
		for i := 0; i < len(s); i++ {
			if s[i] == '\\' && i+1 < len(s) {
				i++
			}
			b.WriteByte(s[i])
		}
		return b.String()
	}
	return s
}

func truthy(s string) bool {
	switch strings.ToLower(unquote(s)) {
	case "true", "1", "yes", "y", "on":
		return true
	}
	return false
}

func isNumeric(s string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil
}

func isIdentChar(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
