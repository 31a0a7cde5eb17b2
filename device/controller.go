package device

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/nvasilev/mobpilot/ui"
)

// Platform identifies the device OS.
type Platform string

const (
	Android Platform = "android"
	IOS     Platform = "ios"
)

// SwipeMode discriminates the SwipeRequest union.
type SwipeMode string

const (
	SwipeDirectional SwipeMode = "directional"
	SwipeCoordinates SwipeMode = "coordinates"
	SwipePercentages SwipeMode = "percentages"
)

// Direction is a screen-relative swipe direction.
type Direction string

const (
	DirUp    Direction = "up"
	DirDown  Direction = "down"
	DirLeft  Direction = "left"
	DirRight Direction = "right"
)

// SwipeRequest describes a swipe gesture. Exactly the fields selected by
// Mode are meaningful.
type SwipeRequest struct {
	Mode SwipeMode

	// Direction, for SwipeDirectional.
	Direction Direction

	// Start and End pixel coordinates, for SwipeCoordinates.
	Start, End ui.Point

	// StartPct and EndPct, for SwipePercentages.
	StartPct, EndPct ui.PercentPoint

	// DurationMS is the gesture duration; 0 uses the default (400 ms).
	DurationMS int
}

const (
	defaultSwipeMS   = 400
	minLongPressMS   = 1000
	keycodeTab       = "61"
	keycodeEnterName = "KEYCODE_ENTER"
)

// Controller drives one device. Actions run natively over ADB shell when a
// shell transport is attached (Android); otherwise they go through the
// hardware bridge as one-step YAML flows.
type Controller struct {
	platform Platform
	shell    ShellRunner
	bridge   *BridgeClient
	screen   *ScreenClient
	logger   *slog.Logger

	cachedSize ui.Size
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithShell attaches a native shell transport (ADB).
func WithShell(s ShellRunner) ControllerOption {
	return func(c *Controller) { c.shell = s }
}

// WithBridge attaches the hardware-bridge client used as fallback (and as
// the only backend on iOS).
func WithBridge(b *BridgeClient) ControllerOption {
	return func(c *Controller) { c.bridge = b }
}

// WithScreen attaches the screen API client.
func WithScreen(s *ScreenClient) ControllerOption {
	return func(c *Controller) { c.screen = s }
}

// WithLogger sets the structured logger (default: no output).
func WithLogger(l *slog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

// NewController creates a controller for a device of the given platform.
func NewController(platform Platform, opts ...ControllerOption) *Controller {
	c := &Controller{platform: platform, logger: slog.New(noHandler{})}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type noHandler struct{}

func (noHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (noHandler) Handle(context.Context, slog.Record) error { return nil }
func (n noHandler) WithAttrs([]slog.Attr) slog.Handler      { return n }
func (n noHandler) WithGroup(string) slog.Handler           { return n }

// Platform returns the device OS.
func (c *Controller) Platform() Platform { return c.platform }

// native reports whether actions can run over the shell transport.
func (c *Controller) native() bool {
	return c.shell != nil && c.platform == Android
}

// run executes a device action: natively when a shell transport is
// attached, otherwise as a bridge flow.
func (c *Controller) run(ctx context.Context, nativeCmd string, step FlowStep) error {
	if c.native() {
		out, err := c.shell.Shell(ctx, nativeCmd)
		if err != nil {
			return err
		}
		if msg := strings.TrimSpace(out); strings.Contains(msg, "Error") || strings.Contains(msg, "Exception") {
			return &ErrCommand{Backend: "adb", Command: nativeCmd, Detail: msg}
		}
		return nil
	}
	if c.bridge == nil {
		return &ErrUnavailable{Reason: "no shell transport and no bridge configured"}
	}
	return c.bridge.RunFlow(ctx, false, step)
}

// Tap taps the screen at an absolute pixel coordinate.
func (c *Controller) Tap(ctx context.Context, p ui.Point) error {
	return c.run(ctx,
		fmt.Sprintf("input tap %d %d", p.X, p.Y),
		FlowStep{"tapOn": map[string]any{"point": fmt.Sprintf("%d,%d", p.X, p.Y)}})
}

// LongPress holds a point for durMS milliseconds (minimum 1000). Natively
// this is a same-point swipe.
func (c *Controller) LongPress(ctx context.Context, p ui.Point, durMS int) error {
	if durMS < minLongPressMS {
		durMS = minLongPressMS
	}
	return c.run(ctx,
		fmt.Sprintf("input swipe %d %d %d %d %d", p.X, p.Y, p.X, p.Y, durMS),
		FlowStep{"longPressOn": map[string]any{"point": fmt.Sprintf("%d,%d", p.X, p.Y)}})
}

// Swipe performs the requested gesture, resolving directions and
// percentages against the current screen size.
func (c *Controller) Swipe(ctx context.Context, req SwipeRequest) error {
	size, err := c.ScreenSize(ctx)
	if err != nil {
		return err
	}
	start, end, err := resolveSwipe(req, size)
	if err != nil {
		return err
	}
	dur := req.DurationMS
	if dur <= 0 {
		dur = defaultSwipeMS
	}
	return c.run(ctx,
		fmt.Sprintf("input swipe %d %d %d %d %d", start.X, start.Y, end.X, end.Y, dur),
		FlowStep{"swipe": map[string]any{
			"start":    fmt.Sprintf("%d,%d", start.X, start.Y),
			"end":      fmt.Sprintf("%d,%d", end.X, end.Y),
			"duration": dur,
		}})
}

// resolveSwipe converts a SwipeRequest into pixel start/end points.
func resolveSwipe(req SwipeRequest, size ui.Size) (start, end ui.Point, err error) {
	switch req.Mode {
	case SwipeCoordinates:
		return req.Start, req.End, nil
	case SwipePercentages:
		return req.StartPct.ToPixels(size), req.EndPct.ToPixels(size), nil
	case SwipeDirectional:
		var s, e ui.PercentPoint
		switch req.Direction {
		case DirUp:
			s, e = ui.PercentPoint{X: 0.5, Y: 0.7}, ui.PercentPoint{X: 0.5, Y: 0.3}
		case DirDown:
			s, e = ui.PercentPoint{X: 0.5, Y: 0.3}, ui.PercentPoint{X: 0.5, Y: 0.7}
		case DirLeft:
			s, e = ui.PercentPoint{X: 0.8, Y: 0.5}, ui.PercentPoint{X: 0.2, Y: 0.5}
		case DirRight:
			s, e = ui.PercentPoint{X: 0.2, Y: 0.5}, ui.PercentPoint{X: 0.8, Y: 0.5}
		default:
			return start, end, fmt.Errorf("unknown swipe direction %q", req.Direction)
		}
		return s.ToPixels(size), e.ToPixels(size), nil
	default:
		return start, end, fmt.Errorf("unknown swipe mode %q", req.Mode)
	}
}

// InputText types text into the focused element. Newlines become
// KEYCODE_ENTER presses and tabs become keycode 61; the segments between
// them are typed with `input text`, spaces escaped as %s.
func (c *Controller) InputText(ctx context.Context, text string) error {
	if !c.native() {
		if c.bridge == nil {
			return &ErrUnavailable{Reason: "no shell transport and no bridge configured"}
		}
		return c.bridge.RunFlow(ctx, false, FlowStep{"inputText": text})
	}
	flush := func(segment string) error {
		if segment == "" {
			return nil
		}
		_, err := c.shell.Shell(ctx, "input text "+escapeADBText(segment))
		return err
	}
	var segment strings.Builder
	for _, r := range text {
		switch r {
		case '\n':
			if err := flush(segment.String()); err != nil {
				return err
			}
			segment.Reset()
			if _, err := c.shell.Shell(ctx, "input keyevent "+keycodeEnterName); err != nil {
				return err
			}
		case '\t':
			if err := flush(segment.String()); err != nil {
				return err
			}
			segment.Reset()
			if _, err := c.shell.Shell(ctx, "input keyevent "+keycodeTab); err != nil {
				return err
			}
		default:
			segment.WriteRune(r)
		}
	}
	return flush(segment.String())
}

// escapeADBText escapes text for `input text`: spaces become %s and shell
// metacharacters are backslash-escaped.
func escapeADBText(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case ' ':
			b.WriteString("%s")
		case '%':
			b.WriteString(`\%`)
		case '\\', '"', '\'', '`', '&', '|', ';', '(', ')', '<', '>', '*', '~', '$', '#':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// EraseText deletes n characters before the cursor.
func (c *Controller) EraseText(ctx context.Context, n int) error {
	if !c.native() {
		if c.bridge == nil {
			return &ErrUnavailable{Reason: "no shell transport and no bridge configured"}
		}
		return c.bridge.RunFlow(ctx, false, FlowStep{"eraseText": n})
	}
	for i := 0; i < n; i++ {
		if _, err := c.shell.Shell(ctx, "input keyevent KEYCODE_DEL"); err != nil {
			return err
		}
	}
	return nil
}

// keycodes maps logical key names to Android keycodes.
var keycodes = map[string]string{
	"home":        "KEYCODE_HOME",
	"back":        "KEYCODE_BACK",
	"enter":       "KEYCODE_ENTER",
	"delete":      "KEYCODE_DEL",
	"tab":         "61",
	"power":       "KEYCODE_POWER",
	"volume_up":   "KEYCODE_VOLUME_UP",
	"volume_down": "KEYCODE_VOLUME_DOWN",
	"app_switch":  "KEYCODE_APP_SWITCH",
	"move_end":    "KEYCODE_MOVE_END",
}

// PressKey presses a logical key ("home", "back", "enter", …).
func (c *Controller) PressKey(ctx context.Context, key string) error {
	code, ok := keycodes[strings.ToLower(key)]
	if !ok {
		return fmt.Errorf("unknown key %q", key)
	}
	return c.run(ctx,
		"input keyevent "+code,
		FlowStep{"pressKey": strings.ToLower(key)})
}

// Back presses the platform back control.
func (c *Controller) Back(ctx context.Context) error {
	return c.run(ctx, "input keyevent KEYCODE_BACK", FlowStep{"back": nil})
}

// LaunchApp brings the given package to the foreground.
func (c *Controller) LaunchApp(ctx context.Context, pkg string) error {
	return c.run(ctx,
		fmt.Sprintf("monkey -p %s -c android.intent.category.LAUNCHER 1", pkg),
		FlowStep{"launchApp": pkg})
}

// StopApp force-stops the given package.
func (c *Controller) StopApp(ctx context.Context, pkg string) error {
	return c.run(ctx,
		"am force-stop "+pkg,
		FlowStep{"stopApp": pkg})
}

// OpenLink opens a URL with the platform default handler.
func (c *Controller) OpenLink(ctx context.Context, url string) error {
	return c.run(ctx,
		fmt.Sprintf("am start -a android.intent.action.VIEW -d %s", url),
		FlowStep{"openLink": url})
}

// ForegroundApp returns the focused window token, e.g.
// "com.android.settings/com.android.settings.Settings". Empty when no
// window has focus.
func (c *Controller) ForegroundApp(ctx context.Context) (string, error) {
	if !c.native() {
		// The bridge has no focus query; the hierarchy is the only signal.
		return "", nil
	}
	out, err := c.shell.Shell(ctx, "dumpsys window | grep mCurrentFocus")
	if err != nil {
		return "", err
	}
	return parseCurrentFocus(out), nil
}

// parseCurrentFocus extracts the app/activity token from a
// "mCurrentFocus=Window{... u0 pkg/activity}" dump line.
func parseCurrentFocus(out string) string {
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "mCurrentFocus") {
			continue
		}
		fields := strings.Fields(strings.TrimSuffix(strings.TrimSpace(line), "}"))
		if len(fields) == 0 {
			continue
		}
		token := fields[len(fields)-1]
		if token == "null" || strings.HasSuffix(token, "=null") {
			return ""
		}
		return token
	}
	return ""
}

// DeviceDate returns the device's local date string. Without a shell
// transport the host clock is used.
func (c *Controller) DeviceDate(ctx context.Context) (string, error) {
	if !c.native() {
		return time.Now().Format(time.UnixDate), nil
	}
	out, err := c.shell.Shell(ctx, "date")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// ListPackages returns the sorted package names installed on the device.
func (c *Controller) ListPackages(ctx context.Context) ([]string, error) {
	if !c.native() {
		return nil, &ErrUnavailable{Reason: "package listing needs a shell transport"}
	}
	out, err := c.shell.Shell(ctx, "pm list packages -f")
	if err != nil {
		return nil, err
	}
	return parsePackageList(out), nil
}

// parsePackageList extracts package names from `pm list packages -f`
// output lines of the form "package:/path/base.apk=com.example.app".
func parsePackageList(out string) []string {
	seen := make(map[string]bool)
	var pkgs []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "package:") {
			continue
		}
		idx := strings.LastIndexByte(line, '=')
		if idx < 0 {
			continue
		}
		name := line[idx+1:]
		if name != "" && !seen[name] {
			seen[name] = true
			pkgs = append(pkgs, name)
		}
	}
	sort.Strings(pkgs)
	return pkgs
}

// ScreenData returns the current screen observation from the screen API.
func (c *Controller) ScreenData(ctx context.Context) (ScreenData, error) {
	if c.screen == nil {
		return ScreenData{}, &ErrUnavailable{Reason: "no screen api client configured"}
	}
	data, err := c.screen.Get(ctx)
	if err != nil {
		return ScreenData{}, err
	}
	if data.Width > 0 && data.Height > 0 {
		c.cachedSize = data.Size()
	}
	return data, nil
}

// ScreenSize returns the device screen size in pixels, preferring `wm size`
// natively and the last screen observation otherwise.
func (c *Controller) ScreenSize(ctx context.Context) (ui.Size, error) {
	if c.cachedSize.Width > 0 {
		return c.cachedSize, nil
	}
	if c.native() {
		out, err := c.shell.Shell(ctx, "wm size")
		if err == nil {
			if size, ok := parseWMSize(out); ok {
				c.cachedSize = size
				return size, nil
			}
		}
	}
	data, err := c.ScreenData(ctx)
	if err != nil {
		return ui.Size{}, err
	}
	if data.Width == 0 || data.Height == 0 {
		return ui.Size{}, &ErrUnavailable{Reason: "screen size unknown"}
	}
	return data.Size(), nil
}

// parseWMSize parses `wm size` output ("Physical size: 1080x2400",
// preferring an "Override size" line when present).
func parseWMSize(out string) (ui.Size, bool) {
	var size ui.Size
	var found bool
	for _, line := range strings.Split(out, "\n") {
		_, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		var w, h int
		if _, err := fmt.Sscanf(strings.TrimSpace(val), "%dx%d", &w, &h); err == nil {
			size = ui.Size{Width: w, Height: h}
			found = true
			if strings.Contains(line, "Override") {
				return size, true
			}
		}
	}
	return size, found
}
