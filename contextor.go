package mobpilot

import (
	"context"
	"fmt"
	"strings"

	"github.com/nvasilev/mobpilot/ui"
)

// Contextor refreshes the device observation before each decision cycle:
// UI hierarchy, screenshot, screen size, foreground app, and device date.
// When the task is pinned to a locked app and focus has drifted away, the
// Contextor relaunches it before observing.
type Contextor struct {
	env *Env
}

// Run gathers a fresh observation. Observation failures are fatal: without
// a screen there is nothing to decide on.
func (c *Contextor) Run(ctx context.Context, s *State) (StateDelta, error) {
	dev := c.env.Device

	focus, err := dev.ForegroundApp(ctx)
	if err != nil {
		c.env.Logger.Warn("foreground app query failed", "error", err)
		focus = ""
	}

	if c.env.LockedApp != "" && focus != "" && !strings.HasPrefix(focus, c.env.LockedApp) {
		c.env.Logger.Info("focus drifted from locked app, relaunching",
			"locked_app", c.env.LockedApp, "focus", focus)
		if err := dev.LaunchApp(ctx, c.env.LockedApp); err != nil {
			return StateDelta{}, err
		}
		if focus, err = dev.ForegroundApp(ctx); err != nil {
			focus = ""
		}
	}

	data, err := dev.ScreenData(ctx)
	if err != nil {
		return StateDelta{}, err
	}
	date, err := dev.DeviceDate(ctx)
	if err != nil {
		c.env.Logger.Warn("device date query failed", "error", err)
		date = ""
	}

	size := data.Size()
	hierarchy := data.Elements
	if hierarchy == nil {
		hierarchy = []ui.Element{}
	}
	c.env.Logger.Debug("observation refreshed",
		"elements", ui.CountElements(hierarchy),
		"screenshot", data.ScreenshotBase64 != "",
		"focus", focus)

	return StateDelta{
		UIHierarchy:    hierarchy,
		Screenshot:     strPtr(data.ScreenshotBase64),
		FocusedAppInfo: strPtr(focus),
		DeviceDate:     strPtr(date),
		ScreenSize:     &size,
	}, nil
}

// observationSummary renders the current observation for prompts.
func observationSummary(s *State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Screen: %dx%d, %d UI elements.\n", s.ScreenSize.Width, s.ScreenSize.Height, ui.CountElements(s.LatestUIHierarchy))
	if s.FocusedAppInfo != "" {
		fmt.Fprintf(&b, "Foreground app: %s\n", s.FocusedAppInfo)
	}
	if s.DeviceDate != "" {
		fmt.Fprintf(&b, "Device date: %s\n", s.DeviceDate)
	}
	return b.String()
}
