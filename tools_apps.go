package mobpilot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

type appArgs struct {
	// App is the user-facing app name or a package name.
	App string `json:"app"`
}

// resolvePackage maps a user-facing app name to an installed package via
// the Hopper. Exact package names short-circuit the LLM call.
func resolvePackage(ctx context.Context, inv Invocation, app string) (string, error) {
	pkgs, err := inv.Env.Device.ListPackages(ctx)
	if err != nil {
		return "", err
	}
	for _, p := range pkgs {
		if p == app {
			return p, nil
		}
	}
	if inv.Env.Hopper == nil {
		return "", &ErrPackageNotFound{App: app}
	}
	return inv.Env.Hopper.FindPackage(ctx, app, pkgs)
}

// LaunchAppTool opens an app named in natural language (or by package).
func LaunchAppTool() *Tool {
	return &Tool{
		Name:        "launch_app",
		Description: "Launch an app by its user-facing name (e.g. \"Settings\") or package name.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {"app": {"type": "string"}},
			"required": ["app"]
		}`),
		Run: func(ctx context.Context, inv Invocation) Outcome {
			args, err := decodeArgs[appArgs](inv.Call)
			if err != nil {
				return Outcome{Err: err}
			}
			pkg, err := resolvePackage(ctx, inv, args.App)
			if err != nil {
				var notFound *ErrPackageNotFound
				if errors.As(err, &notFound) {
					return Outcome{Message: fmt.Sprintf("no installed app matches %q", args.App), Err: err}
				}
				return Outcome{Err: err}
			}
			if err := inv.Env.Device.LaunchApp(ctx, pkg); err != nil {
				return Outcome{Message: fmt.Sprintf("launching %s failed: %v", pkg, err), Err: err}
			}
			return Outcome{Message: fmt.Sprintf("Launched %s (%s).", args.App, pkg)}
		},
	}
}

// StopAppTool force-stops an app.
func StopAppTool() *Tool {
	return &Tool{
		Name:        "stop_app",
		Description: "Force-stop an app by its user-facing name or package name.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {"app": {"type": "string"}},
			"required": ["app"]
		}`),
		Run: func(ctx context.Context, inv Invocation) Outcome {
			args, err := decodeArgs[appArgs](inv.Call)
			if err != nil {
				return Outcome{Err: err}
			}
			pkg, err := resolvePackage(ctx, inv, args.App)
			if err != nil {
				var notFound *ErrPackageNotFound
				if errors.As(err, &notFound) {
					return Outcome{Message: fmt.Sprintf("no installed app matches %q", args.App), Err: err}
				}
				return Outcome{Err: err}
			}
			if err := inv.Env.Device.StopApp(ctx, pkg); err != nil {
				return Outcome{Message: fmt.Sprintf("stopping %s failed: %v", pkg, err), Err: err}
			}
			return Outcome{Message: fmt.Sprintf("Stopped %s (%s).", args.App, pkg)}
		},
	}
}
