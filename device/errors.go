package device

import "fmt"

// ErrUnavailable indicates no usable device or device server could be
// reached.
type ErrUnavailable struct {
	Reason string
}

func (e *ErrUnavailable) Error() string { return "device unavailable: " + e.Reason }

// ErrCommand indicates a device command failed on the backend that ran it.
type ErrCommand struct {
	Backend string // "adb" or "bridge"
	Command string
	Detail  string
	Err     error
}

func (e *ErrCommand) Error() string {
	msg := fmt.Sprintf("device command failed (%s): %s", e.Backend, e.Command)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ErrCommand) Unwrap() error { return e.Err }
