package mobpilot

import (
	"fmt"
	"strconv"
	"time"
)

// ErrLLM indicates an LLM provider failure: transport errors, API errors, or
// a response that could not be decoded.
type ErrLLM struct {
	Provider string
	Message  string
	Err      error
}

func (e *ErrLLM) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llm %s: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("llm %s: %s", e.Provider, e.Message)
}

func (e *ErrLLM) Unwrap() error { return e.Err }

// ErrHTTP carries an HTTP-level failure from a provider call.
// StatusCode 429 and 503 are treated as transient by retry logic.
type ErrHTTP struct {
	StatusCode int
	Body       string
	// RetryAfter is the parsed Retry-After delay, zero when absent.
	RetryAfter time.Duration
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http status %d: %s", e.StatusCode, truncateStr(e.Body, 200))
}

// ParseRetryAfter interprets a Retry-After header value as delay seconds or
// an HTTP date. Returns zero for empty or unparseable values.
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := time.Parse(time.RFC1123, v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// ErrPlanning indicates the Planner produced an empty or malformed plan.
// Planning errors are fatal to the task.
type ErrPlanning struct {
	Reason string
}

func (e *ErrPlanning) Error() string { return "planning: " + e.Reason }

// ErrBudgetExhausted indicates the graph ran out of its node-execution
// budget before the task converged.
type ErrBudgetExhausted struct {
	Steps int
}

func (e *ErrBudgetExhausted) Error() string {
	return fmt.Sprintf("step budget exhausted after %d node executions", e.Steps)
}

// ErrElementNotFound indicates no UI element matched a selector. The Locator
// names the last strategy tried.
type ErrElementNotFound struct {
	Locator string
}

func (e *ErrElementNotFound) Error() string { return "no element matched " + e.Locator }

// ErrProfileNotFound indicates a task referenced an LLM profile that is not
// configured. Fatal at task start.
type ErrProfileNotFound struct {
	Name string
}

func (e *ErrProfileNotFound) Error() string { return "llm profile not found: " + e.Name }

// ErrPackageNotFound indicates the Hopper could not map an app name to an
// installed package.
type ErrPackageNotFound struct {
	App string
}

func (e *ErrPackageNotFound) Error() string { return "no installed package matches app " + e.App }
