// Package device controls a mobile device. Commands run natively over the
// ADB server protocol when a device serial is attached, and fall back to
// the hardware-bridge HTTP API otherwise. Screen observation comes from the
// bridge's screen endpoints.
package device

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// ShellRunner runs a shell command on the device and returns its combined
// output. Implemented by ADBClient; tests substitute fakes.
type ShellRunner interface {
	Shell(ctx context.Context, cmd string) (string, error)
}

// ADBClient speaks the ADB server smart-socket protocol (host:5037).
// Requests are 4-hex-digit length-prefixed; replies open with OKAY or FAIL.
type ADBClient struct {
	addr   string
	serial string
	dialer net.Dialer
}

// NewADB creates a client for the ADB server at host:port. Zero values
// default to 127.0.0.1:5037.
func NewADB(host string, port int) *ADBClient {
	if host == "" {
		host = "127.0.0.1"
	}
	if port == 0 {
		port = 5037
	}
	return &ADBClient{
		addr:   net.JoinHostPort(host, strconv.Itoa(port)),
		dialer: net.Dialer{Timeout: 5 * time.Second},
	}
}

// WithSerial returns a copy of the client bound to one device serial.
func (c *ADBClient) WithSerial(serial string) *ADBClient {
	out := *c
	out.serial = serial
	return &out
}

// Serial returns the bound device serial, empty when unbound.
func (c *ADBClient) Serial() string { return c.serial }

// Devices lists the serials of devices the ADB server reports as ready.
func (c *ADBClient) Devices(ctx context.Context) ([]string, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if err := c.send(conn, "host:devices"); err != nil {
		return nil, err
	}
	payload, err := c.readLenPrefixed(conn)
	if err != nil {
		return nil, err
	}
	var serials []string
	for _, line := range strings.Split(payload, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[1] == "device" {
			serials = append(serials, fields[0])
		}
	}
	return serials, nil
}

// Shell runs cmd on the bound device and returns its output.
func (c *ADBClient) Shell(ctx context.Context, cmd string) (string, error) {
	if c.serial == "" {
		return "", &ErrUnavailable{Reason: "adb client has no device serial"}
	}
	conn, err := c.dial(ctx)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	if err := c.send(conn, "host:transport:"+c.serial); err != nil {
		return "", &ErrCommand{Backend: "adb", Command: cmd, Err: err}
	}
	if err := c.send(conn, "shell:"+cmd); err != nil {
		return "", &ErrCommand{Backend: "adb", Command: cmd, Err: err}
	}
	out, err := io.ReadAll(conn)
	if err != nil {
		return "", &ErrCommand{Backend: "adb", Command: cmd, Err: err}
	}
	return string(out), nil
}

func (c *ADBClient) dial(ctx context.Context) (net.Conn, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, &ErrUnavailable{Reason: "adb server at " + c.addr + ": " + err.Error()}
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	return conn, nil
}

// send writes one length-prefixed request and consumes the status reply.
func (c *ADBClient) send(conn net.Conn, req string) error {
	if _, err := fmt.Fprintf(conn, "%04x%s", len(req), req); err != nil {
		return err
	}
	status := make([]byte, 4)
	if _, err := io.ReadFull(conn, status); err != nil {
		return err
	}
	switch string(status) {
	case "OKAY":
		return nil
	case "FAIL":
		msg, _ := c.readLenPrefixed(conn)
		return fmt.Errorf("adb: %s", msg)
	default:
		return fmt.Errorf("adb: unexpected status %q", status)
	}
}

// readLenPrefixed reads one 4-hex-digit length-prefixed payload.
func (c *ADBClient) readLenPrefixed(conn net.Conn) (string, error) {
	lenHex := make([]byte, 4)
	if _, err := io.ReadFull(conn, lenHex); err != nil {
		return "", err
	}
	n, err := strconv.ParseUint(string(lenHex), 16, 32)
	if err != nil {
		return "", fmt.Errorf("adb: malformed length %q", lenHex)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return "", err
	}
	return string(payload), nil
}

var _ ShellRunner = (*ADBClient)(nil)
