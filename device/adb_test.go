package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"testing"
)

// fakeADBServer accepts one connection per scripted exchange and speaks the
// smart-socket protocol.
type fakeADBServer struct {
	ln       net.Listener
	requests chan string
}

func newFakeADBServer(t *testing.T, handle func(conn net.Conn, reqs []string)) *fakeADBServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &fakeADBServer{ln: ln, requests: make(chan string, 16)}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				var reqs []string
				for {
					req, err := readRequest(conn)
					if err != nil {
						break
					}
					reqs = append(reqs, req)
					srv.requests <- req
					handle(conn, reqs)
					if len(reqs) >= 2 || reqs[0] == "host:devices" {
						break
					}
				}
			}(conn)
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return srv
}

func (s *fakeADBServer) client() *ADBClient {
	host, portStr, _ := net.SplitHostPort(s.ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return NewADB(host, port)
}

func readRequest(conn net.Conn) (string, error) {
	lenHex := make([]byte, 4)
	if _, err := io.ReadFull(conn, lenHex); err != nil {
		return "", err
	}
	n, err := strconv.ParseUint(string(lenHex), 16, 32)
	if err != nil {
		return "", err
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return "", err
	}
	return string(payload), nil
}

func TestADBDevices(t *testing.T) {
	srv := newFakeADBServer(t, func(conn net.Conn, reqs []string) {
		list := "emulator-5554\tdevice\nemulator-5556\toffline\nserialx\tdevice"
		fmt.Fprintf(conn, "OKAY%04x%s", len(list), list)
	})

	serials, err := srv.client().Devices(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(serials) != 2 || serials[0] != "emulator-5554" || serials[1] != "serialx" {
		t.Errorf("got %v", serials)
	}
}

func TestADBShell(t *testing.T) {
	srv := newFakeADBServer(t, func(conn net.Conn, reqs []string) {
		switch len(reqs) {
		case 1: // host:transport:<serial>
			fmt.Fprint(conn, "OKAY")
		case 2: // shell:<cmd>
			fmt.Fprint(conn, "OKAY")
			fmt.Fprint(conn, "command output\n")
		}
	})

	c := srv.client().WithSerial("emulator-5554")
	out, err := c.Shell(context.Background(), "wm size")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "command output\n" {
		t.Errorf("got %q", out)
	}

	// Verify both requests took the expected form.
	if req := <-srv.requests; req != "host:transport:emulator-5554" {
		t.Errorf("first request: %q", req)
	}
	if req := <-srv.requests; req != "shell:wm size" {
		t.Errorf("second request: %q", req)
	}
}

func TestADBShell_FailReply(t *testing.T) {
	srv := newFakeADBServer(t, func(conn net.Conn, reqs []string) {
		msg := "device offline"
		fmt.Fprintf(conn, "FAIL%04x%s", len(msg), msg)
	})

	c := srv.client().WithSerial("gone")
	_, err := c.Shell(context.Background(), "date")
	var devErr *ErrCommand
	if !errors.As(err, &devErr) {
		t.Fatalf("got %v, want ErrCommand", err)
	}
}

func TestADBShell_NoSerial(t *testing.T) {
	c := NewADB("127.0.0.1", 1) // never dialed
	_, err := c.Shell(context.Background(), "date")
	var unavailable *ErrUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}
}

func TestADBDial_Unreachable(t *testing.T) {
	// Reserve a port and close it so nothing is listening.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	host, portStr, _ := net.SplitHostPort(addr)
	port, _ := strconv.Atoi(portStr)
	c := NewADB(host, port).WithSerial("x")
	_, err = c.Shell(context.Background(), "date")
	var unavailable *ErrUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}
}

func TestWithSerial_DoesNotMutateOriginal(t *testing.T) {
	base := NewADB("", 0)
	bound := base.WithSerial("abc")
	if base.Serial() != "" {
		t.Error("original client gained a serial")
	}
	if bound.Serial() != "abc" {
		t.Errorf("got %q", bound.Serial())
	}
}
