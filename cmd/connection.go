// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/Thermoquad/ecustat/internal/config"
)

const (
	passwordEnv = "ECUSTAT_PASSWORD"

	bridgeHandshakeTimeout = 10 * time.Second
	bridgeDialTimeout      = 15 * time.Second
)

// Connection is a byte link to the ECU: a serial port or a WebSocket
// serial bridge.
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// ErrConnectionClosed is returned once the ECU link has gone away.
var ErrConnectionClosed = errors.New("ECU link closed")

// dialer opens the configured link and describes it for status lines.
type dialer func() (Connection, string, error)

// newDialer resolves the link settings once. Bridge credentials are read
// here, so redialling never prompts.
func newDialer(c config.ConnectionConfig) (dialer, error) {
	switch {
	case c.URL != "":
		target, err := bridgeURL(c.URL)
		if err != nil {
			return nil, err
		}
		header := http.Header{}
		if c.Username != "" {
			password, err := readPassword()
			if err != nil {
				return nil, err
			}
			header.Set("Authorization", basicAuth(c.Username, password))
		}
		info := "WebSocket: " + c.URL
		return func() (Connection, string, error) {
			conn, err := dialBridge(target, header, c.NoSSLVerify)
			return conn, info, err
		}, nil

	case c.Port != "":
		info := fmt.Sprintf("Serial: %s @ %d baud", c.Port, c.Baud)
		return func() (Connection, string, error) {
			conn, err := openSerial(c.Port, c.Baud)
			return conn, info, err
		}, nil
	}
	return nil, errors.New("either --port or --url must be specified")
}

// openLink dials the configured link once.
func openLink(c config.ConnectionConfig) (Connection, string, error) {
	dial, err := newDialer(c)
	if err != nil {
		return nil, "", err
	}
	return dial()
}

// openSerial opens the ECU port 8N1 and drops whatever the driver buffered
// before we were listening.
func openSerial(name string, baud int) (Connection, error) {
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to flush serial port %s: %w", name, err)
	}
	return port, nil
}

func bridgeURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}
	return u, nil
}

func basicAuth(user, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+password))
}

// dialBridge connects to a WebSocket serial bridge.
func dialBridge(u *url.URL, header http.Header, skipVerify bool) (Connection, error) {
	d := websocket.Dialer{HandshakeTimeout: bridgeHandshakeTimeout}
	if u.Scheme == "wss" {
		d.TLSClientConfig = &tls.Config{InsecureSkipVerify: skipVerify}
	}

	ctx, cancel := context.WithTimeout(context.Background(), bridgeDialTimeout)
	defer cancel()

	ws, resp, err := d.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}
	return &bridgeConn{ws: ws}, nil
}

// bridgeConn turns bridge messages back into a byte stream. ECU bytes ride
// in binary messages. Text messages are the bridge's own status and are
// skipped.
type bridgeConn struct {
	ws      *websocket.Conn
	pending []byte
	err     error
}

func (b *bridgeConn) Read(p []byte) (int, error) {
	for len(b.pending) == 0 {
		if b.err != nil {
			return 0, b.err
		}
		mt, data, err := b.ws.ReadMessage()
		if err != nil {
			b.err = fmt.Errorf("%w: %v", ErrConnectionClosed, err)
			return 0, b.err
		}
		if mt == websocket.BinaryMessage {
			b.pending = data
		}
	}
	n := copy(p, b.pending)
	b.pending = b.pending[n:]
	return n, nil
}

// Write sends p as one binary message, so a poll command is never split.
func (b *bridgeConn) Write(p []byte) (int, error) {
	if err := b.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (b *bridgeConn) Close() error {
	return b.ws.Close()
}

// readPassword takes the bridge password from the environment, or prompts
// without echo.
func readPassword() (string, error) {
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Bridge password: ")
	defer fmt.Fprintln(os.Stderr)

	pw, err := term.ReadPassword(int(syscall.Stdin))
	if err == nil {
		return string(pw), nil
	}
	// Not a terminal: read a plain line.
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// startReader copies link reads into a channel until the first read error,
// which is delivered on the error channel.
func startReader(conn Connection) (<-chan []byte, <-chan error) {
	dataChan := make(chan []byte, 64)
	errChan := make(chan error, 1)

	go func() {
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				dataChan <- append([]byte(nil), buf[:n]...)
			}
			if err != nil {
				errChan <- err
				return
			}
		}
	}()

	return dataChan, errChan
}
