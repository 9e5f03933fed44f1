// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/ecustat/internal/config"
)

// newBridge starts a WebSocket server that runs fn on each connection
func newBridge(t *testing.T, fn func(*websocket.Conn, *http.Request)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		fn(c, r)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialTestBridge(t *testing.T, url string) Connection {
	t.Helper()
	conn, _, err := openLink(config.ConnectionConfig{URL: url})
	require.NoError(t, err)
	return conn
}

func TestBridgeConn_ReadsBinaryOnly(t *testing.T) {
	url := newBridge(t, func(c *websocket.Conn, _ *http.Request) {
		c.WriteMessage(websocket.TextMessage, []byte("bridge hello"))
		c.WriteMessage(websocket.BinaryMessage, []byte("RPM=3000\r\n"))
		c.WriteMessage(websocket.BinaryMessage, []byte{0xAA, 0x01})
		// Hold the socket open until the client is done
		c.ReadMessage()
	})

	conn := dialTestBridge(t, url)
	defer conn.Close()

	buf := make([]byte, 4)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "RPM=", string(buf[:n]), "text messages are skipped")

	n, err = conn.Read(make([]byte, 64))
	require.NoError(t, err)
	assert.Equal(t, 6, n, "rest of the buffered message")

	buf = make([]byte, 64)
	n, err = conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0x01}, buf[:n])
}

func TestBridgeConn_WriteAndClose(t *testing.T) {
	got := make(chan []byte, 1)
	url := newBridge(t, func(c *websocket.Conn, _ *http.Request) {
		mt, data, err := c.ReadMessage()
		if err == nil && mt == websocket.BinaryMessage {
			got <- data
		}
	})

	conn := dialTestBridge(t, url)

	n, err := conn.Write([]byte{'A'})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	select {
	case data := <-got:
		assert.Equal(t, []byte{'A'}, data)
	case <-time.After(5 * time.Second):
		t.Fatal("bridge did not receive the request")
	}

	// The server hangs up after one message, and the failure sticks
	_, err = conn.Read(make([]byte, 8))
	assert.ErrorIs(t, err, ErrConnectionClosed)
	_, err = conn.Read(make([]byte, 8))
	assert.ErrorIs(t, err, ErrConnectionClosed)
	conn.Close()
}

func TestNewDialer_BasicAuth(t *testing.T) {
	auth := make(chan string, 2)
	url := newBridge(t, func(c *websocket.Conn, r *http.Request) {
		auth <- r.Header.Get("Authorization")
	})
	t.Setenv(passwordEnv, "s3cret")

	dial, err := newDialer(config.ConnectionConfig{URL: url, Username: "tuner"})
	require.NoError(t, err)

	// Credentials are resolved once and reused on every dial
	os.Unsetenv(passwordEnv)
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("tuner:s3cret"))
	for i := 0; i < 2; i++ {
		conn, info, err := dial()
		require.NoError(t, err)
		assert.Equal(t, "WebSocket: "+url, info)
		assert.Equal(t, want, <-auth)
		conn.Close()
	}
}

func TestNewDialer_BadScheme(t *testing.T) {
	_, err := newDialer(config.ConnectionConfig{URL: "http://localhost:1"})
	assert.ErrorContains(t, err, "unsupported URL scheme")
}

func TestNewDialer_NothingConfigured(t *testing.T) {
	_, err := newDialer(config.ConnectionConfig{Baud: 115200})
	assert.ErrorContains(t, err, "--port or --url")
}

func TestNewDialer_SerialInfo(t *testing.T) {
	dial, err := newDialer(config.ConnectionConfig{Port: "/dev/ecustat-missing", Baud: 115200})
	require.NoError(t, err)

	_, info, err := dial()
	assert.Error(t, err)
	assert.Equal(t, "Serial: /dev/ecustat-missing @ 115200 baud", info)
}

func TestReadPassword_FromEnvironment(t *testing.T) {
	t.Setenv(passwordEnv, "hunter2")
	pw, err := readPassword()
	require.NoError(t, err)
	assert.Equal(t, "hunter2", pw)
}

func TestConnectionManager_Reconnect(t *testing.T) {
	var dials atomic.Int32
	url := newBridge(t, func(c *websocket.Conn, _ *http.Request) {
		dials.Add(1)
		c.ReadMessage()
	})

	cm, err := newConnectionManager(config.ConnectionConfig{URL: url})
	require.NoError(t, err)
	defer cm.Close()
	cm.backoff = time.Millisecond

	first, _ := cm.getConn()
	require.True(t, cm.reconnect(make(chan struct{})))
	second, info := cm.getConn()
	assert.NotSame(t, first, second)
	assert.Equal(t, "WebSocket: "+url, info)
	assert.Eventually(t, func() bool { return dials.Load() == 2 }, 5*time.Second, 10*time.Millisecond)

	n, err := cm.Write([]byte{'A'})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestConnectionManager_ReconnectStops(t *testing.T) {
	cm := &connectionManager{
		dial: func() (Connection, string, error) {
			return nil, "", errors.New("no bridge")
		},
		backoff:    time.Millisecond,
		maxBackoff: 2 * time.Millisecond,
	}
	done := make(chan struct{})
	time.AfterFunc(20*time.Millisecond, func() { close(done) })
	assert.False(t, cm.reconnect(done))

	_, err := cm.Write([]byte{'A'})
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestStartReader(t *testing.T) {
	url := newBridge(t, func(c *websocket.Conn, _ *http.Request) {
		c.WriteMessage(websocket.BinaryMessage, []byte("CLT=85\n"))
	})

	conn := dialTestBridge(t, url)
	defer conn.Close()

	data, errs := startReader(conn)
	select {
	case chunk := <-data:
		assert.Equal(t, "CLT=85\n", string(chunk))
	case <-time.After(5 * time.Second):
		t.Fatal("no data")
	}
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrConnectionClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("no close error")
	}
}
