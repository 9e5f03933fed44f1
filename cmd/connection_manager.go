// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"sync"
	"time"

	"github.com/Thermoquad/ecustat/internal/config"
	"github.com/Thermoquad/ecustat/internal/monitoring"
)

// connectionManager handles connection lifecycle and reconnection
type connectionManager struct {
	mu       sync.RWMutex
	conn     Connection
	connInfo string

	dial       dialer
	backoff    time.Duration
	maxBackoff time.Duration
}

// newConnectionManager opens the first connection. The same dialer is used
// to reconnect.
func newConnectionManager(c config.ConnectionConfig) (*connectionManager, error) {
	dial, err := newDialer(c)
	if err != nil {
		return nil, err
	}
	cm := &connectionManager{
		dial:       dial,
		backoff:    time.Second,
		maxBackoff: 30 * time.Second,
	}

	conn, connInfo, err := cm.dial()
	if err != nil {
		return nil, err
	}
	cm.setConn(conn, connInfo)
	return cm, nil
}

func (cm *connectionManager) getConn() (Connection, string) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.conn, cm.connInfo
}

func (cm *connectionManager) setConn(conn Connection, connInfo string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.conn = conn
	cm.connInfo = connInfo
}

// Write sends to the current connection. Poll requests go through here so
// they follow a reconnect.
func (cm *connectionManager) Write(p []byte) (int, error) {
	conn, _ := cm.getConn()
	if conn == nil {
		return 0, ErrConnectionClosed
	}
	return conn.Write(p)
}

func (cm *connectionManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.conn == nil {
		return nil
	}
	err := cm.conn.Close()
	cm.conn = nil
	return err
}

// reconnect closes the current connection and retries with exponential
// backoff. It returns false if done closes first.
func (cm *connectionManager) reconnect(done <-chan struct{}) bool {
	cm.Close()

	backoff := cm.backoff
	for {
		select {
		case <-done:
			return false
		case <-time.After(backoff):
		}

		conn, connInfo, err := cm.dial()
		if err == nil {
			cm.setConn(conn, connInfo)
			monitoring.Logf("reconnected: %s", connInfo)
			return true
		}
		monitoring.Logf("reconnect failed: %v", err)

		// Exponential backoff
		backoff *= 2
		if backoff > cm.maxBackoff {
			backoff = cm.maxBackoff
		}
	}
}
