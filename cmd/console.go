// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"io"
	"log"
	"os"

	"golang.org/x/term"
)

// console reads single keys from stdin. On a terminal it switches to raw
// mode so keys arrive without Enter.
type console struct {
	fd    int
	state *term.State
	keys  chan byte
	out   io.Writer
}

func openConsole() *console {
	c := &console{
		fd:   int(os.Stdin.Fd()),
		keys: make(chan byte, 8),
		out:  os.Stdout,
	}

	if term.IsTerminal(c.fd) {
		if state, err := term.MakeRaw(c.fd); err == nil {
			c.state = state
			c.out = crlfWriter{w: os.Stdout}
			log.SetOutput(crlfWriter{w: os.Stderr})
		}
	}

	go func() {
		var b [1]byte
		for {
			n, err := os.Stdin.Read(b[:])
			if err != nil {
				return
			}
			if n == 1 {
				c.keys <- b[0]
			}
		}
	}()

	return c
}

func (c *console) restore() {
	if c.state != nil {
		term.Restore(c.fd, c.state)
		log.SetOutput(os.Stderr)
		c.state = nil
	}
}

// crlfWriter turns LF into CRLF for a terminal in raw mode.
type crlfWriter struct {
	w io.Writer
}

func (c crlfWriter) Write(p []byte) (int, error) {
	if _, err := c.w.Write(bytes.ReplaceAll(p, []byte{'\n'}, []byte{'\r', '\n'})); err != nil {
		return 0, err
	}
	return len(p), nil
}
