// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rsp is a client for the GDB remote serial protocol, as served
// by QEMU's gdbstub. It implements the read-only subset needed to
// inspect a halted machine: memory reads and the thread (vCPU) list.
package rsp

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrUnsupported is returned when the stub replies to a request with an
// empty packet.
var ErrUnsupported = errors.New("rsp: request not supported by stub")

// An Error is an "E NN" reply from the stub.
type Error struct {
	Code    int
	Request string
}

func (e *Error) Error() string {
	return fmt.Sprintf("rsp: stub returned error %02x for %q", e.Code, e.Request)
}

const (
	defaultPacketSize = 4096
	maxRetransmits    = 3
)

// A Client is a connection to a stub. It is safe for concurrent use;
// requests are serialized on the connection.
type Client struct {
	// Timeout bounds each request. Zero means no limit.
	Timeout time.Duration

	mu         sync.Mutex
	conn       net.Conn
	r          *bufio.Reader
	noAck      bool
	packetSize int
	features   map[string]string
}

// Dial connects to the stub at addr (host:port) and performs the
// qSupported handshake. The context bounds the connect and the
// handshake.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	c, err := NewClient(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// NewClient runs the handshake over an established connection.
func NewClient(ctx context.Context, conn net.Conn) (*Client, error) {
	c := &Client{
		conn:       conn,
		r:          bufio.NewReader(conn),
		packetSize: defaultPacketSize,
		features:   make(map[string]string),
	}
	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := c.handshake(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("rsp handshake: %w", err)
	}
	conn.SetDeadline(time.Time{})
	return c, nil
}

func (c *Client) handshake() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	reply, err := c.exchange("qSupported:multiprocess+;swbreak+;hwbreak+")
	if err != nil && !errors.Is(err, ErrUnsupported) {
		return err
	}
	for _, f := range strings.Split(reply, ";") {
		switch {
		case f == "":
		case strings.HasSuffix(f, "+"), strings.HasSuffix(f, "-"), strings.HasSuffix(f, "?"):
			c.features[f[:len(f)-1]] = f[len(f)-1:]
		default:
			name, val, _ := strings.Cut(f, "=")
			c.features[name] = val
		}
	}
	if s, ok := c.features["PacketSize"]; ok {
		n, err := strconv.ParseUint(s, 16, 32)
		if err != nil || n < 32 {
			return fmt.Errorf("bad PacketSize %q", s)
		}
		c.packetSize = int(n)
	}
	if c.features["QStartNoAckMode"] == "+" {
		reply, err := c.exchange("QStartNoAckMode")
		if err != nil {
			return err
		}
		if reply == "OK" {
			c.noAck = true
		}
	}
	return nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Supported reports the value the stub gave for a qSupported feature:
// "+", "-", "?" or the text after '='.
func (c *Client) Supported(name string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.features[name]
	return v, ok
}

// Exchange sends one request and returns the reply.
func (c *Client) Exchange(req string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Timeout > 0 {
		c.conn.SetDeadline(time.Now().Add(c.Timeout))
		defer c.conn.SetDeadline(time.Time{})
	}
	return c.exchange(req)
}

// exchange sends req and reads the reply. c.mu must be held.
func (c *Client) exchange(req string) (string, error) {
	if err := c.send(req); err != nil {
		return "", err
	}
	for tries := 0; ; tries++ {
		body, err := readPacket(c.r)
		if errors.Is(err, ErrChecksum) && !c.noAck && tries < maxRetransmits {
			if _, err := c.conn.Write([]byte{'-'}); err != nil {
				return "", err
			}
			continue
		}
		if err != nil {
			return "", err
		}
		if !c.noAck {
			if _, err := c.conn.Write([]byte{'+'}); err != nil {
				return "", err
			}
		}
		return replyError(req, string(body))
	}
}

// send writes one packet and, outside no-ack mode, waits for the stub
// to acknowledge it.
func (c *Client) send(req string) error {
	pkt := encode([]byte(req))
	for tries := 0; ; tries++ {
		if _, err := c.conn.Write(pkt); err != nil {
			return err
		}
		if c.noAck {
			return nil
		}
		ack, err := c.r.ReadByte()
		if err != nil {
			return err
		}
		switch ack {
		case '+':
			return nil
		case '-':
			if tries < maxRetransmits {
				continue
			}
			return fmt.Errorf("rsp: stub rejected %q %d times", req, tries+1)
		default:
			return fmt.Errorf("rsp: expected ack, got %q", ack)
		}
	}
}

// replyError turns empty and "E NN" replies into errors.
func replyError(req, reply string) (string, error) {
	if reply == "" {
		return "", ErrUnsupported
	}
	if len(reply) == 3 && reply[0] == 'E' {
		if n, err := strconv.ParseUint(reply[1:], 16, 8); err == nil {
			return "", &Error{Code: int(n), Request: req}
		}
	}
	return reply, nil
}

// StopReason returns the stub's reply to "?", such as "T05thread:01;".
func (c *Client) StopReason() (string, error) {
	return c.Exchange("?")
}

// ReadMemory fills b with the target memory at addr. Large reads are
// split to fit the stub's packet size.
func (c *Client) ReadMemory(addr uint64, b []byte) error {
	// Each byte is two hex digits in the reply, which also carries
	// the framing.
	chunk := (c.packetSize - 4) / 2
	for len(b) > 0 {
		n := min(len(b), chunk)
		req := fmt.Sprintf("m%x,%x", addr, n)
		reply, err := c.Exchange(req)
		if err != nil {
			return err
		}
		data, err := hex.DecodeString(reply)
		if err != nil {
			return fmt.Errorf("rsp: bad memory reply to %q: %v", req, err)
		}
		if len(data) == 0 || len(data) > n {
			return fmt.Errorf("rsp: memory reply to %q has %d bytes", req, len(data))
		}
		copy(b, data)
		b = b[len(data):]
		addr += uint64(len(data))
	}
	return nil
}

// Threads returns the stub's thread ids in the order the stub lists
// them. For QEMU each thread is a vCPU.
func (c *Client) Threads() ([]string, error) {
	var ids []string
	req := "qfThreadInfo"
	for {
		reply, err := c.Exchange(req)
		if err != nil {
			return nil, err
		}
		if reply == "l" {
			return ids, nil
		}
		if reply[0] != 'm' {
			return nil, fmt.Errorf("rsp: bad thread list reply %q", reply)
		}
		for _, id := range strings.Split(reply[1:], ",") {
			if id != "" {
				ids = append(ids, id)
			}
		}
		req = "qsThreadInfo"
	}
}

// SelectThread makes id the thread later memory and register requests
// apply to.
func (c *Client) SelectThread(id string) error {
	reply, err := c.Exchange("Hg" + id)
	if err != nil {
		return err
	}
	if reply != "OK" {
		return fmt.Errorf("rsp: unexpected reply %q to Hg%s", reply, id)
	}
	return nil
}
