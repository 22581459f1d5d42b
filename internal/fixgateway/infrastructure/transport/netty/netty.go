// Package netty implements the line-oriented TCP transport the gateway's
// destination dispatcher and output listener use for "netty:tcp://host:port"
// endpoint URIs. Framing follows the FIX SOH convention rather than newlines.
package netty

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/wyfcoding/fixrouter/internal/fixgateway/domain"
	"github.com/wyfcoding/fixrouter/internal/fixgateway/infrastructure/fixprotocol"
	"github.com/wyfcoding/fixrouter/internal/fixgateway/infrastructure/transport"
)

// checksumFieldMarker is the SOH-prefixed start of the CheckSum (tag 10)
// field, which always terminates a FIX message. A full buffer is recognised
// once this marker appears followed by its own closing SOH.
var checksumFieldMarker = []byte{fixprotocol.SOH, '1', '0', '='}

// sender is a Sender for one "tcp://host:port" target. When disconnect=true
// (the Netty default) it dials fresh for every send and closes immediately
// after, so a misbehaving endpoint can never wedge a channel open across
// unrelated envelopes; when reuseChannel=true the connection is held open
// across sends instead.
type sender struct {
	addr           string
	connectTimeout time.Duration
	requestTimeout time.Duration

	conn net.Conn // held only when reuseChannel is set
}

// Dial resolves the target's connection parameters. When reuseChannel is
// requested, the connection is opened immediately; otherwise it opens lazily
// on each Send.
func Dial(target string, params map[string]string) (transport.Sender, error) {
	addr := strings.TrimPrefix(target, "tcp://")

	s := &sender{
		addr:           addr,
		connectTimeout: durationParam(params, "connectTimeout", 2000),
		requestTimeout: durationParam(params, "requestTimeout", 2000),
	}

	if boolParam(params, "reuseChannel", false) {
		conn, err := net.DialTimeout("tcp", addr, s.connectTimeout)
		if err != nil {
			return nil, fmt.Errorf("%w: dial %s: %v", domain.ErrNetwork, addr, err)
		}
		s.conn = conn
	}

	return s, nil
}

// Send writes payload (already SOH-terminated by the caller) to the target.
func (s *sender) Send(ctx context.Context, payload []byte) error {
	conn := s.conn
	if conn == nil {
		dialed, err := net.DialTimeout("tcp", s.addr, s.connectTimeout)
		if err != nil {
			return fmt.Errorf("%w: dial %s: %v", domain.ErrNetwork, s.addr, err)
		}
		conn = dialed
	}

	deadline := time.Now().Add(s.requestTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}

	err := s.writeWithDeadline(conn, payload, deadline)
	if s.conn == nil { // not a reused channel: always close what we just dialed
		_ = conn.Close()
	}
	return err
}

func (s *sender) writeWithDeadline(conn net.Conn, payload []byte, deadline time.Time) error {
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: set write deadline: %v", domain.ErrNetwork, err)
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("%w: write: %v", domain.ErrNetwork, err)
	}
	return nil
}

func (s *sender) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// listener accepts connections on a TCP address and scans SOH-delimited FIX
// buffers off each one.
type listener struct {
	ln net.Listener
}

// Listen opens a TCP listener on "tcp://host:port" for an OUTPUT route.
func Listen(target string) (transport.Listener, error) {
	addr := strings.TrimPrefix(target, "tcp://")
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: listen %s: %v", domain.ErrNetwork, addr, err)
	}
	return &listener{ln: ln}, nil
}

// Accept blocks for the next inbound connection, reads the first complete
// FIX message from it (framed on the CheckSum field), and closes that
// connection; anything sent after that message on the same connection is
// discarded. The listener itself stays open for the next connection.
func (l *listener) Accept(ctx context.Context) ([]byte, error) {
	type acceptResult struct {
		conn net.Conn
		err  error
	}
	resultCh := make(chan acceptResult, 1)
	go func() {
		conn, err := l.ln.Accept()
		resultCh <- acceptResult{conn, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultCh:
		if res.err != nil {
			return nil, fmt.Errorf("%w: accept: %v", domain.ErrNetwork, res.err)
		}
		return readOneMessage(res.conn)
	}
}

func readOneMessage(conn net.Conn) ([]byte, error) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	scanner.Split(scanSOHDelimited)
	if scanner.Scan() {
		return fixprotocol.EnsureTrailingSOH(scanner.Bytes()), nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read: %v", domain.ErrNetwork, err)
	}
	return nil, fmt.Errorf("%w: connection closed before a complete message arrived", domain.ErrNetwork)
}

// scanSOHDelimited is a bufio.SplitFunc that frames on a complete FIX
// message rather than on the first SOH-delimited field: a FIX payload
// packs many tag=value fields between SOH bytes (8=FIX.4.4\x0135=D\x01...),
// and the message itself only ends at the CheckSum (tag 10) field's own
// trailing SOH.
func scanSOHDelimited(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if idx := bytes.Index(data, checksumFieldMarker); idx >= 0 {
		rest := data[idx+len(checksumFieldMarker):]
		if soh := bytes.IndexByte(rest, fixprotocol.SOH); soh >= 0 {
			end := idx + len(checksumFieldMarker) + soh + 1
			return end, data[:end], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func (l *listener) Close() error {
	return l.ln.Close()
}

// TestAddr exposes the bound address for tests; not part of transport.Listener.
func (l *listener) TestAddr() string {
	return l.ln.Addr().String()
}

func durationParam(params map[string]string, key string, defaultMS int) time.Duration {
	if v, ok := params[key]; ok {
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return time.Duration(defaultMS) * time.Millisecond
}

func boolParam(params map[string]string, key string, defaultVal bool) bool {
	if v, ok := params[key]; ok {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return defaultVal
}
