package viiperlink_test

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"net"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/necocen/necoboard/viiperlink"
)

var streamPath = regexp.MustCompile(`^bus/\d+/\d+$`)

// streamConn is the server end of an opened device stream.
type streamConn struct {
	net.Conn
	r *bufio.Reader
}

func (s streamConn) Read(p []byte) (int, error) { return s.r.Read(p) }

// fakeServer is a minimal VIIPER API server: one request per connection,
// except device streams, which are handed to the test on streams.
type fakeServer struct {
	ln       net.Listener
	password string
	handle   func(path, payload string) string

	mu       sync.Mutex
	requests []string
	streams  chan streamConn
}

func startFakeServer(t *testing.T, password string, handle func(path, payload string) string) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeServer{ln: ln, password: password, handle: handle, streams: make(chan streamConn, 4)}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.serve(conn)
		}
	}()
	return s
}

func (s *fakeServer) addr() string { return s.ln.Addr().String() }

func (s *fakeServer) lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *fakeServer) serve(conn net.Conn) {
	var c net.Conn = conn
	r := bufio.NewReader(conn)
	if s.password != "" {
		key, err := viiperlink.DeriveKey(s.password)
		if err != nil {
			conn.Close()
			return
		}
		clientNonce, serverNonce, err := viiperlink.ServerHandshake(r, conn, key)
		if err != nil {
			var apiErr *viiperlink.ApiError
			if errors.As(err, &apiErr) {
				b, _ := json.Marshal(apiErr)
				_, _ = conn.Write(append(b, '\n'))
			}
			conn.Close()
			return
		}
		c, err = viiperlink.WrapConn(conn, viiperlink.DeriveSessionKey(key, serverNonce, clientNonce))
		if err != nil {
			conn.Close()
			return
		}
		r = bufio.NewReader(c)
	}

	line, err := r.ReadString('\x00')
	if err != nil && !errors.Is(err, io.EOF) {
		c.Close()
		return
	}
	line = strings.TrimSuffix(line, "\x00")
	s.mu.Lock()
	s.requests = append(s.requests, line)
	s.mu.Unlock()

	if streamPath.MatchString(line) {
		s.streams <- streamConn{Conn: c, r: r}
		return
	}
	path, payload, _ := strings.Cut(line, " ")
	_, _ = c.Write([]byte(s.handle(path, payload) + "\n"))
	c.Close()
}
