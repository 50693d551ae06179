package viiperlink

import (
	"context"
	"encoding"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// ErrStreamClosed is returned by operations on a closed DeviceStream.
var ErrStreamClosed = errors.New("stream closed")

// DeviceStream is the bidirectional byte stream of one attached device.
// Client writes are device input; server writes are device feedback.
type DeviceStream struct {
	conn   net.Conn
	BusID  uint32
	DevID  string
	closed atomic.Bool
}

// OpenStream connects to the stream of an existing device.
func (c *Client) OpenStream(ctx context.Context, busID uint32, devID string) (*DeviceStream, error) {
	if c.transport.mock != nil {
		return nil, errors.New("stream connections not supported with mock transport")
	}
	conn, err := c.transport.dial(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write([]byte(fmt.Sprintf("bus/%d/%s\x00", busID, devID))); err != nil {
		conn.Close()
		return nil, fmt.Errorf("write stream path: %w", err)
	}
	return &DeviceStream{conn: conn, BusID: busID, DevID: devID}, nil
}

func (s *DeviceStream) Write(data []byte) (int, error) {
	if s.closed.Load() {
		return 0, ErrStreamClosed
	}
	return s.conn.Write(data)
}

// WriteBinary marshals v and writes it as one message.
func (s *DeviceStream) WriteBinary(v encoding.BinaryMarshaler) error {
	data, err := v.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	_, err = s.Write(data)
	return err
}

func (s *DeviceStream) Read(buf []byte) (int, error) {
	if s.closed.Load() {
		return 0, ErrStreamClosed
	}
	return s.conn.Read(buf)
}

func (s *DeviceStream) SetWriteDeadline(t time.Time) error { return s.conn.SetWriteDeadline(t) }

// Close closes the connection. Blocked reads return an error.
func (s *DeviceStream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.conn.Close()
}
