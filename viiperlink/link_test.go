package viiperlink_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/necocen/necoboard/hid"
	"github.com/necocen/necoboard/viiperlink"
)

func TestEncryptedTransport(t *testing.T) {
	tests := []struct {
		name           string
		serverPassword string
		clientPassword string
		wantStatus     int
	}{
		{name: "matching password", serverPassword: "test123", clientPassword: "test123"},
		{name: "wrong password", serverPassword: "test123", clientPassword: "nope", wantStatus: 401},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := startFakeServer(t, tt.serverPassword, func(path, _ string) string {
				return `{"server":"VIIPER","version":"` + path + `"}`
			})
			cfg := viiperlink.DefaultConfig()
			cfg.Password = tt.clientPassword
			got, err := viiperlink.New(srv.addr(), &cfg).Ping(context.Background())
			if tt.wantStatus != 0 {
				var apiErr *viiperlink.ApiError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, tt.wantStatus, apiErr.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, &viiperlink.PingResponse{Server: "VIIPER", Version: "ping"}, got)
		})
	}
}

func TestSecureConnRoundTrip(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	key := bytes.Repeat([]byte{0x42}, 32)
	ca, err := viiperlink.WrapConn(a, key)
	require.NoError(t, err)
	cb, err := viiperlink.WrapConn(b, key)
	require.NoError(t, err)

	go func() {
		_, _ = ca.Write([]byte("bus/1/1\x00"))
		_, _ = ca.Write([]byte{0x02, 0x01, 0x04})
	}()
	buf := make([]byte, 11)
	_, err = io.ReadFull(cb, buf)
	require.NoError(t, err)
	assert.Equal(t, append([]byte("bus/1/1\x00"), 0x02, 0x01, 0x04), buf)
}

func TestSecureConnRejectsWrongKey(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	ca, err := viiperlink.WrapConn(a, bytes.Repeat([]byte{0x01}, 32))
	require.NoError(t, err)
	cb, err := viiperlink.WrapConn(b, bytes.Repeat([]byte{0x02}, 32))
	require.NoError(t, err)

	go func() { _, _ = ca.Write([]byte("ping\x00")) }()
	_, err = cb.Read(make([]byte, 8))
	assert.Error(t, err)
}

func TestDeriveKey(t *testing.T) {
	k1, err := viiperlink.DeriveKey("secret")
	require.NoError(t, err)
	k2, err := viiperlink.DeriveKey("secret")
	require.NoError(t, err)
	assert.Len(t, k1, 32)
	assert.Equal(t, k1, k2)

	_, err = viiperlink.DeriveKey("")
	assert.Error(t, err)

	s1 := viiperlink.DeriveSessionKey(k1, []byte("server"), []byte("client"))
	s2 := viiperlink.DeriveSessionKey(k1, []byte("client"), []byte("server"))
	assert.Len(t, s1, 32)
	assert.NotEqual(t, s1, s2)
}

func TestSinkMergesMedia(t *testing.T) {
	tests := []struct {
		name     string
		keyboard hid.KeyboardReport
		consumer uint16
		want     []byte
	}{
		{
			name:     "keys only",
			keyboard: hid.KeyboardReport{Modifiers: 0x02, Keys: []uint8{hid.KeyA}},
			want:     []byte{0x02, 1, hid.KeyA},
		},
		{
			name:     "volume up appended",
			keyboard: hid.KeyboardReport{Keys: []uint8{hid.KeyA}},
			consumer: hid.ConsumerVolumeUp,
			want:     []byte{0x00, 2, hid.KeyA, viiperlink.KeyVolumeUp},
		},
		{
			name:     "play pause alone",
			consumer: hid.ConsumerPlayPause,
			want:     []byte{0x00, 1, viiperlink.KeyMediaPlayPause},
		},
		{
			name:     "unmapped consumer usage ignored",
			consumer: hid.ConsumerBrightnessUp,
			want:     []byte{0x00, 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			sink := viiperlink.NewKeyboardSink(&buf)
			require.NoError(t, sink.SendKeyboard(tt.keyboard))
			buf.Reset()
			require.NoError(t, sink.SendConsumer(hid.ConsumerReport{Usage: tt.consumer}))
			assert.Equal(t, tt.want, buf.Bytes())
		})
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestSinkWriteError(t *testing.T) {
	sink := viiperlink.NewKeyboardSink(failingWriter{})
	assert.EqualError(t, sink.SendKeyboard(hid.KeyboardReport{}), "broken pipe")
}

func TestLEDsString(t *testing.T) {
	assert.Equal(t, "none", viiperlink.LEDs(0).String())
	assert.Equal(t, "num|caps", (viiperlink.LEDNumLock | viiperlink.LEDCapsLock).String())
}

func TestAttachStreamsWireReports(t *testing.T) {
	srv := startFakeServer(t, "", func(path, payload string) string {
		switch path {
		case "bus/create":
			return `{"busId":7}`
		case "bus/7/add":
			return `{"busId":7,"devId":"1","vid":"0x2e8a","pid":"0x0010","type":"keyboard"}`
		case "bus/7/remove":
			return `{"busId":7,"devId":"` + payload + `"}`
		case "bus/remove":
			return `{"busId":7}`
		default:
			return `{"status":404,"title":"Not Found","detail":"` + path + `"}`
		}
	})
	ctx := context.Background()
	link, err := viiperlink.Attach(ctx, viiperlink.New(srv.addr(), nil), 0, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), link.BusID)
	assert.Equal(t, "1", link.Device.DevID)

	var stream net.Conn
	select {
	case s := <-srv.streams:
		stream = s
	case <-time.After(2 * time.Second):
		t.Fatal("stream was not opened")
	}
	defer stream.Close()

	require.NoError(t, link.Sink.SendKeyboard(hid.KeyboardReport{Modifiers: 0x02, Keys: []uint8{hid.KeyA}}))
	require.NoError(t, link.Sink.SendConsumer(hid.ConsumerReport{Usage: hid.ConsumerMute}))
	got := make([]byte, 7)
	_ = stream.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = io.ReadFull(stream, got)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 1, hid.KeyA, 0x02, 2, hid.KeyA, viiperlink.KeyMute}, got)

	leds := make(chan viiperlink.LEDs, 1)
	done := make(chan error, 1)
	go func() {
		done <- link.Sink.WatchLEDs(link.Stream, func(l viiperlink.LEDs) { leds <- l })
	}()
	_, err = stream.Write([]byte{byte(viiperlink.LEDCapsLock)})
	require.NoError(t, err)
	select {
	case l := <-leds:
		assert.Equal(t, viiperlink.LEDCapsLock, l)
	case <-time.After(2 * time.Second):
		t.Fatal("no LED update")
	}
	assert.Equal(t, viiperlink.LEDCapsLock, link.Sink.LEDs())

	require.NoError(t, link.Close(ctx))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("LED watcher did not stop")
	}
	assert.Equal(t, []string{
		"bus/create",
		`bus/7/add {"type":"keyboard"}`,
		"bus/7/1",
		"bus/7/remove 1",
		"bus/remove 7",
	}, srv.lines())
}
