package viiperlink

import (
	"errors"
	"io"
	"net"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/necocen/necoboard/emitter"
	"github.com/necocen/necoboard/hid"
)

// LEDs is the host LED bitmask a VIIPER keyboard reports back.
type LEDs uint8

const (
	LEDNumLock LEDs = 1 << iota
	LEDCapsLock
	LEDScrollLock
	LEDCompose
	LEDKana
)

var ledNames = []struct {
	bit  LEDs
	name string
}{
	{LEDNumLock, "num"},
	{LEDCapsLock, "caps"},
	{LEDScrollLock, "scroll"},
	{LEDCompose, "compose"},
	{LEDKana, "kana"},
}

func (l LEDs) String() string {
	var on []string
	for _, n := range ledNames {
		if l&n.bit != 0 {
			on = append(on, n.name)
		}
	}
	if len(on) == 0 {
		return "none"
	}
	return strings.Join(on, "|")
}

// Keyboard-page usages the VIIPER keyboard uses for media keys.
const (
	KeyMute           uint8 = 0x7F
	KeyVolumeUp       uint8 = 0x80
	KeyVolumeDown     uint8 = 0x81
	KeyMediaPlayPause uint8 = 0xE8
	KeyMediaStop      uint8 = 0xE9
	KeyMediaNext      uint8 = 0xEB
	KeyMediaPrevious  uint8 = 0xEC
)

// MediaUsage maps a consumer-page usage to the keyboard-page usage of the
// VIIPER keyboard, or 0 when it has none.
func MediaUsage(consumer uint16) uint8 {
	switch consumer {
	case hid.ConsumerMute:
		return KeyMute
	case hid.ConsumerVolumeUp:
		return KeyVolumeUp
	case hid.ConsumerVolumeDown:
		return KeyVolumeDown
	case hid.ConsumerPlayPause:
		return KeyMediaPlayPause
	case hid.ConsumerStop:
		return KeyMediaStop
	case hid.ConsumerNextTrack:
		return KeyMediaNext
	case hid.ConsumerPrevTrack:
		return KeyMediaPrevious
	default:
		return 0
	}
}

// KeyboardSink drives a VIIPER keyboard stream. The device has a single
// input report, so the active media key is merged into the key list of the
// last keyboard report and the combined state is written on every send.
type KeyboardSink struct {
	mu       sync.Mutex
	w        io.Writer
	keyboard hid.KeyboardReport
	media    uint8
	leds     atomic.Uint32

	// OnWrite, when set, sees every message that was written.
	OnWrite func(stream string, data []byte)
}

var _ emitter.Transport = (*KeyboardSink)(nil)

func NewKeyboardSink(w io.Writer) *KeyboardSink {
	return &KeyboardSink{w: w}
}

func (s *KeyboardSink) SendKeyboard(r hid.KeyboardReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keyboard = r.Clone()
	return s.flush()
}

func (s *KeyboardSink) SendConsumer(r hid.ConsumerReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.media = MediaUsage(r.Usage)
	return s.flush()
}

func (s *KeyboardSink) flush() error {
	rep := s.keyboard.Clone()
	if s.media != 0 && !slices.Contains(rep.Keys, s.media) {
		rep.Keys = append(rep.Keys, s.media)
	}
	data, err := rep.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := s.w.Write(data); err != nil {
		return err
	}
	if s.OnWrite != nil {
		s.OnWrite("VIIPER", data)
	}
	return nil
}

// LEDs returns the last LED state read by WatchLEDs.
func (s *KeyboardSink) LEDs() LEDs { return LEDs(s.leds.Load()) }

// WatchLEDs reads one LED byte per host update from r until it fails. fn,
// when non-nil, is called for every update. A clean EOF or a closed stream
// returns nil.
func (s *KeyboardSink) WatchLEDs(r io.Reader, fn func(LEDs)) error {
	var b [1]byte
	for {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, ErrStreamClosed) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		l := LEDs(b[0])
		s.leds.Store(uint32(l))
		if fn != nil {
			fn(l)
		}
	}
}
