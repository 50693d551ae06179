package viiperlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Link is a keyboard device attached to a VIIPER bus together with its
// open stream.
type Link struct {
	client  *Client
	logger  *slog.Logger
	BusID   uint32
	Device  *Device
	Stream  *DeviceStream
	Sink    *KeyboardSink
	ownsBus bool
}

// Attach adds a keyboard to busID and opens its stream. A busID of 0
// creates a new bus, which Close removes again.
func Attach(ctx context.Context, c *Client, busID uint32, o *CreateOptions, logger *slog.Logger) (*Link, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Link{client: c, logger: logger, BusID: busID}
	if busID == 0 {
		bus, err := c.BusCreate(ctx, 0)
		if err != nil {
			return nil, fmt.Errorf("create bus: %w", err)
		}
		l.BusID = bus.BusID
		l.ownsBus = true
		logger.Info("Created bus", "busId", l.BusID)
	}

	dev, err := c.DeviceAdd(ctx, l.BusID, DeviceTypeKeyboard, o)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("add keyboard: %w", err), l.removeBus(ctx))
	}
	l.Device = dev

	stream, err := c.OpenStream(ctx, l.BusID, dev.DevID)
	if err != nil {
		_, rmErr := c.DeviceRemove(ctx, l.BusID, dev.DevID)
		return nil, errors.Join(fmt.Errorf("open stream: %w", err), rmErr, l.removeBus(ctx))
	}
	l.Stream = stream
	l.Sink = NewKeyboardSink(stream)
	logger.Info("Keyboard attached", "busId", l.BusID, "devId", dev.DevID, "vid", dev.Vid, "pid", dev.Pid)
	return l, nil
}

// WatchLEDs logs host LED changes until the stream closes.
func (l *Link) WatchLEDs() error {
	return l.Sink.WatchLEDs(l.Stream, func(leds LEDs) {
		l.logger.Info("Host LEDs changed", "leds", leds.String())
	})
}

func (l *Link) removeBus(ctx context.Context) error {
	if !l.ownsBus {
		return nil
	}
	if _, err := l.client.BusRemove(ctx, l.BusID); err != nil {
		return fmt.Errorf("remove bus: %w", err)
	}
	return nil
}

// Close closes the stream and detaches the keyboard.
func (l *Link) Close(ctx context.Context) error {
	var errs []error
	if err := l.Stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close stream: %w", err))
	}
	if _, err := l.client.DeviceRemove(ctx, l.BusID, l.Device.DevID); err != nil {
		errs = append(errs, fmt.Errorf("remove keyboard: %w", err))
	}
	if err := l.removeBus(ctx); err != nil {
		errs = append(errs, err)
	}
	l.logger.Info("Keyboard detached", "busId", l.BusID, "devId", l.Device.DevID)
	return errors.Join(errs...)
}
