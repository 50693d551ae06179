package viiperlink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Client is the high-level VIIPER management API.
type Client struct{ transport *Transport }

// New creates a client for addr. A nil cfg means DefaultConfig.
func New(addr string, cfg *Config) *Client { return &Client{transport: NewTransport(addr, cfg)} }

// WithTransport creates a client over an existing transport.
func WithTransport(t *Transport) *Client { return &Client{transport: t} }

// Ping returns the server identity and version.
func (c *Client) Ping(ctx context.Context) (*PingResponse, error) {
	raw, err := c.transport.DoCtx(ctx, "ping", nil, nil)
	if err != nil {
		return nil, err
	}
	return parse[PingResponse](raw)
}

// BusList lists the virtual buses.
func (c *Client) BusList(ctx context.Context) (*BusListResponse, error) {
	raw, err := c.transport.DoCtx(ctx, "bus/list", nil, nil)
	if err != nil {
		return nil, err
	}
	return parse[BusListResponse](raw)
}

// BusCreate creates a bus. A busID of 0 lets the server pick the number.
func (c *Client) BusCreate(ctx context.Context, busID uint32) (*BusCreateResponse, error) {
	var payload any
	if busID != 0 {
		payload = fmt.Sprintf("%d", busID)
	}
	raw, err := c.transport.DoCtx(ctx, "bus/create", payload, nil)
	if err != nil {
		return nil, err
	}
	return parse[BusCreateResponse](raw)
}

// BusRemove removes a bus and every device on it.
func (c *Client) BusRemove(ctx context.Context, busID uint32) (*BusRemoveResponse, error) {
	raw, err := c.transport.DoCtx(ctx, "bus/remove", fmt.Sprintf("%d", busID), nil)
	if err != nil {
		return nil, err
	}
	return parse[BusRemoveResponse](raw)
}

// DevicesList lists the devices on a bus.
func (c *Client) DevicesList(ctx context.Context, busID uint32) (*DevicesListResponse, error) {
	params := map[string]string{"id": fmt.Sprintf("%d", busID)}
	raw, err := c.transport.DoCtx(ctx, "bus/{id}/list", nil, params)
	if err != nil {
		return nil, err
	}
	return parse[DevicesListResponse](raw)
}

// DeviceAdd attaches a new device of devType to a bus.
func (c *Client) DeviceAdd(ctx context.Context, busID uint32, devType string, o *CreateOptions) (*Device, error) {
	if o == nil {
		o = &CreateOptions{}
	}
	req := DeviceCreateRequest{Type: devType, IDVendor: o.IDVendor, IDProduct: o.IDProduct}
	params := map[string]string{"id": fmt.Sprintf("%d", busID)}
	raw, err := c.transport.DoCtx(ctx, "bus/{id}/add", req, params)
	if err != nil {
		return nil, err
	}
	return parse[Device](raw)
}

// DeviceRemove detaches a device from a bus.
func (c *Client) DeviceRemove(ctx context.Context, busID uint32, devID string) (*DeviceRemoveResponse, error) {
	params := map[string]string{"id": fmt.Sprintf("%d", busID)}
	raw, err := c.transport.DoCtx(ctx, "bus/{id}/remove", devID, params)
	if err != nil {
		return nil, err
	}
	return parse[DeviceRemoveResponse](raw)
}

func parse[T any](data string) (*T, error) {
	if data == "" {
		return nil, errors.New("empty response")
	}
	var problem ApiError
	if err := json.Unmarshal([]byte(data), &problem); err == nil && (problem.Status != 0 || problem.Title != "") {
		return nil, &problem
	}
	var out T
	if err := json.NewDecoder(bytes.NewReader([]byte(data))).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &out, nil
}
