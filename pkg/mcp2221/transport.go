package mcp2221

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"
)

// DefaultTimeout bounds each report exchange.
const DefaultTimeout = time.Second

// Transport exchanges fixed-size reports with the bridge.
type Transport interface {
	WriteRead(report []byte) ([]byte, error)
	Close() error
}

// USBTransport talks to the bridge's HID interface through libusb.
type USBTransport struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface

	epOut *gousb.OutEndpoint
	epIn  *gousb.InEndpoint

	timeout time.Duration
}

// OpenUSB opens the first bridge with the given IDs.
func OpenUSB(vid, pid uint16) (*USBTransport, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("USB error: %w", err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("device not found (VID:0x%04X PID:0x%04X)", vid, pid)
	}

	// the kernel HID driver owns the interface until detached
	_ = dev.SetAutoDetach(true)

	t := &USBTransport{ctx: ctx, dev: dev, timeout: DefaultTimeout}
	if err := t.claimHID(); err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}

// claimHID finds the HID interface and its interrupt endpoints.
func (t *USBTransport) claimHID() error {
	cfg, err := t.dev.Config(1)
	if err != nil {
		return fmt.Errorf("failed to get config: %w", err)
	}
	t.cfg = cfg

	num := -1
	for _, intf := range cfg.Desc.Interfaces {
		if len(intf.AltSettings) > 0 && intf.AltSettings[0].Class == gousb.ClassHID {
			num = intf.Number
			break
		}
	}
	if num < 0 {
		return fmt.Errorf("HID interface not found")
	}

	intf, err := cfg.Interface(num, 0)
	if err != nil {
		return fmt.Errorf("failed to claim interface %d: %w", num, err)
	}
	t.intf = intf

	var outNum, inNum int
	for _, ep := range intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeInterrupt {
			continue
		}
		switch ep.Direction {
		case gousb.EndpointDirectionOut:
			outNum = ep.Number
		case gousb.EndpointDirectionIn:
			inNum = ep.Number
		}
	}
	if outNum == 0 || inNum == 0 {
		return fmt.Errorf("interrupt endpoints not found")
	}

	if t.epOut, err = intf.OutEndpoint(outNum); err != nil {
		return fmt.Errorf("failed to open OUT endpoint: %w", err)
	}
	if t.epIn, err = intf.InEndpoint(inNum); err != nil {
		return fmt.Errorf("failed to open IN endpoint: %w", err)
	}
	return nil
}

// SetTimeout sets the per-exchange timeout.
func (t *USBTransport) SetTimeout(d time.Duration) {
	t.timeout = d
}

// WriteRead sends one report and waits for the response. The reset command
// has no response.
func (t *USBTransport) WriteRead(report []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	out := make([]byte, ReportSize)
	copy(out, report)
	if _, err := t.epOut.WriteContext(ctx, out); err != nil {
		return nil, fmt.Errorf("USB write failed: %w", err)
	}
	if out[0] == CmdReset {
		return nil, nil
	}

	rsp := make([]byte, ReportSize)
	n, err := t.epIn.ReadContext(ctx, rsp)
	if err != nil {
		return nil, fmt.Errorf("USB read failed: %w", err)
	}
	return rsp[:n], nil
}

// Close releases USB resources.
func (t *USBTransport) Close() error {
	if t.intf != nil {
		t.intf.Close()
		t.intf = nil
	}
	if t.cfg != nil {
		t.cfg.Close()
		t.cfg = nil
	}
	if t.dev != nil {
		t.dev.Close()
		t.dev = nil
	}
	if t.ctx != nil {
		t.ctx.Close()
		t.ctx = nil
	}
	return nil
}

// DeviceInfo describes an attached bridge.
type DeviceInfo struct {
	VID          uint16
	PID          uint16
	Bus          int
	Address      int
	SerialNumber string
	Description  string
}

// Discover lists attached bridges.
func Discover() ([]DeviceInfo, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == VendorID && desc.Product == ProductID
	})
	for _, dev := range devs {
		defer dev.Close()
	}
	if err != nil && len(devs) == 0 {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	infos := make([]DeviceInfo, 0, len(devs))
	for _, dev := range devs {
		serial, _ := dev.SerialNumber()
		manufacturer, _ := dev.Manufacturer()
		product, _ := dev.Product()
		infos = append(infos, DeviceInfo{
			VID:          uint16(dev.Desc.Vendor),
			PID:          uint16(dev.Desc.Product),
			Bus:          dev.Desc.Bus,
			Address:      dev.Desc.Address,
			SerialNumber: serial,
			Description:  fmt.Sprintf("%s %s", manufacturer, product),
		})
	}
	return infos, nil
}
