// Package mcp2221 drives a Microchip MCP2221A USB-to-I2C bridge so the chip
// addressing and EEPROM code can run from a workstation against a real module.
package mcp2221

import (
	"errors"
	"fmt"
)

const (
	VendorID  = 0x04d8
	ProductID = 0x00dd

	// ReportSize is the fixed HID report length in both directions.
	ReportSize = 64
	// ClockHz is the bridge's I2C reference clock.
	ClockHz = 12000000
	// MaxChunk is the most payload one I2C report carries.
	MaxChunk = 60
)

// Command codes.
const (
	CmdStatus          byte = 0x10 // status / set parameters
	CmdI2CWrite        byte = 0x90
	CmdI2CWriteRepeat  byte = 0x92
	CmdI2CWriteNoStop  byte = 0x94
	CmdI2CRead         byte = 0x91
	CmdI2CReadRepeat   byte = 0x93
	CmdI2CReadGetData  byte = 0x40
	CmdReset           byte = 0x70
	cancelTransfer     byte = 0x10
	setSpeedMarker     byte = 0x20
	speedChangeBusy    byte = 0x21
	readErrorIndicator byte = 0x7f
)

// I2C engine states reported in status and data responses.
const (
	StateIdle          byte = 0x00
	StateStartTimeout  byte = 0x12
	StateRepStartTO    byte = 0x17
	StateAddrTimeout   byte = 0x23
	StateAddrNACK      byte = 0x25
	StatePartialData   byte = 0x41
	StateWriteTimeout  byte = 0x44
	StateWritingNoStop byte = 0x45
	StateReadTimeout   byte = 0x52
	StateReadPartial   byte = 0x54
	StateReadComplete  byte = 0x55
	StateStopTimeout   byte = 0x62
)

var (
	ErrNACK          = errors.New("mcp2221: no acknowledge from target")
	ErrTimeout       = errors.New("mcp2221: i2c engine timeout")
	ErrBusy          = errors.New("mcp2221: transfer in progress")
	ErrCommandFailed = errors.New("mcp2221: command failed")
	ErrBadSpeed      = errors.New("mcp2221: speed out of range")
)

// StateError maps an engine state to an error, or nil for non-fatal states.
func StateError(state byte) error {
	switch state {
	case StateAddrNACK:
		return ErrNACK
	case StateStartTimeout, StateRepStartTO, StateAddrTimeout,
		StateWriteTimeout, StateReadTimeout, StateStopTimeout:
		return ErrTimeout
	}
	return nil
}

func newReport(cmd byte) []byte {
	r := make([]byte, ReportSize)
	r[0] = cmd
	return r
}

// EncodeStatus requests the status report without changing parameters.
func EncodeStatus() []byte {
	return newReport(CmdStatus)
}

// EncodeCancel aborts the current I2C transfer and releases the bus.
func EncodeCancel() []byte {
	r := newReport(CmdStatus)
	r[2] = cancelTransfer
	return r
}

// SpeedDivider returns the divider byte for hz.
func SpeedDivider(hz uint32) (byte, error) {
	if hz == 0 || hz > ClockHz/3 || hz < ClockHz/258 {
		return 0, fmt.Errorf("%w: %d Hz", ErrBadSpeed, hz)
	}
	return byte(ClockHz/hz - 3), nil
}

// EncodeSetSpeed programs the I2C clock divider.
func EncodeSetSpeed(hz uint32) ([]byte, error) {
	div, err := SpeedDivider(hz)
	if err != nil {
		return nil, err
	}
	r := newReport(CmdStatus)
	r[3] = setSpeedMarker
	r[4] = div
	return r, nil
}

// EncodeWrite builds one chunk of a write of total bytes to addr.
func EncodeWrite(cmd byte, addr uint16, total int, chunk []byte) []byte {
	r := newReport(cmd)
	r[1] = byte(total)
	r[2] = byte(total >> 8)
	r[3] = byte(addr << 1)
	copy(r[4:], chunk)
	return r
}

// EncodeRead requests n bytes from addr.
func EncodeRead(cmd byte, addr uint16, n int) []byte {
	r := newReport(cmd)
	r[1] = byte(n)
	r[2] = byte(n >> 8)
	r[3] = byte(addr<<1) | 1
	return r
}

// EncodeGetData fetches bytes buffered by a read command.
func EncodeGetData() []byte {
	return newReport(CmdI2CReadGetData)
}

// CheckResponse validates the echo and completion bytes common to every
// response.
func CheckResponse(cmd byte, rsp []byte) error {
	if len(rsp) < ReportSize {
		return fmt.Errorf("mcp2221: response too short (%d of %d bytes)", len(rsp), ReportSize)
	}
	if rsp[0] != cmd {
		return fmt.Errorf("mcp2221: response to 0x%02x echoes 0x%02x", cmd, rsp[0])
	}
	if rsp[1] != 0 {
		return fmt.Errorf("%w: 0x%02x status 0x%02x", ErrCommandFailed, cmd, rsp[1])
	}
	return nil
}

// Status is the decoded I2C part of a status report.
type Status struct {
	Cancelled   bool
	SpeedBusy   bool
	State       byte
	Requested   uint16
	Sent        uint16
	Divider     byte
	Addr        uint16
	SCL, SDA    byte
	ReadPending byte
	Firmware    string
	Hardware    string
}

// DecodeStatus parses a status/set-parameters response.
func DecodeStatus(rsp []byte) (Status, error) {
	if err := CheckResponse(CmdStatus, rsp); err != nil {
		return Status{}, err
	}
	return Status{
		Cancelled:   rsp[2] == cancelTransfer,
		SpeedBusy:   rsp[3] == speedChangeBusy,
		State:       rsp[8],
		Requested:   uint16(rsp[9]) | uint16(rsp[10])<<8,
		Sent:        uint16(rsp[11]) | uint16(rsp[12])<<8,
		Divider:     rsp[14],
		Addr:        uint16(rsp[16]) | uint16(rsp[17])<<8,
		SCL:         rsp[22],
		SDA:         rsp[23],
		ReadPending: rsp[25],
		Hardware:    string([]byte{rsp[46], rsp[47]}),
		Firmware:    string([]byte{rsp[48], rsp[49]}),
	}, nil
}

// DataResponse is a decoded get-data response.
type DataResponse struct {
	State   byte
	Pending bool // engine has not finished filling the buffer
	Data    []byte
}

// DecodeGetData parses a get-data response.
func DecodeGetData(rsp []byte) (DataResponse, error) {
	if len(rsp) < ReportSize {
		return DataResponse{}, fmt.Errorf("mcp2221: response too short (%d of %d bytes)", len(rsp), ReportSize)
	}
	if rsp[0] != CmdI2CReadGetData {
		return DataResponse{}, fmt.Errorf("mcp2221: response to 0x%02x echoes 0x%02x", CmdI2CReadGetData, rsp[0])
	}
	d := DataResponse{State: rsp[2]}
	if rsp[1] == StatePartialData || rsp[3] == readErrorIndicator {
		d.Pending = true
		return d, nil
	}
	if err := StateError(rsp[2]); err != nil {
		return d, err
	}
	n := int(rsp[3])
	if n > MaxChunk {
		n = MaxChunk
	}
	d.Data = append([]byte(nil), rsp[4:4+n]...)
	return d, nil
}
