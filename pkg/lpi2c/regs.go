package lpi2c

// Master register offsets from the controller base.
const (
	RegMCR    = 0x10 // master control
	RegMSR    = 0x14 // master status
	RegMIER   = 0x18 // master interrupt enable
	RegMDER   = 0x1c // master DMA enable
	RegMCFGR0 = 0x20
	RegMCFGR1 = 0x24
	RegMCFGR2 = 0x28
	RegMCFGR3 = 0x2c
	RegMDMR   = 0x40 // master data match
	RegMCCR0  = 0x48 // master clock configuration 0
	RegMCCR1  = 0x50 // master clock configuration 1 (high speed)
	RegMFCR   = 0x58 // master FIFO control
	RegMFSR   = 0x5c // master FIFO status
	RegMTDR   = 0x60 // master transmit data
	RegMRDR   = 0x70 // master receive data
)

// MCR bits.
const (
	MCRMEN   = 1 << 0
	MCRRST   = 1 << 1
	MCRDOZEN = 1 << 2
	MCRDBGEN = 1 << 3
	MCRRTF   = 1 << 8
	MCRRRF   = 1 << 9
)

// MSR bits.
const (
	MSRTDF  = 1 << 0
	MSRRDF  = 1 << 1
	MSREPF  = 1 << 8
	MSRSDF  = 1 << 9
	MSRNDF  = 1 << 10
	MSRALF  = 1 << 11
	MSRFEF  = 1 << 12
	MSRPLTF = 1 << 13
	MSRDMF  = 1 << 14
	MSRMBF  = 1 << 24
	MSRBBF  = 1 << 25

	// MSRClearAll clears every write-one-to-clear flag.
	MSRClearAll = 0x7f00
	// MSRErrorMask selects the flags that abort a transfer.
	MSRErrorMask = MSRNDF | MSRALF | MSRFEF | MSRPLTF
)

// MCFGR0 bits.
const (
	MCFGR0HREN  = 1 << 0
	MCFGR0HRPOL = 1 << 1
	MCFGR0HRSEL = 1 << 2
)

// MCFGR1 fields.
const (
	MCFGR1PrescaleMask  = 0x7
	MCFGR1AutoStop      = 1 << 8
	MCFGR1IgnoreAck     = 1 << 9
	MCFGR1PinCfgShift   = 24
	MCFGR1PinCfgMask    = 0x7 << MCFGR1PinCfgShift
	mcfgr1IgnoreAckShft = 9
)

// MCCR0 field shifts; every field is six bits wide.
const (
	mccr0ClkLoShift   = 0
	mccr0ClkHiShift   = 8
	mccr0SetHoldShift = 16
	mccr0DataVdShift  = 24
	mccr0FieldMask    = 0x3f
)

// MTDR/MRDR fields.
const (
	mtdrCmdShift = 8
	mtdrCmdMask  = 0x7 << mtdrCmdShift
	MRDRRxEmpty  = 1 << 14
)

// Command is the 3-bit command field of MTDR.
type Command uint8

const (
	CmdTransmit Command = 0 // transmit DATA
	CmdReceive  Command = 1 // receive DATA+1 bytes
	CmdStop     Command = 2 // generate stop condition
	CmdStart    Command = 4 // generate (repeated) start and transmit address in DATA
)

var commandNames = map[Command]string{
	CmdTransmit: "transmit",
	CmdReceive:  "receive",
	CmdStop:     "stop",
	CmdStart:    "start",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "cmd?"
}

// FIFOSize is the depth of the transmit and receive FIFOs.
const FIFOSize = 4

// MTDR builds a transmit data register word.
func MTDR(cmd Command, data uint8) uint32 {
	return uint32(cmd)<<mtdrCmdShift&mtdrCmdMask | uint32(data)
}

// SplitMTDR is the inverse of MTDR.
func SplitMTDR(v uint32) (Command, uint8) {
	return Command((v & mtdrCmdMask) >> mtdrCmdShift), uint8(v)
}

// StartWord encodes a start command for a 7-bit address; read selects the
// direction bit.
func StartWord(addr uint16, read bool) uint32 {
	data := uint8(addr << 1)
	if read {
		data |= 1
	}
	return MTDR(CmdStart, data)
}

// ReceiveWord requests n bytes, 1 <= n <= 256.
func ReceiveWord(n int) uint32 {
	return MTDR(CmdReceive, uint8(n-1))
}

// MRDRData extracts the received byte and whether the FIFO was empty.
func MRDRData(v uint32) (b byte, empty bool) {
	return byte(v), v&MRDRRxEmpty != 0
}

// TxCount returns the number of words queued in the transmit FIFO.
func TxCount(mfsr uint32) uint32 {
	return mfsr & 0xff
}

// RxCount returns the number of words held in the receive FIFO.
func RxCount(mfsr uint32) uint32 {
	return (mfsr >> 16) & 0xff
}

// MFSR builds a FIFO status value.
func MFSR(tx, rx uint32) uint32 {
	return tx&0xff | (rx&0xff)<<16
}

// MCCR0 packs the master clock configuration fields.
func MCCR0(clkLo, clkHi, setHold, dataVd uint32) uint32 {
	return (clkLo&mccr0FieldMask)<<mccr0ClkLoShift |
		(clkHi&mccr0FieldMask)<<mccr0ClkHiShift |
		(setHold&mccr0FieldMask)<<mccr0SetHoldShift |
		(dataVd&mccr0FieldMask)<<mccr0DataVdShift
}

// SplitMCCR0 is the inverse of MCCR0.
func SplitMCCR0(v uint32) (clkLo, clkHi, setHold, dataVd uint32) {
	return (v >> mccr0ClkLoShift) & mccr0FieldMask,
		(v >> mccr0ClkHiShift) & mccr0FieldMask,
		(v >> mccr0SetHoldShift) & mccr0FieldMask,
		(v >> mccr0DataVdShift) & mccr0FieldMask
}

// PinCfg encodes the MCFGR1 pin configuration field. Zero is 2-pin open drain.
func PinCfg(v uint32) uint32 {
	return (v << MCFGR1PinCfgShift) & MCFGR1PinCfgMask
}

// IgnoreAck encodes the MCFGR1 IGNACK bit.
func IgnoreAck(on bool) uint32 {
	if on {
		return 1 << mcfgr1IgnoreAckShft
	}
	return 0
}

// BusStuck reports a bus seen busy while this master does not own it.
func BusStuck(msr uint32) bool {
	return msr&MSRBBF != 0 && msr&MSRMBF == 0
}
