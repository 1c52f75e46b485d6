// Package ddr holds the DRAM configuration handed to the training routine:
// controller and PHY register tables, per-set-point overrides and the
// PHY training message blocks.
package ddr

import "fmt"

// MaxFSPs is the size of the flat set-point rate table.
const MaxFSPs = 4

// ControllerParam is one DDR controller register setting.
type ControllerParam struct {
	Reg uint32
	Val uint32
}

// PHYParam is one DDR PHY register setting. Reg is a PHY word address.
type PHYParam struct {
	Reg uint32
	Val uint32
}

// FirmwareType selects the PHY training image.
type FirmwareType uint8

const (
	FW1D FirmwareType = iota
	FW2D
)

var firmwareNames = map[FirmwareType]string{
	FW1D: "1D",
	FW2D: "2D",
}

func (f FirmwareType) String() string {
	if s, ok := firmwareNames[f]; ok {
		return s
	}
	return fmt.Sprintf("FirmwareType(%d)", f)
}

// FSPConfig holds controller and mode register overrides for one frequency
// set-point.
type FSPConfig struct {
	DDRC   []ControllerParam
	MR     []ControllerParam
	Bypass bool
}

// FSPMessage is the PHY training message block for one set-point.
type FSPMessage struct {
	DRate  uint32
	FWType FirmwareType
	PHY    []PHYParam
}

// Timing is the complete DRAM configuration.
type Timing struct {
	DDRC       []ControllerParam
	DDRPHY     []PHYParam
	TrainedCSR []PHYParam
	PHYPIE     []PHYParam
	FSPMsg     []FSPMessage
	FSPTable   [MaxFSPs]uint32
	FSPCfg     []FSPConfig
}

// Clone returns a deep copy.
func (t *Timing) Clone() *Timing {
	c := *t
	c.DDRC = append([]ControllerParam(nil), t.DDRC...)
	c.DDRPHY = append([]PHYParam(nil), t.DDRPHY...)
	c.TrainedCSR = append([]PHYParam(nil), t.TrainedCSR...)
	c.PHYPIE = append([]PHYParam(nil), t.PHYPIE...)
	c.FSPMsg = make([]FSPMessage, len(t.FSPMsg))
	for i, m := range t.FSPMsg {
		m.PHY = append([]PHYParam(nil), m.PHY...)
		c.FSPMsg[i] = m
	}
	c.FSPCfg = make([]FSPConfig, len(t.FSPCfg))
	for i, f := range t.FSPCfg {
		f.DDRC = append([]ControllerParam(nil), f.DDRC...)
		f.MR = append([]ControllerParam(nil), f.MR...)
		c.FSPCfg[i] = f
	}
	return &c
}

// Kind says which row shape a Table holds.
type Kind uint8

const (
	KindController Kind = iota
	KindPHY
)

func (k Kind) String() string {
	switch k {
	case KindController:
		return "ddrc"
	case KindPHY:
		return "phy"
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Table is a named view of one register table of either shape. Writes
// through SetVal land in the Timing the table was taken from.
type Table struct {
	Name string
	Kind Kind

	ctrl []ControllerParam
	phy  []PHYParam
}

// ControllerTable wraps controller rows.
func ControllerTable(name string, rows []ControllerParam) Table {
	return Table{Name: name, Kind: KindController, ctrl: rows}
}

// PHYTable wraps PHY rows.
func PHYTable(name string, rows []PHYParam) Table {
	return Table{Name: name, Kind: KindPHY, phy: rows}
}

// Len returns the number of rows.
func (t Table) Len() int {
	if t.Kind == KindPHY {
		return len(t.phy)
	}
	return len(t.ctrl)
}

// Reg returns the register address of row i.
func (t Table) Reg(i int) uint32 {
	if t.Kind == KindPHY {
		return t.phy[i].Reg
	}
	return t.ctrl[i].Reg
}

// Val returns the value of row i.
func (t Table) Val(i int) uint32 {
	if t.Kind == KindPHY {
		return t.phy[i].Val
	}
	return t.ctrl[i].Val
}

// SetVal overwrites the value of row i.
func (t Table) SetVal(i int, v uint32) {
	if t.Kind == KindPHY {
		t.phy[i].Val = v
		return
	}
	t.ctrl[i].Val = v
}

// AdjustTables returns the tables an EEPROM adjustment patches, in the
// order its offset table lists them. Missing set-point tables are empty.
func (t *Timing) AdjustTables() []Table {
	var fspDDRC, fspMR []ControllerParam
	if len(t.FSPCfg) > 0 {
		fspDDRC, fspMR = t.FSPCfg[0].DDRC, t.FSPCfg[0].MR
	}
	var fspPHY []PHYParam
	if len(t.FSPMsg) > 0 {
		fspPHY = t.FSPMsg[0].PHY
	}
	return []Table{
		ControllerTable("DDRC", t.DDRC),
		PHYTable("DDR PHY", t.DDRPHY),
		PHYTable("PIE", t.PHYPIE),
		ControllerTable("FSP_CFG[0].ddrc_cfg", fspDDRC),
		ControllerTable("FSP_CFG[0].mr_cfg", fspMR),
		PHYTable("FSP0", fspPHY),
	}
}
