package ddr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrNoTiming  = errors.New("ddr: no dram_timing_info definition")
	ErrUndefined = errors.New("ddr: undefined symbol")
	ErrBadRow    = errors.New("ddr: malformed register row")
	ErrBadValue  = errors.New("ddr: malformed value")
	ErrCount     = errors.New("ddr: row count exceeds table")
)

// symbolic constants accepted where a number is expected
var constants = map[string]uint32{
	"FW_1D_IMAGE": uint32(FW1D),
	"FW_2D_IMAGE": uint32(FW2D),
}

// positional field order of the initializer structs
var (
	rowFields       = []string{"reg", "val"}
	fspCfgFields    = []string{"ddrc_cfg", "mr_cfg", "bypass"}
	fspMsgFields    = []string{"drate", "fw_type", "fsp_phy_cfg", "fsp_phy_cfg_num"}
	timingFields    = []string{}
	arraySizeMacros = map[string]bool{"ARRAY_SIZE": true}
)

type resolver struct {
	f *File
}

// Resolve turns a parsed source into a Timing. The last dram_timing_info
// definition wins; the tables it names are looked up by symbol.
func Resolve(f *File) (*Timing, error) {
	decls := f.OfType("dram_timing_info")
	if len(decls) == 0 {
		return nil, ErrNoTiming
	}
	d := decls[len(decls)-1]
	r := &resolver{f: f}
	t := &Timing{}

	counts := map[string]int{}
	for i, it := range d.Value.Items {
		name, err := fieldName(it, i, timingFields)
		if err != nil {
			return nil, err
		}
		switch name {
		case "ddrc_cfg":
			t.DDRC, err = r.ctrlRows(it.Value)
		case "ddrphy_cfg":
			t.DDRPHY, err = r.phyRows(it.Value)
		case "ddrphy_trained_csr":
			t.TrainedCSR, err = r.phyRows(it.Value)
		case "ddrphy_pie":
			t.PHYPIE, err = r.phyRows(it.Value)
		case "fsp_msg":
			t.FSPMsg, err = r.fspMsgs(it.Value)
		case "fsp_cfg":
			t.FSPCfg, err = r.fspCfgs(it.Value)
		case "fsp_table":
			err = r.fspTable(it.Value, &t.FSPTable)
		default:
			if !strings.HasSuffix(name, "_num") {
				return nil, fmt.Errorf("%s: %w: field %s", it.Pos, ErrUndefined, name)
			}
			var n uint32
			n, err = r.number(it.Value)
			counts[name] = int(n)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}

	var err error
	for name, n := range counts {
		switch name {
		case "ddrc_cfg_num":
			t.DDRC, err = trim(t.DDRC, n, name)
		case "ddrphy_cfg_num":
			t.DDRPHY, err = trim(t.DDRPHY, n, name)
		case "ddrphy_trained_csr_num":
			t.TrainedCSR, err = trim(t.TrainedCSR, n, name)
		case "ddrphy_pie_num":
			t.PHYPIE, err = trim(t.PHYPIE, n, name)
		case "fsp_msg_num":
			t.FSPMsg, err = trim(t.FSPMsg, n, name)
		case "fsp_cfg_num":
			t.FSPCfg, err = trim(t.FSPCfg, n, name)
		}
		if err != nil {
			return nil, err
		}
	}
	return t, nil
}

func trim[T any](rows []T, n int, field string) ([]T, error) {
	if n > len(rows) {
		return nil, fmt.Errorf("%w: %s = %d, table has %d rows", ErrCount, field, n, len(rows))
	}
	return rows[:n], nil
}

func fieldName(it *Item, i int, order []string) (string, error) {
	if it.Field != "" {
		return it.Field, nil
	}
	if i < len(order) {
		return order[i], nil
	}
	return "", fmt.Errorf("%s: %w: positional initializer %d", it.Pos, ErrBadValue, i)
}

func parseNumber(s string) (uint32, error) {
	n, err := strconv.ParseUint(strings.TrimRight(s, "uUlL"), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadValue, s)
	}
	return uint32(n), nil
}

// list returns the initializer v is or names.
func (r *resolver) list(v *Value) (*Init, error) {
	switch {
	case v.Init != nil:
		return v.Init, nil
	case v.Ref != nil:
		d := r.f.Lookup(*v.Ref)
		if d == nil {
			return nil, fmt.Errorf("%w: %s", ErrUndefined, *v.Ref)
		}
		return d.Value, nil
	}
	return nil, fmt.Errorf("%w: expected table", ErrBadValue)
}

func (r *resolver) number(v *Value) (uint32, error) {
	switch {
	case v.Number != nil:
		return parseNumber(*v.Number)
	case v.Ref != nil:
		if n, ok := constants[*v.Ref]; ok {
			return n, nil
		}
		return 0, fmt.Errorf("%w: %s", ErrUndefined, *v.Ref)
	case v.Call != nil:
		if !arraySizeMacros[v.Call.Func] {
			return 0, fmt.Errorf("%w: macro %s", ErrUndefined, v.Call.Func)
		}
		d := r.f.Lookup(v.Call.Arg)
		if d == nil {
			return 0, fmt.Errorf("%w: %s", ErrUndefined, v.Call.Arg)
		}
		return uint32(len(d.Value.Items)), nil
	}
	return 0, fmt.Errorf("%w: expected number", ErrBadValue)
}

func (r *resolver) pair(v *Value) (reg, val uint32, err error) {
	if v.Init == nil || len(v.Init.Items) != 2 {
		return 0, 0, ErrBadRow
	}
	for i, it := range v.Init.Items {
		name, err := fieldName(it, i, rowFields)
		if err != nil {
			return 0, 0, err
		}
		n, err := r.number(it.Value)
		if err != nil {
			return 0, 0, err
		}
		switch name {
		case "reg":
			reg = n
		case "val":
			val = n
		default:
			return 0, 0, fmt.Errorf("%s: %w: field %s", it.Pos, ErrBadRow, name)
		}
	}
	return reg, val, nil
}

func (r *resolver) ctrlRows(v *Value) ([]ControllerParam, error) {
	init, err := r.list(v)
	if err != nil {
		return nil, err
	}
	rows := make([]ControllerParam, 0, len(init.Items))
	for _, it := range init.Items {
		reg, val, err := r.pair(it.Value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", it.Pos, err)
		}
		rows = append(rows, ControllerParam{Reg: reg, Val: val})
	}
	return rows, nil
}

func (r *resolver) phyRows(v *Value) ([]PHYParam, error) {
	init, err := r.list(v)
	if err != nil {
		return nil, err
	}
	rows := make([]PHYParam, 0, len(init.Items))
	for _, it := range init.Items {
		reg, val, err := r.pair(it.Value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", it.Pos, err)
		}
		rows = append(rows, PHYParam{Reg: reg, Val: val})
	}
	return rows, nil
}

func (r *resolver) fspCfgs(v *Value) ([]FSPConfig, error) {
	init, err := r.list(v)
	if err != nil {
		return nil, err
	}
	out := make([]FSPConfig, 0, len(init.Items))
	for _, el := range init.Items {
		body, err := r.list(el.Value)
		if err != nil {
			return nil, err
		}
		var cfg FSPConfig
		counts := map[string]int{}
		for i, it := range body.Items {
			name, err := fieldName(it, i, fspCfgFields)
			if err != nil {
				return nil, err
			}
			var n uint32
			switch name {
			case "ddrc_cfg":
				cfg.DDRC, err = r.ctrlRows(it.Value)
			case "mr_cfg":
				cfg.MR, err = r.ctrlRows(it.Value)
			case "bypass":
				n, err = r.number(it.Value)
				cfg.Bypass = n != 0
			case "ddrc_cfg_num", "mr_cfg_num":
				n, err = r.number(it.Value)
				counts[name] = int(n)
			default:
				err = fmt.Errorf("%s: %w: field %s", it.Pos, ErrUndefined, name)
			}
			if err != nil {
				return nil, err
			}
		}
		if n, ok := counts["ddrc_cfg_num"]; ok {
			if cfg.DDRC, err = trim(cfg.DDRC, n, "ddrc_cfg_num"); err != nil {
				return nil, err
			}
		}
		if n, ok := counts["mr_cfg_num"]; ok {
			if cfg.MR, err = trim(cfg.MR, n, "mr_cfg_num"); err != nil {
				return nil, err
			}
		}
		out = append(out, cfg)
	}
	return out, nil
}

func (r *resolver) fspMsgs(v *Value) ([]FSPMessage, error) {
	init, err := r.list(v)
	if err != nil {
		return nil, err
	}
	out := make([]FSPMessage, 0, len(init.Items))
	for _, el := range init.Items {
		body, err := r.list(el.Value)
		if err != nil {
			return nil, err
		}
		var msg FSPMessage
		count := -1
		for i, it := range body.Items {
			name, err := fieldName(it, i, fspMsgFields)
			if err != nil {
				return nil, err
			}
			var n uint32
			switch name {
			case "drate":
				n, err = r.number(it.Value)
				msg.DRate = n
			case "fw_type":
				n, err = r.number(it.Value)
				msg.FWType = FirmwareType(n)
			case "fsp_phy_cfg":
				msg.PHY, err = r.phyRows(it.Value)
			case "fsp_phy_cfg_num":
				n, err = r.number(it.Value)
				count = int(n)
			default:
				err = fmt.Errorf("%s: %w: field %s", it.Pos, ErrUndefined, name)
			}
			if err != nil {
				return nil, err
			}
		}
		if count >= 0 {
			if msg.PHY, err = trim(msg.PHY, count, "fsp_phy_cfg_num"); err != nil {
				return nil, err
			}
		}
		out = append(out, msg)
	}
	return out, nil
}

func (r *resolver) fspTable(v *Value, table *[MaxFSPs]uint32) error {
	if v.Init == nil {
		return fmt.Errorf("%w: expected list", ErrBadValue)
	}
	if len(v.Init.Items) > MaxFSPs {
		return fmt.Errorf("%w: fsp_table has %d entries, max %d", ErrCount, len(v.Init.Items), MaxFSPs)
	}
	for i, it := range v.Init.Items {
		n, err := r.number(it.Value)
		if err != nil {
			return err
		}
		table[i] = n
	}
	return nil
}
