// Package ecu holds the simulated electronic control units behind the
// diagnostic stack: a battery management system and a body domain door
// controller, plus the firmware verification routine both expose over
// routine control.
package ecu

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/virtual-hil/vecu/codec"
)

// BMSStatusID is the broadcast identifier for battery status frames.
const BMSStatusID uint32 = 0x100

// BatteryConfig describes the simulated pack.
type BatteryConfig struct {
	NumCells       int     `yaml:"num_cells"`
	CellCapacity   float64 `yaml:"cell_capacity"`
	NominalVoltage float64 `yaml:"nominal_voltage"`
	MaxVoltage     float64 `yaml:"max_voltage"`
	MinVoltage     float64 `yaml:"min_voltage"`
	MaxTemperature float64 `yaml:"max_temperature"`
	MinTemperature float64 `yaml:"min_temperature"`
}

// DefaultBatteryConfig is a 96-cell pack with common Li-ion limits.
func DefaultBatteryConfig() BatteryConfig {
	return BatteryConfig{
		NumCells:       96,
		CellCapacity:   3.2,
		NominalVoltage: 3.7,
		MaxVoltage:     4.2,
		MinVoltage:     2.8,
		MaxTemperature: 60,
		MinTemperature: -20,
	}
}

// LoadBatteryConfig reads a pack description from a YAML file. Fields left
// unset keep their defaults.
func LoadBatteryConfig(path string) (BatteryConfig, error) {
	cfg := DefaultBatteryConfig()
	buf, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read battery config: %w", err)
	}
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return cfg, fmt.Errorf("parse battery config: %w", err)
	}
	return cfg, nil
}

// Cell is one cell of the pack.
type Cell struct {
	ID          int
	Voltage     float64
	Temperature float64
	Capacity    float64
}

// PackState aggregates the cell measurements.
type PackState struct {
	SOC            float64
	SOH            float64
	Voltage        float64
	Current        float64
	Temperature    float64
	MaxCellTemp    float64
	MinCellTemp    float64
	MaxCellVoltage float64
	MinCellVoltage float64
}

// BatteryECU simulates a battery management system: cell-level monitoring,
// charge simulation, balancing and fault detection. All methods are safe
// for concurrent use.
type BatteryECU struct {
	cfg BatteryConfig

	mu    sync.Mutex
	cells []Cell
	state PackState
}

// NewBatteryECU builds a pack from cfg. Cells start with slightly uneven
// voltages and temperatures so balancing has something to do.
func NewBatteryECU(cfg BatteryConfig) *BatteryECU {
	b := &BatteryECU{cfg: cfg}
	b.cells = make([]Cell, cfg.NumCells)
	for i := range b.cells {
		b.cells[i] = Cell{
			ID:          i,
			Voltage:     cfg.NominalVoltage + float64(i%10)*0.01,
			Temperature: 25 + float64(i%5),
			Capacity:    cfg.CellCapacity,
		}
	}
	b.state.SOC = 100
	b.state.SOH = 100
	b.updatePackState()
	return b
}

// updatePackState recomputes the aggregates. Callers hold b.mu.
func (b *BatteryECU) updatePackState() {
	if len(b.cells) == 0 {
		return
	}
	first := b.cells[0]
	sumV, sumT := 0.0, 0.0
	maxV, minV := first.Voltage, first.Voltage
	maxT, minT := first.Temperature, first.Temperature
	for _, c := range b.cells {
		sumV += c.Voltage
		sumT += c.Temperature
		if c.Voltage > maxV {
			maxV = c.Voltage
		}
		if c.Voltage < minV {
			minV = c.Voltage
		}
		if c.Temperature > maxT {
			maxT = c.Temperature
		}
		if c.Temperature < minT {
			minT = c.Temperature
		}
	}
	b.state.Voltage = sumV
	b.state.Temperature = sumT / float64(len(b.cells))
	b.state.MaxCellVoltage = maxV
	b.state.MinCellVoltage = minV
	b.state.MaxCellTemp = maxT
	b.state.MinCellTemp = minT
}

// State returns a snapshot of the pack aggregates.
func (b *BatteryECU) State() PackState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// CellVoltage returns the voltage of one cell, zero for an unknown cell.
func (b *BatteryECU) CellVoltage(cellID int) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cellID < 0 || cellID >= len(b.cells) {
		return 0
	}
	return b.cells[cellID].Voltage
}

// CellTemperature returns the temperature of one cell, zero for an unknown
// cell.
func (b *BatteryECU) CellTemperature(cellID int) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cellID < 0 || cellID >= len(b.cells) {
		return 0
	}
	return b.cells[cellID].Temperature
}

// SetCellVoltage overrides one cell voltage for fault injection. Unknown
// cells are ignored.
func (b *BatteryECU) SetCellVoltage(cellID int, voltage float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cellID < 0 || cellID >= len(b.cells) {
		return
	}
	b.cells[cellID].Voltage = voltage
	b.updatePackState()
}

// SetCellTemperature overrides one cell temperature for fault injection.
func (b *BatteryECU) SetCellTemperature(cellID int, temperature float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cellID < 0 || cellID >= len(b.cells) {
		return
	}
	b.cells[cellID].Temperature = temperature
	b.updatePackState()
}

// SimulateCharge applies a charge or discharge pulse. current is in amps,
// positive charging, and duration in seconds. SOC follows the transferred
// charge against the pack capacity; cell voltages drift with the current
// and are clamped to the configured limits.
func (b *BatteryECU) SimulateCharge(current, duration float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capacityChange := current * duration / 3600
	totalCapacity := float64(b.cfg.NumCells) * b.cfg.CellCapacity
	socChange := capacityChange / totalCapacity * 100
	b.state.SOC = clamp(b.state.SOC+socChange, 0, 100)

	voltageFactor := 1 + current*0.001
	for i := range b.cells {
		v := b.cells[i].Voltage * voltageFactor
		b.cells[i].Voltage = clamp(v, b.cfg.MinVoltage, b.cfg.MaxVoltage)
	}
	b.updatePackState()
}

// BalanceCells moves every cell a tenth of the way towards the pack
// average voltage.
func (b *BatteryECU) BalanceCells() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.cells) == 0 {
		return
	}
	sum := 0.0
	for _, c := range b.cells {
		sum += c.Voltage
	}
	avg := sum / float64(len(b.cells))
	for i := range b.cells {
		b.cells[i].Voltage += (avg - b.cells[i].Voltage) * 0.1
	}
	b.updatePackState()
}

// CheckFaults reports the active fault conditions in a fixed priority
// order.
func (b *BatteryECU) CheckFaults() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.checkFaultsLocked()
}

func (b *BatteryECU) checkFaultsLocked() []string {
	var faults []string
	if b.state.MaxCellVoltage > b.cfg.MaxVoltage {
		faults = append(faults, "OVERVOLTAGE")
	}
	if b.state.MinCellVoltage < b.cfg.MinVoltage {
		faults = append(faults, "UNDERVOLTAGE")
	}
	if b.state.MaxCellTemp > b.cfg.MaxTemperature {
		faults = append(faults, "OVERTEMPERATURE")
	}
	if b.state.MinCellTemp < b.cfg.MinTemperature {
		faults = append(faults, "UNDERTEMPERATURE")
	}
	if b.state.SOC < 10 {
		faults = append(faults, "LOW_SOC")
	}
	return faults
}

// DTC returns the trouble code for the highest-priority active fault, or
// an empty string when the pack is healthy.
func (b *BatteryECU) DTC() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	faults := b.checkFaultsLocked()
	if len(faults) == 0 {
		return ""
	}
	return fmt.Sprintf("BMS_%s_ACTIVE", faults[0])
}

// Status renders the pack state as the broadcast frame payload.
func (b *BatteryECU) Status() codec.BatteryStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	var flags byte
	if len(b.checkFaultsLocked()) > 0 {
		flags |= 0x01
	}
	return codec.BatteryStatus{
		SOC:         b.state.SOC,
		SOH:         b.state.SOH,
		Voltage:     b.state.Voltage,
		Current:     b.state.Current,
		Temperature: b.state.Temperature,
		Flags:       flags,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
