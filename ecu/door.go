package ecu

import (
	"fmt"
	"sync"

	"github.com/virtual-hil/vecu/codec"
)

// BDCStatusID is the broadcast identifier for door status frames.
const BDCStatusID uint32 = 0x200

// DoorPosition is the movement state of one door.
type DoorPosition string

const (
	PositionClosed  DoorPosition = "CLOSED"
	PositionOpening DoorPosition = "OPENING"
	PositionOpen    DoorPosition = "OPEN"
	PositionClosing DoorPosition = "CLOSING"
	PositionBlocked DoorPosition = "BLOCKED"
	PositionFault   DoorPosition = "FAULT"
)

// LockState is the lock state of one door.
type LockState string

const (
	Locked      LockState = "LOCKED"
	Unlocked    LockState = "UNLOCKED"
	ChildLocked LockState = "CHILD_LOCKED"
)

// DoorState describes one door.
type DoorState struct {
	Position       DoorPosition
	LockState      LockState
	OpenPercentage float64
	// WindowPosition runs from 0 (closed) to 100 (fully open).
	WindowPosition float64
	PinchDetected  bool
}

// PositionCallback is notified after every movement step of a door.
type PositionCallback func(doorID int, state DoorState)

// DoorECU simulates a body domain controller driving the doors: position
// and lock control, window movement, pinch protection and child locks.
// All methods are safe for concurrent use; position callbacks run with the
// internal lock held and must not call back into the ECU.
type DoorECU struct {
	mu        sync.Mutex
	doors     []DoorState
	callbacks map[int][]PositionCallback
	faulted   bool
}

// movementStep is the percentage a door moves per simulation step.
const movementStep = 5

// windowStep is the percentage a window moves per simulation step.
const windowStep = 10

// NewDoorECU builds a controller for numDoors doors, all closed and
// locked.
func NewDoorECU(numDoors int) *DoorECU {
	d := &DoorECU{
		doors:     make([]DoorState, numDoors),
		callbacks: make(map[int][]PositionCallback),
	}
	for i := range d.doors {
		d.doors[i] = DoorState{Position: PositionClosed, LockState: Locked}
	}
	return d
}

// NumDoors returns how many doors the controller drives.
func (d *DoorECU) NumDoors() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.doors)
}

func (d *DoorECU) checkID(doorID int) error {
	if doorID < 0 || doorID >= len(d.doors) {
		return fmt.Errorf("invalid door ID: %d", doorID)
	}
	return nil
}

// AddPositionCallback registers a callback for one door's movement.
func (d *DoorECU) AddPositionCallback(doorID int, cb PositionCallback) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkID(doorID); err != nil {
		return err
	}
	d.callbacks[doorID] = append(d.callbacks[doorID], cb)
	return nil
}

func (d *DoorECU) notify(doorID int) {
	for _, cb := range d.callbacks[doorID] {
		cb(doorID, d.doors[doorID])
	}
}

// Door returns the state of one door.
func (d *DoorECU) Door(doorID int) (DoorState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkID(doorID); err != nil {
		return DoorState{}, err
	}
	return d.doors[doorID], nil
}

// IsLocked reports whether a door refuses to open. A child-locked door
// counts as locked.
func (d *DoorECU) IsLocked(doorID int) (bool, error) {
	state, err := d.Door(doorID)
	if err != nil {
		return false, err
	}
	return state.LockState != Unlocked, nil
}

// OpenDoor moves a door towards targetPercentage in movement steps,
// notifying callbacks after each step. A locked door stays put; a faulted
// controller marks the door faulty instead of moving it.
func (d *DoorECU) OpenDoor(doorID int, targetPercentage float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkID(doorID); err != nil {
		return err
	}
	door := &d.doors[doorID]

	if door.LockState == Locked {
		return fmt.Errorf("door %d is locked", doorID)
	}
	if d.faulted {
		door.Position = PositionFault
		return fmt.Errorf("door %d controller faulted", doorID)
	}

	door.Position = PositionOpening
	for door.OpenPercentage < targetPercentage {
		door.OpenPercentage = minf(targetPercentage, door.OpenPercentage+movementStep)
		d.notify(doorID)
	}
	if door.OpenPercentage >= 100 {
		door.Position = PositionOpen
	} else {
		door.Position = PositionClosed
	}
	d.notify(doorID)
	return nil
}

// CloseDoor moves a door shut. Pinch detection stops the movement and
// leaves the door blocked.
func (d *DoorECU) CloseDoor(doorID int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkID(doorID); err != nil {
		return err
	}
	door := &d.doors[doorID]

	door.Position = PositionClosing
	for door.OpenPercentage > 0 {
		if door.PinchDetected {
			door.Position = PositionBlocked
			return nil
		}
		door.OpenPercentage = maxf(0, door.OpenPercentage-movementStep)
		d.notify(doorID)
	}
	door.Position = PositionClosed
	d.notify(doorID)
	return nil
}

// LockDoor locks one door.
func (d *DoorECU) LockDoor(doorID int) error {
	return d.setLock(doorID, Locked)
}

// UnlockDoor unlocks one door.
func (d *DoorECU) UnlockDoor(doorID int) error {
	return d.setLock(doorID, Unlocked)
}

func (d *DoorECU) setLock(doorID int, state LockState) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkID(doorID); err != nil {
		return err
	}
	d.doors[doorID].LockState = state
	return nil
}

// LockAllDoors locks every door.
func (d *DoorECU) LockAllDoors() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.doors {
		d.doors[i].LockState = Locked
	}
}

// UnlockAllDoors unlocks every door.
func (d *DoorECU) UnlockAllDoors() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.doors {
		d.doors[i].LockState = Unlocked
	}
}

// SetChildLock switches a door between child-locked and locked.
func (d *DoorECU) SetChildLock(doorID int, enabled bool) error {
	if enabled {
		return d.setLock(doorID, ChildLocked)
	}
	return d.setLock(doorID, Locked)
}

// OpenWindow moves a window towards percentage in window steps.
func (d *DoorECU) OpenWindow(doorID int, percentage float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkID(doorID); err != nil {
		return err
	}
	door := &d.doors[doorID]
	target := clamp(percentage, 0, 100)
	for door.WindowPosition < target {
		door.WindowPosition = minf(target, door.WindowPosition+windowStep)
	}
	return nil
}

// CloseWindow moves a window shut.
func (d *DoorECU) CloseWindow(doorID int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkID(doorID); err != nil {
		return err
	}
	door := &d.doors[doorID]
	for door.WindowPosition > 0 {
		door.WindowPosition = maxf(0, door.WindowPosition-windowStep)
	}
	return nil
}

// TriggerPinch raises pinch detection on a door. Unknown doors are
// ignored.
func (d *DoorECU) TriggerPinch(doorID int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.checkID(doorID) == nil {
		d.doors[doorID].PinchDetected = true
	}
}

// ClearPinch clears pinch detection on a door.
func (d *DoorECU) ClearPinch(doorID int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.checkID(doorID) == nil {
		d.doors[doorID].PinchDetected = false
	}
}

// SetFaultState switches the whole controller into or out of a fault
// condition.
func (d *DoorECU) SetFaultState(fault bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faulted = fault
}

// Faults lists the active door faults.
func (d *DoorECU) Faults() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var faults []string
	for i, door := range d.doors {
		if door.Position == PositionFault {
			faults = append(faults, fmt.Sprintf("DOOR_%d_FAULT", i))
		}
		if door.Position == PositionBlocked {
			faults = append(faults, fmt.Sprintf("DOOR_%d_BLOCKED", i))
		}
	}
	return faults
}

// DTC returns the trouble code for the first active fault, or an empty
// string.
func (d *DoorECU) DTC() string {
	faults := d.Faults()
	if len(faults) == 0 {
		return ""
	}
	return "BDC_" + faults[0]
}

// Status renders the first four doors as the broadcast frame payload.
func (d *DoorECU) Status() codec.DoorStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	var s codec.DoorStatus
	open := func(i int) bool {
		return i < len(d.doors) && d.doors[i].Position != PositionClosed
	}
	locked := func(i int) bool {
		return i < len(d.doors) && d.doors[i].LockState != Unlocked
	}
	s.FrontLeftOpen = open(0)
	s.FrontRightOpen = open(1)
	s.RearLeftOpen = open(2)
	s.RearRightOpen = open(3)
	s.FrontLeftLocked = locked(0)
	s.FrontRightLocked = locked(1)
	s.RearLeftLocked = locked(2)
	s.RearRightLocked = locked(3)
	return s
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
