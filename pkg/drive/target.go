// Package drive implements per-wheel speed estimation and the velocity
// control loop driving an H-bridge motor.
package drive

import (
	"strconv"
	"sync"
)

// Direction is the rotating direction of a wheel.
// The numeric values are the legacy wire codes.
type Direction int

// Directions.
const (
	Stop     Direction = 0
	Forward  Direction = 1
	Backward Direction = 2
)

// DeadZone is the wheel speed (rev/s) below which a wheel is stopped.
const DeadZone = 0.001

// Valid tells if d is a known direction.
func (d Direction) Valid() bool {
	return d >= Stop && d <= Backward
}

// Sign returns 1 for Forward, -1 for Backward, otherwise 0.
func (d Direction) Sign() float64 {
	switch d {
	case Forward:
		return 1
	case Backward:
		return -1
	}
	return 0
}

// String implements fmt.Stringer.
func (d Direction) String() string {
	switch d {
	case Stop:
		return "stop"
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	}
	return "invalid(" + strconv.Itoa(int(d)) + ")"
}

// Wheel indexes a wheel.
type Wheel int

// Wheels.
const (
	Left  Wheel = 0
	Right Wheel = 1
)

// String implements fmt.Stringer.
func (w Wheel) String() string {
	if w == Left {
		return "left"
	}
	return "right"
}

// Target is the commanded motion of one wheel.
type Target struct {
	Direction Direction
	// Speed in wheel rev/s, non-negative.
	Speed float64
}

// TargetFromSpeed builds a Target from a signed wheel speed (rev/s),
// applying DeadZone.
func TargetFromSpeed(revs float64) Target {
	switch {
	case revs > DeadZone:
		return Target{Direction: Forward, Speed: revs}
	case revs < -DeadZone:
		return Target{Direction: Backward, Speed: -revs}
	}
	return Target{Direction: Stop}
}

// Signed returns the signed speed.
func (t Target) Signed() float64 {
	return t.Direction.Sign() * t.Speed
}

// Idle tells if the target doesn't move the wheel.
func (t Target) Idle() bool {
	return t.Direction == Stop || !(t.Speed > 0)
}

// TargetStore holds the target pair. Both targets are updated in one
// critical section so a control tick never sees half of a command.
type TargetStore struct {
	lock    sync.RWMutex
	targets [2]Target
	updates uint64
}

// Set replaces both targets.
func (s *TargetStore) Set(left, right Target) {
	s.lock.Lock()
	s.targets[Left], s.targets[Right] = left, right
	s.updates++
	s.lock.Unlock()
}

// Get returns the target of one wheel.
func (s *TargetStore) Get(w Wheel) Target {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.targets[w]
}

// Pair returns both targets and the number of updates so far.
func (s *TargetStore) Pair() (left, right Target, updates uint64) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.targets[Left], s.targets[Right], s.updates
}
