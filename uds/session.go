package uds

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"
)

// SessionType identifies a diagnostic session.
type SessionType byte

const (
	SessionDefault      SessionType = 0x01
	SessionProgramming  SessionType = 0x02
	SessionExtended     SessionType = 0x03
	SessionSafetySystem SessionType = 0x04
)

func (s SessionType) valid() bool {
	return s >= SessionDefault && s <= SessionSafetySystem
}

func (s SessionType) String() string {
	switch s {
	case SessionDefault:
		return "default"
	case SessionProgramming:
		return "programming"
	case SessionExtended:
		return "extended"
	case SessionSafetySystem:
		return "safetySystem"
	}
	return fmt.Sprintf("unknown(0x%02X)", byte(s))
}

var allSessionStates = []string{
	SessionDefault.String(),
	SessionProgramming.String(),
	SessionExtended.String(),
	SessionSafetySystem.String(),
}

// sessionMachine tracks the active diagnostic session. Every session is
// reachable from every other one, including re-entering the current session.
type sessionMachine struct {
	m       *fsm.FSM
	current SessionType
}

func newSessionMachine() *sessionMachine {
	events := make(fsm.Events, 0, len(allSessionStates))
	for _, dst := range allSessionStates {
		events = append(events, fsm.EventDesc{
			Name: "enter_" + dst,
			Src:  allSessionStates,
			Dst:  dst,
		})
	}
	return &sessionMachine{
		m:       fsm.NewFSM(SessionDefault.String(), events, fsm.Callbacks{}),
		current: SessionDefault,
	}
}

// Enter switches to session t. Re-entering the active session succeeds;
// the state machine reports that as a no-transition condition, which is
// not an error here.
func (s *sessionMachine) Enter(t SessionType) error {
	if !t.valid() {
		return fmt.Errorf("unsupported session type 0x%02X", byte(t))
	}
	err := s.m.Event(context.Background(), "enter_"+t.String())
	if err != nil {
		var noop fsm.NoTransitionError
		if !errors.As(err, &noop) {
			return err
		}
	}
	s.current = t
	return nil
}

func (s *sessionMachine) Current() SessionType { return s.current }
