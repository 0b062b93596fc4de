package engine

import (
	"errors"
	"slices"
	"time"
)

var ErrConfig = errors.New("invalid session config")
var ErrAlreadyFinished = errors.New("veto already finished")
var ErrNotYourTurn = errors.New("not your turn")
var ErrWrongActionKind = errors.New("wrong action kind")
var ErrMapUnavailable = errors.New("map unavailable")
var ErrStaleVersion = errors.New("stale session version")

type Team string

const (
	TeamA Team = "teamA"
	TeamB Team = "teamB"
	// TurnFinished is the Turn value once the veto is over.
	TurnFinished Team = "finished"
)

// Other returns the opposing team.
func (t Team) Other() Team {
	if t == TeamA {
		return TeamB
	}
	return TeamA
}

type Action string

const (
	ActionVeto Action = "veto"
	ActionPick Action = "pick"
)

type Format string

const (
	FormatBO1 Format = "bo1"
	FormatBO3 Format = "bo3"
	FormatBO5 Format = "bo5"
)

type TurnStep struct {
	Team   Team
	Action Action
}

// HistoryEntry is one accepted action.
type HistoryEntry struct {
	Team   Team      `json:"team"`
	Map    string    `json:"map"`
	Action Action    `json:"action"`
	At     time.Time `json:"at"`
}

type State struct {
	ID         string         `json:"id"`
	Format     Format         `json:"format"`
	Pool       []string       `json:"pool"`
	Banned     []string       `json:"banned"`
	Picked     []string       `json:"picked"`
	History    []HistoryEntry `json:"history"`
	Turn       Team           `json:"turn"`
	NextAction Action         `json:"next_action"`
	FinalMap   string         `json:"final_map,omitempty"`
	PickCountA int            `json:"pick_count_a"`
	PickCountB int            `json:"pick_count_b"`
	Version    int            `json:"version"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Finished reports whether the veto has produced its final map set.
func (s State) Finished() bool {
	return s.Turn == TurnFinished
}

// Command is a proposed action. ExpectedVersion, when set, must match the
// state's Version or the command is rejected with ErrStaleVersion.
type Command struct {
	Team            Team
	Map             string
	Action          Action
	ExpectedVersion *int
}

type EventType string

const (
	EvtMapVetoed     EventType = "MapVetoed"
	EvtMapPicked     EventType = "MapPicked"
	EvtTurnAdvanced  EventType = "TurnAdvanced"
	EvtVetoCompleted EventType = "VetoCompleted"
)

type Event struct {
	Type   EventType
	Team   Team
	Map    string
	Action Action
}

// now is swapped in tests.
var now = time.Now

func Apply(s State, cmd Command) ([]Event, State, error) {
	if cmd.ExpectedVersion != nil && *cmd.ExpectedVersion != s.Version {
		return nil, s, ErrStaleVersion
	}
	if s.Turn == TurnFinished {
		return nil, s, ErrAlreadyFinished
	}
	if cmd.Team != s.Turn {
		return nil, s, ErrNotYourTurn
	}
	if cmd.Action != s.NextAction {
		return nil, s, ErrWrongActionKind
	}
	if !isAvailable(s, cmd.Map) {
		return nil, s, ErrMapUnavailable
	}

	newState := s.clone()
	newState.History = append(newState.History, HistoryEntry{
		Team:   cmd.Team,
		Map:    cmd.Map,
		Action: cmd.Action,
		At:     now().UTC(),
	})

	var events []Event
	switch cmd.Action {
	case ActionVeto:
		newState.Banned = append(newState.Banned, cmd.Map)
		events = append(events, Event{Type: EvtMapVetoed, Team: cmd.Team, Map: cmd.Map, Action: cmd.Action})
	case ActionPick:
		newState.Picked = append(newState.Picked, cmd.Map)
		if cmd.Team == TeamA {
			newState.PickCountA++
		} else {
			newState.PickCountB++
		}
		events = append(events, Event{Type: EvtMapPicked, Team: cmd.Team, Map: cmd.Map, Action: cmd.Action})
	}

	advance(&newState, cmd.Team)
	newState.Version++

	if newState.Turn == TurnFinished {
		events = append(events, Event{Type: EvtVetoCompleted, Map: newState.FinalMap})
	} else {
		events = append(events, Event{Type: EvtTurnAdvanced, Team: newState.Turn, Action: newState.NextAction})
	}
	return events, newState, nil
}

// advance sets Turn, NextAction and possibly FinalMap after an action by
// actor has been recorded.
func advance(s *State, actor Team) {
	n := len(s.History)
	remaining := s.Remaining()

	if step, ok := scheduleStep(s.Format, n); ok {
		s.Turn = step.Team
		s.NextAction = step.Action
	} else if len(remaining) > 1 {
		s.Turn = actor.Other()
		s.NextAction = ActionVeto
	} else if len(remaining) == 1 {
		finish(s, remaining[0])
	}

	// Guard: one map left and every pick taken means it is the tiebreaker.
	if s.Turn != TurnFinished && len(remaining) == 1 && len(s.Picked) == TargetMapCount(s.Format)-1 {
		finish(s, remaining[0])
	}
}

func finish(s *State, finalMap string) {
	s.FinalMap = finalMap
	s.Turn = TurnFinished
}

// Remaining lists maps neither banned nor picked, in pool order.
func (s State) Remaining() []string {
	out := make([]string, 0, len(s.Pool))
	for _, m := range s.Pool {
		if !slices.Contains(s.Banned, m) && !slices.Contains(s.Picked, m) {
			out = append(out, m)
		}
	}
	return out
}

func isAvailable(s State, m string) bool {
	if !slices.Contains(s.Pool, m) {
		return false
	}
	return !hasBan(s, m) && !hasPick(s, m)
}

func hasBan(s State, m string) bool {
	return slices.Contains(s.Banned, m)
}

func hasPick(s State, m string) bool {
	return slices.Contains(s.Picked, m)
}

func (s State) clone() State {
	c := s
	c.Pool = slices.Clone(s.Pool)
	c.Banned = slices.Clone(s.Banned)
	c.Picked = slices.Clone(s.Picked)
	c.History = slices.Clone(s.History)
	return c
}

// Clone returns a copy that shares no slices with s.
func (s State) Clone() State {
	return s.clone()
}
