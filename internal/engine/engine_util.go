package engine

import (
	"fmt"
	"slices"
	"strings"
)

// NewSession validates format and pool and returns the initial state.
func NewSession(id string, format Format, pool []string) (State, error) {
	if strings.TrimSpace(id) == "" {
		return State{}, fmt.Errorf("%w: empty session id", ErrConfig)
	}
	if _, ok := Schedules[format]; !ok {
		return State{}, fmt.Errorf("%w: unknown format %q", ErrConfig, format)
	}

	seen := make(map[string]bool, len(pool))
	for _, m := range pool {
		if strings.TrimSpace(m) == "" {
			return State{}, fmt.Errorf("%w: blank map name", ErrConfig)
		}
		if seen[m] {
			return State{}, fmt.Errorf("%w: duplicate map %q", ErrConfig, m)
		}
		seen[m] = true
	}
	if need := MinPoolSize(format); len(pool) < need {
		return State{}, fmt.Errorf("%w: %s needs at least %d maps, got %d", ErrConfig, format, need, len(pool))
	}

	s := State{
		ID:         id,
		Format:     format,
		Pool:       slices.Clone(pool),
		Banned:     []string{},
		Picked:     []string{},
		History:    []HistoryEntry{},
		Turn:       TeamA,
		NextAction: ActionVeto,
		CreatedAt:  now().UTC(),
	}
	if step, ok := scheduleStep(format, 0); ok {
		s.Turn = step.Team
		s.NextAction = step.Action
	}
	return s, nil
}

func ParseFormat(v string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "bo1", "md1":
		return FormatBO1, true
	case "bo3", "md3":
		return FormatBO3, true
	case "bo5", "md5":
		return FormatBO5, true
	default:
		return "", false
	}
}

func ParseTeam(v string) (Team, bool) {
	switch v {
	case "teamA", "a", "A":
		return TeamA, true
	case "teamB", "b", "B":
		return TeamB, true
	default:
		return "", false
	}
}

func ParseAction(v string) (Action, bool) {
	switch strings.ToLower(v) {
	case "veto", "ban":
		return ActionVeto, true
	case "pick":
		return ActionPick, true
	default:
		return "", false
	}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// FinalSet is the picked maps in pick order followed by the tiebreaker.
func (s State) FinalSet() []string {
	out := slices.Clone(s.Picked)
	if s.FinalMap != "" && !slices.Contains(out, s.FinalMap) {
		out = append(out, s.FinalMap)
	}
	return out
}

// CheckInvariants reports the first structural rule s violates, if any.
func CheckInvariants(s State) error {
	if _, ok := Schedules[s.Format]; !ok {
		return fmt.Errorf("unknown format %q", s.Format)
	}
	inPool := make(map[string]bool, len(s.Pool))
	for _, m := range s.Pool {
		if inPool[m] {
			return fmt.Errorf("duplicate pool map %q", m)
		}
		inPool[m] = true
	}

	used := make(map[string]bool, len(s.Banned)+len(s.Picked))
	for _, m := range slices.Concat(s.Banned, s.Picked) {
		if !inPool[m] {
			return fmt.Errorf("map %q not in pool", m)
		}
		if used[m] {
			return fmt.Errorf("map %q assigned twice", m)
		}
		used[m] = true
	}
	if len(s.History) != len(s.Banned)+len(s.Picked) {
		return fmt.Errorf("history length %d != banned %d + picked %d", len(s.History), len(s.Banned), len(s.Picked))
	}

	remaining := len(s.Pool) - len(s.Banned) - len(s.Picked)
	if !s.Finished() {
		if remaining < 1 {
			return fmt.Errorf("no maps remaining before finish")
		}
		if s.FinalMap != "" {
			return fmt.Errorf("final map set before finish")
		}
		return nil
	}

	got := len(s.Picked)
	if s.FinalMap != "" {
		got++
		if used[s.FinalMap] || !inPool[s.FinalMap] {
			return fmt.Errorf("final map %q is not the leftover map", s.FinalMap)
		}
	}
	if want := TargetMapCount(s.Format); got != want {
		return fmt.Errorf("finished with %d maps, want %d", got, want)
	}
	return nil
}
