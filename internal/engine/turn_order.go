package engine

// Schedules hold the fixed prefix of each format. Once a schedule is
// exhausted the veto continues with alternating vetoes until one map is left.
var Schedules = map[Format][]TurnStep{
	FormatBO1: {},
	FormatBO3: {
		// Ban Phase
		{Team: TeamA, Action: ActionVeto},
		{Team: TeamB, Action: ActionVeto},
		// Pick Phase
		{Team: TeamA, Action: ActionPick},
		{Team: TeamB, Action: ActionPick},
	},
	FormatBO5: {
		// Ban Phase 1
		{Team: TeamA, Action: ActionVeto},
		{Team: TeamB, Action: ActionVeto},
		// Pick Phase 1
		{Team: TeamA, Action: ActionPick},
		{Team: TeamB, Action: ActionPick},
		// Ban Phase 2
		{Team: TeamA, Action: ActionVeto},
		{Team: TeamB, Action: ActionVeto},
		// Pick Phase 2
		{Team: TeamA, Action: ActionPick},
		{Team: TeamB, Action: ActionPick},
	},
}

// RequiredActions is the length of the format's fixed schedule.
func RequiredActions(f Format) int {
	return len(Schedules[f])
}

// TargetMapCount is the number of maps the finished veto yields.
func TargetMapCount(f Format) int {
	switch f {
	case FormatBO1:
		return 1
	case FormatBO3:
		return 3
	case FormatBO5:
		return 5
	}
	return 0
}

// MinPoolSize is the smallest pool that covers the schedule and still leaves
// a tiebreaker.
func MinPoolSize(f Format) int {
	if f == FormatBO1 {
		return 2
	}
	return RequiredActions(f) + 1
}

func scheduledPicks(f Format) int {
	n := 0
	for _, step := range Schedules[f] {
		if step.Action == ActionPick {
			n++
		}
	}
	return n
}

func scheduleStep(f Format, n int) (TurnStep, bool) {
	sched := Schedules[f]
	if n < 0 || n >= len(sched) {
		return TurnStep{}, false
	}
	return sched[n], true
}
