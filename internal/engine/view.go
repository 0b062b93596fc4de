package engine

import "fmt"

type Role string

const (
	RoleHost      Role = "host"
	RoleTeam      Role = "team"
	RoleSpectator Role = "spectator"
)

// ParseRole maps a link role ("teamA", "teamB", "spectator", "host") to a
// viewer role and, for team links, the team.
func ParseRole(v string) (Role, Team, bool) {
	switch v {
	case "teamA":
		return RoleTeam, TeamA, true
	case "teamB":
		return RoleTeam, TeamB, true
	case "spectator":
		return RoleSpectator, "", true
	case "host", "master":
		return RoleHost, "", true
	default:
		return "", "", false
	}
}

type MapStatus string

const (
	MapAvailable MapStatus = "available"
	MapBanned    MapStatus = "banned"
	MapPicked    MapStatus = "picked"
	MapFinal     MapStatus = "final"
)

type MapView struct {
	Name    string    `json:"name"`
	Status  MapStatus `json:"status"`
	CanVeto bool      `json:"can_veto,omitempty"`
	CanPick bool      `json:"can_pick,omitempty"`
}

// FinalMapView is one map of the finished set. PickedBy is empty for the
// tiebreaker.
type FinalMapView struct {
	Name     string `json:"name"`
	PickedBy Team   `json:"picked_by,omitempty"`
	Decider  bool   `json:"decider,omitempty"`
}

type View struct {
	SessionID    string         `json:"session_id"`
	Format       Format         `json:"format"`
	Role         Role           `json:"role"`
	Team         Team           `json:"team,omitempty"`
	Version      int            `json:"version"`
	Status       string         `json:"status"`
	Turn         Team           `json:"turn"`
	NextAction   Action         `json:"next_action,omitempty"`
	Finished     bool           `json:"finished"`
	YourTurn     bool           `json:"your_turn"`
	PickCountA   int            `json:"pick_count_a"`
	PickCountB   int            `json:"pick_count_b"`
	Maps         []MapView      `json:"maps"`
	History      []HistoryEntry `json:"history"`
	FinalMaps    []FinalMapView `json:"final_maps"`
	FinalPending string         `json:"final_pending,omitempty"`
}

const finalPendingText = "Waiting for the veto to finish..."

// ProjectView renders s for one viewer. Team is only read for RoleTeam.
func ProjectView(s State, role Role, team Team) View {
	if role != RoleTeam {
		team = ""
	}
	v := View{
		SessionID:  s.ID,
		Format:     s.Format,
		Role:       role,
		Team:       team,
		Version:    s.Version,
		Status:     statusText(s, role, team),
		Turn:       s.Turn,
		Finished:   s.Finished(),
		PickCountA: s.PickCountA,
		PickCountB: s.PickCountB,
		Maps:       make([]MapView, 0, len(s.Pool)),
		History:    make([]HistoryEntry, 0, len(s.History)),
		FinalMaps:  []FinalMapView{},
	}
	if !v.Finished {
		v.NextAction = s.NextAction
		v.YourTurn = role == RoleTeam && s.Turn == team
	}

	for _, m := range s.Pool {
		mv := MapView{Name: m, Status: MapAvailable}
		switch {
		case hasBan(s, m):
			mv.Status = MapBanned
		case hasPick(s, m):
			mv.Status = MapPicked
		case s.FinalMap == m:
			mv.Status = MapFinal
		default:
			mv.CanVeto = v.YourTurn && s.NextAction == ActionVeto
			mv.CanPick = v.YourTurn && s.NextAction == ActionPick
		}
		v.Maps = append(v.Maps, mv)
	}

	for _, h := range s.History {
		if role == RoleTeam && h.Team != team {
			continue
		}
		v.History = append(v.History, h)
	}

	finals := finalMaps(s)
	target := TargetMapCount(s.Format)
	switch {
	case v.Finished && len(finals) == target:
		v.FinalMaps = finals
	case v.Finished:
		v.FinalPending = fmt.Sprintf("Veto finished with an unexpected number of maps (%d/%d).", len(finals), target)
	default:
		v.FinalPending = finalPendingText
	}
	return v
}

func finalMaps(s State) []FinalMapView {
	out := make([]FinalMapView, 0, TargetMapCount(s.Format))
	for _, h := range s.History {
		if h.Action == ActionPick {
			out = append(out, FinalMapView{Name: h.Map, PickedBy: h.Team})
		}
	}
	if s.FinalMap != "" && !hasPick(s, s.FinalMap) {
		out = append(out, FinalMapView{Name: s.FinalMap, Decider: true})
	}
	return out
}

func statusText(s State, role Role, team Team) string {
	if s.Finished() {
		return "Veto finished!"
	}
	if role == RoleTeam {
		if s.Turn != team {
			return fmt.Sprintf("Waiting for %s...", teamName(s.Turn))
		}
		if s.NextAction == ActionVeto {
			return "Your turn to VETO a map!"
		}
		return "Your turn to PICK a map!"
	}
	verb := "vetoing"
	if s.NextAction == ActionPick {
		verb = "picking"
	}
	return fmt.Sprintf("%s %s...", teamName(s.Turn), verb)
}

func teamName(t Team) string {
	switch t {
	case TeamA:
		return "Team A"
	case TeamB:
		return "Team B"
	}
	return string(t)
}
