package discovery

import (
	"github.com/sells-group/discovery-console/internal/model"
)

// Resolution is the working state extracted from the active session.
type Resolution struct {
	// SessionID is empty when no candidate session existed.
	SessionID         string
	SelectedSourceIDs []string
	Parameters        map[string]model.QueryParameters
	Settings          map[string]model.AdvancedSettings
	CurrentSpaceID    string
}

// Found reports whether a session was selected.
func (r Resolution) Found() bool {
	return r.SessionID != ""
}

// Resolve picks the active session among a user's candidates: the one with
// the latest UpdatedAt, ties broken by the lexically highest ID. The choice
// is independent of input order. Session overrides are layered over the
// caller-supplied default parameters. An empty candidate list yields an
// unset Resolution carrying only the defaults.
func Resolve(sessions []model.DiscoverySession, defaults map[string]model.QueryParameters) Resolution {
	params := make(map[string]model.QueryParameters, len(defaults))
	for id, p := range defaults {
		params[id] = p
	}

	if len(sessions) == 0 {
		return Resolution{
			SelectedSourceIDs: []string{},
			Parameters:        params,
			Settings:          map[string]model.AdvancedSettings{},
		}
	}

	active := sessions[0]
	for _, s := range sessions[1:] {
		if newerSession(s, active) {
			active = s
		}
	}

	for id, p := range active.Parameters {
		params[id] = p
	}
	settings := make(map[string]model.AdvancedSettings, len(active.Settings))
	for id, s := range active.Settings {
		settings[id] = s
	}

	selected := make([]string, len(active.SelectedSourceIDs))
	copy(selected, active.SelectedSourceIDs)

	return Resolution{
		SessionID:         active.ID,
		SelectedSourceIDs: selected,
		Parameters:        params,
		Settings:          settings,
		CurrentSpaceID:    active.CurrentSpaceID,
	}
}

// newerSession reports whether a sorts after b in the resolution order.
func newerSession(a, b model.DiscoverySession) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID > b.ID
}
