package model

import "time"

// DiscoverySession is the server-persisted working set for one user: which
// sources are selected and the last-saved per-source overrides.
type DiscoverySession struct {
	ID                string                      `json:"id" db:"id"`
	UserID            string                      `json:"user_id" db:"user_id"`
	SelectedSourceIDs []string                    `json:"selected_source_ids" db:"selected_source_ids"`
	Parameters        map[string]QueryParameters  `json:"parameters,omitempty" db:"parameters"`
	Settings          map[string]AdvancedSettings `json:"advanced_settings,omitempty" db:"advanced_settings"`
	CurrentSpaceID    string                      `json:"current_space_id,omitempty" db:"current_space_id"`
	CreatedAt         time.Time                   `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time                   `json:"updated_at" db:"updated_at"`
}

// SessionInit seeds a new discovery session.
type SessionInit struct {
	UserID            string                     `json:"user_id"`
	SelectedSourceIDs []string                   `json:"selected_source_ids,omitempty"`
	Parameters        map[string]QueryParameters `json:"parameters,omitempty"`
}
