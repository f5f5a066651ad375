package models

// Member is one user visible in a session room, deduplicated across that
// user's connections. Membership snapshots carry no ordering guarantee.
type Member struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}
