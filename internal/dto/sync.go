package dto

// ConnectivityRequest flips the agent's connectivity signal.
type ConnectivityRequest struct {
	Online *bool  `json:"online" binding:"required"`
	Source string `json:"source"`
}

// ConnectivityResponse echoes the resulting state.
type ConnectivityResponse struct {
	Online  bool `json:"online"`
	Changed bool `json:"changed"`
}

// CleanupResponse reports a janitor run.
type CleanupResponse struct {
	Deleted int `json:"deleted"`
}
