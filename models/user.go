package models

// User records a username seen by the identity registry. The username is the
// store key; RegisteredAt is informational only and last write wins.
type User struct {
	Username     string `json:"username"`
	RegisteredAt string `json:"registeredAt"`
}
