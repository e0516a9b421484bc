// Package domain contains entities without logic, just meta-data.
package domain

type (
	UserID string
	ConnID string
)

// Identity is what the token verifier extracts from a handshake credential.
// It never changes for the lifetime of the connection that carried it;
// reconnecting produces a fresh Identity.
type Identity struct {
	UserID UserID `json:"userId"`
	Name   string `json:"name"`
}
