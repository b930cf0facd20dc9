package models

import "time"

// RefreshToken is a registry entry. The signed token itself is never stored,
// only its id.
type RefreshToken struct {
	TokenID   string     `json:"tokenId" bson:"tokenId"`
	UserID    string     `json:"userId" bson:"userId"`
	IssuedAt  time.Time  `json:"issuedAt" bson:"issuedAt"`
	ExpiresAt time.Time  `json:"expiresAt" bson:"expiresAt"`
	Revoked   bool       `json:"revoked" bson:"revoked"`
	RevokedAt *time.Time `json:"revokedAt,omitempty" bson:"revokedAt,omitempty"`
}

// ActiveAt reports whether the entry is usable at now.
func (t *RefreshToken) ActiveAt(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}
