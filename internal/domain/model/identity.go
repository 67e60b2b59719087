package model

import "time"

// Template is the persisted, encrypted signature pair of one enrolled identity.
// IdentityID grows with enrollment order and is the deterministic tie-breaker
// when two identities score the same.
type Template struct {
	IdentityID         int64
	RegistrationNumber string
	Name               string
	EyeTemplate        []byte
	ThumbTemplate      []byte
	CreatedAt          time.Time
}

// Identity is the public view of an enrolled identity, without templates.
type Identity struct {
	IdentityID         int64     `json:"identity_id"`
	RegistrationNumber string    `json:"registration_number"`
	Name               string    `json:"name"`
	CreatedAt          time.Time `json:"created_at"`
}

// Identity strips the encrypted templates.
func (t *Template) Identity() Identity {
	return Identity{
		IdentityID:         t.IdentityID,
		RegistrationNumber: t.RegistrationNumber,
		Name:               t.Name,
		CreatedAt:          t.CreatedAt,
	}
}
