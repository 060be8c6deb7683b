package users

import (
	"time"

	"github.com/google/uuid"
)

// Tier is the subscription level attached to a user. It rides inside
// access-token claims so downstream services can gate features without
// a database lookup.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// User is the identity record created on first successful Apple sign-in.
// AppleSubject is the stable external subject identifier and never changes
// once the row exists.
type User struct {
	ID            string    `db:"id"`
	AppleSubject  string    `db:"apple_subject"`
	Email         string    `db:"email"`
	DisplayName   string    `db:"display_name"`
	Tier          Tier      `db:"tier"`
	MinutesUsed   int64     `db:"minutes_used"`
	TranslationsN int64     `db:"translations_n"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// Profile is the safe client-facing projection of a User. Usage counters
// and the raw Apple subject stay server-side.
type Profile struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Tier        string `json:"tier"`
}

func (u *User) Profile() Profile {
	return Profile{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Tier:        string(u.Tier),
	}
}

// New creates a user for a freshly verified Apple subject.
func New(appleSubject, email, displayName string, now time.Time) *User {
	return &User{
		ID:           uuid.New().String(),
		AppleSubject: appleSubject,
		Email:        email,
		DisplayName:  displayName,
		Tier:         TierFree,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
