package domain

import "time"

// Role is the authorization role carried by an identity and its access token.
type Role string

const (
	RoleAdmin Role = "Admin"
	RoleUser  Role = "User"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// Identity is a registered user and its stored credentials.
// RefreshToken holds the single active refresh token, empty when logged out.
type Identity struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	RefreshToken string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Caller is the authenticated identity extracted from an access token.
// It is passed explicitly to every resource service call.
type Caller struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// IsAdmin reports whether the caller holds the Admin role.
func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}
