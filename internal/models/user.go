package models

// Role is the capability level of a dashboard user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// UserStatus is the account state shown in the admin panel.
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
	UserStatusBanned   UserStatus = "banned"
)

// User is an entry of the user directory.
type User struct {
	ID        string     `json:"id" yaml:"id"`
	Name      string     `json:"name" yaml:"name"`
	Email     string     `json:"email" yaml:"email"`
	Role      Role       `json:"role" yaml:"role"`
	Status    UserStatus `json:"status" yaml:"status"`
	CreatedAt string     `json:"createdAt" yaml:"created_at"`
}

// IsAdmin reports whether the user may open the admin panel.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
