package models

type Role string

const (
	RoleParent Role = "parent"
	RoleTutor  Role = "tutor"
	RoleAdmin  Role = "admin"
)

// Caller is the verified identity behind a request.
type Caller struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

func (c Caller) IsAdmin() bool { return c.Role == RoleAdmin }
