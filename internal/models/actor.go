package models

type Role string

const (
	RoleStudent    Role = "student"
	RoleSupervisor Role = "supervisor"
	RoleStaff      Role = "staff"
)

func (r Role) IsValid() bool {
	return r == RoleStudent || r == RoleSupervisor || r == RoleStaff
}

// Actor is the authenticated caller of a lifecycle operation.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

func (a Actor) IsStudent() bool {
	return a.Role == RoleStudent
}

// CanDecide reports whether the actor may take staff/committee decisions.
func (a Actor) CanDecide() bool {
	return a.Role == RoleStaff || a.Role == RoleSupervisor
}
