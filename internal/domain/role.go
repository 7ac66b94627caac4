package domain

const (
	RoleUser  = "ROLE_USER"
	RoleAdmin = "ROLE_ADMIN"

	PrivilegeRead  = "READ_PRIVILEGE"
	PrivilegeWrite = "WRITE_PRIVILEGE"
)

type Privilege struct {
	ID          string
	Name        string
	Description string
}

// Role references privileges by id; the user side of the many-to-many lives
// in explicit user_role association records.
type Role struct {
	ID           string
	Name         string
	PrivilegeIDs []string
}
