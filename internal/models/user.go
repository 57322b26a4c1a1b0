package models

// User roles stored in the user_type column.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
)

type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Password string `json:"-"` // Don't return password in JSON
	Role     string `json:"role"`
}

// AuthPayload is the login result: the authenticated username plus a signed token.
type AuthPayload struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}
