package model

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// DocumentLimitUnlimited disables the per-user document quota.
const DocumentLimitUnlimited = -1

type User struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	PasswordHash  string `json:"-"`
	Role          string `json:"role"`
	DocumentLimit int    `json:"document_limit"`
	Ctime         int64  `json:"ctime"`
	Mtime         int64  `json:"mtime"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Unlimited reports whether the user is exempt from the document quota.
// Admins are never limited.
func (u *User) Unlimited() bool {
	return u.IsAdmin() || u.DocumentLimit == DocumentLimitUnlimited
}
