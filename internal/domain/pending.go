package domain

// PendingAccount is the signup profile held in memory until its code is verified.
type PendingAccount struct {
	Name         string
	Identifier   string
	PasswordHash string
	Role         string
	Phone        *string
}

// ResetGrant is staged under an opaque reset token once a password-reset code is verified.
type ResetGrant struct {
	UserID     string
	Identifier string
}
