package domain

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)
