package model

import "time"

type UserRole string

const (
	UserRoleStudent UserRole = "student"
	UserRoleMentor  UserRole = "mentor"
	UserRoleAdmin   UserRole = "admin"
)

type User struct {
	ID    string // UUID
	Name  string
	Email string
	Role  UserRole
	// DisabilityType, when set, feeds the accessibility affinity bonus in
	// recommendation scoring (e.g. "visual", "hearing").
	DisabilityType string
	CreatedAt      time.Time
}
