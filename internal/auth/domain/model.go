// Package domain contains core types for bearer authentication.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v4"
)

const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
)

// Caller is the authenticated identity attached to a request.
type Caller struct {
	ID   snowflake.ID
	Role string
}

func (c Caller) IsZero() bool { return c.ID == 0 }

// Claims is the bearer token payload.
type Claims struct {
	ID   string `json:"id"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// RevokedToken marks a bearer token as unusable until it would have expired.
type RevokedToken struct {
	TokenHash string       `gorm:"column:token_hash;primaryKey"`
	UserID    snowflake.ID `gorm:"column:user_id;not null"`
	ExpiresAt time.Time    `gorm:"column:expires_at;not null"`
	RevokedAt time.Time    `gorm:"column:revoked_at;not null"`
}

// TableName sets the database table name.
func (RevokedToken) TableName() string { return "revoked_tokens" }

func ValidRole(role string) bool {
	switch role {
	case RoleStudent, RoleInstructor, RoleAdmin:
		return true
	default:
		return false
	}
}
