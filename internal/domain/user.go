package domain

import "time"

const (
	RoleUser  = "user"
	RoleOwner = "owner"
)

// User is an account created by the account-finalization flow. This service
// only reads it.
type User struct {
	UserID        string    `json:"id" dynamodbav:"user_id"`
	Username      string    `json:"username" dynamodbav:"username"`
	Email         string    `json:"email" dynamodbav:"email"`
	Role          string    `json:"role" dynamodbav:"role"`
	EmailVerified bool      `json:"emailVerified" dynamodbav:"email_verified"`
	CreatedAt     time.Time `json:"created" dynamodbav:"created_at"`
}
