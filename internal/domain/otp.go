package domain

import "time"

// OTPRecord is the registration state for one email address. Key: email.
// The record survives completion so status checks stay idempotent.
type OTPRecord struct {
	Email       string     `json:"email" dynamodbav:"email"`
	OTP         string     `json:"-" dynamodbav:"otp"`
	Username    string     `json:"username" dynamodbav:"username"`
	CreatedAt   time.Time  `json:"createdAt" dynamodbav:"created_at"`
	ExpiresAt   time.Time  `json:"expiresAt" dynamodbav:"expires_at"`
	Attempts    int        `json:"attempts" dynamodbav:"attempts"`
	Verified    bool       `json:"verified" dynamodbav:"verified"`
	VerifiedAt  *time.Time `json:"verifiedAt,omitempty" dynamodbav:"verified_at,omitempty"`
	Completed   bool       `json:"completed" dynamodbav:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty" dynamodbav:"completed_at,omitempty"`
}

// EmailStatus is the resolved registration state of an email address.
type EmailStatus string

const (
	EmailRegisteredInUsers EmailStatus = "registered_in_users"
	EmailAvailable         EmailStatus = "available"
	EmailCompleted         EmailStatus = "completed"
	EmailVerifiedPending   EmailStatus = "verified_pending"
	EmailPending           EmailStatus = "pending"
	EmailExpired           EmailStatus = "expired"
)

// EmailState is the result of status resolution. Record is nil for
// available and registered_in_users.
type EmailState struct {
	Status           EmailStatus `json:"status"`
	RemainingSeconds int         `json:"remainingSeconds,omitempty"`
	Record           *OTPRecord  `json:"-"`
}

// Verified reports whether the email counts as proven for registration.
func (s EmailState) Verified() bool {
	switch s.Status {
	case EmailCompleted, EmailVerifiedPending, EmailRegisteredInUsers:
		return true
	}
	return false
}
