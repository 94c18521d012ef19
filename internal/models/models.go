package models

import "time"

// Role controls what a user may do on the platform.
type Role string

const (
	RoleUser     Role = "USER"
	RoleBusiness Role = "BUSINESS"
	RoleAdmin    Role = "ADMIN"
)

// RegistrationStage tracks how far a user has progressed through onboarding.
type RegistrationStage string

const (
	StageEmailSubmitted   RegistrationStage = "EMAIL_SUBMITTED"
	StageEmailVerified    RegistrationStage = "EMAIL_VERIFIED"
	StageProfileCompleted RegistrationStage = "PROFILE_COMPLETED"
	StageBusinessAdded    RegistrationStage = "BUSINESS_ADDED"
)

// NextAction tells clients which onboarding step to show for a stage.
func (s RegistrationStage) NextAction() string {
	switch s {
	case StageEmailSubmitted:
		return "verify_email"
	case StageEmailVerified:
		return "complete_profile"
	case StageProfileCompleted, StageBusinessAdded:
		return "login"
	default:
		return "contact_support"
	}
}

// AuthProvider records how an account authenticates.
type AuthProvider string

const (
	ProviderEmail    AuthProvider = "EMAIL"
	ProviderGoogle   AuthProvider = "GOOGLE"
	ProviderFacebook AuthProvider = "FACEBOOK"
)

// User represents an account on the platform.
type User struct {
	ID                string
	Email             string
	Name              string
	AuthProvider      AuthProvider
	Password          string
	Username          string
	ProfilePicURL     string
	EmailVerified     bool
	EmailVerifiedAt   *time.Time
	RegistrationStage RegistrationStage
	Role              Role
	Active            bool
	Banned            bool
	FCMToken          string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	LastLoginAt       *time.Time
}

// UserBasicInfo is the public projection used when rendering feeds.
type UserBasicInfo struct {
	ID            string
	Name          string
	ProfilePicURL string
}

// BusinessProfile describes the business attached to a BUSINESS user.
type BusinessProfile struct {
	ID              string
	UserID          string
	BusinessName    string
	Category        string
	PhoneNumber     string
	Description     string
	Location        string
	Country         string
	LogoURL         string
	Verified        bool
	TermsAcceptedAt time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Notification is an in-app message optionally mirrored as a push.
type Notification struct {
	ID          string
	UserID      string
	Title       string
	Message     string
	Type        string
	ReferenceID string
	Read        bool
	CreatedAt   time.Time
}

// CodePurpose distinguishes one-time codes stored in the same table.
type CodePurpose string

const (
	PurposeEmailVerification CodePurpose = "EMAIL_VERIFICATION"
	PurposePasswordReset     CodePurpose = "PASSWORD_RESET"
)

// VerificationCode is a hashed one-time code with an expiry.
type VerificationCode struct {
	ID        string
	UserID    string
	Purpose   CodePurpose
	CodeHash  string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}
