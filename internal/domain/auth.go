package domain

import "time"

// Token types carried in authentication links. TokenCode is internal: it is
// never placed in a link's token_hash parameter, only in ?code=.
const (
	TokenMagicLink = "magiclink"
	TokenRecovery  = "recovery"
	TokenInvite    = "invite"
	TokenCode      = "code"
)

// User is an account that can sign in. PasswordHash is empty for users that
// have only ever used magic links.
type User struct {
	ID           string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Email        string    `json:"email"      gorm:"type:varchar(255);not null;uniqueIndex"`
	FullName     string    `json:"full_name"  gorm:"type:varchar(160)"`
	PasswordHash string    `json:"-"          gorm:"type:varchar(100)"`
	Onboarded    bool      `json:"onboarded"  gorm:"not null;default:false"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// AuthToken is a single-use credential delivered by email. Only the SHA-256
// digest of the raw token is stored; ConsumedAt is set exactly once.
type AuthToken struct {
	ID         string     `gorm:"type:char(36);primaryKey"`
	Digest     string     `gorm:"type:char(64);not null;uniqueIndex"`
	Type       string     `gorm:"type:varchar(16);not null"`
	UserID     string     `gorm:"type:char(36);not null;index"`
	RedirectTo string     `gorm:"type:varchar(512)"`
	CreatedAt  time.Time  `gorm:"not null"`
	ExpiresAt  time.Time  `gorm:"not null;index"`
	ConsumedAt *time.Time `gorm:"index"`
}

// TableName returns the database table name for AuthToken.
func (AuthToken) TableName() string { return "auth_tokens" }

// Session is the server-side record behind a signed access token. ID is the
// token's jti claim; revoking the row invalidates the token before expiry.
type Session struct {
	ID        string     `json:"id"         gorm:"type:varchar(32);primaryKey"`
	UserID    string     `json:"user_id"    gorm:"type:char(36);not null;index"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"not null"`
	RevokedAt *time.Time `json:"-"`
}

// TableName returns the database table name for Session.
func (Session) TableName() string { return "sessions" }
