package shared

import "time"

type UserMetadata struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	APIKey string `json:"-"`
}

// Emoji is the persisted result of one successful generation
type Emoji struct {
	ID            string    `json:"id"`
	Prompt        string    `json:"prompt"`
	ImageURL      string    `json:"image_url"`
	StoragePath   string    `json:"storage_path"`
	Likes         uint64    `json:"likes"`
	CreatorUserID string    `json:"creator_user_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// CreditChange is the balance observed before and after a ledger mutation
type CreditChange struct {
	Before int64 `json:"before"`
	After  int64 `json:"after"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
