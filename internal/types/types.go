package types

import (
	"time"
)

type Account struct {
	Id        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type Profile struct {
	AccountId   string    `json:"account_id"`
	RotatingId  string    `json:"rotating_id"`
	LastRotated time.Time `json:"last_rotated"`
	Friends     []string  `json:"friends"`
	AutoRotate  bool      `json:"auto_rotate"`
}

type Friend struct {
	Id         string `json:"id"`
	RotatingId string `json:"rotating_id"`
}

type Echo struct {
	Id              string    `json:"id"`
	Content         string    `json:"content"`
	Mood            string    `json:"mood"`
	RotatingId      string    `json:"rotating_id"`
	Timestamp       time.Time `json:"timestamp"`
	BackgroundColor string    `json:"background_color"`
	IsPrivate       bool      `json:"is_private"`
	OwnerAccountId  string    `json:"owner_account_id"`
}

type Vibe struct {
	Id             string    `json:"id"`
	Content        string    `json:"content"`
	Mood           string    `json:"mood"`
	Timestamp      time.Time `json:"timestamp"`
	IsShared       bool      `json:"is_shared"`
	OwnerAccountId string    `json:"owner_account_id"`
	RotatingId     string    `json:"rotating_id"`
}

type ProfileStats struct {
	TotalEchoes  int    `json:"total_echoes"`
	TotalFriends int    `json:"total_friends"`
	PrivateVibes int    `json:"private_vibes"`
	MostUsedMood string `json:"most_used_mood"`
	MoodName     string `json:"mood_name,omitempty"`
}

// SessionState is the (account, loading) pair pushed to connected views.
type SessionState struct {
	Account    *Account `json:"account"`
	RotatingId string   `json:"rotating_id,omitempty"`
	Loading    bool     `json:"loading"`
}

type EchoPage struct {
	Echoes     []Echo `json:"echoes"`
	Page       int    `json:"page"`
	TotalPages int    `json:"total_pages"`
	Total      int    `json:"total"`
}
