package database

import "time"

type Account struct {
	Id           string    `bson:"_id"`
	EmailAddress string    `bson:"email"`
	PasswordHash string    `bson:"password_hash"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

type Profile struct {
	AccountId   string    `bson:"_id"`
	RotatingId  string    `bson:"rotating_id"`
	LastRotated time.Time `bson:"last_rotated"`
	Friends     []string  `bson:"friends"`
	AutoRotate  bool      `bson:"auto_rotate"`
}

type Echo struct {
	Id              string    `bson:"_id"`
	Content         string    `bson:"content"`
	Mood            string    `bson:"mood"`
	RotatingId      string    `bson:"rotating_id"`
	Timestamp       time.Time `bson:"timestamp"`
	BackgroundColor string    `bson:"background_color"`
	IsPrivate       bool      `bson:"is_private"`
	OwnerAccountId  string    `bson:"owner_account_id"`
}

type Vibe struct {
	Id             string    `bson:"_id"`
	Content        string    `bson:"content"`
	Mood           string    `bson:"mood"`
	Timestamp      time.Time `bson:"timestamp"`
	IsShared       bool      `bson:"is_shared"`
	OwnerAccountId string    `bson:"owner_account_id"`
	RotatingId     string    `bson:"rotating_id"`
}

type CreateAccountParams struct {
	EmailAddress string
	PasswordHash string
}
