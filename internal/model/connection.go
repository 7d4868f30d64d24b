package model

import "time"

// Connection links a user to one provider account.
type Connection struct {
	CreatedAt  time.Time
	LastSynced *time.Time
	ID         string
	UserID     string
	Provider   string
	AccountID  string
	Name       string
}

// Balance is a point-in-time balance snapshot for a connection.
type Balance struct {
	AsOf         time.Time
	ConnectionID string
	Currency     string
	Current      float64
	Available    float64
}
