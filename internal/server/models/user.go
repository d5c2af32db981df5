package models

import "time"

// User is an end user known to the broker, keyed by their Google account.
type User struct {
	ID              string
	Email           string
	ExternalSubject string
	Name            string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
