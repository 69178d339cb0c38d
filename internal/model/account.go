// Package model defines the data structures used throughout the application.
//
// The `db` tags are read by sqlx when scanning rows; the `json` tags define
// the wire format of the HTTP API (camelCase, as the browser client expects).
package model

import "time"

// Account is a registered user.
//
// TotalPoints is the sum of PointsEarned over the account's existing study
// sessions. It is only ever changed by the accounting transactions, never by
// a profile update.
type Account struct {
	ID           int64     `json:"id"          db:"id"`
	Email        string    `json:"email"       db:"email"`
	PasswordHash string    `json:"-"           db:"password_hash"`
	Name         string    `json:"name"        db:"name"`
	AvatarURL    string    `json:"avatarUrl"   db:"avatar_url"`
	TotalPoints  int64     `json:"totalPoints" db:"total_points"`
	GitHubID     *int64    `json:"-"           db:"github_id"` // set once the account signed in with GitHub
	CreatedAt    time.Time `json:"createdAt"   db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt"   db:"updated_at"`
}

// ProfileStats aggregates an account's activity for the profile page.
type ProfileStats struct {
	TotalSessions         int64 `json:"totalSessions"         db:"total_sessions"`
	TotalStudyTimeSeconds int64 `json:"totalStudyTimeSeconds" db:"total_study_time"`
	TotalStudyTimeHours   int64 `json:"totalStudyTimeHours"   db:"-"`
	TotalPointsEarned     int64 `json:"totalPointsEarned"     db:"total_points_earned"`
	TotalChallenges       int64 `json:"totalChallenges"       db:"-"`
}
