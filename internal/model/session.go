package model

import "time"

// StudySession is one logged interval of study. PointsEarned is fixed when
// the session is created; editing a session never touches it.
type StudySession struct {
	ID              int64     `json:"id"              db:"id"`
	AccountID       int64     `json:"userId"          db:"account_id"`
	DurationSeconds int64     `json:"durationSeconds" db:"duration_seconds"`
	Subject         string    `json:"subject"         db:"subject"`
	Notes           string    `json:"notes"           db:"notes"`
	PointsEarned    int64     `json:"pointsEarned"    db:"points_earned"`
	CreatedAt       time.Time `json:"createdAt"       db:"created_at"`
}

// SessionCredit records the points a session added to one participation.
// Reversing a session subtracts exactly its credits.
type SessionCredit struct {
	SessionID   int64 `db:"session_id"`
	ChallengeID int64 `db:"challenge_id"`
	Points      int64 `db:"points"`
}

// Pagination describes one page of an offset-paginated listing.
type Pagination struct {
	CurrentPage   int   `json:"currentPage"`
	TotalPages    int   `json:"totalPages"`
	TotalSessions int64 `json:"totalSessions"`
	HasNextPage   bool  `json:"hasNextPage"`
	HasPrevPage   bool  `json:"hasPrevPage"`
}

// NewPagination computes page metadata for total items split into pages of
// limit items each.
func NewPagination(page, limit int, total int64) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Pagination{
		CurrentPage:   page,
		TotalPages:    totalPages,
		TotalSessions: total,
		HasNextPage:   page < totalPages,
		HasPrevPage:   page > 1,
	}
}

// SessionPage is the result of listing an account's study sessions.
type SessionPage struct {
	Sessions   []StudySession `json:"sessions"`
	Pagination Pagination     `json:"pagination"`
}
