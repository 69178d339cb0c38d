package client

import "time"

// User is the public view of an account.
type User struct {
	ID          int64     `json:"id"          yaml:"id"`
	Email       string    `json:"email"       yaml:"email"`
	Name        string    `json:"name"        yaml:"name"`
	AvatarURL   string    `json:"avatarUrl"   yaml:"avatarUrl,omitempty"`
	TotalPoints int64     `json:"totalPoints" yaml:"totalPoints"`
	CreatedAt   time.Time `json:"createdAt"   yaml:"createdAt"`
}

type Stats struct {
	TotalSessions         int64 `json:"totalSessions"`
	TotalStudyTimeSeconds int64 `json:"totalStudyTimeSeconds"`
	TotalStudyTimeHours   int64 `json:"totalStudyTimeHours"`
	TotalPointsEarned     int64 `json:"totalPointsEarned"`
	TotalChallenges       int64 `json:"totalChallenges"`
}

type Profile struct {
	User  User  `json:"user"`
	Stats Stats `json:"stats"`
}

type AuthResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
	User    User   `json:"user"`
}

type Challenge struct {
	ID                int64      `json:"id"`
	Name              string     `json:"name"`
	Description       string     `json:"description"`
	Subject           string     `json:"subject"`
	CreatorID         int64      `json:"creatorId"`
	CreatorName       string     `json:"creatorName"`
	StartDate         time.Time  `json:"startDate"`
	EndDate           *time.Time `json:"endDate"`
	IsActive          bool       `json:"isActive"`
	ParticipantsCount int64      `json:"participantsCount"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// CreateChallengeRequest carries endDate as text: RFC 3339 or YYYY-MM-DD.
type CreateChallengeRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Subject     string `json:"subject"`
	EndDate     string `json:"endDate,omitempty"`
}

type RankingEntry struct {
	Position    int    `json:"position"`
	UserID      int64  `json:"userId"`
	Name        string `json:"name"`
	AvatarURL   string `json:"avatarUrl"`
	TotalPoints int64  `json:"totalPoints"`
}

// RankingSnapshot is one message of the live ranking stream.
type RankingSnapshot struct {
	Type        string         `json:"type"`
	ChallengeID int64          `json:"challengeId"`
	Ranking     []RankingEntry `json:"ranking"`
	At          time.Time      `json:"at"`
}

type StudySession struct {
	ID              int64     `json:"id"`
	DurationSeconds int64     `json:"durationSeconds"`
	Subject         string    `json:"subject"`
	Notes           string    `json:"notes"`
	PointsEarned    int64     `json:"pointsEarned"`
	CreatedAt       time.Time `json:"createdAt"`
}

type LogSessionRequest struct {
	DurationSeconds int64  `json:"durationSeconds"`
	Subject         string `json:"subject,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

// UpdateSessionRequest leaves nil fields unchanged.
type UpdateSessionRequest struct {
	Subject *string `json:"subject,omitempty"`
	Notes   *string `json:"notes,omitempty"`
}

type Pagination struct {
	CurrentPage   int   `json:"currentPage"`
	TotalPages    int   `json:"totalPages"`
	TotalSessions int64 `json:"totalSessions"`
	HasNextPage   bool  `json:"hasNextPage"`
	HasPrevPage   bool  `json:"hasPrevPage"`
}

type SessionPage struct {
	Sessions   []StudySession `json:"sessions"`
	Pagination Pagination     `json:"pagination"`
}

type Health struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}
