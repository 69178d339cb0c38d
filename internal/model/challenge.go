package model

import "time"

// Challenge is a time-boxed competition. EndDate is nil for open-ended
// challenges.
//
// CreatorName and ParticipantsCount are read-side annotations filled by
// listing and detail queries; they are not columns of the challenges table.
type Challenge struct {
	ID                int64      `json:"id"                db:"id"`
	Name              string     `json:"name"              db:"name"`
	Description       string     `json:"description"       db:"description"`
	Subject           string     `json:"subject"           db:"subject"`
	CreatorID         int64      `json:"creatorId"         db:"creator_id"`
	StartDate         time.Time  `json:"startDate"         db:"start_date"`
	EndDate           *time.Time `json:"endDate"           db:"end_date"`
	IsActive          bool       `json:"isActive"          db:"is_active"`
	CreatedAt         time.Time  `json:"createdAt"         db:"created_at"`
	CreatorName       string     `json:"creatorName"       db:"creator_name"`
	ParticipantsCount int64      `json:"participantsCount" db:"participants_count"`
}

// Qualifies reports whether sessions logged at now earn points in this
// challenge: the active flag is set and the end date, if any, lies ahead.
func (c *Challenge) Qualifies(now time.Time) bool {
	if !c.IsActive {
		return false
	}
	return c.EndDate == nil || c.EndDate.After(now)
}

// Participant links an account to a challenge and accumulates the points
// credited to it while the challenge qualified.
type Participant struct {
	ChallengeID int64     `json:"challengeId" db:"challenge_id"`
	AccountID   int64     `json:"userId"      db:"account_id"`
	TotalPoints int64     `json:"totalPoints" db:"total_points"`
	JoinedAt    time.Time `json:"joinedAt"    db:"joined_at"`
}

// RankingEntry is one row of a challenge leaderboard. Position is assigned by
// order, so tied participants still receive distinct consecutive positions.
type RankingEntry struct {
	Position    int    `json:"position"    db:"-"`
	AccountID   int64  `json:"userId"      db:"account_id"`
	Name        string `json:"name"        db:"name"`
	AvatarURL   string `json:"avatarUrl"   db:"avatar_url"`
	TotalPoints int64  `json:"totalPoints" db:"total_points"`
}
