package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Activity types with a configurable point value. Closed set: an activity
// the platform does not know is rejected, never silently accepted.
const (
	ActivityReferralJoin  = "referral_join"
	ActivityDailyLogin    = "daily_login"
	ActivityPlayGame      = "play_game"
	ActivityFacebookJoin  = "facebook_join"
	ActivityInstagramJoin = "instagram_join"
	ActivityTwitterJoin   = "twitter_join"
	ActivityLinkedinJoin  = "linkedin_join"
	ActivityTiktokJoin    = "tiktok_join"
	ActivityYoutubeJoin   = "youtube_join"
	ActivityWhatsappJoin  = "whatsapp_join"
	ActivityTelegramJoin  = "telegram_join"
	ActivityWebxvJoin     = "webxv_join"
	ActivityDiscordJoin   = "discord_join"
)

var activityTypes = map[string]bool{
	ActivityReferralJoin:  true,
	ActivityDailyLogin:    true,
	ActivityPlayGame:      true,
	ActivityFacebookJoin:  true,
	ActivityInstagramJoin: true,
	ActivityTwitterJoin:   true,
	ActivityLinkedinJoin:  true,
	ActivityTiktokJoin:    true,
	ActivityYoutubeJoin:   true,
	ActivityWhatsappJoin:  true,
	ActivityTelegramJoin:  true,
	ActivityWebxvJoin:     true,
	ActivityDiscordJoin:   true,
}

// ParseActivityType validates an activity type against the closed set.
func ParseActivityType(s string) (string, error) {
	if !activityTypes[s] {
		return "", fmt.Errorf("unknown activity type %q", s)
	}
	return s, nil
}

// Communities a user can join for a one-time reward.
var Communities = map[string]bool{
	"facebook":  true,
	"instagram": true,
	"twitter":   true,
	"linkedin":  true,
	"tiktok":    true,
	"youtube":   true,
	"whatsapp":  true,
	"telegram":  true,
	"webxv":     true,
	"discord":   true,
}

// ParseCommunity validates a community name.
func ParseCommunity(s string) (string, error) {
	if !Communities[s] {
		return "", fmt.Errorf("unknown community %q", s)
	}
	return s, nil
}

// CommunityActivityType maps a community to its reward activity type.
func CommunityActivityType(community string) string {
	return community + "_join"
}

// ActivityConfig maps an activity type to its point value. At most one row
// per activity type (unique index).
type ActivityConfig struct {
	ID           uuid.UUID `json:"id"`
	ActivityType string    `json:"activity_type"`
	Points       int64     `json:"points"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CommunityJoin records a one-time community reward. Eligibility is the
// absence of a row for (account, community); a unique index enforces it
// under concurrency.
type CommunityJoin struct {
	ID           uuid.UUID `json:"id"`
	AccountID    uuid.UUID `json:"account_id"`
	Community    string    `json:"community"`
	ProfileURL   string    `json:"profile_url"`
	PointsEarned int64     `json:"points_earned"`
	JoinedAt     time.Time `json:"joined_at"`
}

// GamePlay records one game session. Score is the point value awarded for
// the session (zero when nothing was awarded). A row with Score > 0 inside
// the trailing 24 hours blocks further game rewards for the account (the
// window is keyed by account, not game).
type GamePlay struct {
	ID        uuid.UUID `json:"id"`
	AccountID uuid.UUID `json:"account_id"`
	GameID    string    `json:"game_id"`
	GameName  string    `json:"game_name"`
	Score     int64     `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// PointsHistory is the reward engine's audit entry, one per grant.
type PointsHistory struct {
	ID           uuid.UUID       `json:"id"`
	AccountID    uuid.UUID       `json:"account_id"`
	ActivityType string          `json:"activity_type"`
	Points       int64           `json:"points"`
	Reference    json.RawMessage `json:"reference,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}
