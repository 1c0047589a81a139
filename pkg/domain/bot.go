package domain

import "time"

// Bot ties a messaging-channel account to a set of flows. Only published
// bots take part in conversation handling.
type Bot struct {
	ID                    string    `json:"id" yaml:"id"`
	AccountID             string    `json:"accountId" yaml:"accountId"`
	Name                  string    `json:"name" yaml:"name"`
	WhatsappAccountID     string    `json:"whatsappAccountId" yaml:"whatsappAccountId"`
	IsPublished           bool      `json:"isPublished" yaml:"isPublished"`
	SessionTTL            int       `json:"sessionTTL,omitempty" yaml:"sessionTTL,omitempty"` // seconds; 0 means no idle expiry
	SessionTimeoutMessage string    `json:"sessionTimeoutMessage,omitempty" yaml:"sessionTimeoutMessage,omitempty"`
	CreatedAt             time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// SessionExpiry returns the idle timeout as a duration, zero when unset.
func (b *Bot) SessionExpiry() time.Duration {
	return time.Duration(b.SessionTTL) * time.Second
}
