package progress

import "time"

// FolderRule summarizes a configured folder rule. The full rule definition
// lives on the backend; the snapshot only keeps what the wizard needs to
// render the folders step on resume.
type FolderRule struct {
	// Name is the display name of the folder or label
	Name string `json:"name"`

	// Query is the match expression the rule applies to incoming mail
	Query string `json:"query,omitempty"`

	// NotifyTelegram reports whether matches are forwarded to the bot
	NotifyTelegram bool `json:"notifyTelegram"`
}

// Progress is the persisted onboarding snapshot. The wizard controller is
// the only writer of CurrentStep; this package persists and restores the
// snapshot without business validation beyond structural shape and age.
type Progress struct {
	// CurrentStep is the 1-based wizard step cursor
	CurrentStep int `json:"currentStep"`

	// GmailConnected reports whether the Gmail account has been connected
	GmailConnected bool `json:"gmailConnected"`

	// TelegramConnected reports whether the Telegram bot has been linked
	TelegramConnected bool `json:"telegramConnected"`

	// Folders is the ordered list of configured folder-rule summaries
	Folders []FolderRule `json:"folders,omitempty"`

	// GmailEmail is the connected Gmail address, if any
	GmailEmail string `json:"gmailEmail,omitempty"`

	// TelegramUsername is the linked Telegram handle, if any
	TelegramUsername string `json:"telegramUsername,omitempty"`

	// LastUpdated is when the snapshot was last saved
	LastUpdated time.Time `json:"lastUpdated"`
}

// Clone returns a deep copy of the snapshot so that callers can mutate the
// copy without aliasing the store's in-memory mirror.
func (p *Progress) Clone() *Progress {
	if p == nil {
		return nil
	}
	clone := *p
	if p.Folders != nil {
		clone.Folders = make([]FolderRule, len(p.Folders))
		copy(clone.Folders, p.Folders)
	}
	return &clone
}
