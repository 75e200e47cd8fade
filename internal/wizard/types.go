package wizard

// Step is one discrete stage of onboarding. Steps are ordered; the zero
// value is invalid so that an absent step can be told apart from welcome.
type Step int

const (
	// StepWelcome greets the user; nothing is configured yet.
	StepWelcome Step = iota + 1

	// StepGmail connects the Gmail account via the OAuth redirect.
	StepGmail

	// StepTelegram links the Telegram bot via a short-lived code.
	StepTelegram

	// StepFolders configures folder rules.
	StepFolders

	// StepPreferences configures notification preferences.
	StepPreferences

	// StepComplete is the terminal step; finishing it clears persisted
	// progress.
	StepComplete
)

// String returns the step name for logging and display.
func (s Step) String() string {
	switch s {
	case StepWelcome:
		return "welcome"
	case StepGmail:
		return "gmail"
	case StepTelegram:
		return "telegram"
	case StepFolders:
		return "folders"
	case StepPreferences:
		return "preferences"
	case StepComplete:
		return "complete"
	}
	return "unknown"
}

// valid reports whether the step is one of the defined stages.
func (s Step) valid() bool {
	return s >= StepWelcome && s <= StepComplete
}

// ResumePolicy decides what to do with a stored step that is ahead of what
// the connection flags justify (tampering or corruption).
type ResumePolicy int

const (
	// ResumeClamp resumes at the furthest step the flags allow. This is
	// the default: it preserves as much progress as can be trusted.
	ResumeClamp ResumePolicy = iota

	// ResumeRestart discards the snapshot entirely and starts over.
	ResumeRestart
)

// String returns the policy name for logging.
func (p ResumePolicy) String() string {
	switch p {
	case ResumeClamp:
		return "clamp"
	case ResumeRestart:
		return "restart"
	}
	return "unknown"
}
