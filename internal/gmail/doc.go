// Package gmail provides a thin Gmail API client for the folder setup step
// of onboarding. It reads the account profile and user labels so the wizard
// can suggest folder rules based on how the mailbox is already organized.
package gmail
