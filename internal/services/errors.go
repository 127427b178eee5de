// Package services holds the business logic for accounts, chats, message
// exchanges, feedback, administration and the completion proxy. This file
// centralizes the sentinel errors returned by service methods; handlers map
// them to HTTP statuses with errors.Is.
package services

import "errors"

// Account errors.
var (
	ErrInvalidEmail       = errors.New("invalid email")
	ErrEmailDomain        = errors.New("email domain not allowed")
	ErrWeakPassword       = errors.New("password too short")
	ErrEmailTaken         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
)

// Chat and message errors.
var (
	// ErrChatNotFound means the chat does not exist.
	ErrChatNotFound = errors.New("chat not found")

	// ErrForbidden means the caller is neither the owner nor an admin.
	ErrForbidden = errors.New("access denied")

	ErrEmptyPrompt = errors.New("prompt is empty")
	ErrTooLong     = errors.New("prompt too long")

	// ErrCompletionFailed wraps any failure of the completion service,
	// including a missing API key. The exchange is rolled back.
	ErrCompletionFailed = errors.New("completion failed")
)

// Feedback errors.
var (
	ErrInvalidFeedback   = errors.New("feedback value must be -1 or 1")
	ErrMessageNotFound   = errors.New("message not found")
	ErrForbiddenFeedback = errors.New("cannot leave feedback on this message")
	ErrDuplicateFeedback = errors.New("feedback already exists")
)

// Proxy errors.
var (
	ErrInvalidMessages = errors.New("messages must be a non-empty list of user/assistant turns")
	ErrInvalidTemp     = errors.New("temperature must be between 0 and 2")
)
