package domain

import "errors"

var (
	// ErrNotFound is returned when a stored row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSessionActive is returned when a session start is attempted while one is running.
	ErrSessionActive = errors.New("a session is already active")

	// ErrNoActiveSession is returned by operations that need a running session.
	ErrNoActiveSession = errors.New("no active session")

	// ErrEmergencyNotPermitted is returned when the current session disallows emergency override.
	ErrEmergencyNotPermitted = errors.New("emergency override not permitted for this session")

	// ErrInvalidDefinition marks a session or schedule definition missing required fields.
	ErrInvalidDefinition = errors.New("invalid definition")

	// ErrGoalLocked is returned when removing items from, or deleting, a goal that has not ended.
	ErrGoalLocked = errors.New("goal is locked until its end time")

	// ErrSystemEssential is returned when removing a seeded system-essential app.
	ErrSystemEssential = errors.New("system essential apps cannot be removed")

	// ErrChallengeIncomplete is returned when completing a challenge early.
	ErrChallengeIncomplete = errors.New("challenge not complete")

	// ErrNotAllowed is returned when launching an app that the session does not allow.
	ErrNotAllowed = errors.New("app not allowed in current session")

	// ErrInvalidTransition is returned when the overlay is asked for a transition its state forbids.
	ErrInvalidTransition = errors.New("invalid overlay transition")

	// ErrAlreadyBlocked is returned when an active block exists for the identifier.
	ErrAlreadyBlocked = errors.New("identifier already blocked")

	// ErrInvalidChallenge is returned for malformed challenge parameters.
	ErrInvalidChallenge = errors.New("invalid challenge")
)
