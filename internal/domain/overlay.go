package domain

import "time"

// OverlayState is the state of the blocking overlay.
type OverlayState int

const (
	OverlayHidden OverlayState = iota
	OverlayShowing
	OverlayPendingLaunchGrace
	OverlayEmergencyChallenge
)

func (s OverlayState) String() string {
	switch s {
	case OverlayHidden:
		return "HIDDEN"
	case OverlayShowing:
		return "SHOWING"
	case OverlayPendingLaunchGrace:
		return "PENDING_LAUNCH_GRACE"
	case OverlayEmergencyChallenge:
		return "EMERGENCY_CHALLENGE"
	}
	return "UNKNOWN"
}

// OverlayView is everything a renderer needs to draw the overlay.
type OverlayView struct {
	State         OverlayState
	Blocked       string // package that triggered the overlay
	LaunchTarget  string // set in PENDING_LAUNCH_GRACE
	SessionName   string
	Remaining     time.Duration
	RemainingTaps int
	Allowlist     []string
	EssentialApps []EssentialApp
	CanEmergency  bool
}
