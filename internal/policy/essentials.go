package policy

import "github.com/eliteGoblin/focusd/brick_mon/internal/domain"

type staticPolicy struct {
	id, name     string
	packages     []string
	sessionTypes []domain.SessionType
}

func (p *staticPolicy) ID() string                         { return p.id }
func (p *staticPolicy) Name() string                       { return p.name }
func (p *staticPolicy) Packages() []string                 { return p.packages }
func (p *staticPolicy) SessionTypes() []domain.SessionType { return p.sessionTypes }

// NewDialerPolicy keeps the phone reachable in every session.
func NewDialerPolicy() EssentialPolicy {
	return &staticPolicy{
		id:   "dialer",
		name: "Phone",
		packages: []string{
			"com.android.dialer",
			"com.google.android.dialer",
			"com.samsung.android.dialer",
		},
	}
}

// NewMessagingPolicy keeps SMS reachable in every session.
func NewMessagingPolicy() EssentialPolicy {
	return &staticPolicy{
		id:   "messaging",
		name: "Messages",
		packages: []string{
			"com.android.mms",
			"com.google.android.apps.messaging",
			"com.samsung.android.messaging",
		},
	}
}

// NewEmergencyPolicy covers emergency information and calling.
func NewEmergencyPolicy() EssentialPolicy {
	return &staticPolicy{
		id:   "emergency",
		name: "Emergency",
		packages: []string{
			"com.android.emergency",
			"com.google.android.apps.safetyhub",
		},
	}
}

// NewClockPolicy allows alarms during sleep schedules only.
func NewClockPolicy() EssentialPolicy {
	return &staticPolicy{
		id:           "clock",
		name:         "Clock",
		packages:     []string{"com.google.android.deskclock", "com.android.deskclock"},
		sessionTypes: []domain.SessionType{domain.SessionSleepSchedule},
	}
}

// NewSettingsPolicy allows settings outside digital detox.
func NewSettingsPolicy() EssentialPolicy {
	return &staticPolicy{
		id:           "settings",
		name:         "Settings",
		packages:     []string{"com.android.settings"},
		sessionTypes: []domain.SessionType{domain.SessionFocus, domain.SessionSleepSchedule},
	}
}
