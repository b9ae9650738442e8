package policy

// SteamPreset blocks the Steam client, its helpers and store pages.
type SteamPreset struct{}

// NewSteamPreset creates the Steam preset.
func NewSteamPreset() *SteamPreset {
	return &SteamPreset{}
}

func (p *SteamPreset) ID() string {
	return "steam"
}

func (p *SteamPreset) Name() string {
	return "Steam"
}

// Apps returns the mobile app and the desktop client process names.
func (p *SteamPreset) Apps() []string {
	return []string{
		"com.valvesoftware.android.steam.community",
		"steam",
		"steam_osx",
		"steamwebhelper",
		"steam helper",
	}
}

func (p *SteamPreset) Websites() []string {
	return []string{
		"store.steampowered.com",
		"steamcommunity.com",
	}
}

var _ BlockPreset = (*SteamPreset)(nil)
