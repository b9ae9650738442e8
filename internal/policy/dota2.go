package policy

// Dota2Preset blocks Dota 2. The game runs under Steam, so blocking Steam
// as well is usually wanted.
type Dota2Preset struct{}

// NewDota2Preset creates the Dota 2 preset.
func NewDota2Preset() *Dota2Preset {
	return &Dota2Preset{}
}

func (p *Dota2Preset) ID() string {
	return "dota2"
}

func (p *Dota2Preset) Name() string {
	return "Dota 2"
}

// Apps returns the game's process names.
func (p *Dota2Preset) Apps() []string {
	return []string{
		"dota2",
		"dota_osx64",
		"dota2_launcher",
	}
}

func (p *Dota2Preset) Websites() []string {
	return []string{
		"dota2.com",
		"dotabuff.com",
	}
}

var _ BlockPreset = (*Dota2Preset)(nil)
