package policy

import "sort"

// BlockPreset is a named bundle of identifiers blocked together, covering
// the desktop process names and the web front doors of one distraction.
type BlockPreset interface {
	ID() string
	Name() string

	// Apps returns app identifiers: Android packages and desktop process names.
	Apps() []string

	// Websites returns website domains.
	Websites() []string
}

// Presets returns the built-in presets keyed by ID.
func Presets() map[string]BlockPreset {
	presets := map[string]BlockPreset{}
	for _, p := range []BlockPreset{NewSteamPreset(), NewDota2Preset()} {
		presets[p.ID()] = p
	}
	return presets
}

// LookupPreset returns the built-in preset with id.
func LookupPreset(id string) (BlockPreset, bool) {
	p, ok := Presets()[id]
	return p, ok
}

// PresetIDs returns the built-in preset IDs, sorted.
func PresetIDs() []string {
	presets := Presets()
	ids := make([]string, 0, len(presets))
	for id := range presets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
