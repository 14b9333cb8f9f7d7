package thumbnail

import "sort"

var presets = map[string]ResizeConfig{
	"small":      {Width: 150, Height: 150, Quality: 80, Format: FormatJPEG},
	"medium":     {Width: 300, Height: 300, Quality: 85, Format: FormatJPEG},
	"large":      {Width: 600, Height: 600, Quality: 90, Format: FormatJPEG},
	"webp_small": {Width: 150, Height: 150, Quality: 80, Format: FormatWebP},
}

func Preset(name string) (ResizeConfig, bool) {
	cfg, ok := presets[name]
	return cfg, ok
}

// Presets returns a copy keyed by preset name.
func Presets() map[string]ResizeConfig {
	out := make(map[string]ResizeConfig, len(presets))
	for name, cfg := range presets {
		out[name] = cfg
	}
	return out
}

func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
