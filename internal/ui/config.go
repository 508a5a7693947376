package ui

// Config contains window/input/audio related settings.
type Config struct {
	Title   string // window title
	Scale   int    // integer upscaling factor
	ROMsDir string // directory to browse for ROMs

	AudioStereo     bool // if true, output true stereo; if false, fold to mono
	AudioAdaptive   bool // carried through settings; no playback code reads it
	AudioBufferMs   int  // carried through settings; the player buffer is sized by applyPlayerBufferSize (20 or 40 ms), not from this
	AudioLowLatency bool // hard-cap buffering for minimal latency
}

// Defaults fills missing fields with reasonable defaults.
func (c *Config) Defaults() {
	if c.Title == "" {
		c.Title = "gbemu"
	}
	if c.Scale <= 0 {
		c.Scale = 3
	}
	if c.AudioBufferMs <= 0 {
		c.AudioBufferMs = 60
	}
	if c.ROMsDir == "" {
		c.ROMsDir = "roms"
	}
}
