package model

// validAudioSampleRates is the closed set sample_rate must belong to.
var validAudioSampleRates = map[int]bool{
	8000: true, 11025: true, 12000: true, 16000: true, 22050: true,
	24000: true, 32000: true, 44100: true, 48000: true, 64000: true,
	88200: true, 96000: true,
}

// Validate enforces the AudioConfig invariants from the config model.
func (c AudioConfig) Validate() error {
	if c.ChannelCount != 1 && c.ChannelCount != 2 {
		return NewConfigError("channel_count", "must be 1 or 2")
	}
	if !validAudioSampleRates[c.SampleRate] {
		return NewConfigError("sample_rate", "not in supported set")
	}
	if c.MimeType == MimeAAC {
		switch c.Profile {
		case AACProfileLC, AACProfileHE, AACProfileHEv2:
		default:
			return NewConfigError("profile", "must be LC, HE or HEv2 for AAC")
		}
	}
	return nil
}

// Validate enforces the VideoConfig invariants from the config model.
func (c VideoConfig) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return NewConfigError("width/height", "must be positive")
	}
	if c.Width%2 != 0 || c.Height%2 != 0 {
		return NewConfigError("width/height", "must be multiples of 2")
	}
	if c.FPS <= 0 {
		return NewConfigError("fps", "must be positive")
	}
	return nil
}
