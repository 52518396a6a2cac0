package config

// ConfigDiff describes what changed between two configs, per section.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ListenAddrChanged cannot be applied without a restart.
	ListenAddrChanged bool

	AudioChanged          bool
	VADChanged            bool
	TranscriptionChanged  bool
	PostProcessingChanged bool

	// LocalModelChanged is set when the local model must be rebuilt.
	LocalModelChanged bool
}

// Changed reports whether any tracked section differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.ListenAddrChanged || d.AudioChanged || d.VADChanged ||
		d.TranscriptionChanged || d.PostProcessingChanged
}

// Sections lists the names of the changed sections, e.g. ["audio", "vad"].
func (d ConfigDiff) Sections() []string {
	var s []string
	if d.LogLevelChanged || d.ListenAddrChanged {
		s = append(s, "server")
	}
	if d.AudioChanged {
		s = append(s, "audio")
	}
	if d.VADChanged {
		s = append(s, "vad")
	}
	if d.TranscriptionChanged {
		s = append(s, "transcription")
	}
	if d.PostProcessingChanged {
		s = append(s, "post_processing")
	}
	return s
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.ListenAddrChanged = old.Server.ListenAddr != new.Server.ListenAddr

	d.AudioChanged = old.Audio != new.Audio
	d.VADChanged = old.VAD != new.VAD
	d.TranscriptionChanged = old.Transcription != new.Transcription
	d.PostProcessingChanged = old.PostProcessing != new.PostProcessing

	d.LocalModelChanged = localModelKey(old) != localModelKey(new)

	return d
}

type modelKey struct {
	provider, model, device, computeType, serverURL string
	threads                                         int
	vadFilter                                       bool

	// Speech filter inputs, zero unless vadFilter is set.
	vad     VADConfig
	frameMs int
}

// localModelKey picks the options that require constructing a new model.
// Per-request options such as language and prompt are excluded. With the
// speech filter enabled the model also owns a VAD engine, so the vad section
// and the frame duration are part of the key.
func localModelKey(cfg *Config) modelKey {
	o := cfg.Transcription.LocalModelOptions
	k := modelKey{
		provider:    o.Provider,
		model:       o.Model,
		device:      o.Device,
		computeType: o.ComputeType,
		serverURL:   o.ServerURL,
		threads:     o.Threads,
		vadFilter:   o.VADFilter,
	}
	if o.VADFilter {
		k.vad = cfg.VAD
		k.frameMs = cfg.Audio.FrameDurationMs
	}
	return k
}
