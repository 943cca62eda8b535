// Package config provides layered configuration for voiceloop: flag
// defaults from DefaultConfig, overridden by an optional voiceloop.yaml
// and environment variables read through viper, overridden in turn by
// explicit CLI flags, with a .env loaded for local development exactly as
// the lokutor orchestrator's cmd/agent/main.go does (SPEC_FULL.md §10).
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/kestrelvoice/voiceloop/internal/gateway"
	"github.com/kestrelvoice/voiceloop/internal/jitter"
	"github.com/kestrelvoice/voiceloop/internal/metrics"
	"github.com/kestrelvoice/voiceloop/internal/session"
	"github.com/kestrelvoice/voiceloop/internal/sherpa"
	"github.com/kestrelvoice/voiceloop/internal/vad"
)

// InterruptMode defines how playback interruption is handled (REDESIGN
// FLAG carried over unchanged per SPEC_FULL.md §12). The value is parsed
// into Config.InterruptMode but no component reads it: the microphone
// keeps running during playback in either mode, and whether speech
// interrupts playback is governed by BargeInEnabled.
type InterruptMode int

const (
	// InterruptAlways allows interrupts during playback (best for headsets).
	InterruptAlways InterruptMode = iota
	// InterruptWait pauses microphone during playback (best for open speakers).
	InterruptWait
)

// String returns the string representation of the interrupt mode.
func (m InterruptMode) String() string {
	switch m {
	case InterruptAlways:
		return "always"
	case InterruptWait:
		return "wait"
	default:
		return "unknown"
	}
}

// ParseInterruptMode converts a string to InterruptMode.
func ParseInterruptMode(s string) (InterruptMode, error) {
	switch s {
	case "always":
		return InterruptAlways, nil
	case "wait":
		return InterruptWait, nil
	default:
		return InterruptWait, fmt.Errorf("invalid interrupt mode: %s (must be 'always' or 'wait')", s)
	}
}

// GatewayKind selects which Gateway transport backs the LLM exchange.
type GatewayKind string

const (
	GatewayOllama    GatewayKind = "ollama"
	GatewayWebSocket GatewayKind = "websocket"
)

// Config holds all configuration for voiceloop. Populated from defaults,
// an optional voiceloop.yaml, environment variables, and CLI flags, in
// that increasing order of precedence.
type Config struct {
	// Model paths
	ModelDir string
	VADModel string

	WhisperEncoder string
	WhisperDecoder string
	WhisperTokens  string

	TTSModel    string
	TTSVoices   string
	TTSTokens   string
	TTSData     string
	TTSLexicon  string
	TTSLanguage string

	STTLanguage string

	// Gateway settings
	Gateway      GatewayKind
	OllamaURL    string
	OllamaModel  string
	SystemPrompt string
	MaxHistory   int
	Temperature  float32
	GatewayWSURL string

	// GatewayToken authenticates requests to the gateway. It is read
	// exclusively from the environment/.env (never from a CLI flag or
	// voiceloop.yaml), so it never appears in an argument vector or in
	// any config file a user might commit or share (§6).
	GatewayToken string

	// Voice assistant settings
	WakeWord     string
	TTSVoice     string
	TTSSpeakerID int
	TTSSpeed     float32
	SampleRate   int
	VadThreshold float32

	VADSilenceDuration       float32
	VADMinSpeechMs           int
	VADFrameDurationMs       int
	BargeInThreshold         float32
	BargeInConsecutiveFrames int

	Provider    string
	STTProvider string
	TTSProvider string

	InterruptMode       InterruptMode
	PostPlaybackDelayMs int

	NumThreads int
	VADThreads int
	STTThreads int
	TTSThreads int

	AudioBufferMs uint32

	// Barge-in (§4.12.1)
	BargeInEnabled    bool
	BargeInCooldownMs int

	// Jitter buffer (§4.6)
	JitterBufferMs        int
	JitterLowWatermarkMs  int
	JitterFrameDurationMs int
	JitterCrossfadeMs     int
	JitterCrossfadeOn     bool

	// Connection monitor/recovery (§4.8/§4.9)
	PollIntervalMs int

	// TTS chunker (§4.7)
	MinChunkChars int

	// Latency metrics / performance monitor (§4.14)
	MetricsCapacity     int
	PerfWindowMs        int
	PerfMinSamples      int
	PerfCheckIntervalMs int

	// Session persistence (§4.13)
	SessionFile string

	Verbose bool
}

// DefaultConfig returns a configuration with sensible defaults, the same
// defaults the teacher's voice-assistant shipped plus the new engine's
// component defaults.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultModelDir := filepath.Join(homeDir, ".voiceloop", "models")
	defaultSessionFile := filepath.Join(homeDir, ".voiceloop", "session.yaml")

	vadDefaults := vad.DefaultConfig()
	jitterDefaults := jitter.DefaultConfig()

	return &Config{
		ModelDir:                 defaultModelDir,
		SampleRate:               16000,
		VadThreshold:             vadDefaults.Threshold,
		VADSilenceDuration:       0.8,
		VADMinSpeechMs:           vadDefaults.MinSpeechMs,
		VADFrameDurationMs:       vadDefaults.FrameDurationMs,
		BargeInThreshold:         vadDefaults.BargeInThreshold,
		BargeInConsecutiveFrames: vadDefaults.BargeInConsecutiveFrames,

		Gateway:      GatewayOllama,
		OllamaURL:    "http://localhost:11434",
		OllamaModel:  "gemma3:1b",
		SystemPrompt: "You are a helpful voice assistant. Keep responses brief and concise, maximum 2-3 short sentences. Be conversational and natural for speech output. IMPORTANT: Your responses will be read aloud, so you must NEVER use markdown, asterisks, underscores, backticks, brackets, code blocks, bullet points, numbered lists, special characters, or any formatting. Use only plain text with normal punctuation. Speak naturally as if having a conversation.",
		MaxHistory:   10,
		Temperature:  0.7,
		GatewayWSURL: "",

		TTSVoice:     "af_bella",
		TTSSpeakerID: 2,
		TTSSpeed:     0.93,

		STTLanguage: "en",

		WakeWord: "",
		Verbose:  false,

		Provider:    "",
		STTProvider: "",
		TTSProvider: "",

		InterruptMode:       InterruptWait,
		PostPlaybackDelayMs: 300,

		NumThreads: 0,
		VADThreads: 0,
		STTThreads: 0,
		TTSThreads: 0,

		AudioBufferMs: 0,

		BargeInEnabled:    true,
		BargeInCooldownMs: session.DefaultBargeInCooldownMs,

		JitterBufferMs:        jitterDefaults.BufferSizeMs,
		JitterLowWatermarkMs:  jitterDefaults.LowWatermarkMs,
		JitterFrameDurationMs: jitterDefaults.FrameDurationMs,
		JitterCrossfadeMs:     jitterDefaults.CrossfadeMs,
		JitterCrossfadeOn:     jitterDefaults.CrossfadeEnabled,

		PollIntervalMs: gateway.DefaultPollIntervalMs,

		MinChunkChars: 8,

		MetricsCapacity:     metrics.DefaultCapacity,
		PerfWindowMs:        int(metrics.DefaultWindow.Milliseconds()),
		PerfMinSamples:      metrics.DefaultMinSamplesForBaseline,
		PerfCheckIntervalMs: int(metrics.DefaultCheckInterval.Milliseconds()),

		SessionFile: defaultSessionFile,
	}
}

// Load builds a Config by layering, lowest to highest precedence:
// DefaultConfig(), a .env file (for secrets like a gateway token and
// local-dev model paths), an optional voiceloop.yaml alongside the
// session file, environment variables prefixed VOICELOOP_, and finally
// explicit CLI flags. godotenv.Load() is best-effort: a missing .env in
// production is not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: could not load .env: %v\n", err)
	}

	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("voiceloop")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if homeDir, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(homeDir, ".voiceloop"))
	}
	v.SetEnvPrefix("VOICELOOP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("reading voiceloop.yaml: %w", err)
		}
	}

	applyViperOverrides(cfg, v)

	// The gateway token is read directly from the environment, never
	// through viper's config-file layer and never exposed as a CLI flag,
	// so it cannot end up committed to voiceloop.yaml or visible in a
	// process's argument vector (§6).
	cfg.GatewayToken = os.Getenv("VOICELOOP_GATEWAY_TOKEN")

	if err := parseFlags(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyViperOverrides(cfg *Config, v *viper.Viper) {
	if v.IsSet("ollama_url") {
		cfg.OllamaURL = v.GetString("ollama_url")
	}
	if v.IsSet("ollama_model") {
		cfg.OllamaModel = v.GetString("ollama_model")
	}
	if v.IsSet("gateway") {
		cfg.Gateway = GatewayKind(v.GetString("gateway"))
	}
	if v.IsSet("gateway_ws_url") {
		cfg.GatewayWSURL = v.GetString("gateway_ws_url")
	}
	if v.IsSet("model_dir") {
		cfg.ModelDir = v.GetString("model_dir")
	}
	if v.IsSet("session_file") {
		cfg.SessionFile = v.GetString("session_file")
	}
	if v.IsSet("wake_word") {
		cfg.WakeWord = v.GetString("wake_word")
	}
	if v.IsSet("verbose") {
		cfg.Verbose = v.GetBool("verbose")
	}
}

// parseFlags parses command-line flags over cfg, mutating it in place.
// Flags take precedence over everything Load already applied.
func parseFlags(cfg *Config) error {
	listVoices := flag.Bool("list-voices", false, "List all available TTS voices and exit")
	voiceInfo := flag.String("voice-info", "", "Show detailed information about a specific voice and exit")

	flag.StringVar(&cfg.ModelDir, "model-dir", cfg.ModelDir, "Directory containing model files (Whisper, VAD, TTS)")
	flag.StringVar(&cfg.SessionFile, "session-file", cfg.SessionFile, "Path to the persisted session id file")

	flag.IntVar(&cfg.SampleRate, "sample-rate", cfg.SampleRate, "Audio sample rate for speech recognition")
	vadThreshold := float64(cfg.VadThreshold)
	flag.Float64Var(&vadThreshold, "vad-threshold", vadThreshold, "Voice activity detection threshold (0.0-1.0)")
	vadSilenceDuration := float64(cfg.VADSilenceDuration)
	flag.Float64Var(&vadSilenceDuration, "vad-silence-duration", vadSilenceDuration, "VAD silence duration in seconds before speech is considered ended")
	bargeInThreshold := float64(cfg.BargeInThreshold)
	flag.Float64Var(&bargeInThreshold, "barge-in-threshold", bargeInThreshold, "Elevated VAD threshold while the engine is speaking")
	flag.IntVar(&cfg.BargeInConsecutiveFrames, "barge-in-frames", cfg.BargeInConsecutiveFrames, "Consecutive speech frames required to confirm a barge-in")
	flag.BoolVar(&cfg.BargeInEnabled, "barge-in-enabled", cfg.BargeInEnabled, "Allow speech during playback to interrupt it")
	flag.IntVar(&cfg.BargeInCooldownMs, "barge-in-cooldown-ms", cfg.BargeInCooldownMs, "Debounce window between accepted barge-ins")

	gatewayStr := flag.String("gateway", string(cfg.Gateway), "LLM gateway transport: 'ollama' or 'websocket'")
	flag.StringVar(&cfg.OllamaURL, "ollama-url", cfg.OllamaURL, "Ollama API URL")
	flag.StringVar(&cfg.OllamaModel, "ollama-model", cfg.OllamaModel, "Ollama model name")
	flag.StringVar(&cfg.GatewayWSURL, "gateway-ws-url", cfg.GatewayWSURL, "WebSocket gateway URL (used when --gateway=websocket)")
	flag.StringVar(&cfg.SystemPrompt, "system-prompt", cfg.SystemPrompt, "System prompt for the LLM")
	flag.IntVar(&cfg.MaxHistory, "max-history", cfg.MaxHistory, "Maximum conversation history length")
	temperature := float64(cfg.Temperature)
	flag.Float64Var(&temperature, "temperature", temperature, "LLM temperature (0.0-2.0); not passed to the gateway, which always sends 0.7")

	ttsSpeed := float64(cfg.TTSSpeed)
	flag.Float64Var(&ttsSpeed, "tts-speed", ttsSpeed, "Text-to-speech speed multiplier")
	flag.StringVar(&cfg.TTSVoice, "tts-voice", cfg.TTSVoice, "TTS voice name for Kokoro (e.g., 'bf_emma' British female)")
	flag.IntVar(&cfg.TTSSpeakerID, "tts-speaker-id", cfg.TTSSpeakerID, "TTS speaker ID for Kokoro model (bf_emma=21, af_bella=2)")
	flag.IntVar(&cfg.MinChunkChars, "tts-min-chunk-chars", cfg.MinChunkChars, "Minimum chunk length before the Streaming TTS Chunker emits a sentence early")

	flag.StringVar(&cfg.STTLanguage, "stt-language", cfg.STTLanguage, "STT language code (e.g., 'en', 'es', 'fr', 'auto')")

	flag.StringVar(&cfg.Provider, "provider", cfg.Provider, "Hardware acceleration provider (cpu, cuda, coreml). Auto-detected if not specified")
	flag.StringVar(&cfg.STTProvider, "stt-provider", cfg.STTProvider, "Provider for STT (overrides --provider)")
	flag.StringVar(&cfg.TTSProvider, "tts-provider", cfg.TTSProvider, "Provider for TTS (overrides --provider)")

	flag.IntVar(&cfg.NumThreads, "num-threads", cfg.NumThreads, "Number of threads for all models (0 = auto-detect based on CPU cores)")
	flag.IntVar(&cfg.VADThreads, "vad-threads", cfg.VADThreads, "VAD threads (0 = use num-threads)")
	flag.IntVar(&cfg.STTThreads, "stt-threads", cfg.STTThreads, "STT threads (0 = use num-threads)")
	flag.IntVar(&cfg.TTSThreads, "tts-threads", cfg.TTSThreads, "TTS threads (0 = use num-threads)")

	audioBufferMs := flag.Uint("audio-buffer-ms", uint(cfg.AudioBufferMs), "Audio buffer size in ms; stored in the config but not read by the capture or playback devices")

	flag.IntVar(&cfg.JitterBufferMs, "jitter-buffer-ms", cfg.JitterBufferMs, "Jitter buffer capacity in milliseconds of audio")
	flag.IntVar(&cfg.JitterLowWatermarkMs, "jitter-low-watermark-ms", cfg.JitterLowWatermarkMs, "Jitter buffer low watermark before playback starts")
	flag.IntVar(&cfg.JitterCrossfadeMs, "jitter-crossfade-ms", cfg.JitterCrossfadeMs, "Crossfade duration applied at chunk boundaries")
	flag.BoolVar(&cfg.JitterCrossfadeOn, "jitter-crossfade", cfg.JitterCrossfadeOn, "Enable crossfade blending at chunk boundaries")

	flag.IntVar(&cfg.PollIntervalMs, "gateway-poll-interval-ms", cfg.PollIntervalMs, "Connection Monitor health check interval")

	flag.IntVar(&cfg.MetricsCapacity, "metrics-capacity", cfg.MetricsCapacity, "Ring capacity per latency gauge; not applied, each gauge keeps metrics.DefaultCapacity samples")
	flag.IntVar(&cfg.PerfMinSamples, "perf-min-samples", cfg.PerfMinSamples, "Minimum samples before a performance baseline is established")

	flag.StringVar(&cfg.WakeWord, "wake-word", cfg.WakeWord, "Wake word to activate the assistant (optional)")
	flag.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "Enable verbose logging")

	var interruptModeStr string
	flag.StringVar(&interruptModeStr, "interrupt-mode", cfg.InterruptMode.String(), "Interrupt mode: 'always' (headsets) or 'wait' (open speakers)")
	flag.IntVar(&cfg.PostPlaybackDelayMs, "post-playback-delay-ms", cfg.PostPlaybackDelayMs, "Delay before resuming mic after playback (only for 'wait' mode); stored in the config but not applied")

	flag.Parse()

	if *listVoices {
		PrintVoices()
		os.Exit(0)
	}
	if *voiceInfo != "" {
		if err := PrintVoiceInfo(*voiceInfo); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg.Gateway = GatewayKind(*gatewayStr)
	cfg.TTSSpeed = float32(ttsSpeed)
	cfg.VadThreshold = float32(vadThreshold)
	cfg.VADSilenceDuration = float32(vadSilenceDuration)
	cfg.BargeInThreshold = float32(bargeInThreshold)
	cfg.AudioBufferMs = uint32(*audioBufferMs)
	cfg.Temperature = float32(temperature)

	if mode, err := ParseInterruptMode(interruptModeStr); err != nil {
		return err
	} else {
		cfg.InterruptMode = mode
	}

	if cfg.Gateway != GatewayOllama && cfg.Gateway != GatewayWebSocket {
		return fmt.Errorf("invalid gateway: %s (must be 'ollama' or 'websocket')", cfg.Gateway)
	}

	if cfg.Provider == "" {
		cfg.Provider = detectProvider()
	}
	if cfg.STTProvider == "" {
		cfg.STTProvider = cfg.Provider
	}
	if cfg.TTSProvider == "" {
		cfg.TTSProvider = cfg.Provider
	}

	cfg.normalizeThreadCounts()

	cfg.VADModel = filepath.Join(cfg.ModelDir, "silero_vad.onnx")
	cfg.WhisperEncoder = filepath.Join(cfg.ModelDir, "whisper", "whisper-small-encoder.int8.onnx")
	cfg.WhisperDecoder = filepath.Join(cfg.ModelDir, "whisper", "whisper-small-decoder.int8.onnx")
	cfg.WhisperTokens = filepath.Join(cfg.ModelDir, "whisper", "whisper-small-tokens.txt")

	ttsDir := filepath.Join(cfg.ModelDir, "tts", "kokoro-multi-lang-v1_0")
	cfg.TTSModel = filepath.Join(ttsDir, "model.onnx")
	cfg.TTSVoices = filepath.Join(ttsDir, "voices.bin")
	cfg.TTSTokens = filepath.Join(ttsDir, "tokens.txt")
	cfg.TTSData = filepath.Join(ttsDir, "espeak-ng-data")

	cfg.TTSLexicon = getLexiconForVoice(ttsDir, cfg.TTSVoice)
	cfg.TTSLanguage = getLanguageForVoice(cfg.TTSVoice)

	return cfg.validate()
}

// normalizeThreadCounts auto-detects and sets reasonable thread counts
// based on CPU cores, the same cores/3 split the teacher tuned for edge
// devices like a Jetson Orin Nano.
func (c *Config) normalizeThreadCounts() {
	cpuCores := runtime.NumCPU()

	if c.NumThreads == 0 {
		c.NumThreads = max(1, cpuCores/3)
	}
	if c.VADThreads == 0 {
		c.VADThreads = 1
	}
	if c.STTThreads == 0 {
		c.STTThreads = c.NumThreads
	}
	if c.TTSThreads == 0 {
		c.TTSThreads = c.NumThreads
	}

	if c.Verbose {
		fmt.Printf("[Config] CPU cores: %d, Thread counts: VAD=%d, STT=%d, TTS=%d\n",
			cpuCores, c.VADThreads, c.STTThreads, c.TTSThreads)
	}
}

func (c *Config) validate() error {
	requiredFiles := []string{
		c.VADModel,
		c.WhisperEncoder,
		c.WhisperDecoder,
		c.WhisperTokens,
		c.TTSModel,
		c.TTSVoices,
		c.TTSTokens,
	}

	for _, path := range requiredFiles {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return fmt.Errorf("required file not found: %s\nRun scripts/setup.sh to download models", path)
		}
	}

	if c.Gateway == GatewayWebSocket && c.GatewayWSURL == "" {
		return fmt.Errorf("--gateway-ws-url is required when --gateway=websocket")
	}

	return nil
}

// detectProvider auto-detects the best hardware acceleration provider for
// the current platform.
func detectProvider() string {
	switch runtime.GOOS {
	case "darwin":
		return "coreml"
	case "linux":
		if sherpa.HasNvidiaGPU() {
			return "cuda"
		}
		return "cpu"
	default:
		return "cpu"
	}
}

// getLexiconForVoice returns the appropriate lexicon file path based on
// the voice name, per Kokoro v1.0+'s multi-lingual phonemization scheme.
func getLexiconForVoice(ttsDir, voiceName string) string {
	voice := GetVoice(voiceName)
	if voice == nil {
		return filepath.Join(ttsDir, "lexicon-us-en.txt")
	}

	switch voice.EspeakCode {
	case "en-us":
		return filepath.Join(ttsDir, "lexicon-us-en.txt")
	case "en-gb":
		return filepath.Join(ttsDir, "lexicon-gb-en.txt")
	case "cmn":
		return filepath.Join(ttsDir, "lexicon-us-en.txt") + "," + filepath.Join(ttsDir, "lexicon-zh.txt")
	default:
		return ""
	}
}

// getLanguageForVoice returns the espeak-ng language code for non-English
// voices, used only when lexicon files aren't available for a language.
func getLanguageForVoice(voiceName string) string {
	voice := GetVoice(voiceName)
	if voice == nil {
		return ""
	}

	if voice.EspeakCode == "en-us" || voice.EspeakCode == "en-gb" || voice.EspeakCode == "cmn" {
		return ""
	}

	return voice.EspeakCode
}
