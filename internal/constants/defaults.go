package constants

// Default server configuration values
const (
	DefaultServerPort           = 8080
	DefaultServerReadTimeoutSec = 15
	// The telephony reply is only written after the download and
	// transcription calls finish, so the write timeout must cover both.
	DefaultServerWriteTimeoutSec = 180
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	ServerErrorChannelSize       = 1
)

// Default pipeline configuration values
const (
	DefaultMediaFetchTimeoutSec    = 30
	DefaultMediaMaxRedirects       = 5
	DefaultTranscriptionTimeoutSec = 120
	DefaultTranscriptionModel      = "whisper-1"
	DefaultTranscriptionAPIBase    = "https://api.openai.com/v1"
)

// Media download limits
const (
	// MaxErrorDetailBytes caps how much of a failed download response body
	// is kept as diagnostic detail.
	MaxErrorDetailBytes = 500

	// DefaultMediaExtension is used when the response content type yields
	// no known extension. Voice notes are overwhelmingly OGG/Opus.
	DefaultMediaExtension = ".ogg"
)

// Privacy settings
const (
	DefaultPhoneMaskLength = 4
)
