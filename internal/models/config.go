package models

// Config holds the application configuration. It is read-only after startup.
type Config struct {
	Server        ServerConfig        `json:"server"`
	Cloud         CloudConfig         `json:"cloud"`
	Telephony     TelephonyConfig     `json:"telephony"`
	Transcription TranscriptionConfig `json:"transcription"`
	Media         MediaConfig         `json:"media"`
	Tracing       TracingConfig       `json:"tracing"`
	LogLevel      string              `json:"log_level"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port            int `json:"port"`
	ReadTimeoutSec  int `json:"readTimeoutSec"`
	WriteTimeoutSec int `json:"writeTimeoutSec"`
	IdleTimeoutSec  int `json:"idleTimeoutSec"`
}

// CloudConfig holds Cloud messaging platform settings.
type CloudConfig struct {
	VerifyToken string `json:"verify_token"`
}

// TelephonyConfig holds telephony provider settings. AccountSID and
// AuthToken are optional; without them media fetches run unauthenticated.
type TelephonyConfig struct {
	AccountSID  string     `json:"account_sid"`
	AuthToken   string     `json:"auth_token"`
	ReplyFormat WireFormat `json:"reply_format"`
}

// Credentials returns the media-fetch credentials, or nil when the account
// is not configured.
func (t TelephonyConfig) Credentials() *TelephonyCredentials {
	if t.AccountSID == "" || t.AuthToken == "" {
		return nil
	}
	return &TelephonyCredentials{AccountSID: t.AccountSID, AuthToken: t.AuthToken}
}

// TranscriptionConfig holds speech-to-text backend settings.
type TranscriptionConfig struct {
	APIBaseURL string `json:"api_base_url"`
	APIKey     string `json:"api_key"`
	Model      string `json:"model"`
	TimeoutSec int    `json:"timeoutSec"`
}

// MediaConfig holds media download settings.
type MediaConfig struct {
	ScratchDir      string `json:"scratch_dir"`
	FetchTimeoutSec int    `json:"fetchTimeoutSec"`
	MaxRedirects    int    `json:"maxRedirects"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	Enabled        bool    `json:"enabled"`
	UseStdout      bool    `json:"use_stdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
