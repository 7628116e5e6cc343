package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"voicehook/internal/constants"
	"voicehook/internal/models"

	"github.com/caarlos0/env/v11"
)

var (
	ErrMissingVerifyToken = models.ConfigError{Message: "missing cloud verify token"}
	ErrMissingAPIKey      = models.ConfigError{Message: "missing transcription API key"}
	ErrInvalidReplyFormat = models.ConfigError{Message: "telephony reply format must be \"xml\" or \"json\""}
)

// envOverrides are applied on top of the config file. Secrets normally
// arrive this way rather than sitting in the file.
type envOverrides struct {
	Port                int    `env:"VOICEHOOK_PORT"`
	VerifyToken         string `env:"VOICEHOOK_VERIFY_TOKEN"`
	TranscriptionAPIKey string `env:"VOICEHOOK_TRANSCRIPTION_API_KEY"`
	TelephonyAccountSID string `env:"VOICEHOOK_TELEPHONY_ACCOUNT_SID"`
	TelephonyAuthToken  string `env:"VOICEHOOK_TELEPHONY_AUTH_TOKEN"`
	ScratchDir          string `env:"VOICEHOOK_MEDIA_DIR"`
	LogLevel            string `env:"VOICEHOOK_LOG_LEVEL"`
}

// LoadConfig reads the JSON config file, applies environment overrides and
// defaults, and validates the result.
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	if err := applyEnvironmentOverrides(&config); err != nil {
		return nil, err
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyEnvironmentOverrides(c *models.Config) error {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return models.ConfigError{Message: "invalid environment overrides: " + err.Error()}
	}

	if overrides.Port != 0 {
		c.Server.Port = overrides.Port
	}
	if overrides.VerifyToken != "" {
		c.Cloud.VerifyToken = overrides.VerifyToken
	}
	if overrides.TranscriptionAPIKey != "" {
		c.Transcription.APIKey = overrides.TranscriptionAPIKey
	}
	if overrides.TelephonyAccountSID != "" {
		c.Telephony.AccountSID = overrides.TelephonyAccountSID
	}
	if overrides.TelephonyAuthToken != "" {
		c.Telephony.AuthToken = overrides.TelephonyAuthToken
	}
	if overrides.ScratchDir != "" {
		c.Media.ScratchDir = overrides.ScratchDir
	}
	if overrides.LogLevel != "" {
		c.LogLevel = overrides.LogLevel
	}
	return nil
}

func validate(c *models.Config) error {
	if c.Cloud.VerifyToken == "" {
		return ErrMissingVerifyToken
	}
	if c.Transcription.APIKey == "" {
		return ErrMissingAPIKey
	}

	switch c.Telephony.ReplyFormat {
	case "":
		// XML is the default reply contract; JSON is opt-in.
		c.Telephony.ReplyFormat = models.WireFormatXML
	case models.WireFormatXML, models.WireFormatJSON:
	default:
		return ErrInvalidReplyFormat
	}

	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}

	if c.Media.ScratchDir == "" {
		c.Media.ScratchDir = filepath.Join(os.TempDir(), "voicehook")
	}
	if c.Media.FetchTimeoutSec <= 0 {
		c.Media.FetchTimeoutSec = constants.DefaultMediaFetchTimeoutSec
	}
	if c.Media.MaxRedirects <= 0 {
		c.Media.MaxRedirects = constants.DefaultMediaMaxRedirects
	}

	if c.Transcription.APIBaseURL == "" {
		c.Transcription.APIBaseURL = constants.DefaultTranscriptionAPIBase
	}
	if c.Transcription.Model == "" {
		c.Transcription.Model = constants.DefaultTranscriptionModel
	}
	if c.Transcription.TimeoutSec <= 0 {
		c.Transcription.TimeoutSec = constants.DefaultTranscriptionTimeoutSec
	}

	return nil
}
