package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"voicehook/internal/constants"
	"voicehook/internal/errors"
	"voicehook/internal/models"

	"github.com/sirupsen/logrus"
)

// Client calls an OpenAI-compatible speech-to-text backend. One attempt per
// invocation; retry policy belongs to the caller.
type Client struct {
	apiBase string
	apiKey  string
	model   string
	client  *http.Client
	logger  *logrus.Logger
}

func NewClient(cfg models.TranscriptionConfig, logger *logrus.Logger) *Client {
	apiBase := cfg.APIBaseURL
	if apiBase == "" {
		apiBase = constants.DefaultTranscriptionAPIBase
	}
	model := cfg.Model
	if model == "" {
		model = constants.DefaultTranscriptionModel
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = constants.DefaultTranscriptionTimeoutSec * time.Second
	}

	return &Client{
		apiBase: apiBase,
		apiKey:  cfg.APIKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Transcribe submits the audio file at path to the backend and returns the
// transcript verbatim. An empty transcript is valid; backend failures map to
// TRANSCRIPTION_BACKEND errors.
func (c *Client) Transcribe(ctx context.Context, path string) (models.TranscriptionResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return models.TranscriptionResult{}, errors.Wrap(err, errors.ErrCodeTranscriptionBackend, "failed to open audio file")
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return models.TranscriptionResult{}, errors.Wrap(err, errors.ErrCodeTranscriptionBackend, "failed to build multipart form")
	}
	if _, err := io.Copy(part, file); err != nil {
		return models.TranscriptionResult{}, errors.Wrap(err, errors.ErrCodeTranscriptionBackend, "failed to read audio file")
	}
	writer.WriteField("model", c.model)
	writer.WriteField("response_format", "json")
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/audio/transcriptions", &body)
	if err != nil {
		return models.TranscriptionResult{}, errors.Wrap(err, errors.ErrCodeTranscriptionBackend, "failed to create request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return models.TranscriptionResult{}, errors.Wrap(err, errors.ErrCodeTranscriptionBackend, "transcription request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, constants.MaxErrorDetailBytes))
		return models.TranscriptionResult{}, errors.New(errors.ErrCodeTranscriptionBackend, fmt.Sprintf("backend returned status %d", resp.StatusCode)).
			WithContext("status", resp.StatusCode).
			WithContext("detail", string(detail))
	}

	var result models.TranscriptionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return models.TranscriptionResult{}, errors.Wrap(err, errors.ErrCodeTranscriptionBackend, "undecodable transcription response")
	}

	c.logger.WithFields(logrus.Fields{
		"model":    c.model,
		"text_len": len(result.Text),
	}).Debug("Transcription completed")

	return result, nil
}
