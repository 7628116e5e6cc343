package service

import (
	"context"
	"crypto/subtle"
	"os"
	"time"

	"voicehook/internal/errors"
	"voicehook/internal/metrics"
	"voicehook/internal/models"
	"voicehook/internal/privacy"
	"voicehook/internal/respond"

	"github.com/sirupsen/logrus"
)

// PayloadNormalizer converts a raw webhook body into canonical events.
type PayloadNormalizer interface {
	Normalize(body []byte, contentType string, provider models.Provider) ([]models.InboundEvent, error)
}

// MediaFetcher downloads a remote attachment into a transient file.
type MediaFetcher interface {
	Fetch(ctx context.Context, ref models.MediaRef, creds *models.TelephonyCredentials) (string, error)
}

// Transcriber turns a local audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (models.TranscriptionResult, error)
}

// Controller orchestrates normalize → fetch → transcribe → compose for each
// inbound webhook request. It is the only component that sequences the
// pipeline, and it guarantees transient files are removed on every exit path.
type Controller struct {
	normalizer  PayloadNormalizer
	fetcher     MediaFetcher
	transcriber Transcriber
	creds       *models.TelephonyCredentials
	replyFormat models.WireFormat
	verifyToken string
	logger      *logrus.Logger
}

func NewController(normalizer PayloadNormalizer, fetcher MediaFetcher, transcriber Transcriber, cfg *models.Config, logger *logrus.Logger) *Controller {
	replyFormat := cfg.Telephony.ReplyFormat
	if replyFormat == "" {
		replyFormat = models.WireFormatXML
	}
	return &Controller{
		normalizer:  normalizer,
		fetcher:     fetcher,
		transcriber: transcriber,
		creds:       cfg.Telephony.Credentials(),
		replyFormat: replyFormat,
		verifyToken: cfg.Cloud.VerifyToken,
		logger:      logger,
	}
}

// VerifyWebhook implements the Cloud subscription handshake. It returns the
// challenge to echo back, or a VERIFICATION error the HTTP layer maps to 403.
func (c *Controller) VerifyWebhook(mode, token, challenge string) (string, error) {
	tokenMatches := subtle.ConstantTimeCompare([]byte(token), []byte(c.verifyToken)) == 1
	if mode == "subscribe" && c.verifyToken != "" && tokenMatches {
		return challenge, nil
	}
	return "", errors.New(errors.ErrCodeVerification, "webhook verification failed").
		WithContext("mode", mode)
}

// HandleInbound runs the pipeline for one webhook request and returns the
// single reply envelope the provider expects. Pipeline errors never escape;
// they become composed error outcomes.
func (c *Controller) HandleInbound(ctx context.Context, body []byte, contentType string, provider models.Provider) respond.Envelope {
	events, err := c.normalizer.Normalize(body, contentType, provider)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeNotFound) {
			c.logger.WithField(LogFieldProvider, string(provider)).Debug("Ignoring webhook with unrecognized discriminator")
		} else {
			c.logger.WithError(err).WithField(LogFieldProvider, string(provider)).Warn("Failed to normalize webhook payload")
		}
		metrics.IncrementCounter("webhook_rejected_total", map[string]string{
			"provider": string(provider),
		}, "Webhook payloads that could not be normalized")
		return respond.Compose(respond.Outcome{Kind: respond.OutcomeUnrecognizedPayload}, provider, c.replyFormat)
	}

	// A batched payload yields one reply: every event is processed for side
	// effects, but only the first audio message decides the envelope.
	outcome := respond.Outcome{Kind: respond.OutcomeNormalAck}
	decided := false

	for i := range events {
		event := &events[i]
		c.logEvent(event)
		metrics.IncrementCounter("webhook_events_total", map[string]string{
			"provider": string(event.Provider),
			"kind":     string(event.Kind),
		}, "Normalized inbound webhook events")

		if event.Kind != models.EventKindMessage {
			continue
		}
		if !event.Media.IsAudio() {
			if event.Body == "" && event.Media == nil {
				c.logger.WithField(LogFieldMessageID, event.ID).Info("Message carries no text or media, acknowledging only")
			}
			continue
		}
		if decided {
			c.logger.WithField(LogFieldMessageID, event.ID).Info("Additional audio message in batch, logged only")
			continue
		}

		outcome = c.transcribeEvent(ctx, event)
		decided = true
	}

	return respond.Compose(outcome, provider, c.replyFormat)
}

// transcribeEvent fetches and transcribes one audio attachment. The transient
// file is removed on every path out of this function, including panics
// unwinding through it.
func (c *Controller) transcribeEvent(ctx context.Context, event *models.InboundEvent) (outcome respond.Outcome) {
	outcome = respond.Outcome{Event: event}

	fetchStart := time.Now()
	path, err := c.fetcher.Fetch(ctx, *event.Media, c.creds)
	metrics.RecordTimer("media_download_duration", time.Since(fetchStart), nil, "Media download latency")

	if path != "" {
		defer func() {
			if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
				c.logger.WithError(rmErr).WithField("path", path).Warn("Failed to remove transient media file")
			}
		}()
	}

	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			LogFieldMessageID: event.ID,
			LogFieldFrom:      privacy.MaskPhoneNumber(event.From),
		}).Error("Media download failed")
		metrics.IncrementCounter("media_downloads_total", map[string]string{"result": "error"}, "Media download attempts")
		outcome.Kind = respond.OutcomeTranscriptionFailure
		outcome.Text = err.Error()
		return outcome
	}
	metrics.IncrementCounter("media_downloads_total", map[string]string{"result": "ok"}, "Media download attempts")

	transcribeStart := time.Now()
	result, err := c.transcriber.Transcribe(ctx, path)
	metrics.RecordTimer("transcription_duration", time.Since(transcribeStart), nil, "Transcription backend latency")

	if err != nil {
		c.logger.WithError(err).WithField(LogFieldMessageID, event.ID).Error("Transcription failed")
		metrics.IncrementCounter("transcriptions_total", map[string]string{"result": "error"}, "Transcription attempts")
		outcome.Kind = respond.OutcomeTranscriptionFailure
		outcome.Text = err.Error()
		return outcome
	}

	metrics.IncrementCounter("transcriptions_total", map[string]string{"result": "ok"}, "Transcription attempts")
	outcome.Kind = respond.OutcomeTranscriptionSuccess
	outcome.Text = result.Text
	return outcome
}

func (c *Controller) logEvent(event *models.InboundEvent) {
	fields := logrus.Fields{
		LogFieldProvider:  string(event.Provider),
		LogFieldEventKind: string(event.Kind),
		LogFieldMessageID: event.ID,
		LogFieldFrom:      privacy.MaskPhoneNumber(event.From),
	}
	if event.Kind == models.EventKindStatus {
		fields[LogFieldStatus] = event.StatusValue
		c.logger.WithFields(fields).Info("Delivery status update")
		return
	}
	if event.Media != nil {
		fields[LogFieldMediaType] = event.Media.ContentType
	}
	c.logger.WithFields(fields).Info("Inbound message")
}
