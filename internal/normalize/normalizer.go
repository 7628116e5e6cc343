package normalize

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"voicehook/internal/errors"
	"voicehook/internal/models"

	"github.com/sirupsen/logrus"
)

// ErrUnrecognizedPayload is returned when a structurally valid body does not
// carry the expected top-level discriminator. The controller answers 404; it
// is not a processing failure.
var ErrUnrecognizedPayload = errors.New(errors.ErrCodeNotFound, "unrecognized webhook payload")

// Normalizer converts provider-specific webhook bodies into canonical
// InboundEvents.
type Normalizer struct {
	logger *logrus.Logger
	now    func() time.Time
}

func New(logger *logrus.Logger) *Normalizer {
	return &Normalizer{
		logger: logger,
		now:    time.Now,
	}
}

// Normalize decodes a raw webhook body for the given provider and emits one
// InboundEvent per contained message or status record.
func (n *Normalizer) Normalize(body []byte, contentType string, provider models.Provider) ([]models.InboundEvent, error) {
	switch provider {
	case models.ProviderCloud:
		return n.normalizeCloud(body)
	case models.ProviderTelephony:
		return n.normalizeTelephony(body, contentType)
	default:
		return nil, errors.New(errors.ErrCodeMalformedPayload, fmt.Sprintf("unknown provider: %s", provider))
	}
}

func (n *Normalizer) normalizeCloud(body []byte) ([]models.InboundEvent, error) {
	var payload models.CloudWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMalformedPayload, "undecodable cloud webhook body")
	}

	if payload.Object != models.CloudObjectDiscriminator {
		return nil, ErrUnrecognizedPayload
	}

	var events []models.InboundEvent
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				events = append(events, n.cloudMessageEvent(change.Value.Metadata, msg))
			}
			for _, status := range change.Value.Statuses {
				events = append(events, n.cloudStatusEvent(status))
			}
		}
	}
	return events, nil
}

func (n *Normalizer) cloudMessageEvent(meta models.CloudMetadata, msg models.CloudMessage) models.InboundEvent {
	event := models.InboundEvent{
		Kind:      models.EventKindMessage,
		Provider:  models.ProviderCloud,
		ID:        msg.ID,
		From:      msg.From,
		To:        meta.DisplayPhoneNumber,
		Timestamp: n.parseEpoch(msg.Timestamp),
		Raw:       msg,
	}

	if msg.Text != nil {
		event.Body = msg.Text.Body
	}

	// The hosted platform sends media IDs without URLs; those messages stay
	// media-less here and the controller acknowledges them without fetching.
	if media := firstCloudMedia(msg); media != nil && media.URL != "" {
		event.Media = &models.MediaRef{
			URL:          media.URL,
			ContentType:  media.MimeType,
			RequiresAuth: models.RequiresAuthenticatedFetch(media.URL),
		}
	}

	return event
}

func (n *Normalizer) cloudStatusEvent(status models.CloudStatus) models.InboundEvent {
	return models.InboundEvent{
		Kind:        models.EventKindStatus,
		Provider:    models.ProviderCloud,
		ID:          status.ID,
		To:          status.RecipientID,
		Timestamp:   n.parseEpoch(status.Timestamp),
		StatusValue: status.Status,
		Raw:         status,
	}
}

func firstCloudMedia(msg models.CloudMessage) *models.CloudMedia {
	for _, media := range []*models.CloudMedia{msg.Audio, msg.Image, msg.Video, msg.Document} {
		if media != nil {
			return media
		}
	}
	return nil
}

// parseEpoch converts the provider's epoch-seconds string. Absent or
// malformed timestamps default to receipt time.
func (n *Normalizer) parseEpoch(value string) time.Time {
	seconds, err := strconv.ParseInt(value, 10, 64)
	if err != nil || seconds <= 0 {
		return n.now()
	}
	return time.Unix(seconds, 0).UTC()
}

func (n *Normalizer) normalizeTelephony(body []byte, contentType string) ([]models.InboundEvent, error) {
	fields, err := n.telephonyFields(body, contentType)
	if err != nil {
		return nil, err
	}

	get := func(key string) string {
		return fields[strings.ToLower(key)]
	}

	id := get(models.TelephonyFieldMessageSid)
	if id == "" {
		id = get(models.TelephonyFieldSmsSid)
	}

	statusValue := get(models.TelephonyFieldMessageStatus)
	if statusValue == "" {
		statusValue = get(models.TelephonyFieldSmsStatus)
	}

	messageBody := get(models.TelephonyFieldBody)

	// A malformed media count reads as zero, but an explicit media URL is
	// honored regardless.
	numMedia, convErr := strconv.Atoi(get(models.TelephonyFieldNumMedia))
	if convErr != nil {
		numMedia = 0
	}

	var media *models.MediaRef
	mediaURL := get(models.TelephonyFieldMediaURL)
	if (numMedia > 0 || mediaURL != "") && mediaURL != "" {
		media = &models.MediaRef{
			URL:          mediaURL,
			ContentType:  get(models.TelephonyFieldMediaType),
			RequiresAuth: models.RequiresAuthenticatedFetch(mediaURL),
		}
	}

	event := models.InboundEvent{
		Kind:      models.EventKindMessage,
		Provider:  models.ProviderTelephony,
		ID:        id,
		From:      get(models.TelephonyFieldFrom),
		To:        get(models.TelephonyFieldTo),
		Timestamp: n.now(),
		Media:     media,
		Raw:       fields,
	}

	if statusValue != "" && messageBody == "" && media == nil {
		event.Kind = models.EventKindStatus
		event.StatusValue = statusValue
	} else {
		event.Body = messageBody
	}

	return []models.InboundEvent{event}, nil
}

// telephonyFields flattens the webhook body into a map keyed by lowercased
// field name. Bodies arrive either form-encoded or as JSON, and some
// frameworks mis-parse the provider's content type and deliver the whole
// form string wrapped in a single JSON field.
func (n *Normalizer) telephonyFields(body []byte, contentType string) (map[string]string, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, errors.New(errors.ErrCodeMalformedPayload, "empty telephony webhook body")
	}

	if !strings.HasPrefix(trimmed, "{") {
		return formFields(trimmed)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMalformedPayload, "undecodable telephony webhook body")
	}

	if fields, ok := doubleEncodedForm(decoded); ok {
		n.logger.Debug("Unwrapping double-encoded telephony webhook body")
		return fields, nil
	}

	fields := make(map[string]string, len(decoded))
	for key, value := range decoded {
		switch v := value.(type) {
		case string:
			fields[strings.ToLower(key)] = v
		case float64:
			fields[strings.ToLower(key)] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			fields[strings.ToLower(key)] = strconv.FormatBool(v)
		case nil:
			// absent fields default to empty
		default:
			fields[strings.ToLower(key)] = fmt.Sprintf("%v", v)
		}
	}
	return fields, nil
}

func formFields(encoded string) (map[string]string, error) {
	values, err := url.ParseQuery(encoded)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMalformedPayload, "undecodable form-encoded webhook body")
	}

	fields := make(map[string]string, len(values))
	for key, value := range values {
		if len(value) > 0 {
			fields[strings.ToLower(key)] = value[0]
		}
	}
	return fields, nil
}

// telephonyFieldNames are the lowercased field spellings an unwrapped form
// must contain before it counts as telephony webhook data.
var telephonyFieldNames = []string{
	strings.ToLower(models.TelephonyFieldMessageSid),
	strings.ToLower(models.TelephonyFieldSmsSid),
	strings.ToLower(models.TelephonyFieldAccountSid),
	strings.ToLower(models.TelephonyFieldFrom),
	strings.ToLower(models.TelephonyFieldBody),
	strings.ToLower(models.TelephonyFieldNumMedia),
	strings.ToLower(models.TelephonyFieldMessageStatus),
	strings.ToLower(models.TelephonyFieldSmsStatus),
}

// doubleEncodedForm detects the known artifact where a JSON object holds a
// single string field that is itself URL-encoded form data. The candidate
// only counts when it parses into at least one recognized telephony field,
// so a field value that merely contains "=" stays a literal value.
func doubleEncodedForm(decoded map[string]interface{}) (map[string]string, bool) {
	if len(decoded) != 1 {
		return nil, false
	}
	for _, value := range decoded {
		s, ok := value.(string)
		if !ok || !strings.Contains(s, "=") {
			return nil, false
		}
		fields, err := formFields(s)
		if err != nil {
			return nil, false
		}
		for _, known := range telephonyFieldNames {
			if _, present := fields[known]; present {
				return fields, true
			}
		}
	}
	return nil, false
}
