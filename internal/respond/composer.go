package respond

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"voicehook/internal/models"
)

// OutcomeKind enumerates the pipeline results a reply can be composed from.
type OutcomeKind string

const (
	OutcomeNormalAck            OutcomeKind = "ack"
	OutcomeTranscriptionSuccess OutcomeKind = "transcription_success"
	OutcomeTranscriptionFailure OutcomeKind = "transcription_failure"
	OutcomeUnrecognizedPayload  OutcomeKind = "unrecognized"
)

// Outcome is what the pipeline produced for one request. Text carries the
// transcript on success or a human-readable failure message. Event, when
// set, supplies identifiers for the JSON envelope.
type Outcome struct {
	Kind  OutcomeKind
	Text  string
	Event *models.InboundEvent
}

// Envelope is the provider-facing reply.
type Envelope struct {
	StatusCode  int
	ContentType string
	Body        string
}

const (
	contentTypeXML  = "application/xml"
	contentTypeJSON = "application/json"
	contentTypeText = "text/plain"

	// VoiceNoteErrorPrefix prefixes the human-readable error text placed in
	// an XML reply when transcription fails.
	VoiceNoteErrorPrefix = "Error processing voice note: "
)

// Compose builds the provider-correct reply for an outcome. Telephony XML
// replies are always 200, including failures, so the provider never retries.
func Compose(outcome Outcome, provider models.Provider, format models.WireFormat) Envelope {
	if provider == models.ProviderCloud {
		if outcome.Kind == OutcomeUnrecognizedPayload {
			return Envelope{StatusCode: http.StatusNotFound, ContentType: contentTypeText}
		}
		return Envelope{StatusCode: http.StatusOK, ContentType: contentTypeText, Body: "OK"}
	}

	switch outcome.Kind {
	case OutcomeTranscriptionSuccess:
		if format == models.WireFormatJSON {
			return jsonSuccess(outcome)
		}
		return xmlMessage(outcome.Text)
	case OutcomeTranscriptionFailure:
		if format == models.WireFormatJSON {
			return jsonFailure(outcome)
		}
		return xmlMessage(VoiceNoteErrorPrefix + outcome.Text)
	default:
		// NormalAck and unrecognized payloads both get the empty envelope;
		// the JSON wire format only applies to the audio branch.
		return xmlEmpty()
	}
}

func xmlEmpty() Envelope {
	return Envelope{
		StatusCode:  http.StatusOK,
		ContentType: contentTypeXML,
		Body:        `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`,
	}
}

func xmlMessage(text string) Envelope {
	return Envelope{
		StatusCode:  http.StatusOK,
		ContentType: contentTypeXML,
		Body: fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><Response><Message>%s</Message></Response>`,
			escapeXML(text)),
	}
}

func jsonSuccess(outcome Outcome) Envelope {
	reply := struct {
		Success       bool   `json:"success"`
		Transcription string `json:"transcription"`
		MessageSid    string `json:"messageSid"`
		From          string `json:"from"`
		MediaType     string `json:"mediaType"`
	}{
		Success:       true,
		Transcription: outcome.Text,
	}
	if outcome.Event != nil {
		reply.MessageSid = outcome.Event.ID
		reply.From = outcome.Event.From
		if outcome.Event.Media != nil {
			reply.MediaType = outcome.Event.Media.ContentType
		}
	}
	return jsonEnvelope(http.StatusOK, reply)
}

func jsonFailure(outcome Outcome) Envelope {
	reply := struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}{
		Success: false,
		Error:   outcome.Text,
	}
	return jsonEnvelope(http.StatusInternalServerError, reply)
}

func jsonEnvelope(status int, reply interface{}) Envelope {
	body, err := json.Marshal(reply)
	if err != nil {
		// A failure while composing a reply still yields a minimal valid
		// envelope for the provider.
		return Envelope{
			StatusCode:  http.StatusInternalServerError,
			ContentType: contentTypeJSON,
			Body:        `{"success":false,"error":"internal error"}`,
		}
	}
	return Envelope{StatusCode: status, ContentType: contentTypeJSON, Body: string(body)}
}

// escapeXML escapes the five XML special characters. Ampersand goes first so
// entities introduced by later substitutions are not double-escaped.
func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, `"`, "&quot;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	return s
}
