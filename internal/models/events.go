package models

import (
	"path"
	"strings"
	"time"
)

// Provider identifies which messaging platform delivered a webhook.
type Provider string

const (
	ProviderCloud     Provider = "cloud"
	ProviderTelephony Provider = "telephony"
)

// EventKind distinguishes inbound messages from delivery/read status callbacks.
type EventKind string

const (
	EventKindMessage EventKind = "message"
	EventKindStatus  EventKind = "status"
)

// WireFormat selects the reply envelope used for Telephony audio responses.
type WireFormat string

const (
	WireFormatXML  WireFormat = "xml"
	WireFormatJSON WireFormat = "json"
)

// audioExtensions are the URL path extensions treated as audio when the
// content type is missing or non-specific.
var audioExtensions = []string{".wav", ".ogg", ".mp3"}

// MediaRef describes a remote attachment referenced by a webhook payload.
type MediaRef struct {
	URL          string
	ContentType  string
	RequiresAuth bool
}

// IsAudio reports whether the attachment should be transcribed. A content
// type starting with audio/ always wins; otherwise the URL path extension
// decides.
func (m *MediaRef) IsAudio() bool {
	if m == nil {
		return false
	}
	if strings.HasPrefix(strings.ToLower(m.ContentType), "audio/") {
		return true
	}
	ext := strings.ToLower(path.Ext(strings.SplitN(m.URL, "?", 2)[0]))
	for _, allowed := range audioExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// InboundEvent is the canonical representation of one webhook notification,
// independent of which provider produced it.
type InboundEvent struct {
	Kind        EventKind
	Provider    Provider
	ID          string
	From        string
	To          string
	Timestamp   time.Time
	Body        string
	Media       *MediaRef
	StatusValue string

	// Raw keeps the decoded payload fragment for diagnostics. Nothing
	// downstream reinterprets it.
	Raw interface{}
}

// TranscriptionResult holds the transcript returned by the speech-to-text
// backend. An empty Text is valid: the backend detected no speech.
type TranscriptionResult struct {
	Text string `json:"text"`
}

// TelephonyCredentials authenticate media downloads from the telephony
// provider. A nil value means unauthenticated access.
type TelephonyCredentials struct {
	AccountSID string
	AuthToken  string
}
