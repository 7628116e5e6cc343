package models

import (
	"net/url"
	"strings"
)

// CloudObjectDiscriminator is the top-level object field the Cloud messaging
// platform sets on every webhook delivery. Payloads with any other value are
// not ours to handle.
const CloudObjectDiscriminator = "whatsapp_business_account"

// Cloud message types
const (
	CloudTypeText     = "text"
	CloudTypeAudio    = "audio"
	CloudTypeImage    = "image"
	CloudTypeVideo    = "video"
	CloudTypeDocument = "document"
	CloudTypeLocation = "location"
)

type CloudWebhookPayload struct {
	Object string       `json:"object"`
	Entry  []CloudEntry `json:"entry"`
}

type CloudEntry struct {
	ID      string        `json:"id"`
	Changes []CloudChange `json:"changes"`
}

type CloudChange struct {
	Field string           `json:"field"`
	Value CloudChangeValue `json:"value"`
}

type CloudChangeValue struct {
	MessagingProduct string         `json:"messaging_product"`
	Metadata         CloudMetadata  `json:"metadata"`
	Contacts         []CloudContact `json:"contacts,omitempty"`
	Messages         []CloudMessage `json:"messages,omitempty"`
	Statuses         []CloudStatus  `json:"statuses,omitempty"`
}

type CloudMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type CloudContact struct {
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
	WaID string `json:"wa_id"`
}

type CloudMessage struct {
	From      string      `json:"from"`
	ID        string      `json:"id"`
	Timestamp string      `json:"timestamp"`
	Type      string      `json:"type"`
	Text      *CloudText  `json:"text,omitempty"`
	Audio     *CloudMedia `json:"audio,omitempty"`
	Image     *CloudMedia `json:"image,omitempty"`
	Video     *CloudMedia `json:"video,omitempty"`
	Document  *CloudMedia `json:"document,omitempty"`
}

type CloudText struct {
	Body string `json:"body"`
}

// CloudMedia carries an attachment reference. Gateway deployments include a
// direct URL; the hosted platform only sends the media ID.
type CloudMedia struct {
	ID       string `json:"id"`
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Filename string `json:"filename,omitempty"`
	Voice    bool   `json:"voice,omitempty"`
}

type CloudStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

// Telephony webhook form field names. The provider is inconsistent about
// casing across products, so lookups are case-insensitive; these constants
// are the canonical spellings.
const (
	TelephonyFieldMessageSid    = "MessageSid"
	TelephonyFieldSmsSid        = "SmsSid"
	TelephonyFieldAccountSid    = "AccountSid"
	TelephonyFieldFrom          = "From"
	TelephonyFieldTo            = "To"
	TelephonyFieldBody          = "Body"
	TelephonyFieldNumMedia      = "NumMedia"
	TelephonyFieldMediaURL      = "MediaUrl0"
	TelephonyFieldMediaType     = "MediaContentType0"
	TelephonyFieldMessageStatus = "MessageStatus"
	TelephonyFieldSmsStatus     = "SmsStatus"
)

// TelephonyMediaHost is the provider domain that requires basic-auth access
// to media resources.
const TelephonyMediaHost = "twilio.com"

// RequiresAuthenticatedFetch reports whether the media URL points at the
// telephony provider's media domain, where downloads expect basic auth.
func RequiresAuthenticatedFetch(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == TelephonyMediaHost || strings.HasSuffix(host, "."+TelephonyMediaHost)
}
