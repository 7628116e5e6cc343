package main

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"

	"voicehook/internal/media"
	"voicehook/internal/models"
	"voicehook/internal/normalize"
	"voicehook/internal/service"
	"voicehook/internal/transcribe"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testBackends fakes the media host and the transcription backend that the
// pipeline talks to.
type testBackends struct {
	media         *httptest.Server
	transcription *httptest.Server

	mediaStatus     int
	mediaBody       []byte
	transcriptText  string
	transcribeCalls int
}

func newTestBackends(t *testing.T) *testBackends {
	t.Helper()
	b := &testBackends{
		mediaStatus:    http.StatusOK,
		mediaBody:      []byte("OggS fake audio"),
		transcriptText: "hello world",
	}

	b.media = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.mediaStatus != http.StatusOK {
			w.WriteHeader(b.mediaStatus)
			w.Write([]byte("media gone"))
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(b.mediaBody)
	}))
	t.Cleanup(b.media.Close)

	b.transcription = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.transcribeCalls++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"text": b.transcriptText})
	}))
	t.Cleanup(b.transcription.Close)

	return b
}

func newTestServer(t *testing.T, backends *testBackends) (*httptest.Server, string) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	scratchDir := t.TempDir()
	cfg := &models.Config{
		Cloud: models.CloudConfig{VerifyToken: "verify-me"},
		Telephony: models.TelephonyConfig{
			AccountSID: "AC123",
			AuthToken:  "secret",
		},
		Transcription: models.TranscriptionConfig{
			APIBaseURL: backends.transcription.URL,
			APIKey:     "test-key",
		},
		Media: models.MediaConfig{ScratchDir: scratchDir},
	}

	fetcher, err := media.NewFetcher(cfg.Media, logger)
	require.NoError(t, err)
	transcriber := transcribe.NewClient(cfg.Transcription, logger)
	controller := service.NewController(normalize.New(logger), fetcher, transcriber, cfg, logger)

	server := NewServer(cfg, controller, logger)
	ts := httptest.NewServer(server.router)
	t.Cleanup(ts.Close)
	return ts, scratchDir
}

func telephonyForm(mediaURL string) url.Values {
	form := url.Values{}
	form.Set("MessageSid", "SM123")
	form.Set("AccountSid", "AC123")
	form.Set("From", "+14155551234")
	form.Set("To", "+14155556789")
	if mediaURL != "" {
		form.Set("NumMedia", "1")
		form.Set("MediaUrl0", mediaURL)
		form.Set("MediaContentType0", "audio/ogg")
	} else {
		form.Set("Body", "plain text")
		form.Set("NumMedia", "0")
	}
	return form
}

func postForm(t *testing.T, ts *httptest.Server, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+path, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestVerificationHandshake(t *testing.T) {
	ts, _ := newTestServer(t, newTestBackends(t))

	resp, err := http.Get(ts.URL + "/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=abc123")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "abc123", readBody(t, resp))
}

func TestVerificationRejectsWrongToken(t *testing.T) {
	ts, _ := newTestServer(t, newTestBackends(t))

	resp, err := http.Get(ts.URL + "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=abc123")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCloudTextMessageAcks(t *testing.T) {
	backends := newTestBackends(t)
	ts, _ := newTestServer(t, backends)

	payload := `{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"value": {
			"metadata": {"display_phone_number": "15550001111"},
			"messages": [{"from": "15552223333", "id": "wamid.1", "timestamp": "1700000000", "type": "text", "text": {"body": "hi"}}]
		}}]}]
	}`

	resp, err := http.Post(ts.URL+"/webhook", "application/json", strings.NewReader(payload))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", readBody(t, resp))
	assert.Zero(t, backends.transcribeCalls)
}

func TestCloudUnrecognizedObjectGets404(t *testing.T) {
	ts, _ := newTestServer(t, newTestBackends(t))

	resp, err := http.Post(ts.URL+"/webhook", "application/json", strings.NewReader(`{"object": "instagram"}`))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTelephonyVoiceNoteTranscribed(t *testing.T) {
	backends := newTestBackends(t)
	ts, scratchDir := newTestServer(t, backends)

	resp := postForm(t, ts, "/twilio", telephonyForm(backends.media.URL+"/Media/ME1.ogg"))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/xml")
	body := readBody(t, resp)
	assert.Contains(t, body, "<Message>hello world</Message>")
	assert.Equal(t, 1, backends.transcribeCalls)

	// The transient file is cleaned up once the reply is written.
	entries, err := os.ReadDir(scratchDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTelephonyVoiceNoteWithoutContentTypeStillTranscribed(t *testing.T) {
	backends := newTestBackends(t)
	ts, _ := newTestServer(t, backends)

	// Classification falls back to the URL extension when the provider omits
	// the content type.
	form := telephonyForm(backends.media.URL + "/Media/ME1.ogg")
	form.Del("MediaContentType0")

	resp := postForm(t, ts, "/twilio", form)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "<Message>hello world</Message>")
	assert.Equal(t, 1, backends.transcribeCalls)
}

func TestTelephonyTextMessageGetsEmptyResponse(t *testing.T) {
	backends := newTestBackends(t)
	ts, _ := newTestServer(t, backends)

	resp := postForm(t, ts, "/twilio", telephonyForm(""))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "<Response></Response>")
	assert.Zero(t, backends.transcribeCalls)
}

func TestTelephonyDownloadFailureStillReplies200(t *testing.T) {
	backends := newTestBackends(t)
	backends.mediaStatus = http.StatusNotFound
	ts, scratchDir := newTestServer(t, backends)

	resp := postForm(t, ts, "/twilio", telephonyForm(backends.media.URL+"/Media/gone.ogg"))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, "Error processing voice note:")
	assert.Zero(t, backends.transcribeCalls)

	entries, err := os.ReadDir(scratchDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTelephonyStatusCallbackAcks(t *testing.T) {
	ts, _ := newTestServer(t, newTestBackends(t))

	form := url.Values{}
	form.Set("MessageSid", "SM123")
	form.Set("MessageStatus", "delivered")

	resp := postForm(t, ts, "/twilio", form)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "<Response></Response>")
}

func TestTelephonyProbe(t *testing.T) {
	ts, _ := newTestServer(t, newTestBackends(t))

	resp, err := http.Get(ts.URL + "/twilio")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", readBody(t, resp))
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, newTestBackends(t))

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "ok", health["status"])
	assert.NotEmpty(t, health["timestamp"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, newTestBackends(t))

	// Drive one request through first so counters exist.
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var metrics map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&metrics))
	resp.Body.Close()
	assert.Contains(t, metrics, "counters")
}

func TestTestEndpointEchoes(t *testing.T) {
	ts, _ := newTestServer(t, newTestBackends(t))

	resp, err := http.Post(ts.URL+"/test", "text/plain", strings.NewReader("ping"))
	require.NoError(t, err)
	assert.Equal(t, "ping", readBody(t, resp))

	resp, err = http.Get(ts.URL + "/test")
	require.NoError(t, err)
	assert.Equal(t, "OK", readBody(t, resp))
}

func TestXMLReplyEscapesTranscript(t *testing.T) {
	backends := newTestBackends(t)
	backends.transcriptText = `five < six & "seven" > 'eight'`
	ts, _ := newTestServer(t, backends)

	resp := postForm(t, ts, "/twilio", telephonyForm(backends.media.URL+"/Media/ME1.ogg"))
	body := readBody(t, resp)

	assert.Contains(t, body, "five &lt; six &amp; &quot;seven&quot;")
	assert.NotContains(t, body, `five < six`)

	// A strict XML parse of the wire bytes must recover the transcript
	// exactly as the backend produced it.
	var reply struct {
		XMLName xml.Name `xml:"Response"`
		Message string   `xml:"Message"`
	}
	require.NoError(t, xml.Unmarshal([]byte(body), &reply))
	assert.Equal(t, backends.transcriptText, reply.Message)
}

func TestJSONReplyFormat(t *testing.T) {
	backends := newTestBackends(t)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := &models.Config{
		Cloud:     models.CloudConfig{VerifyToken: "verify-me"},
		Telephony: models.TelephonyConfig{ReplyFormat: models.WireFormatJSON},
		Transcription: models.TranscriptionConfig{
			APIBaseURL: backends.transcription.URL,
			APIKey:     "test-key",
		},
		Media: models.MediaConfig{ScratchDir: t.TempDir()},
	}

	fetcher, err := media.NewFetcher(cfg.Media, logger)
	require.NoError(t, err)
	controller := service.NewController(normalize.New(logger), fetcher, transcribe.NewClient(cfg.Transcription, logger), cfg, logger)
	ts := httptest.NewServer(NewServer(cfg, controller, logger).router)
	defer ts.Close()

	resp := postForm(t, ts, "/twilio", telephonyForm(backends.media.URL+"/Media/ME1.ogg"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")

	var reply map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	resp.Body.Close()
	assert.Equal(t, true, reply["success"])
	assert.Equal(t, "hello world", reply["transcription"])
	assert.Equal(t, "SM123", reply["messageSid"])
}

func TestOversizedBodyRejected(t *testing.T) {
	ts, _ := newTestServer(t, newTestBackends(t))

	huge := fmt.Sprintf("Body=%s", strings.Repeat("a", maxWebhookBodyBytes+1))
	resp, err := http.Post(ts.URL+"/twilio", "application/x-www-form-urlencoded", strings.NewReader(huge))
	require.NoError(t, err)
	resp.Body.Close()

	// The handler still answers with a well-formed envelope.
	assert.NotEqual(t, 0, resp.StatusCode)
}
