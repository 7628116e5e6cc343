package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservabilityMiddlewarePassesThrough(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})

	handler := ObservabilityMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("body"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/webhook", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "body", rec.Body.String())
}

func TestObservabilityMiddlewareLogsCompletion(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	handler := ObservabilityMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/twilio", nil)
	req.Header.Set("User-Agent", "TwilioProxy/1.1")
	handler.ServeHTTP(rec, req)

	out := buf.String()
	assert.Contains(t, out, "HTTP request completed")
	assert.Contains(t, out, "/twilio")
	assert.Contains(t, out, "req_")
}

func TestResponseWrapperDefaultsTo200(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})

	handler := ObservabilityMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("implicit 200"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestResponseWrapperKeepsFirstStatus(t *testing.T) {
	w := &responseWrapper{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}

	w.WriteHeader(http.StatusNotFound)
	w.WriteHeader(http.StatusInternalServerError)

	assert.Equal(t, http.StatusNotFound, w.statusCode)
}

func TestResponseWrapperCountsBytes(t *testing.T) {
	w := &responseWrapper{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}

	w.Write([]byte("hello"))
	w.Write([]byte(" world"))

	assert.Equal(t, int64(11), w.responseSize)
}
