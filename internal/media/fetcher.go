package media

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"time"

	"voicehook/internal/constants"
	"voicehook/internal/errors"
	"voicehook/internal/models"

	"github.com/sirupsen/logrus"
)

// Fetcher downloads remote media into uniquely-named transient files under a
// scratch directory. Callers own the returned path and must remove it.
type Fetcher struct {
	scratchDir   string
	client       *http.Client
	logger       *logrus.Logger
	timeout      time.Duration
	maxRedirects int
}

func NewFetcher(cfg models.MediaConfig, logger *logrus.Logger) (*Fetcher, error) {
	if err := os.MkdirAll(cfg.ScratchDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}

	timeout := time.Duration(cfg.FetchTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = constants.DefaultMediaFetchTimeoutSec * time.Second
	}
	maxRedirects := cfg.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = constants.DefaultMediaMaxRedirects
	}

	return &Fetcher{
		scratchDir: cfg.ScratchDir,
		client: &http.Client{
			Timeout: timeout,
			// Redirects are followed manually so the auth decision is
			// re-evaluated per hop.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:       logger,
		timeout:      timeout,
		maxRedirects: maxRedirects,
	}, nil
}

// Fetch retrieves the media behind ref and persists it as a transient file,
// returning its path. Non-2xx responses and transport failures yield a
// MEDIA_DOWNLOAD error; a partially written file never survives an error.
func (f *Fetcher) Fetch(ctx context.Context, ref models.MediaRef, creds *models.TelephonyCredentials) (string, error) {
	if err := validateMediaURL(ref.URL); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeMediaDownload, "invalid media URL")
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	resp, err := f.get(ctx, ref.URL, ref.RequiresAuth, creds, 0)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, constants.MaxErrorDetailBytes))
		return "", errors.New(errors.ErrCodeMediaDownload, fmt.Sprintf("download failed with status %d", resp.StatusCode)).
			WithContext("status", resp.StatusCode).
			WithContext("detail", string(detail))
	}

	ext := extensionFromContentType(resp.Header.Get("Content-Type"))
	tempFile, err := os.CreateTemp(f.scratchDir, fmt.Sprintf("voicenote_%d_*%s", time.Now().UnixNano(), ext))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeMediaDownload, "failed to create transient file")
	}

	if _, err := io.Copy(tempFile, resp.Body); err != nil {
		tempFile.Close()
		os.Remove(tempFile.Name())
		return "", errors.Wrap(err, errors.ErrCodeMediaDownload, "failed to write transient file")
	}
	if err := tempFile.Close(); err != nil {
		os.Remove(tempFile.Name())
		return "", errors.Wrap(err, errors.ErrCodeMediaDownload, "failed to finalize transient file")
	}

	f.logger.WithFields(logrus.Fields{
		"path":         tempFile.Name(),
		"content_type": resp.Header.Get("Content-Type"),
	}).Debug("Media downloaded to transient file")

	return tempFile.Name(), nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string, withAuth bool, creds *models.TelephonyCredentials, hop int) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMediaDownload, "failed to create download request")
	}

	// Missing credentials are not fatal: provider media may be publicly
	// reachable, so the request simply goes out unauthenticated.
	if withAuth && creds != nil {
		req.SetBasicAuth(creds.AccountSID, creds.AuthToken)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMediaDownload, "transport failure downloading media").
			WithContext("url", rawURL)
	}

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		location := resp.Header.Get("Location")
		resp.Body.Close()

		if location == "" {
			return nil, errors.New(errors.ErrCodeMediaDownload, fmt.Sprintf("redirect status %d without location", resp.StatusCode))
		}
		if hop >= f.maxRedirects {
			return nil, errors.New(errors.ErrCodeMediaDownload, "too many redirects").
				WithContext("max_redirects", f.maxRedirects)
		}

		base, err := url.Parse(rawURL)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeMediaDownload, "invalid redirect base URL")
		}
		target, err := url.Parse(location)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeMediaDownload, "invalid redirect location")
		}
		next := base.ResolveReference(target).String()

		// Credentials follow a redirect only while it stays on the
		// provider's media domain; off-domain targets are fetched bare.
		return f.get(ctx, next, withAuth && models.RequiresAuthenticatedFetch(next), creds, hop+1)
	}

	return resp, nil
}

func validateMediaURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid media URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("unsupported URL scheme: %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("media URL missing host")
	}
	return nil
}

func extensionFromContentType(contentType string) string {
	if contentType == "" {
		return constants.DefaultMediaExtension
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return constants.DefaultMediaExtension
	}
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return constants.DefaultMediaExtension
}
