package kaggle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/usaccidents/accidents-api/internal/logging"
)

const (
	DefaultBaseURL  = "https://www.kaggle.com"
	DefaultDataset  = "sobhanmoosavi/us-accidents"
	DefaultFileName = "US_Accidents_March23.csv"

	maxAttempts = 3
)

var (
	ErrUnauthorized    = errors.New("kaggle rejected the credentials")
	ErrDatasetNotFound = errors.New("kaggle dataset not found")
)

type Client struct {
	BaseURL     string
	Credentials Credentials
	HTTPClient  *http.Client
	Logger      *slog.Logger

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration
}

func NewClient(creds Credentials, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		BaseURL:        DefaultBaseURL,
		Credentials:    creds,
		HTTPClient:     &http.Client{Timeout: 30 * time.Minute},
		Logger:         logger.With(slog.String("component", "kaggle_client")),
		InitialBackoff: time.Second,
	}
}

// Download fetches the archive of an "owner/name" dataset and unzips it into
// destDir. It returns the paths of the extracted files.
func (c *Client) Download(ctx context.Context, dataset, destDir string) ([]string, error) {
	owner, name, ok := strings.Cut(dataset, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("dataset must look like owner/name, got %q", dataset)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create destination: %w", err)
	}

	archive, err := os.CreateTemp(destDir, ".kaggle-*.zip")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary archive: %w", err)
	}
	defer func() {
		_ = archive.Close()
		_ = os.Remove(archive.Name())
	}()

	endpoint := strings.TrimRight(c.BaseURL, "/") + "/api/v1/datasets/download/" +
		url.PathEscape(owner) + "/" + url.PathEscape(name)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.InitialBackoff
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, maxAttempts-1), ctx)

	attempt := 0
	err = backoff.RetryNotify(func() error {
		attempt++
		if err := archive.Truncate(0); err != nil {
			return backoff.Permanent(err)
		}
		if _, err := archive.Seek(0, io.SeekStart); err != nil {
			return backoff.Permanent(err)
		}
		return c.fetch(ctx, endpoint, archive)
	}, retry, func(err error, wait time.Duration) {
		logging.LogError(c.Logger, "dataset download failed, retrying", err,
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", dataset, err)
	}

	start := time.Now()
	files, err := unzip(archive.Name(), destDir)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", dataset, err)
	}
	logging.LogOperation(c.Logger, "dataset_extracted",
		slog.String("dataset", dataset),
		slog.Int("files", len(files)),
		slog.Duration("duration", time.Since(start)))
	return files, nil
}

func (c *Client) fetch(ctx context.Context, endpoint string, dst io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	req.SetBasicAuth(c.Credentials.Username, c.Credentials.Key)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	defer logging.SafeCloseWithLogging(resp.Body, c.Logger, "kaggle_response_body")

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return backoff.Permanent(ErrUnauthorized)
	case resp.StatusCode == http.StatusNotFound:
		return backoff.Permanent(ErrDatasetNotFound)
	case resp.StatusCode >= 500:
		return fmt.Errorf("kaggle returned %s", resp.Status)
	case resp.StatusCode != http.StatusOK:
		return backoff.Permanent(fmt.Errorf("kaggle returned %s", resp.Status))
	}

	if _, err := io.Copy(dst, resp.Body); err != nil {
		return fmt.Errorf("failed to read dataset archive: %w", err)
	}
	return nil
}
