package transcribe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Skyhug-AI/skyhug-backend/internal/apperr"
)

// AudioSource fetches recorded audio by its storage path.
type AudioSource interface {
	Fetch(ctx context.Context, path string) (io.ReadCloser, error)
}

// StorageOpts configures a StorageSource.
type StorageOpts struct {
	// BaseURL is the storage service root, e.g. https://xyz.supabase.co.
	BaseURL    string
	Bucket     string
	ServiceKey string
	HTTPClient *http.Client
}

// StorageSource downloads objects from an authenticated storage bucket.
type StorageSource struct {
	baseURL string
	bucket  string
	key     string
	client  *http.Client
}

// NewStorageSource returns a StorageSource.
func NewStorageSource(opts StorageOpts) (*StorageSource, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("transcribe: storage base url is required")
	}
	if opts.Bucket == "" {
		opts.Bucket = "raw-audio"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &StorageSource{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		bucket:  opts.Bucket,
		key:     opts.ServiceKey,
		client:  opts.HTTPClient,
	}, nil
}

// ObjectURL returns the authenticated download URL for path.
func (s *StorageSource) ObjectURL(path string) string {
	segments := strings.Split(strings.TrimLeft(path, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf("%s/storage/v1/object/authenticated/%s/%s", s.baseURL, url.PathEscape(s.bucket), strings.Join(segments, "/"))
}

// Fetch downloads the object at path. The caller closes the body.
func (s *StorageSource) Fetch(ctx context.Context, path string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.ObjectURL(path), nil)
	if err != nil {
		return nil, fmt.Errorf("transcribe: build request: %w", err)
	}
	if s.key != "" {
		req.Header.Set("Authorization", "Bearer "+s.key)
		req.Header.Set("apikey", s.key)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstream, "download audio", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil, apperr.New(apperr.ErrNotFound, "download audio", "object "+path+" not found")
		}
		return nil, apperr.Wrap(apperr.ErrUpstream, "download audio",
			fmt.Errorf("storage returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
	return resp.Body, nil
}
