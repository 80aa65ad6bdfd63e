// Package media resolves the meditation and story audio assets to delivery URLs.
package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/admin"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrAssetNotFound is returned when no asset exists under a public id.
var ErrAssetNotFound = errors.New("asset not found")

// AssetLocator maps an asset public id to its delivery URL.
type AssetLocator interface {
	Locate(ctx context.Context, publicID string) (string, error)
}

// CloudinaryConfig holds the Cloudinary account credentials.
type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	// Folder is prepended to every public id when set.
	Folder string
}

// CloudinaryLocator looks assets up through the Cloudinary admin API. Audio is stored as the
// "video" resource type.
type CloudinaryLocator struct {
	cld    *cloudinary.Cloudinary
	folder string
}

// NewCloudinaryLocator creates a locator for the configured account.
func NewCloudinaryLocator(cfg CloudinaryConfig) (*CloudinaryLocator, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary configuration is missing")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &CloudinaryLocator{cld: cld, folder: strings.Trim(cfg.Folder, "/")}, nil
}

// Locate returns the secure URL of publicID.
func (l *CloudinaryLocator) Locate(ctx context.Context, publicID string) (string, error) {
	if l.folder != "" {
		publicID = l.folder + "/" + publicID
	}

	res, err := l.cld.Admin.Asset(ctx, admin.AssetParams{
		PublicID:  publicID,
		AssetType: api.Video,
	})
	if err != nil {
		return "", fmt.Errorf("lookup asset %s: %w", publicID, err)
	}
	if msg := res.Error.Message; msg != "" {
		if strings.Contains(strings.ToLower(msg), "not found") {
			return "", fmt.Errorf("%w: %s", ErrAssetNotFound, publicID)
		}
		return "", fmt.Errorf("lookup asset %s: %s", publicID, msg)
	}
	if res.SecureURL == "" {
		return "", fmt.Errorf("%w: %s", ErrAssetNotFound, publicID)
	}
	return res.SecureURL, nil
}

type lookup struct {
	url string
	err error
}

// CachingLocator memoises lookups, including misses, for a fixed TTL.
type CachingLocator struct {
	next    AssetLocator
	entries *expirable.LRU[string, lookup]
}

// NewCachingLocator wraps next with a bounded TTL cache.
func NewCachingLocator(next AssetLocator, size int, ttl time.Duration) *CachingLocator {
	if size <= 0 {
		size = 128
	}
	return &CachingLocator{
		next:    next,
		entries: expirable.NewLRU[string, lookup](size, nil, ttl),
	}
}

// Locate serves publicID from the cache or the wrapped locator. Only definite answers are cached.
func (c *CachingLocator) Locate(ctx context.Context, publicID string) (string, error) {
	if hit, ok := c.entries.Get(publicID); ok {
		return hit.url, hit.err
	}
	url, err := c.next.Locate(ctx, publicID)
	if err == nil || errors.Is(err, ErrAssetNotFound) {
		c.entries.Add(publicID, lookup{url: url, err: err})
	}
	return url, err
}
