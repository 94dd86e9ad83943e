package auth

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-jose/go-jose/v3"
	"github.com/go-resty/resty/v2"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// maxKeySetSize bounds the key set response body.
const maxKeySetSize = 1 << 20

// KeySetFetcher retrieves the published signing keys at url.
type KeySetFetcher interface {
	FetchKeySet(ctx context.Context, url string) (*jose.JSONWebKeySet, error)
}

// RestyKeySetFetcher fetches key sets over HTTP.
type RestyKeySetFetcher struct {
	client *resty.Client
}

// NewKeySetFetcher returns a fetcher using client. The client is expected to carry the
// platform's tracing interceptors.
func NewKeySetFetcher(client *resty.Client) *RestyKeySetFetcher {
	return &RestyKeySetFetcher{client: client}
}

func (f *RestyKeySetFetcher) FetchKeySet(ctx context.Context, url string) (*jose.JSONWebKeySet, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching key set from %s", url)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.IsError() {
		return nil, errors.Newf("key set endpoint %s answered %d", url, resp.StatusCode())
	}

	raw, err := io.ReadAll(io.LimitReader(body, maxKeySetSize))
	if err != nil {
		return nil, errors.Wrapf(err, "reading key set from %s", url)
	}

	var set jose.JSONWebKeySet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, errors.Wrapf(err, "decoding key set from %s", url)
	}
	if len(set.Keys) == 0 {
		return nil, errors.Newf("key set at %s has no keys", url)
	}
	return &set, nil
}

type keySetEntry struct {
	set       *jose.JSONWebKeySet
	fetchedAt time.Time
}

// KeySetCache holds the signing keys of each trusted issuer. Entries expire after the
// configured TTL and can be refreshed early when verification fails. Concurrent fetches
// for the same issuer collapse into one.
type KeySetCache struct {
	fetcher      KeySetFetcher
	locate       func(issuer string) string
	entries      *cache.Cache
	group        singleflight.Group
	fetchTimeout time.Duration
	refreshFloor time.Duration
	now          func() time.Time
}

// NewKeySetCache returns a cache that fetches through fetcher at the locations cfg names.
func NewKeySetCache(cfg *Config, fetcher KeySetFetcher) *KeySetCache {
	return &KeySetCache{
		fetcher:      fetcher,
		locate:       cfg.KeySetURL,
		entries:      cache.New(cfg.KeySetTTL, 2*cfg.KeySetTTL),
		fetchTimeout: cfg.FetchTimeout,
		refreshFloor: cfg.RefreshFloor,
		now:          time.Now,
	}
}

// Get returns the key set of issuer, fetching it when absent or expired.
func (c *KeySetCache) Get(ctx context.Context, issuer string) (*jose.JSONWebKeySet, error) {
	if entry, ok := c.lookup(issuer); ok {
		return entry.set, nil
	}
	return c.fetch(ctx, issuer)
}

// Refresh fetches the key set of issuer again, unless the cached one is younger than the
// refresh floor, in which case the cached set is returned.
func (c *KeySetCache) Refresh(ctx context.Context, issuer string) (*jose.JSONWebKeySet, error) {
	if entry, ok := c.lookup(issuer); ok && c.now().Sub(entry.fetchedAt) < c.refreshFloor {
		return entry.set, nil
	}
	return c.fetch(ctx, issuer)
}

// Reload fetches the key set of issuer again regardless of the refresh floor.
func (c *KeySetCache) Reload(ctx context.Context, issuer string) (*jose.JSONWebKeySet, error) {
	return c.fetch(ctx, issuer)
}

func (c *KeySetCache) lookup(issuer string) (keySetEntry, bool) {
	v, ok := c.entries.Get(issuer)
	if !ok {
		return keySetEntry{}, false
	}
	entry, ok := v.(keySetEntry)
	return entry, ok
}

// fetch is shared by every caller waiting on issuer. The fetch itself is detached from
// the first caller's cancellation so the other waiters still get a result.
func (c *KeySetCache) fetch(ctx context.Context, issuer string) (*jose.JSONWebKeySet, error) {
	ch := c.group.DoChan(issuer, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()

		set, err := c.fetcher.FetchKeySet(fetchCtx, c.locate(issuer))
		if err != nil {
			return nil, err
		}
		c.entries.SetDefault(issuer, keySetEntry{set: set, fetchedAt: c.now()})
		return set, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*jose.JSONWebKeySet), nil
	}
}
