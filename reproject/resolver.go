package reproject

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/ctessum/geom/proj"
	"github.com/ctessum/requestcache"
	"github.com/sirupsen/logrus"
)

// Fetcher resolves a CRS identifier to resource bytes: a proj4
// definition string, possibly obtained by registry lookup or grid-shift
// download. It is the only network capability the reprojector depends on,
// so tests substitute a deterministic fake.
type Fetcher interface {
	Fetch(ctx context.Context, id string) ([]byte, error)
}

// HTTPFetcher resolves registry codes like "EPSG:26918" against an
// epsg.io-style endpoint serving proj4 definitions at /<code>.proj4.
type HTTPFetcher struct {
	Client  *http.Client
	BaseURL string
}

func (f *HTTPFetcher) Fetch(ctx context.Context, id string) ([]byte, error) {
	base := f.BaseURL
	if base == "" {
		base = "https://epsg.io"
	}
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	code := id
	if i := strings.IndexByte(id, ':'); i >= 0 {
		code = id[i+1:]
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/%s.proj4", strings.TrimRight(base, "/"), code), nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reproject: %s returned status %d", req.URL, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Resolver turns CRS identifiers into spatial references. Raw proj4
// strings and the registry codes proj knows out of the box resolve
// locally; anything else goes through the Fetcher, retried with bounded
// exponential backoff and cached (memory + on-disk in a per-run temp
// directory) for the rest of the process run.
type Resolver struct {
	// MaxRetries bounds the exponential backoff around each fetch.
	MaxRetries uint64

	fetcher Fetcher
	log     logrus.FieldLogger
	cache   *requestcache.Cache
}

// NewResolver builds a resolver around the given fetcher. A nil fetcher
// limits resolution to definitions proj can parse locally. A nil log
// discards diagnostics.
func NewResolver(f Fetcher, log logrus.FieldLogger) *Resolver {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	r := &Resolver{MaxRetries: 4, fetcher: f, log: log}
	if f == nil {
		return r
	}

	proc := func(ctx context.Context, request interface{}) (interface{}, error) {
		id := request.(string)
		var body []byte
		op := func() error {
			b, err := r.fetcher.Fetch(ctx, id)
			if err != nil {
				r.log.WithField("crs", id).WithError(err).Warn("reproject: CRS fetch failed, retrying")
				return err
			}
			body = b
			return nil
		}
		bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), r.MaxRetries), ctx)
		if err := backoff.Retry(op, bo); err != nil {
			return nil, err
		}
		return body, nil
	}

	cacheFuncs := []requestcache.CacheFunc{requestcache.Deduplicate(), requestcache.Memory(64)}
	if dir, err := os.MkdirTemp("", "gohgrid-crs-"); err == nil {
		cacheFuncs = append(cacheFuncs,
			requestcache.Disk(dir, requestcache.MarshalGob, requestcache.UnmarshalGob))
	}
	r.cache = requestcache.NewCache(proc, 1, cacheFuncs...)
	return r
}

// Resolve parses the identifier locally first, then falls back to the
// fetch path. The returned error is a *TransformError whose Kind tells
// network failures from definition failures.
func (r *Resolver) Resolve(ctx context.Context, id string) (*proj.SR, error) {
	if id == "" {
		return nil, &TransformError{Kind: KindProjectionDefinition,
			Err: fmt.Errorf("empty CRS identifier")}
	}
	if sr, err := proj.Parse(id); err == nil {
		return sr, nil
	}
	if r.cache == nil {
		return nil, &TransformError{Kind: KindProjectionDefinition, CRS: id,
			Err: fmt.Errorf("not locally parseable and no fetcher configured")}
	}

	key := "crs_" + strings.Map(func(c rune) rune {
		if c == ':' || c == '/' || c == '+' || c == ' ' {
			return '_'
		}
		return c
	}, id)
	result, err := r.cache.NewRequest(ctx, id, key).Result()
	if err != nil {
		return nil, &TransformError{Kind: KindNetwork, CRS: id, Err: err}
	}
	def := strings.TrimSpace(string(result.([]byte)))
	sr, err := proj.Parse(def)
	if err != nil {
		return nil, &TransformError{Kind: KindProjectionDefinition, CRS: id,
			Err: fmt.Errorf("fetched definition %q: %w", def, err)}
	}
	r.log.WithFields(logrus.Fields{"crs": id, "proj4": def}).Debug("reproject: resolved CRS")
	return sr, nil
}
