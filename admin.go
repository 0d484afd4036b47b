package cachexec

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/always-cache/cachexec/cache"
	cachekey "github.com/always-cache/cachexec/pkg/cache-key"
)

// AdminRouter returns the admin API:
//
//	GET    /metrics               Prometheus metrics
//	GET    /keys?prefix=/path     stored keys, one per line
//	DELETE /purge?url=/path       remove every variant stored for a URL
//	POST   /refresh?url=/path     revalidate the variants stored for a URL
//	POST   /refresh?prefix=/path  revalidate every key with the prefix
//
// URLs and prefixes are resolved against the origin.
func (a *Cache) AdminRouter() chi.Router {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/keys", a.listKeys)
	r.Delete("/purge", a.purge)
	r.Post("/refresh", a.refresh)
	return r
}

func (a *Cache) listKeys(w http.ResponseWriter, r *http.Request) {
	prefix, err := a.resolve(r.URL.Query().Get("prefix"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	err = a.store.Keys(r.Context(), a.config.Keyer.MethodPrefix("GET")+prefix, func(key string) {
		fmt.Fprintln(w, key)
	})
	if err != nil {
		a.log.Error().Err(err).Msg("Could not list keys")
	}
}

func (a *Cache) purge(w http.ResponseWriter, r *http.Request) {
	u, err := a.resolveURL(r.URL.Query().Get("url"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := a.exec.Purge(r.Context(), u); err != nil {
		a.log.Error().Err(err).Str("url", u.String()).Msg("Could not purge")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	a.log.Info().Str("url", u.String()).Msg("Purged")
	w.WriteHeader(http.StatusNoContent)
}

func (a *Cache) refresh(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Has("prefix") {
		prefix, err := a.resolve(query.Get("prefix"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		n, err := a.exec.RefreshAll(r.Context(), prefix)
		if err != nil {
			a.log.Error().Err(err).Msg("Could not refresh")
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "refreshed %d\n", n)
		return
	}

	u, err := a.resolveURL(query.Get("url"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	statuses, err := a.exec.Refresh(r.Context(), a.config.Keyer.Key("GET", u))
	switch {
	case errors.Is(err, cache.ErrNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	case err != nil:
		a.log.Error().Err(err).Str("url", u.String()).Msg("Could not refresh")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	for _, status := range statuses {
		fmt.Fprintln(w, status.String())
	}
}

func (a *Cache) resolveURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, errors.New("url is required")
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if ref.IsAbs() {
		return ref, nil
	}
	if a.origin.Host == "" {
		return nil, fmt.Errorf("url %q is not absolute", raw)
	}
	return a.origin.ResolveReference(ref), nil
}

// resolve turns a URL prefix into the form used in keys.
func (a *Cache) resolve(prefix string) (string, error) {
	if prefix == "" {
		return "", nil
	}
	u, err := a.resolveURL(prefix)
	if err != nil {
		return "", err
	}
	return cachekey.CanonicalURI(u), nil
}
