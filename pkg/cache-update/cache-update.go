// Package cacheupdate parses the Cache-Update response header field.
//
// An origin answering an unsafe request can name resources whose stored
// responses are outdated by the request, optionally with a delay:
//
//	Cache-Update: /articles/1, /articles; delay=5
//
// The cache invalidates and then re-fetches the named resources.
package cacheupdate

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/always-cache/cachexec/pkg/message"
	"github.com/always-cache/cachexec/rfc9110"
)

const FieldName = "Cache-Update"

var delayDirective = regexp.MustCompile(`(?i)\bdelay=(\d+)`)

// CacheUpdate represents a single `Cache-Update` entry.
type CacheUpdate struct {
	// Fully resolved URL of the resource.
	URL *url.URL
	// Update delay, i.e. delay update by this duration.
	Delay time.Duration
}

// GetCacheUpdates gets the updates specified by the response.
// The request is used in order to resolve potentially relative update
// URLs; URLs of other origins are dropped.
func GetCacheUpdates(req *message.Request, res *message.Response) []CacheUpdate {
	if !rfc9110.LookupMethod(req.Method).Invalidates || rfc9110.IsError(res.StatusCode) {
		return nil
	}
	var updates []CacheUpdate
	for _, update := range res.Header.List(FieldName) {
		u, ok := getURL(req.URL, update)
		if !ok {
			continue
		}
		updates = append(updates, CacheUpdate{URL: u, Delay: getDelay(update)})
	}
	return updates
}

// getURL returns the URL to update the cache for from the `Cache-Update` header parameter.
// The URL is the first parameter in the header value (separated by a semicolon).
func getURL(base *url.URL, update string) (*url.URL, bool) {
	possiblyRelativeURL, _, _ := strings.Cut(update, ";")
	ref, err := url.Parse(strings.TrimSpace(possiblyRelativeURL))
	if err != nil || ref.String() == "" {
		return nil, false
	}
	u := base.ResolveReference(ref)
	if !strings.EqualFold(u.Scheme, base.Scheme) || !strings.EqualFold(u.Host, base.Host) {
		return nil, false
	}
	return u, true
}

// getDelay returns the delay to wait before updating the cache for from the `Cache-Update` header parameter.
// The delay directive syntax is `delay=N`, where N is the number of seconds to wait.
// Directives are separated by a semicolon.
// If no delay directive is found, it returns 0.
func getDelay(update string) time.Duration {
	if matches := delayDirective.FindStringSubmatch(update); matches != nil {
		if delay, err := strconv.Atoi(matches[1]); err == nil {
			return time.Duration(delay) * time.Second
		}
	}
	return 0
}
