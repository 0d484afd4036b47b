// Package cachekey derives storage keys for requests.
//
// A key identifies a resource: the request method (HEAD shares the GET
// key) and the canonical absolute target URI. A variant identifies one of
// the representations stored for a key: the request header fields named by
// the stored response's Vary header field.
package cachekey

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/always-cache/cachexec/pkg/header"
	"github.com/always-cache/cachexec/rfc9111"
)

var ErrMalformedKey = fmt.Errorf("malformed key")

const (
	methodSeparator = " "
	varySeparator   = "\t"
	varyLine        = "\n"
	varyValue       = ": "
)

type Keyer struct {
	// Prefix namespaces every key, so several caches can share a backend.
	Prefix string
}

func NewKeyer(prefix string) Keyer {
	return Keyer{Prefix: prefix}
}

// Key returns the key of the resource targeted by method and u.
func (k Keyer) Key(method string, u *url.URL) string {
	return k.MethodPrefix(method) + CanonicalURI(u)
}

// MethodPrefix gets the key prefix of all resources requested with method.
func (k Keyer) MethodPrefix(method string) string {
	if method == "HEAD" {
		method = "GET"
	}
	return k.Prefix + method + methodSeparator
}

// StorageKey joins a key and a variant into the single string used by
// backends that store variants side by side.
func StorageKey(key, variant string) string {
	return key + varySeparator + variant
}

// SplitStorageKey is the inverse of StorageKey.
func SplitStorageKey(storageKey string) (key, variant string, err error) {
	key, variant, found := strings.Cut(storageKey, varySeparator)
	if !found {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedKey, storageKey)
	}
	return key, variant, nil
}

// Variant returns the variant identifier of a request for a response with
// the given Vary field names. Absent fields are left out, so an absent
// field and an empty one have different variants.
func Variant(req header.Fields, varyNames []string) string {
	var b strings.Builder
	for _, name := range varyNames {
		value, ok := rfc9111.NormalizedValue(req, name)
		if !ok {
			continue
		}
		b.WriteString(varyLine + strings.ToLower(name) + varyValue + value)
	}
	return b.String()
}

// VariantHeader returns the header fields encoded in a variant.
func VariantHeader(variant string) header.Fields {
	var fields header.Fields
	for _, line := range strings.Split(variant, varyLine) {
		if line == "" {
			continue
		}
		name, value, _ := strings.Cut(line, varyValue)
		fields.Add(name, value)
	}
	return fields
}

// Resource returns the method and target URI a key was derived from.
func (k Keyer) Resource(key string) (method string, u *url.URL, err error) {
	if !strings.HasPrefix(key, k.Prefix) {
		return "", nil, fmt.Errorf("%w: %q has a foreign prefix", ErrMalformedKey, key)
	}
	method, uri, found := strings.Cut(strings.TrimPrefix(key, k.Prefix), methodSeparator)
	if !found {
		return "", nil, fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	u, err = url.Parse(uri)
	if err != nil {
		return "", nil, err
	}
	return method, u, nil
}

// CanonicalURI normalizes an absolute URI for use in keys: scheme and
// host are lower-cased, default ports and fragments are dropped and an
// empty path becomes "/".
func CanonicalURI(u *url.URL) string {
	c := *u
	c.Scheme = strings.ToLower(c.Scheme)
	host := strings.ToLower(c.Hostname())
	port := c.Port()
	if (c.Scheme == "http" && port == "80") || (c.Scheme == "https" && port == "443") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		host += ":" + port
	}
	c.Host = host
	c.Fragment, c.RawFragment = "", ""
	c.User = nil
	if c.Path == "" && c.Opaque == "" {
		c.Path = "/"
		c.RawPath = ""
	}
	return c.String()
}
