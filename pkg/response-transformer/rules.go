// Package responsetransformer adjusts origin responses by configured
// rules before the cache evaluates them.
package responsetransformer

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/always-cache/cachexec/pkg/message"
)

type Rules []Rule

// Rule matches GET requests by path and query, and sets response header
// fields. The first matching rule applies.
type Rule struct {
	Prefix string `yaml:"prefix"`
	Path   string `yaml:"path"`
	// Default is the Cache-Control of responses that carry none.
	Default string `yaml:"default"`
	// Override replaces the Cache-Control of every response.
	Override string            `yaml:"override"`
	Query    map[string]string `yaml:"query"`
	Headers  map[string]string `yaml:"headers"`
}

// Apply applies the first rule matching req to res.
func (r Rules) Apply(req *message.Request, res *message.Response) error {
	// only apply rules for successes
	if res.StatusCode != 200 {
		return nil
	}
	// if rule found, apply to response
	if rule := r.find(req); rule != nil {
		applyRuleToResponse(*rule, res)
	}
	return nil
}

func applyRuleToResponse(rule Rule, res *message.Response) {
	if rule.Override != "" {
		log.Trace().Msg("Overriding Cache-Control header")
		res.Header.Set("Cache-Control", rule.Override)
	} else if rule.Default != "" && !res.Header.Has("Cache-Control") {
		log.Trace().Msg("Applying default Cache-Control header")
		res.Header.Set("Cache-Control", rule.Default)
	}
	for name, value := range rule.Headers {
		log.Trace().Msgf("Setting header %s", name)
		res.Header.Set(name, value)
	}
}

func (r Rules) find(req *message.Request) *Rule {
	// rules only describe cacheable reads
	if req.Method != "GET" && req.Method != "HEAD" {
		return nil
	}
	log.Trace().Msgf("Finding rule for request %s:%s", req.Method, req.URL.Path)
rulesLoop:
	for i := range r {
		rule := &r[i]
		if rule.Path != "" && rule.Path != req.URL.Path {
			continue
		}
		if rule.Prefix != "" && !strings.HasPrefix(req.URL.Path, rule.Prefix) {
			continue
		}
		if len(rule.Query) > 0 {
			qry := req.URL.Query()
			for name, value := range rule.Query {
				if value == "" && !qry.Has(name) {
					continue rulesLoop
				} else if value != "" && qry.Get(name) != value {
					continue rulesLoop
				}
			}
		}
		return rule
	}
	return nil
}
