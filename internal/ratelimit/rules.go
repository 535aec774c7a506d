package ratelimit

import (
	"fmt"
	"strings"
	"time"

	"github.com/Proton-105/horoscope-bot/pkg/config"
)

// Rule admits Limit requests per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Rules holds the parsed inbound limits. Rules without a window are unset.
type Rules struct {
	whitelist map[int64]struct{}
	global    *Rule
	perUser   *Rule
	commands  map[string]Rule
}

// NewRules parses the configured limits. Command names are matched without
// the leading slash and case-insensitively.
func NewRules(cfg config.RateLimitConfig) (*Rules, error) {
	r := &Rules{
		whitelist: make(map[int64]struct{}, len(cfg.Whitelist)),
		commands:  make(map[string]Rule, len(cfg.Commands)),
	}
	for _, id := range cfg.Whitelist {
		r.whitelist[id] = struct{}{}
	}

	var err error
	if r.global, err = parseRule("global", cfg.Global); err != nil {
		return nil, err
	}
	if r.perUser, err = parseRule("per_user", cfg.PerUser); err != nil {
		return nil, err
	}
	for name, raw := range cfg.Commands {
		rule, err := parseRule("commands."+name, raw)
		if err != nil {
			return nil, err
		}
		if rule != nil {
			r.commands[normalizeCommand(name)] = *rule
		}
	}

	return r, nil
}

// IsWhitelisted returns true if the userID bypasses rate limits.
func (r *Rules) IsWhitelisted(userID int64) bool {
	_, ok := r.whitelist[userID]
	return ok
}

// Global returns the limit shared by all users.
func (r *Rules) Global() (Rule, bool) {
	if r.global == nil {
		return Rule{}, false
	}
	return *r.global, true
}

// PerUser returns the limit applied to every update of a user.
func (r *Rules) PerUser() (Rule, bool) {
	if r.perUser == nil {
		return Rule{}, false
	}
	return *r.perUser, true
}

// Command returns the dedicated limit of a command such as "horoscope".
func (r *Rules) Command(name string) (Rule, bool) {
	rule, ok := r.commands[normalizeCommand(name)]
	return rule, ok
}

// MaxWindow is the longest configured window.
func (r *Rules) MaxWindow() time.Duration {
	var longest time.Duration
	for _, rule := range []*Rule{r.global, r.perUser} {
		if rule != nil && rule.Window > longest {
			longest = rule.Window
		}
	}
	for _, rule := range r.commands {
		if rule.Window > longest {
			longest = rule.Window
		}
	}
	return longest
}

func parseRule(name string, raw config.RateLimitRule) (*Rule, error) {
	if raw.Window == "" {
		return nil, nil
	}
	window, err := time.ParseDuration(raw.Window)
	if err != nil {
		return nil, fmt.Errorf("rate limit %s: %w", name, err)
	}
	if window <= 0 || raw.Limit <= 0 {
		return nil, fmt.Errorf("rate limit %s: limit and window must be positive", name)
	}
	return &Rule{Limit: raw.Limit, Window: window}, nil
}

func normalizeCommand(name string) string {
	return strings.ToLower(strings.TrimPrefix(name, "/"))
}
