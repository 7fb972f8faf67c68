package sshx

import (
	"strconv"
	"strings"
	"time"
)

// Options is the parsed form of a connection-options string. The string is
// a space-separated key=value list ("user=root port=2222 timeout=15s
// pty=true env.LANG=C"); unknown keys are ignored so callers can pass
// transport-specific extras through untouched.
type Options struct {
	User     string
	Port     int
	KeyPath  string
	Password string
	Timeout  time.Duration
	PTY      bool
	Env      map[string]string
}

// ParseOptions parses a connection-options string. Malformed pairs are
// skipped rather than rejected: per-call options are advisory.
func ParseOptions(s string) Options {
	opts := Options{Port: 22, Timeout: 10 * time.Second}
	for _, tok := range strings.Fields(s) {
		key, val, ok := strings.Cut(tok, "=")
		if !ok {
			continue
		}
		switch {
		case key == "user":
			opts.User = val
		case key == "port":
			if p, err := strconv.Atoi(val); err == nil && p > 0 {
				opts.Port = p
			}
		case key == "key":
			opts.KeyPath = val
		case key == "password":
			opts.Password = val
		case key == "timeout":
			if d, err := time.ParseDuration(val); err == nil && d > 0 {
				opts.Timeout = d
			}
		case key == "pty":
			opts.PTY = val == "true" || val == "1"
		case strings.HasPrefix(key, "env."):
			if opts.Env == nil {
				opts.Env = map[string]string{}
			}
			opts.Env[strings.TrimPrefix(key, "env.")] = val
		}
	}
	return opts
}

// MergeOptions appends per-call options to the base string. Later pairs
// overwrite earlier ones during parsing, so per-call options take
// precedence over the base connection options.
func MergeOptions(base, additional string) string {
	base = strings.TrimSpace(base)
	additional = strings.TrimSpace(additional)
	switch {
	case base == "":
		return additional
	case additional == "":
		return base
	default:
		return base + " " + additional
	}
}
