// Package target extracts a probe destination from the free-text "impacted system"
// field of an event. Input comes from a monitoring tool and is often not a URL, so
// resolution never fails: it tries a fixed chain of parsers and returns the first hit.
package target

import (
	"net"
	"net/url"
	"strconv"
	"strings"
)

type Scheme string

const (
	SchemeHTTP  Scheme = "http"
	SchemeHTTPS Scheme = "https"
	SchemeTCP   Scheme = "tcp"
)

type Target struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Scheme Scheme `json:"scheme"`
}

// Valid reports whether the target has a host to probe.
func (t Target) Valid() bool {
	return t.Host != ""
}

// Address is host:port suitable for net.Dial.
func (t Target) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

func (t Target) String() string {
	return string(t.Scheme) + "://" + t.Address()
}

// Strategy is one parser in the chain. ok is false when the input is not in the
// strategy's format.
type Strategy func(raw string) (t Target, ok bool)

// Chain is the default order: full URL, host:port, bare host.
var Chain = []Strategy{ParseURL, ParseHostPort, ParseBareHost}

// Resolve returns the first successful strategy result, or an empty Target.
func Resolve(raw string) Target {
	return ResolveWith(raw, Chain...)
}

func ResolveWith(raw string, strategies ...Strategy) Target {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Target{}
	}
	for _, strategy := range strategies {
		if t, ok := strategy(s); ok {
			return t
		}
	}
	return Target{}
}

// ParseURL accepts http and https URLs with a hostname. Missing ports default to
// 80 or 443. Only the scheme and authority are parsed, so a malformed path or
// query does not hide an otherwise usable host.
func ParseURL(s string) (Target, bool) {
	u, err := url.Parse(authority(s))
	if err != nil {
		return Target{}, false
	}
	scheme := Scheme(strings.ToLower(u.Scheme))
	if scheme != SchemeHTTP && scheme != SchemeHTTPS {
		return Target{}, false
	}
	host := u.Hostname()
	if host == "" {
		return Target{}, false
	}
	port := 80
	if scheme == SchemeHTTPS {
		port = 443
	}
	if p := u.Port(); p != "" {
		n, ok := parsePort(p)
		if !ok {
			return Target{}, false
		}
		port = n
	}
	return Target{Host: host, Port: port, Scheme: scheme}, true
}

// ParseHostPort accepts host:port with an optional trailing path.
func ParseHostPort(s string) (Target, bool) {
	s = stripPath(s)
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		// Not bracketed or more than one colon: split on the first one.
		var found bool
		host, port, found = strings.Cut(s, ":")
		if !found {
			return Target{}, false
		}
	}
	host = strings.TrimSpace(host)
	n, ok := parsePort(strings.TrimSpace(port))
	if !ok || host == "" {
		return Target{}, false
	}
	return Target{Host: host, Port: n, Scheme: SchemeTCP}, true
}

// ParseBareHost treats the text before any path as a host on port 80. Text that
// still has a colon is only accepted when it is an IP literal.
func ParseBareHost(s string) (Target, bool) {
	host := strings.TrimSpace(stripPath(s))
	if host == "" {
		return Target{}, false
	}
	if strings.Contains(host, ":") {
		ip := net.ParseIP(strings.Trim(host, "[]"))
		if ip == nil {
			return Target{}, false
		}
		host = ip.String()
	}
	return Target{Host: host, Port: 80, Scheme: SchemeTCP}, true
}

// authority cuts a URL after its host part.
func authority(s string) string {
	_, rest, ok := strings.Cut(s, "://")
	if !ok {
		return s
	}
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		return s[:len(s)-len(rest)+i]
	}
	return s
}

func stripPath(s string) string {
	head, _, _ := strings.Cut(s, "/")
	return head
}

func parsePort(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 65535 {
		return 0, false
	}
	return n, true
}
