package crawler

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"strconv"
	"strings"
)

const (
	defaultHTTPPort  = 80
	defaultHTTPSPort = 443
)

// Location is a normalized absolute http(s) address. The zero value is not a
// valid Location; build one with ParseLocation.
type Location struct {
	scheme string
	host   string
	path   string
	query  string
	port   int
}

// ParseLocation normalizes raw into a Location. It lowercases the scheme and
// host, drops the fragment, and resolves a missing port from the scheme.
// Failures are returned as *AdmissionError.
func ParseLocation(raw string) (Location, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Location{}, &AdmissionError{URL: raw, Reason: ReasonMalformed, Err: err}
	}
	if !u.IsAbs() {
		return Location{}, &AdmissionError{URL: raw, Reason: ReasonMalformed, Err: fmt.Errorf("url is not absolute")}
	}

	scheme := strings.ToLower(u.Scheme)
	var port int
	switch scheme {
	case "http":
		port = defaultHTTPPort
	case "https":
		port = defaultHTTPSPort
	default:
		return Location{}, &AdmissionError{URL: raw, Reason: ReasonUnsupportedScheme}
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return Location{}, &AdmissionError{URL: raw, Reason: ReasonMalformed, Err: fmt.Errorf("missing host")}
	}
	if p := u.Port(); p != "" {
		n, convErr := strconv.Atoi(p)
		if convErr != nil || n < 1 || n > 65535 {
			return Location{}, &AdmissionError{URL: raw, Reason: ReasonMalformed, Err: fmt.Errorf("invalid port %q", p)}
		}
		port = n
	}

	return Location{
		scheme: scheme,
		host:   host,
		path:   u.EscapedPath(),
		query:  u.RawQuery,
		port:   port,
	}, nil
}

// Scheme returns "http" or "https".
func (l Location) Scheme() string { return l.scheme }

// Host returns the lowercased host name without port.
func (l Location) Host() string { return l.host }

// Path returns the escaped request path, possibly empty.
func (l Location) Path() string { return l.path }

// Port returns the explicit or scheme-derived port.
func (l Location) Port() int { return l.port }

// IsZero reports whether l was never parsed.
func (l Location) IsZero() bool { return l.scheme == "" }

// Address returns host:port suitable for dialing.
func (l Location) Address() string {
	return net.JoinHostPort(l.host, strconv.Itoa(l.port))
}

// RequestURI returns the path and query sent on the request line.
func (l Location) RequestURI() string {
	p := l.path
	if p == "" {
		p = "/"
	}
	if l.query != "" {
		return p + "?" + l.query
	}
	return p
}

// URL returns the location as a *url.URL, omitting default ports.
func (l Location) URL() *url.URL {
	host := l.host
	if !l.defaultPort() {
		host = l.Address()
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return &url.URL{
		Scheme:   l.scheme,
		Host:     host,
		RawPath:  l.path,
		Path:     unescapePath(l.path),
		RawQuery: l.query,
	}
}

func (l Location) String() string {
	if l.IsZero() {
		return ""
	}
	return l.URL().String()
}

// PageType returns the lowercased extension of the last path segment
// without the dot, or "" when there is none.
func (l Location) PageType() string {
	ext := path.Ext(l.path)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsHTMLPage reports whether the path looks like an HTML document: no
// extension, or html/htm.
func (l Location) IsHTMLPage() bool {
	switch l.PageType() {
	case "", "html", "htm":
		return true
	default:
		return false
	}
}

func (l Location) defaultPort() bool {
	return (l.scheme == "http" && l.port == defaultHTTPPort) ||
		(l.scheme == "https" && l.port == defaultHTTPSPort)
}

func unescapePath(p string) string {
	out, err := url.PathUnescape(p)
	if err != nil {
		return p
	}
	return out
}
