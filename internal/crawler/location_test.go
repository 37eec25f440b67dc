package crawler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw     string
		host    string
		port    int
		uri     string
		str     string
		wantErr AdmissionReason
	}{
		{raw: "http://Example.COM", host: "example.com", port: 80, uri: "/", str: "http://example.com"},
		{raw: "https://a.example/x/index.html?q=1#frag", host: "a.example", port: 443, uri: "/x/index.html?q=1", str: "https://a.example/x/index.html?q=1"},
		{raw: "http://a.example:8080/p", host: "a.example", port: 8080, uri: "/p", str: "http://a.example:8080/p"},
		{raw: "  https://a.example:443/  ", host: "a.example", port: 443, uri: "/", str: "https://a.example/"},
		{raw: "http://[::1]:9000/", host: "::1", port: 9000, uri: "/", str: "http://[::1]:9000/"},
		{raw: "ftp://a.example/", wantErr: ReasonUnsupportedScheme},
		{raw: "mailto:someone@a.example", wantErr: ReasonUnsupportedScheme},
		{raw: "/relative/path", wantErr: ReasonMalformed},
		{raw: "http://", wantErr: ReasonMalformed},
		{raw: "http://a.example:0/", wantErr: ReasonMalformed},
		{raw: "http://a.example:70000/", wantErr: ReasonMalformed},
		{raw: "http://a b.example/%zz", wantErr: ReasonMalformed},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.raw, func(t *testing.T) {
			t.Parallel()
			loc, err := ParseLocation(tc.raw)
			if tc.wantErr != "" {
				var ae *AdmissionError
				require.True(t, errors.As(err, &ae), "expected AdmissionError, got %v", err)
				require.Equal(t, tc.wantErr, ae.Reason)
				require.True(t, loc.IsZero())
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.host, loc.Host())
			require.Equal(t, tc.port, loc.Port())
			require.Equal(t, tc.uri, loc.RequestURI())
			require.Equal(t, tc.str, loc.String())
		})
	}
}

func TestLocationPageType(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"http://a.example":                true,
		"http://a.example/":               true,
		"http://a.example/about":          true,
		"http://a.example/index.html":     true,
		"http://a.example/INDEX.HTM":      true,
		"http://a.example/v1.2/page":      true,
		"http://a.example/report.pdf":     false,
		"http://a.example/logo.PNG":       false,
		"http://a.example/page.php?x=1":   false,
		"http://a.example/archive.tar.gz": false,
	}
	for raw, want := range cases {
		loc, err := ParseLocation(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, loc.IsHTMLPage(), raw)
	}
}

func TestLocationAddress(t *testing.T) {
	t.Parallel()

	loc, err := ParseLocation("https://a.example/x")
	require.NoError(t, err)
	require.Equal(t, "a.example:443", loc.Address())
	require.Equal(t, "https", loc.Scheme())
	require.Equal(t, "/x", loc.Path())
}

func TestResultRecordString(t *testing.T) {
	t.Parallel()

	rec := ResultRecord{Host: "a.example", RTT: 1234567890}
	require.Equal(t, "a.example                               1234 milliseconds", rec.String())
}
