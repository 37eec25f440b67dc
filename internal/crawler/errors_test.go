package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyFetchError(t *testing.T) {
	t.Parallel()

	existing := &FetchError{Kind: FetchInvalidPort, URL: "http://a.example"}
	cases := []struct {
		name string
		err  error
		want FetchErrorKind
	}{
		{"deadline", fmt.Errorf("dial: %w", context.DeadlineExceeded), FetchTimeout},
		{"canceled", context.Canceled, FetchCanceled},
		{"dns", &net.DNSError{Err: "no such host", Name: "a.example", IsNotFound: true}, FetchUnreachableHost},
		{"addr", &net.AddrError{Err: "invalid port", Addr: "a.example:x"}, FetchInvalidPort},
		{"net timeout", &net.OpError{Op: "read", Err: timeoutErr{}}, FetchTimeout},
		{"other", errors.New("connection reset"), FetchTransport},
		{"already typed", fmt.Errorf("wrapped: %w", existing), FetchInvalidPort},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fe := ClassifyFetchError("http://a.example", tc.err)
			require.NotNil(t, fe)
			require.Equal(t, tc.want, fe.Kind)
			require.True(t, errors.Is(fe, tc.err) || errors.Is(tc.err, fe))
		})
	}
	require.Nil(t, ClassifyFetchError("http://a.example", nil))
}

func TestConfigErrorMatchesSentinel(t *testing.T) {
	t.Parallel()

	err := error(&ConfigError{Field: "max_pages", Reason: "must be >= 1"})
	require.ErrorIs(t, err, ErrInvalidConfig)
	require.Contains(t, err.Error(), "max_pages")
}
