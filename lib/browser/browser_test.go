package browser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusFromHTTP(t *testing.T) {
	testCases := []struct {
		code     int
		expected Status
	}{
		{200, StatusOK},
		{204, StatusOK},
		{301, StatusOK},
		{404, StatusNotFound},
		{403, StatusError},
		{500, StatusError},
	}
	for _, test := range testCases {
		require.Equal(t, test.expected, StatusFromHTTP(test.code), "code %d", test.code)
	}
}

func TestOptionsDefaults(t *testing.T) {
	opts := Options{}
	opts.fillDefaults()
	require.NotEmpty(t, opts.ProfileDir)
	require.Equal(t, 9222, opts.DebugPort)
	require.NotZero(t, opts.ActionWait)
	require.NotZero(t, opts.ScrollStep)
	require.NotEmpty(t, opts.UserAgent)
}
