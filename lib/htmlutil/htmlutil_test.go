package htmlutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLooksLikeHtml(t *testing.T) {
	testCases := []struct {
		body     string
		expected bool
	}{
		{body: "<!DOCTYPE html><html><head></head></html>", expected: true},
		{body: "\n  <html lang=\"en\">", expected: true},
		{body: "<meta charset=utf-8><head><title>x</title></head>", expected: true},
		{body: `{"widget": "page"}`, expected: false},
		{body: "", expected: false},
		{body: "<xml/>", expected: false},
	}

	for _, test := range testCases {
		require.Equal(t, test.expected, LooksLikeHtml([]byte(test.body)), test.body)
	}
}

func TestSummarize(t *testing.T) {
	withTitle := []byte(`<html><head><title>
		Sign In   - Workday
	</title></head><body>ignored</body></html>`)
	require.Equal(t, "Sign In - Workday", Summarize(withTitle, 100))

	withoutTitle := []byte(`<html><body><script>var x = 1;</script><p>Your session   has expired.</p></body></html>`)
	require.Equal(t, "Your session has expired.", Summarize(withoutTitle, 100))
	require.Equal(t, "Your", Summarize(withoutTitle, 4))
}
