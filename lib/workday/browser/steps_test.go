package browser

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestStepValidate(t *testing.T) {
	testCases := []struct {
		name  string
		step  Step
		valid bool
	}{
		{name: "input", step: Step{Kind: StepInput, Selector: "[id='15$378585']", Text: "CO503"}, valid: true},
		{name: "input without text", step: Step{Kind: StepInput, Selector: "#a"}},
		{name: "click", step: Step{Kind: StepClick, Selector: "[id='menuItem-9572$14']"}, valid: true},
		{name: "click without selector", step: Step{Kind: StepClick}},
		{name: "tab", step: Step{Kind: StepTab, Count: 3}, valid: true},
		{name: "tab without count", step: Step{Kind: StepTab}},
		{name: "text", step: Step{Kind: StepText, Text: "2023"}, valid: true},
		{name: "text with newline", step: Step{Kind: StepText, Text: "20\n23"}},
		{name: "empty text", step: Step{Kind: StepText}},
		{name: "unknown", step: Step{Kind: "hover", Selector: "#a"}},
		{name: "wait for value", step: Step{Kind: StepText, Text: "01", WaitFor: "input[aria-label='Month']", WaitValue: "1"}, valid: true},
		{name: "wait value without selector", step: Step{Kind: StepText, Text: "01", WaitValue: "1"}},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			err := test.step.Validate()
			if test.valid {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestNewProviderRejectsInvalidSteps(t *testing.T) {
	_, err := NewProvider(Options{Steps: []Step{{Kind: StepClick}}})
	require.ErrorContains(t, err, "search step 0")
}

func TestOptionsDefaults(t *testing.T) {
	opts := Options{BaseUrl: "https://wd5.myworkday.com/"}.withDefaults()
	require.Equal(t, "https://wd5.myworkday.com", opts.BaseUrl)
	require.Equal(t, "/gatech/d/task/1422$269", opts.SearchTask)
	require.Equal(t, "https://wd5.myworkday.com/gatech/flowController.htmld", opts.flowControllerUrl())
	require.Equal(t, 20*time.Second, opts.LoginTimeout)
	require.True(t, opts.interactive())

	opts = Options{Username: "gburdell3", Password: "hunter2"}.withDefaults()
	require.False(t, opts.interactive())

	custom := []Step{{Kind: StepClick, Selector: "#search"}}
	opts = Options{Steps: custom}.withDefaults()
	if diff := cmp.Diff(custom, opts.Steps); diff != "" {
		t.Fatal(diff)
	}
}

func TestNewProviderWithoutStepsRunsDefaultSearch(t *testing.T) {
	provider, err := NewProvider(Options{})
	require.NoError(t, err)
	if diff := cmp.Diff(DefaultSteps(), provider.opts.Steps); diff != "" {
		t.Fatal(diff)
	}
	require.Len(t, provider.opts.Steps, 16)

	for i, step := range DefaultSteps() {
		require.NoError(t, step.Validate(), "step %d", i)
	}

	dates := provider.opts.Steps[11:14]
	for i, value := range []string{"1", "1", "2023"} {
		require.Equal(t, StepText, dates[i].Kind)
		require.Equal(t, value, dates[i].WaitValue)
		require.Contains(t, dates[i].WaitFor, "ExternalField146_13403PromptQualifier2")
	}
}

func TestKeys(t *testing.T) {
	typed, err := keys("01")
	require.NoError(t, err)
	require.Equal(t, []input.Key{'0', '1'}, typed)

	_, err = keys("é")
	require.Error(t, err)

	require.Equal(t, []input.Key{input.Tab, input.Tab, input.Tab}, repeat(input.Tab, 3))
}

func TestFindLocator(t *testing.T) {
	testCases := []struct {
		name     string
		bodies   []string
		expected string
		found    bool
	}{
		{
			name:   "nothing captured",
			bodies: nil,
		},
		{
			name:   "no chunking url",
			bodies: []string{`{"body": {"children": [{"widget": "grid"}]}}`},
		},
		{
			name:   "not json",
			bodies: []string{`<html></html>`},
		},
		{
			name: "results page",
			bodies: []string{
				`{"body": {"children": [{}, {}, {"widget": "grid", "chunkingUrl": "/gatech/chunk/abc"}]}}`,
			},
			expected: "/gatech/chunk/abc",
			found:    true,
		},
		{
			name: "last response wins",
			bodies: []string{
				`{"body": {"children": [{"chunkingUrl": "/gatech/chunk/old"}]}}`,
				`not json`,
				`{"body": {"children": [{"chunkingUrl": "/gatech/chunk/new.htmld"}]}}`,
			},
			expected: "/gatech/chunk/new",
			found:    true,
		},
		{
			name:     "absolute url",
			bodies:   []string{`{"chunkingUrl": "https://wd5.myworkday.com/gatech/chunk/abc"}`},
			expected: "/gatech/chunk/abc",
			found:    true,
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			bodies := make([][]byte, len(test.bodies))
			for i, b := range test.bodies {
				bodies[i] = []byte(b)
			}
			locator, found := findLocator(bodies)
			require.Equal(t, test.found, found)
			if test.found {
				require.Equal(t, test.expected, locator)
			}
		})
	}
}

func TestResponseBody(t *testing.T) {
	body, err := responseBody(&proto.NetworkGetResponseBodyResult{Body: `{"a": 1}`})
	require.NoError(t, err)
	require.Equal(t, `{"a": 1}`, string(body))

	body, err = responseBody(&proto.NetworkGetResponseBodyResult{
		Body:          base64.StdEncoding.EncodeToString([]byte(`{"b": 2}`)),
		Base64Encoded: true,
	})
	require.NoError(t, err)
	require.Equal(t, `{"b": 2}`, string(body))
}

func TestCapture(t *testing.T) {
	c := newCapture("https://wd5.myworkday.com/gatech/flowController.htmld")

	c.onResponse(&proto.NetworkResponseReceived{
		RequestID: "1",
		Response:  &proto.NetworkResponse{URL: "https://wd5.myworkday.com/gatech/flowController.htmld", Status: 200},
	})
	c.onResponse(&proto.NetworkResponseReceived{
		RequestID: "2",
		Response:  &proto.NetworkResponse{URL: "https://wd5.myworkday.com/gatech/flowController.htmld", Status: 500},
	})
	c.onResponse(&proto.NetworkResponseReceived{
		RequestID: "3",
		Response:  &proto.NetworkResponse{URL: "https://wd5.myworkday.com/gatech/home.htmld", Status: 200},
	})
	c.onResponse(&proto.NetworkResponseReceived{
		RequestID: "4",
		Response:  &proto.NetworkResponse{URL: "https://wd5.myworkday.com/gatech/flowController.htmld?clientRequestID=x", Status: 200},
	})
	for _, id := range []proto.NetworkRequestID{"3", "4", "2", "1"} {
		c.onFinished(&proto.NetworkLoadingFinished{RequestID: id})
	}

	if diff := cmp.Diff([]proto.NetworkRequestID{"4", "1"}, c.finished()); diff != "" {
		t.Fatal(diff)
	}
}

func TestCookieMap(t *testing.T) {
	cookies := []*proto.NetworkCookie{
		{Name: "PLAY_SESSION", Value: "abc"},
		{Name: "wd-browser-id", Value: "def"},
	}
	expected := map[string]string{"PLAY_SESSION": "abc", "wd-browser-id": "def"}
	if diff := cmp.Diff(expected, cookieMap(cookies)); diff != "" {
		t.Fatal(diff)
	}
}
