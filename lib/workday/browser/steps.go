package browser

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"workday-sync/lib/tree"

	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

type StepKind string

const (
	// StepInput types Text followed by enter into the input under Selector.
	StepInput StepKind = "input"
	// StepClick clicks Selector.
	StepClick StepKind = "click"
	// StepTab presses tab Count times.
	StepTab StepKind = "tab"
	// StepText types Text into whatever has focus.
	StepText StepKind = "text"
)

// Step is one interaction with the search form.
type Step struct {
	Kind     StepKind `json:"kind"`
	Selector string   `json:"selector"`
	Text     string   `json:"text"`
	Count    int      `json:"count"`
	// WaitFor is a selector that must appear before the next step runs.
	WaitFor string `json:"wait_for"`
	// WaitValue additionally waits for the value of the WaitFor input.
	WaitValue string `json:"wait_value"`
}

// DefaultSteps fills in the expense reports search for the RoboJackets
// organization, used when no steps are configured.
func DefaultSteps() []Step {
	const worktags = "[id='ExternalField146_4946PromptQualifier1']"
	const costCenters = "[id='ExternalField146_7227PromptQualifier1']"
	const reportDate = "[id='ExternalField146_13403PromptQualifier2']"
	return []Step{
		{Kind: StepInput, Selector: "[id='15$378585']", Text: "CO503 Georgia Institute of Technology", WaitFor: "[id='pill-2501$1']"},
		{Kind: StepInput, Selector: costCenters, Text: "CC000375", WaitFor: "[id='pill-2502$367']"},
		{Kind: StepInput, Selector: costCenters, Text: "CC000259", WaitFor: "[id='pill-2502$180']"},
		{Kind: StepInput, Selector: worktags, Text: "CE0339", WaitFor: "[id='pill-2506$9979']"},
		{Kind: StepInput, Selector: worktags, Text: "DE00007513", WaitFor: "[id='pill-2506$38743']"},
		{Kind: StepInput, Selector: worktags, Text: "GTF250000211", WaitFor: "[id='pill-8261$1948']"},
		{Kind: StepInput, Selector: worktags, Text: "GTF551000258", WaitFor: "[id='pill-8261$7425']"},
		{Kind: StepInput, Selector: worktags, Text: "robojackets inc", WaitFor: "[id='menuItem-15341$7955']"},
		{Kind: StepClick, Selector: "[id='menuItem-15341$7955']", WaitFor: "[id='pill-15341$7955']"},
		{Kind: StepInput, Selector: worktags, Text: "robo jackets", WaitFor: "[id='menuItem-15341$1787']"},
		{Kind: StepTab, Count: 3},
		{Kind: StepText, Text: "01", WaitFor: reportDate + " input[aria-label='Month']", WaitValue: "1"},
		{Kind: StepText, Text: "01", WaitFor: reportDate + " input[aria-label='Day']", WaitValue: "1"},
		{Kind: StepText, Text: "2023", WaitFor: reportDate + " input[aria-label='Year']", WaitValue: "2023"},
		{Kind: StepClick, Selector: "[id='ExternalField3285_1140PromptQualifier1'] input", WaitFor: "[id='menuItem-9572$14']"},
		{Kind: StepClick, Selector: "[id='menuItem-9572$14']"},
	}
}

func (s Step) Validate() error {
	if s.WaitValue != "" && s.WaitFor == "" {
		return fmt.Errorf("wait_value needs a wait_for selector")
	}
	switch s.Kind {
	case StepInput:
		if s.Selector == "" || s.Text == "" {
			return fmt.Errorf("input step needs a selector and a text")
		}
	case StepClick:
		if s.Selector == "" {
			return fmt.Errorf("click step needs a selector")
		}
	case StepTab:
		if s.Count < 1 {
			return fmt.Errorf("tab step needs a count of at least 1")
		}
	case StepText:
		_, err := keys(s.Text)
		if err != nil {
			return err
		}
		if s.Text == "" {
			return fmt.Errorf("text step needs a text")
		}
	default:
		return fmt.Errorf("unknown step kind %q", s.Kind)
	}
	return nil
}

func (s Step) String() string {
	switch s.Kind {
	case StepTab:
		return fmt.Sprintf("tab x%d", s.Count)
	case StepText:
		return fmt.Sprintf("text %q", s.Text)
	default:
		return fmt.Sprintf("%s %s", s.Kind, s.Selector)
	}
}

// keys maps printable ascii text to keyboard keys.
func keys(text string) ([]input.Key, error) {
	out := make([]input.Key, 0, len(text))
	for _, r := range text {
		if r < ' ' || r > '~' {
			return nil, fmt.Errorf("cannot type %q, only printable ascii is supported", r)
		}
		out = append(out, input.Key(r))
	}
	return out, nil
}

func repeat(key input.Key, count int) []input.Key {
	out := make([]input.Key, count)
	for i := range out {
		out[i] = key
	}
	return out
}

// responseBody decodes a body captured over the devtools protocol.
func responseBody(res *proto.NetworkGetResponseBodyResult) ([]byte, error) {
	if res.Base64Encoded {
		return base64.StdEncoding.DecodeString(res.Body)
	}
	return []byte(res.Body), nil
}

// findLocator returns the chunkingUrl of the last flowController response
// that has one, the result grid is rendered by the last of them.
func findLocator(bodies [][]byte) (string, bool) {
	locator := ""
	for _, body := range bodies {
		doc, err := tree.Parse(body)
		if err != nil {
			continue
		}
		for _, m := range tree.SearchKey(doc, "chunkingUrl") {
			value, ok := tree.String(m, "chunkingUrl")
			if ok && value != "" {
				locator = value
			}
		}
	}
	if u, err := url.Parse(locator); err == nil && u.IsAbs() {
		locator = u.Path
	}
	locator = strings.TrimSuffix(locator, ".htmld")
	return locator, strings.HasPrefix(locator, "/")
}

func cookieMap(cookies []*proto.NetworkCookie) map[string]string {
	out := make(map[string]string, len(cookies))
	for _, c := range cookies {
		out[c.Name] = c.Value
	}
	return out
}
