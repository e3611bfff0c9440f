package tree

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func mustParse(t testing.TB, doc string) any {
	out, err := Parse([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestSearch(t *testing.T) {
	testCases := []struct {
		name     string
		doc      string
		key      string
		value    string
		expected []map[string]any
	}{
		{
			name:     "empty document",
			doc:      `{}`,
			key:      "label",
			value:    "Expense Lines",
			expected: nil,
		},
		{
			name:     "absent key",
			doc:      `{"widget": "grid", "children": [{"widget": "text"}]}`,
			key:      "label",
			value:    "Expense Lines",
			expected: nil,
		},
		{
			name:  "top level match",
			doc:   `{"label": "Expense Lines", "rows": []}`,
			key:   "label",
			value: "Expense Lines",
			expected: []map[string]any{
				{"label": "Expense Lines", "rows": []any{}},
			},
		},
		{
			name: "nested in sequences and mappings",
			doc: `{
				"body": {
					"children": [
						{"label": "Summary"},
						{"widget": "panel", "children": [{"label": "Expense Lines", "id": "a"}]}
					]
				}
			}`,
			key:   "label",
			value: "Expense Lines",
			expected: []map[string]any{
				{"label": "Expense Lines", "id": "a"},
			},
		},
		{
			name: "all matches in pre-order",
			doc: `[
				{"widget": "extensionActions", "n": "1"},
				[{"x": {"widget": "extensionActions", "n": "2"}}],
				{"widget": "extensionActions", "n": "3"}
			]`,
			key:   "widget",
			value: "extensionActions",
			expected: []map[string]any{
				{"widget": "extensionActions", "n": "1"},
				{"widget": "extensionActions", "n": "2"},
				{"widget": "extensionActions", "n": "3"},
			},
		},
		{
			name:  "match is not descended into",
			doc:   `{"label": "Expense Lines", "inner": {"label": "Expense Lines"}}`,
			key:   "label",
			value: "Expense Lines",
			expected: []map[string]any{
				{"label": "Expense Lines", "inner": map[string]any{"label": "Expense Lines"}},
			},
		},
		{
			name:     "value must be equal, not just present",
			doc:      `{"instanceId": "1074$43", "children": [{"instanceId": 1074}]}`,
			key:      "instanceId",
			value:    "1074$42",
			expected: nil,
		},
		{
			name:     "scalar document",
			doc:      `"Expense Lines"`,
			key:      "label",
			value:    "Expense Lines",
			expected: nil,
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			root := mustParse(t, test.doc)
			matches := Search(root, test.key, test.value)
			diff := cmp.Diff(test.expected, matches)
			if diff != "" {
				t.Fatal(diff)
			}
			for _, m := range matches {
				require.Equal(t, test.value, m[test.key])
			}
		})
	}
}

func TestSearchOrderIsStable(t *testing.T) {
	root := mustParse(t, `{
		"b": {"instanceId": "1074$1", "target": "b"},
		"a": {"instanceId": "1074$1", "target": "a"},
		"c": [{"instanceId": "1074$1", "target": "c"}]
	}`)

	for i := 0; i < 10; i++ {
		matches := Search(root, "instanceId", "1074$1")
		require.Len(t, matches, 3)
		require.Equal(t, "a", matches[0]["target"])
		require.Equal(t, "b", matches[1]["target"])
		require.Equal(t, "c", matches[2]["target"])
	}
}

func TestSearchKey(t *testing.T) {
	root := mustParse(t, `{
		"body": {
			"children": [
				{"widget": "facetSearch"},
				{"widget": "grid"},
				{"widget": "table", "chunkingUrl": "/gatech/chunk/1$2"}
			]
		}
	}`)

	matches := SearchKey(root, "chunkingUrl")
	require.Len(t, matches, 1)
	locator, ok := String(matches[0], "chunkingUrl")
	require.True(t, ok)
	require.Equal(t, "/gatech/chunk/1$2", locator)
}

func TestParse(t *testing.T) {
	root, err := Parse([]byte(`{"amount": 12345678901234567890, "ok": true, "none": null}`))
	require.NoError(t, err)
	require.Equal(t, `{"amount":12345678901234567890,"none":null,"ok":true}`, Dump(root))

	_, err = Parse([]byte(`{"a": 1} {"b": 2}`))
	require.Error(t, err)

	_, err = Parse([]byte(`<html></html>`))
	require.Error(t, err)
}

func TestAccessors(t *testing.T) {
	root := mustParse(t, `{"rows": [{"id": "A"}], "text": "receipt.pdf", "count": 3}`)
	m, ok := Map(root)
	require.True(t, ok)

	rows, ok := Slice(m, "rows")
	require.True(t, ok)
	require.Len(t, rows, 1)

	text, ok := String(m, "text")
	require.True(t, ok)
	require.Equal(t, "receipt.pdf", text)

	_, ok = String(m, "count")
	require.False(t, ok)
	_, ok = Slice(m, "text")
	require.False(t, ok)
	_, ok = Map(rows)
	require.False(t, ok)
}
