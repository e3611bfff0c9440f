package loop

import (
	"encoding/json"
	"fmt"
)

// Worklist lists the Workday instance ids Loop still needs, per entity kind.
// Loop is the only bookkeeper of sync progress, a fresh Worklist is requested
// on every run.
type Worklist struct {
	Workers                  []string
	ExternalCommitteeMembers []string
	ExpenseReports           []string
}

func (w Worklist) Len() int {
	return len(w.Workers) + len(w.ExternalCommitteeMembers) + len(w.ExpenseReports)
}

const (
	keyWorkers                  = "workers"
	keyExternalCommitteeMembers = "external-committee-members"
	keyExpenseReports           = "expense-reports"
	keyAttachments              = "attachments"
)

// every list must be present, a missing kind would otherwise be skipped silently
func (w *Worklist) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	err := json.Unmarshal(data, &raw)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedAck, err.Error())
	}

	targets := []struct {
		key string
		out *[]string
	}{
		{key: keyWorkers, out: &w.Workers},
		{key: keyExternalCommitteeMembers, out: &w.ExternalCommitteeMembers},
		{key: keyExpenseReports, out: &w.ExpenseReports},
	}
	for _, t := range targets {
		*t.out, err = stringList(raw, t.key)
		if err != nil {
			return err
		}
	}
	return nil
}

// LineAck is Loop's answer to a line upload: the attachments it does not have yet.
type LineAck struct {
	Attachments []string
}

func (a *LineAck) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	err := json.Unmarshal(data, &raw)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedAck, err.Error())
	}
	a.Attachments, err = stringList(raw, keyAttachments)
	return err
}

func stringList(raw map[string]json.RawMessage, key string) ([]string, error) {
	value, ok := raw[key]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q", ErrMalformedAck, key)
	}

	var items []json.RawMessage
	err := json.Unmarshal(value, &items)
	if err != nil || items == nil {
		return nil, fmt.Errorf("%w: %q is not a list", ErrMalformedAck, key)
	}

	out := make([]string, len(items))
	for i, item := range items {
		if string(item) == "null" {
			return nil, fmt.Errorf("%w: %q[%d] is null", ErrMalformedAck, key, i)
		}
		// loop serializes ids as strings, though integer ids are tolerated
		var s string
		if json.Unmarshal(item, &s) == nil {
			out[i] = s
			continue
		}
		var n json.Number
		if json.Unmarshal(item, &n) == nil {
			out[i] = n.String()
			continue
		}
		return nil, fmt.Errorf("%w: %q[%d] is not an id", ErrMalformedAck, key, i)
	}
	return out, nil
}
