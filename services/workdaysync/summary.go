package workdaysync

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Summary counts what a run uploaded to Loop.
type Summary struct {
	RunId    string
	Synced   map[Kind]int
	Bytes    int64
	Duration time.Duration
}

func newSummary() *Summary {
	return &Summary{Synced: map[Kind]int{}}
}

func (s *Summary) clone() Summary {
	out := *s
	out.Synced = make(map[Kind]int, len(s.Synced))
	for k, v := range s.Synced {
		out.Synced[k] = v
	}
	return out
}

// Total is the number of entities synced, of every kind.
func (s Summary) Total() int {
	total := 0
	for _, n := range s.Synced {
		total += n
	}
	return total
}

// Render writes the summary as a table.
func (s Summary) Render(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("workday sync %s", s.RunId))
	t.AppendHeader(table.Row{"Kind", "Synced"})
	for _, kind := range kinds {
		t.AppendRow(table.Row{string(kind), s.Synced[kind]})
	}
	t.AppendFooter(table.Row{"Total", s.Total()})
	t.AppendFooter(table.Row{"Attachment bytes", s.Bytes})
	t.AppendFooter(table.Row{"Duration", s.Duration.Round(time.Millisecond).String()})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})
	t.Render()
}
