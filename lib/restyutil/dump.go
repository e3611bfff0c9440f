package restyutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

// Dumper writes every request/response pair of a client into its own file,
// named `<prefix>-<n>.txt`, so a failed run can be inspected afterwards.
type Dumper struct {
	directory string
	counter   *uint64
}

func NewDumper(dir string) (Dumper, error) {
	err := os.MkdirAll(dir, 0700)
	if err != nil {
		return Dumper{}, err
	}
	var counter uint64
	return Dumper{directory: dir, counter: &counter}, nil
}

func (d Dumper) write(prefix, contents string) string {
	id := atomic.AddUint64(d.counter, 1)
	name := filepath.Join(d.directory, fmt.Sprintf("%s-%04d.txt", prefix, id))
	err := os.WriteFile(name, []byte(contents), 0600)
	if err != nil {
		slog.Warn("failed to write http dump", "file", name, "err", err)
	}
	return name
}

// Attach makes the client dump every response it receives. A zero Dumper is
// a no-op.
func (d Dumper) Attach(client *resty.Client, prefix string) {
	if d.counter == nil {
		return
	}
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		name := d.write(prefix, formatHttpMessage(res))
		slog.Debug(
			"http exchange dumped",
			"method", res.Request.Method,
			"url", res.Request.URL,
			"status", res.StatusCode(),
			"file", name,
		)
		return nil
	})
}
