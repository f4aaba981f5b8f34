package daemon

import (
	"context"

	"github.com/al-bashkir/securelog/internal/formatter"
	"github.com/al-bashkir/securelog/internal/sink"
)

// Pipeline formats events and writes the records to a sink.
type Pipeline struct {
	f   *formatter.Formatter
	out *sink.Writer
}

// NewPipeline creates a pipeline writing to out.
func NewPipeline(f *formatter.Formatter, out *sink.Writer) *Pipeline {
	return &Pipeline{f: f, out: out}
}

// Handle writes one record per event, in order. It stops at the first
// write error and reports how many records were written.
func (p *Pipeline) Handle(ctx context.Context, events []formatter.LogEvent) (int, error) {
	for i, ev := range events {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := p.out.WriteRecord(p.f.Format(ev)); err != nil {
			return i, err
		}
	}
	return len(events), nil
}
