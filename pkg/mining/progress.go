package mining

import (
	"fmt"
	"io"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// progress renders one bar per phase. A nil *progress is a no-op. Bars
// refresh even when w is not a terminal, so piped and captured output
// still shows them.
type progress struct {
	p *mpb.Progress
}

func newProgress(w io.Writer) *progress {
	if w == nil {
		return nil
	}
	return &progress{p: mpb.New(
		mpb.WithOutput(w),
		mpb.WithWidth(64),
		mpb.WithAutoRefresh(),
	)}
}

type bar struct {
	b *mpb.Bar
}

func (pr *progress) bar(name string, total int) *bar {
	if pr == nil {
		return nil
	}
	b := pr.p.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name(name+": "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.AverageETA(decor.ET_STYLE_GO),
		),
	)
	return &bar{b: b}
}

func (b *bar) increment() {
	if b != nil {
		b.b.Increment()
	}
}

// abort removes an unfinished bar.
func (b *bar) abort() {
	if b != nil && !b.b.Completed() {
		b.b.Abort(true)
	}
}

func (pr *progress) wait() {
	if pr != nil {
		pr.p.Wait()
	}
}

func roundName(round int) string { return fmt.Sprintf("Round %d", round) }
