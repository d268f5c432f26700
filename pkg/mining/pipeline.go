package mining

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/haivivi/automuter/pkg/audio/normalize"
	"github.com/haivivi/automuter/pkg/audio/wav"
	"github.com/haivivi/automuter/pkg/storage"
	"github.com/haivivi/automuter/pkg/voiceprint"
)

type worker struct {
	id       int
	emb      *voiceprint.Embedder
	seg      Segmenter
	closeSeg func() error
}

type pipeline struct {
	cfg     Config
	workers []*worker
}

func newPipeline(cfg Config, n int) (*pipeline, error) {
	p := &pipeline{cfg: cfg}
	for i := 0; i < max(1, n); i++ {
		m, err := cfg.Factory.NewModel()
		if err != nil {
			p.close()
			return nil, fmt.Errorf("mining: worker %d: %w", i, err)
		}
		seg, closeSeg, err := cfg.Segmenters()
		if err != nil {
			m.Close()
			p.close()
			return nil, fmt.Errorf("mining: worker %d segmenter: %w", i, err)
		}
		p.workers = append(p.workers, &worker{
			id: i,
			emb: voiceprint.NewEmbedder(m, cfg.Normalizer,
				voiceprint.WithMinDuration(cfg.MinDuration),
				voiceprint.WithEmbedderLogger(cfg.Logger)),
			seg:      seg,
			closeSeg: closeSeg,
		})
	}
	return p, nil
}

func (p *pipeline) close() {
	for _, w := range p.workers {
		if err := w.emb.Model().Close(); err != nil {
			p.cfg.Logger.Warn("model close failed", "worker", w.id, "error", err)
		}
		if err := w.closeSeg(); err != nil {
			p.cfg.Logger.Warn("segmenter close failed", "worker", w.id, "error", err)
		}
	}
}

// parallel runs fn for 0..n-1 across the workers and returns after all
// calls finished.
func (p *pipeline) parallel(ctx context.Context, n int, fn func(w *worker, i int)) error {
	jobs := make(chan int)
	var wg sync.WaitGroup
	for _, w := range p.workers {
		wg.Add(1)
		go func(w *worker) {
			defer wg.Done()
			for i := range jobs {
				fn(w, i)
			}
		}(w)
	}

	var err error
feed:
	for i := 0; i < n; i++ {
		select {
		case jobs <- i:
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	return err
}

type fileOutcome struct {
	err         error
	candidates  int
	embedErrors int
	clips       []string
}

func (p *pipeline) scan(ctx context.Context, prog *progress, round int, threshold float64, master []float32, files []string) (RoundResult, error) {
	rr := RoundResult{
		Round:     round,
		Threshold: threshold,
		Dir:       RunDir(p.cfg.Speaker, round),
		Files:     len(files),
		Master:    master,
	}
	b := prog.bar(roundName(round), len(files))

	outcomes := make([]fileOutcome, len(files))
	err := p.parallel(ctx, len(files), func(w *worker, i int) {
		outcomes[i] = p.scanFile(ctx, w, rr, files[i])
		b.increment()
	})
	if err != nil {
		b.abort()
	}

	for i, o := range outcomes {
		if o.err != nil {
			rr.Failed++
			if !errors.Is(o.err, context.Canceled) {
				p.cfg.Logger.Warn("skipping corpus file", "file", files[i], "error", o.err)
			}
		}
		rr.Candidates += o.candidates
		rr.EmbedErrors += o.embedErrors
		rr.Clips = append(rr.Clips, o.clips...)
	}
	rr.Accepted = len(rr.Clips)
	return rr, err
}

func (p *pipeline) scanFile(ctx context.Context, w *worker, rr RoundResult, file string) fileOutcome {
	var out fileOutcome
	pcm, err := w.emb.Normalizer().NormalizeFile(ctx, file)
	if err != nil {
		out.err = err
		return out
	}
	segs, err := w.seg.Segments(ctx, pcm)
	if err != nil {
		out.err = err
		return out
	}

	stem := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	for _, seg := range segs {
		if ctx.Err() != nil {
			out.err = ctx.Err()
			return out
		}
		clip := pcm.Slice(seg.Start, seg.End)
		out.candidates++
		vec, err := w.emb.Embed(ctx, clip)
		if err != nil {
			out.embedErrors++
			continue
		}
		score, err := voiceprint.Cosine(rr.Master, vec)
		if err != nil || !(score > rr.Threshold) {
			continue
		}

		name := ClipName(p.cfg.Speaker, rr.Round, stem, seg)
		dst := path.Join(rr.Dir, name)
		err = storage.WriteFunc(ctx, p.cfg.Output, dst, func(wr io.Writer) error {
			return wav.Encode(wr, clip.Samples, clip.SampleRate)
		})
		if err != nil {
			out.err = fmt.Errorf("write %s: %w", dst, err)
			return out
		}
		p.cfg.Logger.Debug("accepted clip", "clip", dst, "score", score)
		out.clips = append(out.clips, dst)
	}
	return out
}

// ClipName builds a collision-free clip file name:
// {speaker}_round{N}_{stem}_{startMs}-{endMs}_{id}.wav
func ClipName(speaker string, round int, stem string, seg Segment) string {
	return fmt.Sprintf("%s_round%d_%s_%d-%d_%s.wav",
		speaker, round, stem,
		seg.Start.Milliseconds(), seg.End.Milliseconds(),
		uuid.NewString()[:8])
}

// masterFrom embeds every clip in dir and returns their mean.
func (p *pipeline) masterFrom(ctx context.Context, dir string) ([]float32, error) {
	files, err := p.cfg.Output.List(ctx, dir)
	if err != nil {
		return nil, err
	}
	var clips []string
	for _, f := range files {
		if normalize.IsAudioFile(f) {
			clips = append(clips, f)
		}
	}

	vecs := make([][]float32, len(clips))
	err = p.parallel(ctx, len(clips), func(w *worker, i int) {
		data, err := storage.ReadFile(ctx, p.cfg.Output, clips[i])
		if err != nil {
			p.cfg.Logger.Warn("skipping clip", "clip", clips[i], "error", err)
			return
		}
		v, err := w.emb.EmbedBytes(ctx, data, normalize.FormatOf(clips[i]))
		if err != nil {
			p.cfg.Logger.Warn("skipping clip", "clip", clips[i], "error", err)
			return
		}
		vecs[i] = v
	})
	if err != nil {
		return nil, err
	}

	ok := vecs[:0]
	for _, v := range vecs {
		if v != nil {
			ok = append(ok, v)
		}
	}
	if len(ok) == 0 {
		return nil, fmt.Errorf("no clip in %s could be embedded", dir)
	}
	return voiceprint.Mean(ok)
}
