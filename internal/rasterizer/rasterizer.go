// Package rasterizer renders PDF documents into ordered sequences of
// encoded page images.
//
// Rendering is delegated to an Engine (go-fitz by default). The package
// owns ordering, the odd-page padding step, the page failure policy and
// the optional worker pool.
package rasterizer

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Rasterizer turns PDF bytes into page images.
type Rasterizer struct {
	engine Engine
	opts   Options
}

// New creates a Rasterizer. A nil engine selects go-fitz.
func New(engine Engine, opts Options) (*Rasterizer, error) {
	if engine == nil {
		engine = NewFitzEngine()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Rasterizer{engine: engine, opts: opts}, nil
}

// Options returns the validated options.
func (r *Rasterizer) Options() Options { return r.opts }

// Open decodes src without rendering anything. Failures are *DecodeError.
func (r *Rasterizer) Open(src []byte) (*Run, error) {
	if len(src) == 0 {
		return nil, &DecodeError{Reason: "empty source"}
	}
	doc, err := r.decode(src)
	if err != nil {
		return nil, err
	}
	n := doc.NumPage()
	if n <= 0 {
		_ = doc.Close()
		return nil, &DecodeError{Reason: "document has no pages"}
	}
	log.Debug().Int("pages", n).Int("bytes", len(src)).Msg("decoded pdf")
	return &Run{r: r, src: src, doc: doc, pages: n}, nil
}

// Stream decodes src and yields its pages in order. The sequence ends
// after the first error; a decode failure is yielded as the only element.
func (r *Rasterizer) Stream(ctx context.Context, src []byte) iter.Seq2[PageImage, error] {
	return func(yield func(PageImage, error) bool) {
		run, err := r.Open(src)
		if err != nil {
			yield(PageImage{}, err)
			return
		}
		defer run.Close()
		for page, err := range run.Pages(ctx) {
			if !yield(page, err) {
				return
			}
		}
	}
}

// Rasterize renders every page of src into a PageSet.
func (r *Rasterizer) Rasterize(ctx context.Context, src []byte) (*PageSet, error) {
	run, err := r.Open(src)
	if err != nil {
		return nil, err
	}
	defer run.Close()
	return run.Collect(ctx)
}

func (r *Rasterizer) decode(src []byte) (Document, error) {
	doc, err := r.engine.Decode(src)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, &DecodeError{Reason: "open document", Err: err}
	}
	return doc, nil
}

// Run is a decoded document whose pages can be iterated exactly once.
type Run struct {
	r     *Rasterizer
	src   []byte
	doc   Document
	pages int

	used      atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// PageCount is the number of pages in the source document.
func (run *Run) PageCount() int { return run.pages }

// ExpectedCount is the number of pages the sequence will yield on success.
func (run *Run) ExpectedCount() int {
	if run.r.opts.PadOdd && run.pages%2 == 1 {
		return run.pages + 1
	}
	return run.pages
}

// Close releases the decoded document.
func (run *Run) Close() error {
	run.closeOnce.Do(func() { run.closeErr = run.doc.Close() })
	return run.closeErr
}

// Pages yields the rendered pages in index order, followed by the padding
// page when enabled. A second iteration yields ErrConsumed.
func (run *Run) Pages(ctx context.Context) iter.Seq2[PageImage, error] {
	return func(yield func(PageImage, error) bool) {
		if !run.used.CompareAndSwap(false, true) {
			yield(PageImage{}, ErrConsumed)
			return
		}

		opts := run.r.opts
		e := &emitter{opts: opts, yield: yield, lastW: opts.PadWidth, lastH: opts.PadHeight}

		var ok bool
		if opts.Workers > 1 && run.pages > 1 {
			ok = run.parallel(ctx, e)
		} else {
			ok = run.sequential(ctx, e)
		}
		if !ok {
			return
		}

		if opts.PadOdd && run.pages%2 == 1 {
			page, err := blankPage(run.pages, opts.PadWidth, opts.PadHeight, opts)
			if err != nil {
				yield(PageImage{}, err)
				return
			}
			log.Debug().Int("index", run.pages).Msg("appended blank padding page")
			yield(page, nil)
		}
	}
}

// Collect drains the sequence into a PageSet.
func (run *Run) Collect(ctx context.Context) (*PageSet, error) {
	pages := make([]PageImage, 0, run.ExpectedCount())
	for page, err := range run.Pages(ctx) {
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return NewPageSet(pages, run.pages), nil
}

type rendered struct {
	index int
	page  PageImage
	err   error
}

func (run *Run) renderPage(doc Document, index int) rendered {
	opts := run.r.opts
	img, err := doc.Render(index, opts.Scale)
	if err != nil {
		return rendered{index: index, err: err}
	}
	data, err := encodeImage(img, opts)
	if err != nil {
		return rendered{index: index, err: err}
	}

	bounds := img.Bounds()
	log.Debug().
		Int("page", index+1).
		Int("width", bounds.Dx()).
		Int("height", bounds.Dy()).
		Int("bytes", len(data)).
		Str("format", string(opts.Format)).
		Str("color", string(opts.ColorMode)).
		Msg("rendered page")

	return rendered{index: index, page: PageImage{
		Index:    index,
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		MimeType: opts.Format.MimeType(),
		Data:     data,
	}}
}

func (run *Run) sequential(ctx context.Context, e *emitter) bool {
	for i := 0; i < run.pages; i++ {
		if err := ctx.Err(); err != nil {
			e.yield(PageImage{}, err)
			return false
		}
		if !e.emit(run.renderPage(run.doc, i)) {
			return false
		}
	}
	return true
}

// parallel renders with a worker pool and re-sequences the results so the
// consumer still sees pages in index order.
func (run *Run) parallel(ctx context.Context, e *emitter) bool {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := min(run.r.opts.Workers, run.pages)
	tasks := make(chan int, run.pages)
	results := make(chan rendered, run.pages)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run.renderWorker(ctx, tasks, results)
		}()
	}

	for i := 0; i < run.pages; i++ {
		tasks <- i
	}
	close(tasks)

	go func() {
		wg.Wait()
		close(results)
	}()

	pending := make(map[int]rendered)
	next := 0
	for res := range results {
		pending[res.index] = res
		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++

			if err := ctx.Err(); err != nil {
				e.yield(PageImage{}, err)
				return false
			}
			if !e.emit(ready) {
				return false
			}
		}
	}
	return true
}

// renderWorker decodes its own document handle; engines are not required
// to be safe for concurrent use.
func (run *Run) renderWorker(ctx context.Context, tasks <-chan int, results chan<- rendered) {
	doc, err := run.r.decode(run.src)
	if err != nil {
		for i := range tasks {
			results <- rendered{index: i, err: err}
		}
		return
	}
	defer doc.Close()

	for i := range tasks {
		if err := ctx.Err(); err != nil {
			results <- rendered{index: i, err: err}
			continue
		}
		results <- run.renderPage(doc, i)
	}
}

// emitter applies the failure policy and hands pages to the consumer.
type emitter struct {
	opts  Options
	yield func(PageImage, error) bool
	lastW int
	lastH int
}

// emit returns false when the sequence must stop.
func (e *emitter) emit(res rendered) bool {
	if res.err == nil {
		e.lastW, e.lastH = res.page.Width, res.page.Height
		return e.yield(res.page, nil)
	}

	if e.opts.Policy != PolicySkip {
		e.yield(PageImage{}, &PageRenderError{Page: res.index + 1, Err: res.err})
		return false
	}

	log.Warn().Err(res.err).Int("page", res.index+1).Msg("page render failed; substituting blank page")
	page, err := blankPage(res.index, e.lastW, e.lastH, e.opts)
	if err != nil {
		e.yield(PageImage{}, &PageRenderError{Page: res.index + 1, Err: err})
		return false
	}
	page.Failed = true
	return e.yield(page, nil)
}
