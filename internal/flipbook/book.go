// Package flipbook owns one editing session per document: the rendered
// PageSet, the pagination controller, appearance settings and the load
// lifecycle that replaces the PageSet.
//
// Only one load is in flight per book. Starting a new load (or resetting
// the book) bumps a generation counter and cancels the previous load; a
// load whose generation is no longer current never touches the book.
package flipbook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/local/flipbook/internal/access"
	"github.com/local/flipbook/internal/limiter"
	"github.com/local/flipbook/internal/metrics"
	"github.com/local/flipbook/internal/pagination"
	"github.com/local/flipbook/internal/rasterizer"
)

// Book is one flipbook session.
type Book struct {
	id      string
	created time.Time
	cover   bool
	raster  *rasterizer.Rasterizer
	ctrl    *pagination.Controller
	slots   *limiter.Slots
	status  StatusStore
	log     zerolog.Logger

	// statusMu serializes status writes so a stale load cannot overwrite
	// the status published by a newer one. Lock order: statusMu, then mu.
	statusMu sync.Mutex

	mu         sync.Mutex
	gen        uint64
	cancel     context.CancelFunc
	pages      *rasterizer.PageSet
	appearance Appearance
	logo       *Logo
	last       LoadStatus

	inflight sync.WaitGroup
}

// View is the JSON shape of a book for the editor.
type View struct {
	ID          string             `json:"id"`
	CreatedAt   time.Time          `json:"created_at"`
	Status      LoadStatus         `json:"status"`
	State       pagination.State   `json:"state"`
	Label       string             `json:"label"`
	Cover       bool               `json:"cover"`
	Appearance  Appearance         `json:"appearance"`
	HasLogo     bool               `json:"has_logo"`
	SourcePages int                `json:"source_pages"`
	Padded      bool               `json:"padded"`
	FailedPages []int              `json:"failed_pages,omitempty"`
	Render      rasterizer.Options `json:"render"`
}

// ID returns the book id.
func (b *Book) ID() string { return b.id }

// Load replaces the book's pages with those of src and returns the new
// PageSet. It supersedes any load in flight.
//
// A *rasterizer.DecodeError leaves the previous PageSet untouched. Once the
// document decodes, the previous PageSet is cleared before rendering
// starts. ErrSuperseded is returned when a newer load or a Reset took over.
func (b *Book) Load(ctx context.Context, grant access.Grant, src []byte) (*rasterizer.PageSet, error) {
	if err := grant.Check(); err != nil {
		return nil, err
	}
	ctx, cancel, gen := b.begin(ctx)
	defer cancel()
	return b.run(ctx, gen, src)
}

// Start begins a load in the background and returns its generation.
// Progress and the outcome are published through the status store.
func (b *Book) Start(grant access.Grant, src []byte) (uint64, error) {
	if err := grant.Check(); err != nil {
		return 0, err
	}
	ctx, cancel, gen := b.begin(context.Background())
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		defer cancel()
		_, _ = b.run(ctx, gen, src)
	}()
	return gen, nil
}

// Wait blocks until every load started with Start has returned.
func (b *Book) Wait() { b.inflight.Wait() }

// Reset supersedes any load and returns the book to the empty state.
func (b *Book) Reset() {
	gen := b.supersede()
	b.publish(gen, LoadStatus{Status: StatusEmpty, Generation: gen, Message: "no document loaded"})
	b.log.Info().Uint64("generation", gen).Msg("flipbook reset")
}

// close supersedes any load and drops the persisted status.
func (b *Book) close() {
	b.supersede()

	b.statusMu.Lock()
	defer b.statusMu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.status.Delete(ctx, b.id); err != nil {
		b.log.Warn().Err(err).Msg("failed to delete load status")
	}
}

func (b *Book) supersede() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.gen++
	b.pages = nil
	b.ctrl.Load(0)
	return b.gen
}

func (b *Book) begin(parent context.Context) (context.Context, context.CancelFunc, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
	}
	b.gen++
	ctx, cancel := context.WithCancel(parent)
	b.cancel = cancel
	return ctx, cancel, b.gen
}

func (b *Book) run(ctx context.Context, gen uint64, src []byte) (*rasterizer.PageSet, error) {
	start := time.Now()
	l := b.log.With().Uint64("generation", gen).Logger()
	l.Info().Int("bytes", len(src)).Msg("load started")

	st := LoadStatus{Status: StatusLoading, Generation: gen, Start: &start, Message: "Waiting for a render slot"}
	b.publish(gen, st)

	release, err := b.slots.Acquire(ctx)
	if err != nil {
		return nil, b.fail(gen, start, err)
	}
	metrics.SetRenderSlots(b.slots.InUse(), b.slots.Waiting())
	defer func() {
		release()
		metrics.SetRenderSlots(b.slots.InUse(), b.slots.Waiting())
	}()

	run, err := b.raster.Open(src)
	if err != nil {
		return nil, b.fail(gen, start, err)
	}
	defer run.Close()

	if !b.swap(gen, nil) {
		return nil, b.superseded(gen, start)
	}

	expected := run.ExpectedCount()
	st.Message = fmt.Sprintf("Rendering %d pages", expected)
	b.publish(gen, st)

	pages := make([]rasterizer.PageImage, 0, expected)
	for page, err := range run.Pages(ctx) {
		if err != nil {
			return nil, b.fail(gen, start, err)
		}
		pages = append(pages, page)
		metrics.IncPage(pageResult(page))

		st.Progress = min(len(pages)*100/expected, 99)
		st.Message = fmt.Sprintf("Rendered page %d of %d", len(pages), expected)
		if !b.publish(gen, st) {
			return nil, b.superseded(gen, start)
		}
	}

	set := rasterizer.NewPageSet(pages, run.PageCount())
	if !b.swap(gen, set) {
		return nil, b.superseded(gen, start)
	}

	end := time.Now()
	meta := map[string]any{
		"source_pages": set.SourcePages,
		"total_pages":  set.TotalCount(),
		"padded":       set.Padded,
	}
	if len(set.Failed) > 0 {
		meta["failed_pages"] = set.Failed
	}
	b.publish(gen, LoadStatus{
		Status:     StatusReady,
		Progress:   100,
		Message:    readyMessage(set),
		Generation: gen,
		Start:      &start,
		End:        &end,
		Metadata:   meta,
	})
	metrics.ObserveLoad("ready", end.Sub(start))
	l.Info().
		Int("source_pages", set.SourcePages).
		Int("total_pages", set.TotalCount()).
		Ints("failed_pages", set.Failed).
		Dur("elapsed", end.Sub(start)).
		Msg("load finished")
	return set, nil
}

// swap installs set (nil clears) and resets the controller when gen is
// still current.
func (b *Book) swap(gen uint64, set *rasterizer.PageSet) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.gen {
		return false
	}
	b.pages = set
	b.ctrl.Load(set.TotalCount())
	return true
}

func (b *Book) current(gen uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return gen == b.gen
}

// publish records st when gen is current and reports whether it was.
func (b *Book) publish(gen uint64, st LoadStatus) bool {
	b.statusMu.Lock()
	defer b.statusMu.Unlock()

	b.mu.Lock()
	current := gen == b.gen
	if current {
		b.last = st
	}
	b.mu.Unlock()
	if !current {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.status.Set(ctx, b.id, st); err != nil {
		b.log.Warn().Err(err).Str("status", string(st.Status)).Msg("failed to persist load status")
	}
	return true
}

func (b *Book) superseded(gen uint64, start time.Time) error {
	metrics.ObserveLoad("superseded", time.Since(start))
	b.log.Info().Uint64("generation", gen).Msg("load superseded; result discarded")
	return ErrSuperseded
}

// fail publishes a terminal failed status for gen. A failure caused by a
// newer load cancelling this one is reported as ErrSuperseded.
func (b *Book) fail(gen uint64, start time.Time, err error) error {
	if !b.current(gen) {
		return b.superseded(gen, start)
	}

	kind, msg := classify(err)
	end := time.Now()
	if !b.publish(gen, LoadStatus{
		Status:     StatusFailed,
		Message:    msg,
		Generation: gen,
		Start:      &start,
		End:        &end,
		Metadata:   map[string]any{"error_kind": kind},
	}) {
		return b.superseded(gen, start)
	}
	metrics.ObserveLoad(kind, end.Sub(start))
	b.log.Error().Err(err).Uint64("generation", gen).Str("kind", kind).Msg("load failed")
	return err
}

func classify(err error) (kind, message string) {
	var (
		de *rasterizer.DecodeError
		pe *rasterizer.PageRenderError
	)
	switch {
	case errors.As(err, &de):
		return "decode_error", "Could not open this PDF: " + de.Reason
	case errors.As(err, &pe):
		return "render_error", fmt.Sprintf("Page %d could not be rendered", pe.Page)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled", "Load was cancelled"
	default:
		return "error", "Load failed: " + err.Error()
	}
}

func readyMessage(set *rasterizer.PageSet) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d pages", set.TotalCount())
	if set.Padded {
		sb.WriteString(" (blank page added)")
	}
	if n := len(set.Failed); n > 0 {
		fmt.Fprintf(&sb, ", %d replaced by placeholders", n)
	}
	return sb.String()
}

func pageResult(p rasterizer.PageImage) string {
	switch {
	case p.Failed:
		return "failed"
	case p.Blank:
		return "blank"
	default:
		return "ok"
	}
}

// Status returns the stored load status, falling back to the in-process
// copy when the store is unreachable or has expired the record.
func (b *Book) Status(ctx context.Context) LoadStatus {
	b.mu.Lock()
	last := b.last
	b.mu.Unlock()

	st, ok, err := b.status.Get(ctx, b.id)
	if err != nil {
		b.log.Warn().Err(err).Msg("failed to read load status")
		return last
	}
	if !ok || st.Generation < last.Generation {
		return last
	}
	return st
}

// Pages returns the current PageSet, nil while empty or loading.
func (b *Book) Pages() *rasterizer.PageSet {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pages
}

// Page returns one page of the current PageSet.
func (b *Book) Page(index int) (rasterizer.PageImage, bool) {
	return b.Pages().Page(index)
}

// State returns the pagination state.
func (b *Book) State() pagination.State { return b.ctrl.State() }

// Label formats st with this book's cover setting.
func (b *Book) Label(st pagination.State) string { return pagination.Label(st, b.cover) }

// Next advances one step.
func (b *Book) Next() (pagination.State, bool) {
	st, moved := b.ctrl.Next()
	b.navigated("next", st, moved)
	return st, moved
}

// Prev goes back one step.
func (b *Book) Prev() (pagination.State, bool) {
	st, moved := b.ctrl.Prev()
	b.navigated("prev", st, moved)
	return st, moved
}

// Sync adopts the index reported by the flip widget.
func (b *Book) Sync(index int) (pagination.State, bool) {
	st, moved := b.ctrl.ExternalSync(index)
	b.navigated("sync", st, moved)
	return st, moved
}

func (b *Book) navigated(action string, st pagination.State, moved bool) {
	metrics.IncNavigation(action, moved)
	b.log.Debug().
		Str("action", action).
		Bool("moved", moved).
		Int("index", st.CurrentIndex).
		Int("total", st.TotalCount).
		Bool("flipping", st.Flipping).
		Msg("navigation")
}

// Appearance returns the current appearance.
func (b *Book) Appearance() Appearance {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.appearance
}

// SetAppearance validates and applies non-empty fields.
func (b *Book) SetAppearance(background, effect string) (Appearance, error) {
	b.mu.Lock()
	next := b.appearance
	b.mu.Unlock()

	if background != "" {
		bg, err := ParseBackground(background)
		if err != nil {
			return Appearance{}, err
		}
		next.Background = bg
	}
	if effect != "" {
		e, err := ParseEffect(effect)
		if err != nil {
			return Appearance{}, err
		}
		next.Effect = e
	}

	b.mu.Lock()
	b.appearance = next
	b.mu.Unlock()
	return next, nil
}

// SetBackground sets the background from a preset name or hex color.
func (b *Book) SetBackground(s string) (Appearance, error) {
	if strings.TrimSpace(s) == "" {
		return Appearance{}, fmt.Errorf("%w: empty", ErrInvalidColor)
	}
	return b.SetAppearance(s, "")
}

// SetEffect sets the flip effect.
func (b *Book) SetEffect(s string) (Appearance, error) {
	if strings.TrimSpace(s) == "" {
		return Appearance{}, fmt.Errorf("%w: empty", ErrInvalidEffect)
	}
	return b.SetAppearance("", s)
}

// SetLogo replaces the logo.
func (b *Book) SetLogo(logo Logo) error {
	if len(logo.Data) == 0 || !strings.HasPrefix(logo.MimeType, "image/") {
		return ErrInvalidLogo
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logo = &logo
	return nil
}

// ClearLogo removes the logo.
func (b *Book) ClearLogo() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logo = nil
}

// Logo returns the logo, if any.
func (b *Book) Logo() (Logo, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.logo == nil {
		return Logo{}, false
	}
	return *b.logo, true
}

// View snapshots the book for the editor.
func (b *Book) View(ctx context.Context) View {
	status := b.Status(ctx)
	st := b.ctrl.State()

	b.mu.Lock()
	defer b.mu.Unlock()
	v := View{
		ID:         b.id,
		CreatedAt:  b.created,
		Status:     status,
		State:      st,
		Label:      pagination.Label(st, b.cover),
		Cover:      b.cover,
		Appearance: b.appearance,
		HasLogo:    b.logo != nil,
		Render:     b.raster.Options(),
	}
	if b.pages != nil {
		v.SourcePages = b.pages.SourcePages
		v.Padded = b.pages.Padded
		v.FailedPages = b.pages.Failed
	}
	return v
}
