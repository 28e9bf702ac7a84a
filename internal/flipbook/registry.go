package flipbook

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"github.com/local/flipbook/internal/limiter"
	"github.com/local/flipbook/internal/metrics"
	"github.com/local/flipbook/internal/pagination"
	"github.com/local/flipbook/internal/rasterizer"
)

// Settings fixes how a book renders and paginates. They are chosen when
// the book is created.
type Settings struct {
	Render rasterizer.Options `json:"render"`
	Step   int                `json:"step"`
	Cover  bool               `json:"cover"`
	Settle time.Duration      `json:"-"`
}

// Dependencies are shared by every book of a registry.
type Dependencies struct {
	Status StatusStore
	Slots  *limiter.Slots
	Engine rasterizer.Engine
	// Now is the pagination clock; nil uses time.Now.
	Now func() time.Time
}

// Registry holds the live books. Books idle longer than the TTL are
// evicted, which cancels their loads and drops their status.
type Registry struct {
	deps     Dependencies
	defaults Settings
	books    *cache.Cache
}

// NewRegistry creates a registry. ttl <= 0 keeps books until deleted.
func NewRegistry(deps Dependencies, defaults Settings, ttl time.Duration) *Registry {
	if deps.Status == nil {
		deps.Status = NewMemoryStatus(ttl)
	}
	if deps.Slots == nil {
		deps.Slots = limiter.New(limiter.Options{})
	}

	cleanup := time.Minute
	if ttl <= 0 {
		ttl = cache.NoExpiration
		cleanup = 0
	} else if ttl < 4*cleanup {
		cleanup = ttl / 4
	}
	c := cache.New(ttl, cleanup)
	c.OnEvicted(func(id string, v any) {
		b, ok := v.(*Book)
		if !ok {
			return
		}
		b.close()
		metrics.SessionClosed()
		log.Info().Str("flipbook_id", id).Msg("flipbook closed")
	})

	return &Registry{deps: deps, defaults: defaults, books: c}
}

// Defaults returns the settings new books start from.
func (r *Registry) Defaults() Settings { return r.defaults }

// Create validates s and registers a new empty book.
func (r *Registry) Create(s Settings) (*Book, error) {
	raster, err := rasterizer.New(r.deps.Engine, s.Render)
	if err != nil {
		return nil, err
	}
	ctrl, err := pagination.New(pagination.Options{Step: s.Step, Settle: s.Settle, Now: r.deps.Now})
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	b := &Book{
		id:         id,
		created:    time.Now().UTC(),
		cover:      s.Cover,
		raster:     raster,
		ctrl:       ctrl,
		slots:      r.deps.Slots,
		status:     r.deps.Status,
		log:        log.With().Str("flipbook_id", id).Logger(),
		appearance: DefaultAppearance(),
		last:       LoadStatus{Status: StatusEmpty},
	}
	r.books.Set(id, b, cache.DefaultExpiration)
	metrics.SessionOpened()

	b.log.Info().
		Int("step", ctrl.Step()).
		Bool("cover", s.Cover).
		Bool("pad_odd", raster.Options().PadOdd).
		Float64("scale", raster.Options().Scale).
		Msg("flipbook created")
	return b, nil
}

// Get returns the book and restarts its idle timer.
func (r *Registry) Get(id string) (*Book, error) {
	v, ok := r.books.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	b := v.(*Book)
	// Replace fails if a concurrent Delete or expiry removed the entry,
	// so a lookup never puts a closed book back.
	if err := r.books.Replace(id, b, cache.DefaultExpiration); err != nil {
		return nil, ErrNotFound
	}
	return b, nil
}

// Delete closes and removes the book.
func (r *Registry) Delete(id string) error {
	if _, ok := r.books.Get(id); !ok {
		return ErrNotFound
	}
	r.books.Delete(id)
	return nil
}

// Len is the number of live books, including expired ones not yet swept.
func (r *Registry) Len() int { return r.books.ItemCount() }

// Close closes every book.
func (r *Registry) Close() {
	for id := range r.books.Items() {
		r.books.Delete(id)
	}
}
