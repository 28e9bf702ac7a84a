// Package intake accepts uploaded or referenced PDFs and logo images and
// rejects anything the rasterizer should never see: oversize input, files
// that are not PDFs, and documents over the page limit.
package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/flipbook/internal/access"
	"github.com/local/flipbook/internal/metrics"
)

// Config bounds what is accepted.
type Config struct {
	MaxBytes     int64
	MaxPages     int
	MaxLogoBytes int64
	AllowLocal   bool
	// AllowPrivate permits http(s) sources that resolve to loopback,
	// private, link-local or otherwise internal addresses.
	AllowPrivate bool
	FetchTimeout time.Duration
}

const (
	DefaultMaxBytes     = 100 << 20
	DefaultMaxPages     = 500
	DefaultMaxLogoBytes = 5 << 20
)

// Source is an accepted PDF. Pages is the preflight count, zero when the
// preflight parser could not read the file.
type Source struct {
	Data  []byte
	Name  string
	Pages int
}

// Logo is an accepted logo image.
type Logo struct {
	Data     []byte
	MimeType string
}

// Intake validates incoming documents.
type Intake struct {
	cfg     Config
	objects ObjectFetcher
	client  *http.Client
}

// New creates an Intake. objects may be nil, which disables s3:// refs.
func New(cfg Config, objects ObjectFetcher) *Intake {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.MaxLogoBytes <= 0 {
		cfg.MaxLogoBytes = DefaultMaxLogoBytes
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 60 * time.Second
	}
	return &Intake{
		cfg:     cfg,
		objects: objects,
		client:  newHTTPClient(cfg),
	}
}

// Config returns the effective limits.
func (in *Intake) Config() Config { return in.cfg }

// Read accepts an uploaded PDF from r.
func (in *Intake) Read(ctx context.Context, grant access.Grant, name string, r io.Reader) (*Source, error) {
	if err := grant.Check(); err != nil {
		return nil, err
	}
	data, err := readCapped(r, in.cfg.MaxBytes)
	if err != nil {
		return nil, in.reject(err)
	}
	return in.accept(name, data)
}

// Fetch accepts a PDF referenced by s3://bucket/key, http(s):// URL,
// file:// URL or bare filesystem path. Local paths require AllowLocal.
func (in *Intake) Fetch(ctx context.Context, grant access.Grant, ref string) (*Source, error) {
	if err := grant.Check(); err != nil {
		return nil, err
	}
	// Strip optional #page fragment
	if i := strings.Index(ref, "#"); i >= 0 {
		ref = ref[:i]
	}
	if strings.TrimSpace(ref) == "" {
		return nil, in.reject(fmt.Errorf("%w: empty reference", ErrUnsupportedSource))
	}

	var (
		data []byte
		err  error
	)
	switch {
	case strings.HasPrefix(ref, "s3://"):
		data, err = in.fetchS3(ctx, ref)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		data, err = in.fetchHTTP(ctx, ref)
	case strings.HasPrefix(ref, "file://"):
		data, err = in.readLocal(strings.TrimPrefix(ref, "file://"))
	case strings.Contains(ref, "://"):
		err = fmt.Errorf("%w: %s", ErrUnsupportedSource, ref)
	default:
		data, err = in.readLocal(ref)
	}
	if err != nil {
		return nil, in.reject(err)
	}
	return in.accept(path.Base(ref), data)
}

// ReadLogo accepts a logo image of at most MaxLogoBytes.
func (in *Intake) ReadLogo(ctx context.Context, grant access.Grant, r io.Reader) (*Logo, error) {
	if err := grant.Check(); err != nil {
		return nil, err
	}
	data, err := readCapped(r, in.cfg.MaxLogoBytes)
	if err != nil {
		return nil, in.reject(err)
	}
	if len(data) == 0 {
		return nil, in.reject(ErrEmpty)
	}
	mime, ok := ImageType(data)
	if !ok {
		return nil, in.reject(fmt.Errorf("%w: detected %s", ErrNotImage, Detect(data).String()))
	}
	return &Logo{Data: data, MimeType: mime}, nil
}

func (in *Intake) accept(name string, data []byte) (*Source, error) {
	if len(data) == 0 {
		return nil, in.reject(ErrEmpty)
	}
	if !IsPDF(data) {
		return nil, in.reject(fmt.Errorf("%w: detected %s", ErrNotPDF, Detect(data).String()))
	}

	src := &Source{Data: data, Name: name}
	n, err := CountPages(data)
	if err != nil {
		// The rasterizer has the final say on whether the file opens.
		log.Warn().Err(err).Str("name", name).Msg("preflight page count failed")
		return src, nil
	}
	if n > in.cfg.MaxPages {
		return nil, in.reject(&TooManyPagesError{Pages: n, Limit: in.cfg.MaxPages})
	}
	src.Pages = n
	log.Debug().Str("name", name).Int("pages", n).Int("bytes", len(data)).Msg("accepted pdf")
	return src, nil
}

func (in *Intake) fetchS3(ctx context.Context, ref string) ([]byte, error) {
	if in.objects == nil {
		return nil, fmt.Errorf("%w: s3 is not configured", ErrUnsupportedSource)
	}
	bucket, key, err := parseS3Ref(ref)
	if err != nil {
		return nil, err
	}
	return in.objects.FetchObject(ctx, bucket, key, in.cfg.MaxBytes)
}

func (in *Intake) fetchHTTP(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Ref: url, Err: err}
	}
	resp, err := in.client.Do(req)
	if err != nil {
		if errors.Is(err, ErrBlockedHost) {
			return nil, err
		}
		return nil, &FetchError{Ref: url, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Ref: url, Status: resp.StatusCode}
	}
	if resp.ContentLength > in.cfg.MaxBytes {
		return nil, &OversizeInputError{Limit: in.cfg.MaxBytes}
	}
	return readCapped(resp.Body, in.cfg.MaxBytes)
}

func (in *Intake) readLocal(p string) ([]byte, error) {
	if !in.cfg.AllowLocal {
		return nil, ErrLocalDisabled
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if st, err := f.Stat(); err == nil && st.Size() > in.cfg.MaxBytes {
		return nil, &OversizeInputError{Limit: in.cfg.MaxBytes}
	}
	return readCapped(f, in.cfg.MaxBytes)
}

// reject records the rejection reason and returns err unchanged.
func (in *Intake) reject(err error) error {
	metrics.IncRejected(Reason(err))
	log.Info().Err(err).Str("reason", Reason(err)).Msg("intake rejected input")
	return err
}

// Reason classifies an intake error for metrics and logs.
func Reason(err error) string {
	var (
		oversize *OversizeInputError
		pages    *TooManyPagesError
		fetch    *FetchError
	)
	switch {
	case errors.As(err, &oversize):
		return "oversize"
	case errors.As(err, &pages):
		return "too_many_pages"
	case errors.Is(err, ErrNotPDF):
		return "not_pdf"
	case errors.Is(err, ErrNotImage):
		return "not_image"
	case errors.Is(err, ErrEmpty):
		return "empty"
	case errors.Is(err, ErrLocalDisabled), errors.Is(err, ErrUnsupportedSource):
		return "unsupported_source"
	case errors.Is(err, ErrBlockedHost):
		return "blocked_host"
	case errors.As(err, &fetch):
		return "fetch_failed"
	default:
		return "io"
	}
}

// readCapped reads at most limit bytes from r, failing without reading the
// remainder when there is more.
func readCapped(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, &OversizeInputError{Limit: limit}
	}
	return data, nil
}
