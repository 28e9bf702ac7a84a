package intake_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/local/flipbook/internal/access"
	"github.com/local/flipbook/internal/intake"
)

var granted = access.Allow("test")

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return data
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestRead(t *testing.T) {
	pdf3 := readFixture(t, "pages3.pdf")

	tests := []struct {
		name      string
		cfg       intake.Config
		grant     access.Grant
		data      []byte
		wantErr   func(error) bool
		wantPages int
	}{
		{
			name:      "valid pdf",
			grant:     granted,
			data:      pdf3,
			wantPages: 3,
		},
		{
			name:    "unauthorized",
			grant:   access.Deny(),
			data:    pdf3,
			wantErr: func(err error) bool { return errors.Is(err, access.ErrUnauthorized) },
		},
		{
			name:    "empty",
			grant:   granted,
			data:    nil,
			wantErr: func(err error) bool { return errors.Is(err, intake.ErrEmpty) },
		},
		{
			name:    "not a pdf",
			grant:   granted,
			data:    pngBytes(t),
			wantErr: func(err error) bool { return errors.Is(err, intake.ErrNotPDF) },
		},
		{
			name:  "oversize",
			cfg:   intake.Config{MaxBytes: 100},
			grant: granted,
			data:  pdf3,
			wantErr: func(err error) bool {
				var oe *intake.OversizeInputError
				return errors.As(err, &oe) && oe.Limit == 100
			},
		},
		{
			name:  "too many pages",
			cfg:   intake.Config{MaxPages: 2},
			grant: granted,
			data:  pdf3,
			wantErr: func(err error) bool {
				var te *intake.TooManyPagesError
				return errors.As(err, &te) && te.Pages == 3 && te.Limit == 2
			},
		},
		{
			name:      "unparsable pdf left to rasterizer",
			grant:     granted,
			data:      []byte("%PDF-1.7\nthis is not really a pdf"),
			wantPages: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := intake.New(tt.cfg, nil)
			src, err := in.Read(context.Background(), tt.grant, "doc.pdf", bytes.NewReader(tt.data))

			if tt.wantErr != nil {
				if err == nil || !tt.wantErr(err) {
					t.Fatalf("Read() error = %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if src.Pages != tt.wantPages {
				t.Errorf("Pages = %d, want %d", src.Pages, tt.wantPages)
			}
			if src.Name != "doc.pdf" || !bytes.Equal(src.Data, tt.data) {
				t.Errorf("Source = %q with %d bytes", src.Name, len(src.Data))
			}
		})
	}
}

func TestRead_DefaultCap(t *testing.T) {
	in := intake.New(intake.Config{}, nil)
	if got := in.Config().MaxBytes; got != 100<<20 {
		t.Errorf("MaxBytes = %d, want %d", got, 100<<20)
	}
}

func TestOversizeInputError_Message(t *testing.T) {
	err := &intake.OversizeInputError{Limit: 100 << 20}
	if !strings.Contains(err.Error(), "100MB") {
		t.Errorf("Error() = %q, want mention of 100MB", err.Error())
	}
}

func TestFetch_HTTP(t *testing.T) {
	pdf1 := readFixture(t, "pages1.pdf")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/doc.pdf":
			w.Write(pdf1)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	// httptest listens on loopback.
	in := intake.New(intake.Config{AllowPrivate: true}, nil)

	src, err := in.Fetch(context.Background(), granted, srv.URL+"/doc.pdf#page=2")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if src.Pages != 1 || src.Name != "doc.pdf" {
		t.Errorf("Source = %q pages %d", src.Name, src.Pages)
	}

	_, err = in.Fetch(context.Background(), granted, srv.URL+"/missing.pdf")
	var fe *intake.FetchError
	if !errors.As(err, &fe) || fe.Status != http.StatusNotFound {
		t.Errorf("Fetch(missing) error = %v, want FetchError 404", err)
	}
}

func TestFetch_BlocksInternalAddresses(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write(readFixture(t, "pages1.pdf"))
	}))
	defer srv.Close()

	in := intake.New(intake.Config{}, nil)

	refs := []string{
		srv.URL + "/doc.pdf",
		"http://10.1.2.3:9/doc.pdf",
		"http://192.168.0.10/doc.pdf",
		"http://169.254.169.254/latest/meta-data",
		"http://100.64.0.1/doc.pdf",
		"http://0.0.0.0:8080/doc.pdf",
	}
	for _, ref := range refs {
		t.Run(ref, func(t *testing.T) {
			_, err := in.Fetch(context.Background(), granted, ref)
			if !errors.Is(err, intake.ErrBlockedHost) {
				t.Fatalf("Fetch() error = %v, want ErrBlockedHost", err)
			}
			if got := intake.Reason(err); got != "blocked_host" {
				t.Errorf("Reason() = %q, want blocked_host", got)
			}
		})
	}
	if n := hits.Load(); n != 0 {
		t.Errorf("origin received %d requests, want 0", n)
	}
}

func TestFetch_Local(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "local.pdf")
	if err := os.WriteFile(p, readFixture(t, "pages3.pdf"), 0o600); err != nil {
		t.Fatal(err)
	}

	disabled := intake.New(intake.Config{}, nil)
	if _, err := disabled.Fetch(context.Background(), granted, p); !errors.Is(err, intake.ErrLocalDisabled) {
		t.Errorf("Fetch() with local disabled error = %v, want ErrLocalDisabled", err)
	}

	enabled := intake.New(intake.Config{AllowLocal: true}, nil)
	src, err := enabled.Fetch(context.Background(), granted, "file://"+p)
	if err != nil {
		t.Fatalf("Fetch(file://) error = %v", err)
	}
	if src.Pages != 3 {
		t.Errorf("Pages = %d, want 3", src.Pages)
	}

	small := intake.New(intake.Config{AllowLocal: true, MaxBytes: 10}, nil)
	var oe *intake.OversizeInputError
	if _, err := small.Fetch(context.Background(), granted, p); !errors.As(err, &oe) {
		t.Errorf("Fetch() oversize error = %v, want OversizeInputError", err)
	}
}

type fakeObjects struct {
	data   map[string][]byte
	bucket string
	key    string
}

func (f *fakeObjects) FetchObject(ctx context.Context, bucket, key string, limit int64) ([]byte, error) {
	f.bucket, f.key = bucket, key
	data, ok := f.data[bucket+"/"+key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	if int64(len(data)) > limit {
		return nil, &intake.OversizeInputError{Limit: limit}
	}
	return data, nil
}

func TestFetch_S3(t *testing.T) {
	objects := &fakeObjects{data: map[string][]byte{"books/a/b.pdf": readFixture(t, "pages1.pdf")}}
	in := intake.New(intake.Config{}, objects)

	src, err := in.Fetch(context.Background(), granted, "s3://books/a/b.pdf")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if objects.bucket != "books" || objects.key != "a/b.pdf" {
		t.Errorf("fetched %s/%s, want books/a/b.pdf", objects.bucket, objects.key)
	}
	if src.Pages != 1 {
		t.Errorf("Pages = %d, want 1", src.Pages)
	}

	for _, ref := range []string{"s3://books", "s3:///key", "s3://books/"} {
		if _, err := in.Fetch(context.Background(), granted, ref); !errors.Is(err, intake.ErrUnsupportedSource) {
			t.Errorf("Fetch(%q) error = %v, want ErrUnsupportedSource", ref, err)
		}
	}

	noS3 := intake.New(intake.Config{}, nil)
	if _, err := noS3.Fetch(context.Background(), granted, "s3://books/a/b.pdf"); !errors.Is(err, intake.ErrUnsupportedSource) {
		t.Errorf("Fetch() without s3 error = %v, want ErrUnsupportedSource", err)
	}
}

func TestFetch_Rejections(t *testing.T) {
	in := intake.New(intake.Config{AllowLocal: true}, nil)

	if _, err := in.Fetch(context.Background(), access.Deny(), "s3://a/b"); !errors.Is(err, access.ErrUnauthorized) {
		t.Errorf("Fetch() denied error = %v, want ErrUnauthorized", err)
	}
	if _, err := in.Fetch(context.Background(), granted, "ftp://host/file.pdf"); !errors.Is(err, intake.ErrUnsupportedSource) {
		t.Errorf("Fetch(ftp) error = %v, want ErrUnsupportedSource", err)
	}
	if _, err := in.Fetch(context.Background(), granted, "  "); !errors.Is(err, intake.ErrUnsupportedSource) {
		t.Errorf("Fetch(blank) error = %v, want ErrUnsupportedSource", err)
	}
}

func TestReadLogo(t *testing.T) {
	in := intake.New(intake.Config{MaxLogoBytes: 1024}, nil)

	logo, err := in.ReadLogo(context.Background(), granted, bytes.NewReader(pngBytes(t)))
	if err != nil {
		t.Fatalf("ReadLogo() error = %v", err)
	}
	if logo.MimeType != "image/png" {
		t.Errorf("MimeType = %q, want image/png", logo.MimeType)
	}

	if _, err := in.ReadLogo(context.Background(), granted, bytes.NewReader(readFixture(t, "pages1.pdf"))); !errors.Is(err, intake.ErrNotImage) {
		t.Errorf("ReadLogo(pdf) error = %v, want ErrNotImage", err)
	}

	big := bytes.Repeat([]byte{0}, 2048)
	var oe *intake.OversizeInputError
	if _, err := in.ReadLogo(context.Background(), granted, bytes.NewReader(big)); !errors.As(err, &oe) {
		t.Errorf("ReadLogo(big) error = %v, want OversizeInputError", err)
	}
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&intake.OversizeInputError{Limit: 1}, "oversize"},
		{&intake.TooManyPagesError{Pages: 3, Limit: 2}, "too_many_pages"},
		{intake.ErrNotPDF, "not_pdf"},
		{intake.ErrLocalDisabled, "unsupported_source"},
		{&intake.FetchError{Ref: "x", Status: 500}, "fetch_failed"},
		{errors.New("boom"), "io"},
	}
	for _, tt := range tests {
		if got := intake.Reason(tt.err); got != tt.want {
			t.Errorf("Reason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
