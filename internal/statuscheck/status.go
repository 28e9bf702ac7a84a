package statuscheck

import (
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/local/flipbook/internal/limiter"
	"github.com/local/flipbook/internal/rasterizer"
)

//go:embed sample.pdf
var samplePDF []byte

// RedisPinger models the minimal Redis capability we need for status checks.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// BucketAPI is the S3 call used to check the health bucket.
type BucketAPI interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Checker aggregates health checks for the services a flipbook load touches.
type Checker struct {
	redis    RedisPinger
	s3       BucketAPI
	s3Bucket string
	engine   rasterizer.Engine
	sample   []byte
	slots    *limiter.Slots
}

// Options configures the Checker. Nil dependencies report as not configured.
type Options struct {
	Redis    RedisPinger
	S3       BucketAPI
	S3Bucket string
	Engine   rasterizer.Engine
	// Sample is the document the renderer check decodes; nil uses a
	// built-in one page PDF.
	Sample []byte
	Slots  *limiter.Slots
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Slots reports render slot usage.
type Slots struct {
	Capacity int `json:"capacity"`
	InUse    int `json:"in_use"`
	Waiting  int `json:"waiting"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Redis    Status `json:"redis"`
	S3       Status `json:"s3"`
	Renderer Status `json:"renderer"`
	Slots    *Slots `json:"slots,omitempty"`
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	sample := opts.Sample
	if sample == nil {
		sample = samplePDF
	}
	return &Checker{
		redis:    opts.Redis,
		s3:       opts.S3,
		s3Bucket: opts.S3Bucket,
		engine:   opts.Engine,
		sample:   sample,
		slots:    opts.Slots,
	}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	sum := Summary{
		Redis:    c.checkRedis(ctx),
		S3:       c.checkS3(ctx),
		Renderer: c.checkRenderer(),
	}
	if c.slots != nil {
		sum.Slots = &Slots{Capacity: c.slots.Capacity(), InUse: c.slots.InUse(), Waiting: c.slots.Waiting()}
	}
	return sum
}

// Healthy reports whether the renderer works. Redis and S3 are optional and
// only count when configured.
func (s Summary) Healthy() bool {
	if !s.Renderer.OK {
		return false
	}
	if !s.Redis.OK && s.Redis.Message != notConfigured {
		return false
	}
	return true
}

const notConfigured = "Not configured"

func (c *Checker) checkRedis(ctx context.Context) Status {
	if c.redis == nil {
		return Status{OK: false, Message: notConfigured}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.redis.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkS3(ctx context.Context) Status {
	if c.s3 == nil || c.s3Bucket == "" {
		return Status{OK: false, Message: notConfigured}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.s3Bucket)}); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkRenderer() Status {
	if c.engine == nil {
		return Status{OK: false, Message: notConfigured}
	}
	doc, err := c.engine.Decode(c.sample)
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	defer doc.Close()
	if doc.NumPage() < 1 {
		return Status{OK: false, Message: "Sample document has no pages"}
	}
	if _, err := doc.Render(0, 0.25); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Available"}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
