package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/axiomhq/axiom-go/axiom"
	"github.com/axiomhq/axiom-go/axiom/ingest"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options defines logger initialization parameters.
type Options struct {
	Service    string
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Console replaces stdout; tests point it at a buffer.
	Console io.Writer

	// Axiom
	SendToAxiom  bool
	AxiomAPIKey  string
	AxiomOrgID   string
	AxiomDataset string
	AxiomFlush   time.Duration
}

var ax *axiomSink

// Init sets up global logger: file rotation, console, optional Axiom forwarding.
func Init(opts Options) error {
	if opts.Service == "" {
		opts.Service = "flipbook"
	}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return fmt.Errorf("create logs dir: %w", err)
		}
	}

	var writers []io.Writer

	if opts.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		})
	}

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}
	if opts.Pretty {
		writers = append(writers, zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339})
	} else {
		writers = append(writers, console)
	}

	Close()
	if opts.SendToAxiom && opts.AxiomAPIKey != "" {
		sink, err := newAxiomSink(opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Axiom disabled: %v\n", err)
		} else {
			ax = sink
			writers = append(writers, sink)
		}
	}

	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		lvl = zerolog.InfoLevel
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(lvl).
		With().Timestamp().Str("service", opts.Service).
		Logger()
	return nil
}

// Close stops Axiom forwarding after shipping what is buffered.
func Close() {
	if ax != nil {
		ax.Close()
		ax = nil
	}
}

const (
	axiomBatch   = 200
	axiomBuffer  = 1000
	axiomTimeout = 15 * time.Second
)

type ingestFunc func(ctx context.Context, events []axiom.Event) error

// axiomSink ships info and above to one Axiom dataset in batches. Events
// arriving while the buffer is full are dropped; logging never blocks.
type axiomSink struct {
	ingest  ingestFunc
	service string
	events  chan axiom.Event
	quit    chan struct{}
	done    chan struct{}
	stop    sync.Once
}

func newAxiomSink(opts Options) (*axiomSink, error) {
	dataset := opts.AxiomDataset
	if dataset == "" {
		dataset = "dev_flipbook"
	}
	clientOpts := []axiom.Option{axiom.SetToken(opts.AxiomAPIKey)}
	if opts.AxiomOrgID != "" {
		clientOpts = append(clientOpts, axiom.SetOrganizationID(opts.AxiomOrgID))
	}
	client, err := axiom.NewClient(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("axiom client: %w", err)
	}
	return startSink(func(ctx context.Context, events []axiom.Event) error {
		_, err := client.IngestEvents(ctx, dataset, events)
		return err
	}, opts.Service, opts.AxiomFlush), nil
}

func startSink(ingest ingestFunc, service string, every time.Duration) *axiomSink {
	if every <= 0 {
		every = 10 * time.Second
	}
	s := &axiomSink{
		ingest:  ingest,
		service: service,
		events:  make(chan axiom.Event, axiomBuffer),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.run(every)
	return s
}

// WriteLevel implements zerolog.LevelWriter.
func (s *axiomSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < zerolog.InfoLevel {
		return len(p), nil
	}
	return s.Write(p)
}

func (s *axiomSink) Write(p []byte) (int, error) {
	ev := axiom.Event{}
	if err := json.Unmarshal(p, &ev); err != nil {
		ev = axiom.Event{"message": string(p)}
	}
	ev["service"] = s.service
	if _, ok := ev[ingest.TimestampField]; !ok {
		ev[ingest.TimestampField] = time.Now()
	}
	select {
	case s.events <- ev:
	default:
	}
	return len(p), nil
}

func (s *axiomSink) run(every time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	var batch []axiom.Event
	ship := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), axiomTimeout)
		defer cancel()
		// Reporting through zerolog would feed the failure back into the sink.
		if err := s.ingest(ctx, batch); err != nil {
			fmt.Fprintf(os.Stderr, "axiom ingest of %d events: %v\n", len(batch), err)
		}
		batch = nil
	}

	for {
		select {
		case ev := <-s.events:
			if batch = append(batch, ev); len(batch) >= axiomBatch {
				ship()
			}
		case <-ticker.C:
			ship()
		case <-s.quit:
			for {
				select {
				case ev := <-s.events:
					batch = append(batch, ev)
				default:
					ship()
					return
				}
			}
		}
	}
}

// Close ships buffered events and waits for the final ingest.
func (s *axiomSink) Close() {
	s.stop.Do(func() { close(s.quit) })
	<-s.done
}
