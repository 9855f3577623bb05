// Package feedcache parses feedcache command flags and runs cache commands
// against a configured backend.
package feedcache

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/louisbranch/feedcache/internal/feed"
	"github.com/louisbranch/feedcache/internal/platform/config"
	platformotel "github.com/louisbranch/feedcache/internal/platform/otel"
	"github.com/louisbranch/feedcache/internal/storage"
	bboltstore "github.com/louisbranch/feedcache/internal/storage/bbolt"
	filestore "github.com/louisbranch/feedcache/internal/storage/file"
	"github.com/louisbranch/feedcache/internal/storage/instrument"
	"github.com/louisbranch/feedcache/internal/storage/memory"
	"github.com/louisbranch/feedcache/internal/storage/serial"
	sqlitestore "github.com/louisbranch/feedcache/internal/storage/sqlite"
)

// Config holds feedcache command configuration.
type Config struct {
	Backend string        `env:"FEEDCACHE_BACKEND" envDefault:"file"`
	Path    string        `env:"FEEDCACHE_PATH" envDefault:"data/feed-cache.json"`
	Timeout time.Duration `env:"FEEDCACHE_OP_TIMEOUT" envDefault:"5s"`
}

// ParseConfig parses environment and flags into a Config plus the remaining
// command arguments.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, []string, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, nil, err
	}
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "Cache backend: memory, file, bbolt, or sqlite")
	fs.StringVar(&cfg.Path, "path", cfg.Path, "Cache storage path (ignored by the memory backend)")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-operation timeout")
	if err := fs.Parse(args); err != nil {
		return Config{}, nil, err
	}
	return cfg, fs.Args(), nil
}

// imageInput is the JSON shape accepted by the insert command. A missing id
// gets a generated one.
type imageInput struct {
	ID          string `json:"id,omitempty"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	URL         string `json:"url"`
}

type imageOutput struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	URL         string `json:"url"`
}

type feedOutput struct {
	CachedAt time.Time     `json:"cached_at"`
	Images   []imageOutput `json:"images"`
}

// Run executes one cache command. Input for insert is read from in; command
// output is written to out as JSON.
func Run(ctx context.Context, cfg Config, command string, in io.Reader, out io.Writer) error {
	shutdown, err := platformotel.Setup(ctx, "feedcache")
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		_ = shutdown(context.Background())
	}()

	backend, err := openBackend(cfg)
	if err != nil {
		return err
	}
	instrumented, err := instrument.Wrap(backend)
	if err != nil {
		_ = backend.Close()
		return fmt.Errorf("instrument store: %w", err)
	}

	queue := serial.Wrap(instrumented)
	defer func() {
		_ = queue.Close()
	}()

	opCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	switch strings.TrimSpace(command) {
	case "show":
		return runShow(opCtx, queue, out)
	case "insert":
		return runInsert(opCtx, queue, in, out)
	case "clear":
		return runClear(opCtx, queue, out)
	default:
		return fmt.Errorf("unknown command %q (want show, insert, or clear)", command)
	}
}

func openBackend(cfg Config) (storage.Store, error) {
	backend := strings.TrimSpace(strings.ToLower(cfg.Backend))
	if backend == "memory" {
		return memory.New(), nil
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache storage dir: %w", err)
		}
	}

	switch backend {
	case "file":
		return filestore.New(cfg.Path)
	case "bbolt":
		return bboltstore.Open(cfg.Path)
	case "sqlite":
		return sqlitestore.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown backend %q (want memory, file, bbolt, or sqlite)", cfg.Backend)
	}
}

func runShow(ctx context.Context, queue *serial.Queue, out io.Writer) error {
	result := <-queue.Retrieve(ctx)
	if result.Err != nil {
		return fmt.Errorf("retrieve cached feed: %w", result.Err)
	}
	if !result.Found {
		_, err := fmt.Fprintln(out, "cache is empty")
		return err
	}
	return writeFeed(out, result.Cached)
}

func runInsert(ctx context.Context, queue *serial.Queue, in io.Reader, out io.Writer) error {
	var inputs []imageInput
	decoder := json.NewDecoder(in)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&inputs); err != nil {
		return fmt.Errorf("decode image list: %w", err)
	}

	images := make([]feed.Image, 0, len(inputs))
	for i, input := range inputs {
		imageID := uuid.New()
		if strings.TrimSpace(input.ID) != "" {
			parsed, err := uuid.Parse(input.ID)
			if err != nil {
				return fmt.Errorf("parse image %d id: %w", i, err)
			}
			imageID = parsed
		}
		image, err := feed.NewImage(imageID, input.Description, input.Location, input.URL)
		if err != nil {
			return fmt.Errorf("image %d: %w", i, err)
		}
		images = append(images, image)
	}

	cached := feed.Cached{Images: images, Timestamp: time.Now().UTC()}
	if err := <-queue.Insert(ctx, cached); err != nil {
		return fmt.Errorf("insert cached feed: %w", err)
	}
	return writeFeed(out, cached)
}

func runClear(ctx context.Context, queue *serial.Queue, out io.Writer) error {
	if err := <-queue.Delete(ctx); err != nil {
		return fmt.Errorf("clear cached feed: %w", err)
	}
	_, err := fmt.Fprintln(out, "cache cleared")
	return err
}

func writeFeed(out io.Writer, cached feed.Cached) error {
	output := feedOutput{
		CachedAt: cached.Timestamp,
		Images:   make([]imageOutput, 0, len(cached.Images)),
	}
	for _, image := range cached.Images {
		output.Images = append(output.Images, imageOutput{
			ID:          image.ID.String(),
			Description: image.Description,
			Location:    image.Location,
			URL:         image.URL,
		})
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(output); err != nil {
		return fmt.Errorf("encode feed output: %w", err)
	}
	return nil
}
