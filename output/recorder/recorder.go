// Package recorder writes the frame stream to disk as JSON lines, one
// frame per line, for offline analysis and replay.
package recorder

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/c360/sensorstream/broker"
	"github.com/c360/sensorstream/errors"
	"github.com/c360/sensorstream/types"
)

// Source provides the frame stream to record.
type Source interface {
	Subscribe(opts ...broker.SubscribeOption) (*broker.Subscription, error)
}

// Config holds the recorder settings.
type Config struct {
	Directory  string
	FilePrefix string
	// Append reopens an existing file instead of truncating it.
	Append bool
	// FlushInterval bounds how long a frame can sit in the write buffer.
	FlushInterval time.Duration
}

// DefaultConfig returns the standard recorder settings.
func DefaultConfig() Config {
	return Config{
		Directory:     "./data",
		FilePrefix:    "frames",
		Append:        true,
		FlushInterval: time.Second,
	}
}

// Recorder is the file sink component.
type Recorder struct {
	cfg    Config
	source Source
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	sub     *broker.Subscription
	file    *os.File
	cancel  context.CancelFunc
	done    chan struct{}

	// writeMu guards the writer and counter so Stop never blocks the
	// pump while waiting for it to exit.
	writeMu       sync.Mutex
	writer        *bufio.Writer
	framesWritten int64
}

// New creates the recorder around a frame source.
func New(cfg Config, source Source, logger *slog.Logger) *Recorder {
	return &Recorder{
		cfg:    cfg,
		source: source,
		logger: logger.With("component", "recorder"),
	}
}

// Name implements component.Component.
func (r *Recorder) Name() string { return "recorder" }

// Initialize validates the configuration and creates the directory.
func (r *Recorder) Initialize() error {
	if r.source == nil {
		return errors.WrapFatal(errors.ErrInvalidConfig, "Recorder", "Initialize",
			"frame source missing")
	}
	if r.cfg.Directory == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Recorder", "Initialize",
			"directory is required")
	}
	if r.cfg.FilePrefix == "" {
		r.cfg.FilePrefix = DefaultConfig().FilePrefix
	}
	if r.cfg.FlushInterval <= 0 {
		r.cfg.FlushInterval = DefaultConfig().FlushInterval
	}

	if err := os.MkdirAll(r.cfg.Directory, 0o755); err != nil {
		return errors.WrapFatal(err, "Recorder", "Initialize",
			fmt.Sprintf("creating %s", r.cfg.Directory))
	}
	return nil
}

// Start opens the output file and begins recording.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Recorder", "Start", "recorder")
	}

	flags := os.O_CREATE | os.O_WRONLY
	if r.cfg.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	path := r.Path()
	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return errors.WrapFatal(err, "Recorder", "Start", fmt.Sprintf("opening %s", path))
	}

	sub, err := r.source.Subscribe(broker.SubscribeName("recorder"))
	if err != nil {
		_ = file.Close()
		return err
	}

	r.file = file
	r.sub = sub
	r.writeMu.Lock()
	r.writer = bufio.NewWriter(file)
	r.writeMu.Unlock()

	pumpCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true

	go r.pump(pumpCtx)

	r.logger.Info("recording frames", "path", path)
	return nil
}

// Stop flushes buffered frames and closes the file.
func (r *Recorder) Stop(timeout time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}
	r.running = false

	r.cancel()
	select {
	case <-r.done:
	case <-time.After(timeout):
		return errors.WrapTransient(errors.ErrShutdownTimeout, "Recorder", "Stop",
			fmt.Sprintf("pump still running after %s", timeout))
	}
	r.sub.Close()

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if err := r.writer.Flush(); err != nil {
		_ = r.file.Close()
		return errors.WrapTransient(err, "Recorder", "Stop", "final flush")
	}
	if err := r.file.Close(); err != nil {
		return errors.WrapTransient(err, "Recorder", "Stop", "closing file")
	}

	r.logger.Info("recorder stopped", "frames", r.framesWritten)
	return nil
}

// Path returns the output file path.
func (r *Recorder) Path() string {
	return filepath.Join(r.cfg.Directory, r.cfg.FilePrefix+".jsonl")
}

// FramesWritten returns the number of frames recorded so far.
func (r *Recorder) FramesWritten() int64 {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.framesWritten
}

// pump drains the subscription into the buffered writer, flushing at
// the configured interval.
func (r *Recorder) pump(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	frames := r.sub.Frames(ctx)
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				return
			}
			r.write(frame)
		case <-ticker.C:
			r.flush()
		case <-ctx.Done():
			return
		}
	}
}

func (r *Recorder) write(frame types.Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		r.logger.Error("frame marshal failed", "type", frame.FrameType(), "error", err)
		return
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if _, err := r.writer.Write(append(data, '\n')); err != nil {
		r.logger.Error("frame write failed", "error", err)
		return
	}
	r.framesWritten++
}

func (r *Recorder) flush() {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if err := r.writer.Flush(); err != nil {
		r.logger.Error("flush failed", "error", err)
	}
}
