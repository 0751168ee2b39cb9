// Package inbox registers applications dropped as JSON files into a
// directory. Each file is one registry.Application; after processing it is
// moved to processed/ with a .result.json or to failed/ with a .error.txt.
package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/landchain/internal/apperr"
	"github.com/starford/landchain/internal/registry"
)

// Subdirectories of the inbox.
const (
	ProcessedDir = "processed"
	FailedDir    = "failed"
)

// settle is how long a file must stay quiet before it is processed.
const settle = 200 * time.Millisecond

// Retry backoff for files left in place by a storage failure.
const (
	retryBase = time.Second
	retryMax  = 30 * time.Second
)

// Registrar is the part of the registry the inbox drives.
type Registrar interface {
	Register(ctx context.Context, app registry.Application) (registry.Registration, error)
}

// Outcome of processing one file.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeFailed    Outcome = "failed"
	OutcomeRetry     Outcome = "retry"
)

// ResultCallback is called after each file is handled.
type ResultCallback func(name string, outcome Outcome)

// Inbox watches one directory.
type Inbox struct {
	dir    string
	reg    Registrar
	logger *slog.Logger
	cb     ResultCallback

	retryBase time.Duration
	retryMax  time.Duration
}

// New creates the inbox directory tree if needed.
func New(dir string, reg Registrar, logger *slog.Logger, cb ResultCallback) (*Inbox, error) {
	if dir == "" {
		return nil, errors.New("inbox: path is required")
	}
	for _, sub := range []string{"", ProcessedDir, FailedDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("inbox: mkdir: %w", err)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Inbox{
		dir:       dir,
		reg:       reg,
		logger:    logger,
		cb:        cb,
		retryBase: retryBase,
		retryMax:  retryMax,
	}, nil
}

// Sweep processes every pending file, oldest name first.
func (in *Inbox) Sweep(ctx context.Context) {
	in.sweep(ctx)
}

// sweep returns the names left in place for a retry.
func (in *Inbox) sweep(ctx context.Context) []string {
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		in.logger.Warn("inbox: list failed", slog.String("error", err.Error()))
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && isApplication(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return in.processAll(ctx, names)
}

func (in *Inbox) processAll(ctx context.Context, names []string) []string {
	var retry []string
	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		if in.process(ctx, name) == OutcomeRetry {
			retry = append(retry, name)
		}
	}
	return retry
}

// Watch sweeps once, then processes files as they appear until ctx is
// cancelled. Bursts of writes are coalesced with a short settle timer.
// Files kept back by a storage failure are retried with exponential backoff.
func (in *Inbox) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(in.dir); err != nil {
		return fmt.Errorf("inbox: watch %s: %w", in.dir, err)
	}
	in.logger.Info("inbox: started", slog.String("dir", in.dir))

	retrying := make(map[string]struct{})
	var retryTimer *time.Timer
	var retryCh <-chan time.Time
	backoff := in.retryBase

	// track records the outcome of a batch and arms the retry timer.
	track := func(names, retry []string) {
		for _, name := range names {
			delete(retrying, name)
		}
		for _, name := range retry {
			retrying[name] = struct{}{}
		}
		if len(retrying) == 0 {
			backoff = in.retryBase
			return
		}
		if retryCh == nil {
			retryTimer = time.NewTimer(backoff)
			retryCh = retryTimer.C
		}
	}
	track(nil, in.sweep(ctx))

	pending := make(map[string]struct{})
	var settleTimer *time.Timer
	var settleCh <-chan time.Time

	schedule := func() {
		if settleTimer == nil {
			settleTimer = time.NewTimer(settle)
			settleCh = settleTimer.C
		} else {
			settleTimer.Reset(settle)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if settleTimer != nil {
				settleTimer.Stop()
			}
			if retryTimer != nil {
				retryTimer.Stop()
			}
			in.logger.Info("inbox: stopped")
			return nil

		case <-settleCh:
			names := sortedNames(pending)
			clear(pending)
			track(names, in.processAll(ctx, names))

		case <-retryCh:
			retryCh = nil
			names := sortedNames(retrying)
			retry := in.processAll(ctx, names)
			if len(retry) > 0 {
				backoff = min(backoff*2, in.retryMax)
				in.logger.Info("inbox: retry scheduled",
					slog.Int("files", len(retry)),
					slog.Duration("backoff", backoff))
			}
			track(names, retry)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if filepath.Dir(ev.Name) != filepath.Clean(in.dir) || !isApplication(name) {
				continue
			}
			pending[name] = struct{}{}
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			in.logger.Error("inbox: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

func sortedNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func isApplication(name string) bool {
	return strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, ".")
}

// process registers one file and files it under processed/ or failed/.
// Storage failures that left nothing behind keep the file in place and
// return OutcomeRetry. A file that has vanished yields the empty Outcome.
func (in *Inbox) process(ctx context.Context, name string) Outcome {
	src := filepath.Join(in.dir, name)
	data, err := os.ReadFile(src)
	if errors.Is(err, os.ErrNotExist) {
		return ""
	}
	if err != nil {
		in.logger.Warn("inbox: read failed", slog.String("file", name), slog.String("error", err.Error()))
		in.report(name, OutcomeRetry)
		return OutcomeRetry
	}

	var app registry.Application
	if err := json.Unmarshal(data, &app); err != nil {
		return in.fail(name, fmt.Errorf("decode application: %w", err))
	}

	reg, err := in.reg.Register(ctx, app)
	switch {
	case err == nil, reg.Record.RegistrationNumber != "":
		return in.succeed(name, reg, err)
	case errors.Is(err, apperr.ErrPersistence):
		in.logger.Warn("inbox: storage unavailable, will retry",
			slog.String("file", name), slog.String("error", err.Error()))
		in.report(name, OutcomeRetry)
		return OutcomeRetry
	default:
		return in.fail(name, err)
	}
}

func (in *Inbox) succeed(name string, reg registry.Registration, issueErr error) Outcome {
	out, _ := json.MarshalIndent(reg, "", "  ")
	dst := filepath.Join(in.dir, ProcessedDir, name)
	if err := os.Rename(filepath.Join(in.dir, name), dst); err != nil {
		in.logger.Error("inbox: move failed", slog.String("file", name), slog.String("error", err.Error()))
		return ""
	}
	if err := os.WriteFile(dst+".result.json", append(out, '\n'), 0o644); err != nil {
		in.logger.Warn("inbox: write result failed", slog.String("file", name), slog.String("error", err.Error()))
	}
	attrs := []any{
		slog.String("file", name),
		slog.String("registration_number", reg.Record.RegistrationNumber),
	}
	if issueErr != nil {
		attrs = append(attrs, slog.String("certificate_error", issueErr.Error()))
	}
	in.logger.Info("inbox: registered", attrs...)
	in.report(name, OutcomeProcessed)
	return OutcomeProcessed
}

func (in *Inbox) fail(name string, cause error) Outcome {
	dst := filepath.Join(in.dir, FailedDir, name)
	if err := os.Rename(filepath.Join(in.dir, name), dst); err != nil {
		in.logger.Error("inbox: move failed", slog.String("file", name), slog.String("error", err.Error()))
		return ""
	}
	if err := os.WriteFile(dst+".error.txt", []byte(describe(cause)), 0o644); err != nil {
		in.logger.Warn("inbox: write error report failed", slog.String("file", name), slog.String("error", err.Error()))
	}
	in.logger.Warn("inbox: rejected", slog.String("file", name), slog.String("error", cause.Error()))
	in.report(name, OutcomeFailed)
	return OutcomeFailed
}

func (in *Inbox) report(name string, o Outcome) {
	if in.cb != nil {
		in.cb(name, o)
	}
}

// describe renders cause with one line per invalid field.
func describe(cause error) string {
	var ve *apperr.ValidationError
	if !errors.As(cause, &ve) {
		return cause.Error() + "\n"
	}
	keys := make([]string, 0, len(ve.Fields))
	for k := range ve.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString("validation failed\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, ve.Fields[k])
	}
	return b.String()
}
