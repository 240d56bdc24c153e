package requestlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mockgate/mockgate/pkg/logging"
)

// LogFileName is the active request-log file name inside the log dir.
const LogFileName = "requests.log"

// Emitter receives each record after its file write returns. The hub
// implements it to fan records out to live subscribers.
type Emitter interface {
	Publish(entry *Entry)
}

// Config controls the writer's rotation policy.
type Config struct {
	// Dir is the log directory, created if missing.
	Dir string

	// MaxBytes is the size-rotation threshold. Only used when
	// RotationTime is empty.
	MaxBytes int64

	// BackupCount caps the number of archived files.
	BackupCount int

	// RotationTime enables time rotation: "Nd" (midnight), "Nh" (top
	// of the hour) or "Nw" (weekly, Monday). Empty selects size
	// rotation.
	RotationTime string
}

// Writer appends request records to the active log file, rotating per
// the configured policy, and emits each record after the write
// returns. It is the sole producer of request-log records.
type Writer struct {
	cfg     Config
	log     *slog.Logger
	emitter Emitter

	mu         sync.Mutex
	file       *os.File
	size       int64
	interval   rotationInterval
	rolloverAt time.Time
	now        func() time.Time
}

type rotationInterval struct {
	unit  byte // 'd', 'h' or 'w'
	count int
}

// WriterOption customizes a Writer.
type WriterOption func(*Writer)

// WithEmitter attaches the live-event emitter.
func WithEmitter(e Emitter) WriterOption {
	return func(w *Writer) { w.emitter = e }
}

// WithClock replaces the time source (tests).
func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) { w.now = now }
}

// NewWriter opens (creating as needed) the active log file.
func NewWriter(cfg Config, log *slog.Logger, opts ...WriterOption) (*Writer, error) {
	if log == nil {
		log = logging.Nop()
	}
	if cfg.Dir == "" {
		cfg.Dir = "logs"
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 50 << 20
	}
	if cfg.BackupCount <= 0 {
		cfg.BackupCount = 10
	}

	w := &Writer{cfg: cfg, log: log, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}

	if cfg.RotationTime != "" {
		interval, err := parseRotationTime(cfg.RotationTime)
		if err != nil {
			return nil, err
		}
		w.interval = interval
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir %q: %w", cfg.Dir, err)
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	if w.interval.unit != 0 {
		w.rolloverAt = w.interval.next(w.now())
	}
	return w, nil
}

func (w *Writer) open() error {
	file, err := os.OpenFile(w.path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open request log: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("stat request log: %w", err)
	}
	w.file = file
	w.size = info.Size()
	return nil
}

func (w *Writer) path() string {
	return filepath.Join(w.cfg.Dir, LogFileName)
}

// Log stamps, persists and emits one record. Persistence failures are
// logged to the application log and never propagate to the caller;
// the stamped record is returned either way so the response can
// proceed.
func (w *Writer) Log(entry *Entry) *Entry {
	w.mu.Lock()
	now := w.now()
	entry.ID = newEntryID(now)
	entry.Timestamp = now.Format("2006-01-02T15:04:05.999999")

	line, err := json.Marshal(entry)
	if err != nil {
		w.mu.Unlock()
		w.log.Error("request log serialization failed", "error", err)
		return entry
	}

	if err := w.writeLocked(line, now); err != nil {
		w.log.Error("request log write failed", "error", err)
	}
	w.mu.Unlock()

	// Fan-out starts strictly after the file write returned, so a
	// reader polling right after a live event always finds the record.
	if w.emitter != nil {
		w.emitter.Publish(entry)
	}
	return entry
}

func (w *Writer) writeLocked(line []byte, now time.Time) error {
	record := append(line, '\n')

	if w.interval.unit != 0 {
		if !now.Before(w.rolloverAt) {
			if err := w.rotateTimeLocked(); err != nil {
				return err
			}
			w.rolloverAt = w.interval.next(now)
		}
	} else if w.size > 0 && w.size+int64(len(record)) > w.cfg.MaxBytes {
		if err := w.rotateSizeLocked(); err != nil {
			return err
		}
	}

	n, err := w.file.Write(record)
	w.size += int64(n)
	return err
}

// rotateSizeLocked cascades requests.log.N up to the backup cap and
// reopens a fresh active file.
func (w *Writer) rotateSizeLocked() error {
	if err := w.file.Close(); err != nil {
		return err
	}

	base := w.path()
	_ = os.Remove(fmt.Sprintf("%s.%d", base, w.cfg.BackupCount))
	for i := w.cfg.BackupCount - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", base, i)
		if _, err := os.Stat(src); err == nil {
			_ = os.Rename(src, fmt.Sprintf("%s.%d", base, i+1))
		}
	}
	if err := os.Rename(base, base+".1"); err != nil && !os.IsNotExist(err) {
		return err
	}
	return w.open()
}

// rotateTimeLocked archives the active file under a date suffix and
// prunes archives beyond the backup cap.
func (w *Writer) rotateTimeLocked() error {
	if err := w.file.Close(); err != nil {
		return err
	}

	suffix := w.now().Format("2006-01-02")
	if w.interval.unit == 'h' {
		suffix = w.now().Format("2006-01-02_15")
	}
	base := w.path()
	archived := base + "." + suffix
	if err := os.Rename(base, archived); err != nil && !os.IsNotExist(err) {
		return err
	}

	w.pruneTimeArchives()
	return w.open()
}

func (w *Writer) pruneTimeArchives() {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return
	}
	var archives []string
	for _, entry := range entries {
		name := entry.Name()
		if name != LogFileName && strings.HasPrefix(name, LogFileName+".") {
			archives = append(archives, name)
		}
	}
	if len(archives) <= w.cfg.BackupCount {
		return
	}
	// Date suffixes sort lexicographically oldest-first.
	sort.Strings(archives)
	for _, name := range archives[:len(archives)-w.cfg.BackupCount] {
		_ = os.Remove(filepath.Join(w.cfg.Dir, name))
	}
}

// Close flushes and closes the active file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func parseRotationTime(spec string) (rotationInterval, error) {
	if len(spec) < 2 {
		return rotationInterval{}, fmt.Errorf("invalid rotation time %q (want Nd, Nh or Nw)", spec)
	}
	unit := spec[len(spec)-1]
	if unit != 'd' && unit != 'h' && unit != 'w' {
		return rotationInterval{}, fmt.Errorf("invalid rotation unit %q (want d, h or w)", string(unit))
	}
	count, err := strconv.Atoi(spec[:len(spec)-1])
	if err != nil || count < 1 {
		return rotationInterval{}, fmt.Errorf("invalid rotation count in %q", spec)
	}
	return rotationInterval{unit: unit, count: count}, nil
}

// next computes the first rollover instant after now: midnight for
// daily, the top of the hour for hourly, Monday midnight for weekly,
// each stretched by the interval count.
func (i rotationInterval) next(now time.Time) time.Time {
	switch i.unit {
	case 'h':
		top := now.Truncate(time.Hour).Add(time.Hour)
		return top.Add(time.Duration(i.count-1) * time.Hour)
	case 'w':
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
		for midnight.Weekday() != time.Monday {
			midnight = midnight.AddDate(0, 0, 1)
		}
		return midnight.AddDate(0, 0, (i.count-1)*7)
	default: // 'd'
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
		return midnight.AddDate(0, 0, i.count-1)
	}
}
