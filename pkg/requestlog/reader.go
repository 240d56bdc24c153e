package requestlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Reader scans the active log plus archives for stored records.
type Reader struct {
	cfg Config
}

// NewReader creates a Reader over the same directory a Writer uses.
func NewReader(cfg Config) *Reader {
	if cfg.Dir == "" {
		cfg.Dir = "logs"
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 50 << 20
	}
	if cfg.BackupCount <= 0 {
		cfg.BackupCount = 10
	}
	return &Reader{cfg: cfg}
}

// Query filters a Get scan.
type Query struct {
	// ServiceID keeps only records of one service when non-nil.
	ServiceID *int

	// Expr is an optional expr-lang predicate evaluated per record,
	// e.g. "response_status >= 500 && method == 'POST'". A compile or
	// evaluation error fails the query.
	Expr string

	// Skip/Limit paginate after sorting. Limit 0 means 100.
	Skip  int
	Limit int
}

// filterEnv builds the per-record environment an Expr predicate sees.
func filterEnv(entry *Entry) map[string]any {
	env := map[string]any{
		"id":              entry.ID,
		"service_id":      0,
		"service_name":    "",
		"path":            entry.Path,
		"method":          entry.Method,
		"response_status": entry.ResponseStatus,
		"processing_time": entry.ProcessingTime,
		"headers":         entry.Headers,
		"query_params":    entry.QueryParams,
		"proxied":         entry.ProxyInfo != nil,
	}
	if entry.MockServiceID != nil {
		env["service_id"] = *entry.MockServiceID
	}
	if entry.MockServiceName != nil {
		env["service_name"] = *entry.MockServiceName
	}
	return env
}

// Get returns matching records sorted by timestamp descending, sliced
// to [skip, skip+limit). Malformed lines are skipped silently;
// unreadable files are skipped too, since rotation may race the scan.
func (r *Reader) Get(q Query) ([]*Entry, error) {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Skip < 0 {
		q.Skip = 0
	}

	var program *vm.Program
	if q.Expr != "" {
		compiled, err := expr.Compile(q.Expr, expr.Env(filterEnv(&Entry{})), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("compile log filter: %w", err)
		}
		program = compiled
	}

	var entries []*Entry
	for _, path := range r.logFiles() {
		file, err := os.Open(path)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var entry Entry
			if err := json.Unmarshal([]byte(line), &entry); err != nil {
				continue
			}
			if q.ServiceID != nil {
				if entry.MockServiceID == nil || *entry.MockServiceID != *q.ServiceID {
					continue
				}
			}
			if program != nil {
				keep, err := runFilter(program, &entry)
				if err != nil {
					_ = file.Close()
					return nil, fmt.Errorf("evaluate log filter: %w", err)
				}
				if !keep {
					continue
				}
			}
			entries = append(entries, &entry)
		}
		_ = file.Close()
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp > entries[j].Timestamp
	})

	if q.Skip >= len(entries) {
		return []*Entry{}, nil
	}
	end := q.Skip + q.Limit
	if end > len(entries) {
		end = len(entries)
	}
	return entries[q.Skip:end], nil
}

func runFilter(program *vm.Program, entry *Entry) (bool, error) {
	out, err := expr.Run(program, filterEnv(entry))
	if err != nil {
		return false, err
	}
	keep, ok := out.(bool)
	return ok && keep, nil
}

// logFiles lists the active file first, then archives. Both numeric
// (size rotation) and dated (time rotation) suffixes are included.
func (r *Reader) logFiles() []string {
	var out []string
	active := filepath.Join(r.cfg.Dir, LogFileName)
	if _, err := os.Stat(active); err == nil {
		out = append(out, active)
	}

	entries, err := os.ReadDir(r.cfg.Dir)
	if err != nil {
		return out
	}
	var archives []string
	for _, entry := range entries {
		name := entry.Name()
		if name != LogFileName && strings.HasPrefix(name, LogFileName+".") {
			archives = append(archives, name)
		}
	}
	sort.Strings(archives)
	for _, name := range archives {
		out = append(out, filepath.Join(r.cfg.Dir, name))
	}
	return out
}

// FileInfo describes one log file for the management API.
type FileInfo struct {
	File         string  `json:"file"`
	SizeBytes    int64   `json:"size_bytes"`
	SizeMB       float64 `json:"size_mb"`
	Modified     string  `json:"modified"`
	MaxSizeMB    float64 `json:"max_size_mb"`
	BackupCount  int     `json:"backup_count"`
	RotationType string  `json:"rotation_type"`
}

// FilesInfo returns per-file size and rotation metadata.
func (r *Reader) FilesInfo() []FileInfo {
	rotationType := "size"
	if r.cfg.RotationTime != "" {
		rotationType = "time"
	}

	var out []FileInfo
	for _, path := range r.logFiles() {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		out = append(out, FileInfo{
			File:         filepath.Base(path),
			SizeBytes:    info.Size(),
			SizeMB:       roundMB(info.Size()),
			Modified:     info.ModTime().Format("2006-01-02T15:04:05.999999"),
			MaxSizeMB:    roundMB(r.cfg.MaxBytes),
			BackupCount:  r.cfg.BackupCount,
			RotationType: rotationType,
		})
	}
	return out
}

func roundMB(bytes int64) float64 {
	mb := float64(bytes) / (1 << 20)
	return float64(int64(mb*100+0.5)) / 100
}
