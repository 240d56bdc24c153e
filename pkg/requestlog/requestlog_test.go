package requestlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockgate/mockgate/pkg/processor"
)

func testEntry(serviceID int, name string) *Entry {
	return &Entry{
		MockServiceID:   &serviceID,
		MockServiceName: &name,
		Path:            "/hello",
		Method:          "GET",
		Headers:         map[string]string{"accept": "text/plain"},
		QueryParams:     map[string]string{"a": "1"},
		Body:            "",
		ResponseStatus:  200,
		ResponseBody:    "hi",
		ResponseHeaders: map[string]string{"content-type": "text/plain"},
		ProcessingTime:  0.002,
	}
}

func newTestWriter(t *testing.T, cfg Config, opts ...WriterOption) *Writer {
	t.Helper()
	w, err := NewWriter(cfg, nil, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestLogWritesSingleJSONLine(t *testing.T) {
	dir := t.TempDir()
	w := newTestWriter(t, Config{Dir: dir})

	logged := w.Log(testEntry(1, "hello"))

	require.Regexp(t, regexp.MustCompile(`^\d{8}_\d{6}_\d{6}$`), logged.ID)
	assert.NotEmpty(t, logged.Timestamp)

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 1)

	var parsed Entry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &parsed))
	assert.Equal(t, logged.ID, parsed.ID)
	assert.Equal(t, 200, parsed.ResponseStatus)
	require.NotNil(t, parsed.MockServiceID)
	assert.Equal(t, 1, *parsed.MockServiceID)
}

func TestSizeRotationCascade(t *testing.T) {
	dir := t.TempDir()
	w := newTestWriter(t, Config{Dir: dir, MaxBytes: 1024, BackupCount: 2})

	// Each ~630-byte record fills a file on its own, so ~6KiB of records
	// forces nine rollovers; only two archives may survive.
	entry := testEntry(1, "hello")
	entry.ResponseBody = strings.Repeat("x", 300)
	for i := 0; i < 10; i++ {
		w.Log(entry)
	}

	for _, name := range []string{LogFileName, LogFileName + ".1", LogFileName + ".2"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, "%s must exist", name)
	}
	_, err := os.Stat(filepath.Join(dir, LogFileName+".3"))
	assert.True(t, os.IsNotExist(err), "backup beyond the cap must be removed")
}

func TestRotationKeepsRecordsReadable(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Dir: dir, MaxBytes: 512, BackupCount: 20}
	w := newTestWriter(t, cfg)

	entry := testEntry(1, "hello")
	entry.ResponseBody = strings.Repeat("y", 100)
	const total = 12
	for i := 0; i < total; i++ {
		w.Log(entry)
	}

	got, err := NewReader(cfg).Get(Query{Limit: 100})
	require.NoError(t, err)
	assert.Len(t, got, total, "no record may be lost to rotation")
}

func TestTimeRotationArchivesByDate(t *testing.T) {
	dir := t.TempDir()
	current := time.Date(2025, 3, 1, 23, 59, 0, 0, time.Local)
	clock := func() time.Time { return current }

	w := newTestWriter(t, Config{Dir: dir, RotationTime: "1d"}, WithClock(clock))
	w.Log(testEntry(1, "before"))

	// Cross midnight; the next write must archive the old file.
	current = time.Date(2025, 3, 2, 0, 1, 0, 0, time.Local)
	w.Log(testEntry(1, "after"))

	_, err := os.Stat(filepath.Join(dir, LogFileName+".2025-03-02"))
	assert.NoError(t, err, "archive named for the rotation date")
	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "after")
}

func TestParseRotationTime(t *testing.T) {
	for _, good := range []string{"1d", "12h", "2w"} {
		_, err := parseRotationTime(good)
		assert.NoError(t, err, good)
	}
	for _, bad := range []string{"", "d", "0d", "5x", "-1h"} {
		_, err := parseRotationTime(bad)
		assert.Error(t, err, bad)
	}
}

func TestRotationIntervalNext(t *testing.T) {
	now := time.Date(2025, 3, 5, 14, 30, 0, 0, time.Local) // a Wednesday

	daily := rotationInterval{unit: 'd', count: 1}
	assert.Equal(t, time.Date(2025, 3, 6, 0, 0, 0, 0, time.Local), daily.next(now))

	hourly := rotationInterval{unit: 'h', count: 1}
	assert.Equal(t, time.Date(2025, 3, 5, 15, 0, 0, 0, time.Local), hourly.next(now))

	weekly := rotationInterval{unit: 'w', count: 1}
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.Local), weekly.next(now))
	assert.Equal(t, time.Monday, weekly.next(now).Weekday())
}

type captureEmitter struct {
	reader  *Reader
	found   bool
	entries []*Entry
}

func (c *captureEmitter) Publish(entry *Entry) {
	c.entries = append(c.entries, entry)
	// The record must already be durable when the event arrives.
	if c.reader != nil {
		got, err := c.reader.Get(Query{Limit: 10})
		if err == nil {
			for _, e := range got {
				if e.ID == entry.ID {
					c.found = true
				}
			}
		}
	}
}

func TestLogEmitsAfterWrite(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Dir: dir}
	emitter := &captureEmitter{reader: NewReader(cfg)}
	w := newTestWriter(t, cfg, WithEmitter(emitter))

	w.Log(testEntry(7, "svc"))

	require.Len(t, emitter.entries, 1)
	assert.True(t, emitter.found, "record visible to the reader before fan-out")
}

func TestReaderFiltersByService(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Dir: dir}
	w := newTestWriter(t, cfg)

	w.Log(testEntry(1, "one"))
	w.Log(testEntry(2, "two"))
	w.Log(testEntry(1, "one"))

	id := 1
	got, err := NewReader(cfg).Get(Query{ServiceID: &id, Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, entry := range got {
		assert.Equal(t, 1, *entry.MockServiceID)
	}
}

func TestReaderSortsNewestFirstAndPaginates(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Dir: dir}

	current := time.Date(2025, 5, 1, 10, 0, 0, 0, time.Local)
	w := newTestWriter(t, cfg, WithClock(func() time.Time {
		current = current.Add(time.Second)
		return current
	}))
	for i := 0; i < 5; i++ {
		w.Log(testEntry(1, "svc"))
	}

	reader := NewReader(cfg)
	all, err := reader.Get(Query{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.GreaterOrEqual(t, all[i-1].Timestamp, all[i].Timestamp)
	}

	page, err := reader.Get(Query{Skip: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, all[2].ID, page[0].ID)
	assert.Equal(t, all[3].ID, page[1].ID)

	empty, err := reader.Get(Query{Skip: 50, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestReaderSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Dir: dir}
	w := newTestWriter(t, cfg)
	w.Log(testEntry(1, "good"))

	f, err := os.OpenFile(filepath.Join(dir, LogFileName), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json}\n\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	got, err := NewReader(cfg).Get(Query{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestReaderRoundTripPreservesFields(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Dir: dir}
	w := newTestWriter(t, cfg)

	status := 200
	entry := testEntry(3, "svc")
	entry.ProxyInfo = &processor.ProxyInfo{
		TargetURL:            "https://up.example/x",
		ProxyHeaders:         map[string]string{"Accept": "text/plain"},
		ProxyResponseStatus:  &status,
		ProxyResponseHeaders: map[string]string{"Content-Type": "text/plain"},
		ProxyResponseBody:    "hi",
		ProxyTime:            0.125,
	}
	logged := w.Log(entry)

	got, err := NewReader(cfg).Get(Query{Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, logged, got[0])
}

func TestReaderExprFilter(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Dir: dir}
	w := newTestWriter(t, cfg)

	ok := testEntry(1, "svc")
	w.Log(ok)
	failed := testEntry(1, "svc")
	failed.ResponseStatus = 502
	w.Log(failed)

	got, err := NewReader(cfg).Get(Query{Expr: "response_status >= 500", Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 502, got[0].ResponseStatus)

	_, err = NewReader(cfg).Get(Query{Expr: "nonsense ~~", Limit: 10})
	assert.Error(t, err, "bad filter fails the query")
}

func TestFilesInfo(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Dir: dir, MaxBytes: 1024, BackupCount: 2}
	w := newTestWriter(t, cfg)

	entry := testEntry(1, "svc")
	entry.ResponseBody = strings.Repeat("z", 300)
	for i := 0; i < 6; i++ {
		w.Log(entry)
	}

	infos := NewReader(cfg).FilesInfo()
	require.NotEmpty(t, infos)
	assert.Equal(t, LogFileName, infos[0].File)
	for _, info := range infos {
		assert.Equal(t, "size", info.RotationType)
		assert.Equal(t, 2, info.BackupCount)
		assert.Greater(t, info.SizeBytes, int64(0))
	}
}
