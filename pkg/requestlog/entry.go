// Package requestlog persists one JSON record per served request to a
// rotating file log and reads them back with filtering and pagination.
package requestlog

import (
	"time"

	"github.com/mockgate/mockgate/pkg/processor"
)

// Entry is one request/response record. Field names follow the
// on-disk wire format: one JSON object per line, UTF-8.
type Entry struct {
	// ID is unique per process: YYYYMMDD_HHMMSS_ffffff at write time.
	ID string `json:"id"`

	// MockServiceID identifies the matched service; nil for misses.
	MockServiceID *int `json:"mock_service_id"`

	// MockServiceName is the matched service's name; nil for misses.
	MockServiceName *string `json:"mock_service_name"`

	Path        string            `json:"path"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers"`
	QueryParams map[string]string `json:"query_params"`
	Body        string            `json:"body"`

	ResponseStatus  int               `json:"response_status"`
	ResponseBody    string            `json:"response_body"`
	ResponseHeaders map[string]string `json:"response_headers"`

	// ProcessingTime is the total handling time in seconds.
	ProcessingTime float64 `json:"processing_time"`

	// Timestamp is ISO-8601 local time at write.
	Timestamp string `json:"timestamp"`

	// ProxyInfo carries upstream telemetry for proxied requests.
	ProxyInfo *processor.ProxyInfo `json:"proxy_info,omitempty"`
}

// newEntryID formats the record id for a write instant.
func newEntryID(now time.Time) string {
	return now.Format("20060102_150405") + "_" + microsecondSuffix(now)
}

func microsecondSuffix(now time.Time) string {
	micro := now.Nanosecond() / 1000
	digits := make([]byte, 6)
	for i := 5; i >= 0; i-- {
		digits[i] = byte('0' + micro%10)
		micro /= 10
	}
	return string(digits)
}
