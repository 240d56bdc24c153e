package engine

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mockgate/mockgate/pkg/processor"
	"github.com/mockgate/mockgate/pkg/requestlog"
	"github.com/mockgate/mockgate/pkg/service"
)

const notFoundBody = "Mock service not found"

// handleMockRequest serves every request that missed the management
// surface: read the body once, route, run the strategy, respond, then
// persist and broadcast exactly one log record — 404 and 500 included.
func (s *Server) handleMockRequest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		bodyBytes = nil
	}
	_ = r.Body.Close()

	headers := flattenHeaders(r.Header)
	query := flattenQuery(r)
	req := &processor.Request{
		Method:  r.Method,
		Path:    r.URL.Path,
		URL:     requestURL(r),
		Query:   r.URL.RawQuery,
		Headers: headers,
		Body:    bodyBytes,
	}

	svc, pathParams := s.router.Match(r.URL.Path, r.Method, headers, req.BodyString())
	if svc == nil {
		s.log.Info("no mock service matched", "method", r.Method, "path", r.URL.Path)
		s.respondAndLog(w, r, start, nil, req, query, &processor.Result{
			StatusCode: http.StatusNotFound,
			Body:       notFoundBody,
			Headers:    map[string]string{},
		})
		return
	}

	s.log.Info("mock request matched",
		"service", svc.Name, "service_id", svc.ID,
		"method", r.Method, "path", r.URL.Path, "strategy", svc.Strategy)

	result := s.processor.Process(svc, req, pathParams)
	s.respondAndLog(w, r, start, svc, req, query, result)
}

// respondAndLog writes the client response, then persists the record;
// the writer broadcasts it to subscribers after the file write
// returns. Logging failures never affect the response.
func (s *Server) respondAndLog(w http.ResponseWriter, r *http.Request, start time.Time,
	svc *service.Service, req *processor.Request, query map[string]string, result *processor.Result) {

	for key, value := range result.Headers {
		w.Header().Set(key, value)
	}
	// Static and conditional responses default to JSON unless the
	// operator set a content type; proxied responses pass through
	// whatever the upstream declared.
	if result.ProxyInfo == nil && !hasContentType(result.Headers) {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(result.StatusCode)
	_, _ = w.Write([]byte(result.Body))

	entry := &requestlog.Entry{
		Path:            r.URL.Path,
		Method:          r.Method,
		Headers:         req.Headers,
		QueryParams:     query,
		Body:            req.BodyString(),
		ResponseStatus:  result.StatusCode,
		ResponseBody:    result.Body,
		ResponseHeaders: result.Headers,
		ProcessingTime:  time.Since(start).Seconds(),
		ProxyInfo:       result.ProxyInfo,
	}
	if svc != nil {
		id := svc.ID
		name := svc.Name
		entry.MockServiceID = &id
		entry.MockServiceName = &name
	}
	s.writer.Log(entry)
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for key, values := range h {
		if len(values) > 0 {
			out[key] = values[0]
		}
	}
	return out
}

func flattenQuery(r *http.Request) map[string]string {
	out := map[string]string{}
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			out[key] = values[0]
		}
	}
	return out
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func hasContentType(headers map[string]string) bool {
	for key := range headers {
		if strings.EqualFold(key, "Content-Type") {
			return true
		}
	}
	return false
}
