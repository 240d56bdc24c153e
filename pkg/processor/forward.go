package processor

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Hop-by-hop and recomputed headers stripped from forwarded traffic.
// Names are compared lower-cased.
var (
	excludedRequestHeaders = map[string]struct{}{
		"content-length": {}, // recomputed for the upstream body
		"host":           {}, // the client sets the target host
	}
	excludedResponseHeaders = map[string]struct{}{
		"content-length":    {},
		"transfer-encoding": {},
		"connection":        {},
		"content-encoding":  {}, // the body is returned decoded
	}
)

// forward proxies the buffered request to target and rewrites the
// upstream response per the header and encoding rules. Transport
// failures map to 502, request-construction failures to 500; both
// carry ProxyInfo with the error recorded.
func (p *Processor) forward(target string, req *Request) *Result {
	start := time.Now()

	headers := make(map[string]string, len(req.Headers))
	for key, value := range req.Headers {
		if _, excluded := excludedRequestHeaders[strings.ToLower(key)]; excluded {
			continue
		}
		headers[key] = value
	}

	info := &ProxyInfo{
		TargetURL:            target,
		ProxyHeaders:         headers,
		ProxyResponseHeaders: map[string]string{},
	}

	upstreamReq, err := http.NewRequest(req.Method, target, bytes.NewReader(req.Body))
	if err != nil {
		return p.forwardError(info, start, http.StatusInternalServerError,
			fmt.Sprintf("Invalid proxy target: %v", err))
	}
	for key, value := range headers {
		upstreamReq.Header.Set(key, value)
	}

	p.log.Info("proxying request", "method", req.Method, "target", target)

	resp, err := p.client.Do(upstreamReq)
	if err != nil {
		return p.forwardError(info, start, http.StatusBadGateway,
			fmt.Sprintf("Upstream request failed: %v", err))
	}
	defer func() { _ = resp.Body.Close() }()

	decoded, err := decodeBody(resp)
	if err != nil {
		return p.forwardError(info, start, http.StatusBadGateway,
			fmt.Sprintf("Failed to read upstream response: %v", err))
	}
	// Best-effort text: invalid bytes are replaced, status preserved.
	body := strings.ToValidUTF8(string(decoded), "�")

	responseHeaders := map[string]string{}
	allHeaders := map[string]string{}
	for key, values := range resp.Header {
		if len(values) == 0 {
			continue
		}
		value := values[0]
		allHeaders[key] = value
		if _, excluded := excludedResponseHeaders[strings.ToLower(key)]; excluded {
			continue
		}
		responseHeaders[key] = value
	}

	status := resp.StatusCode
	info.ProxyResponseStatus = &status
	info.ProxyResponseHeaders = allHeaders
	info.ProxyResponseBody = body
	info.ProxyTime = roundSeconds(time.Since(start))

	p.log.Info("upstream responded", "status", status, "target", target)

	return &Result{
		StatusCode: status,
		Body:       body,
		Headers:    responseHeaders,
		ProxyInfo:  info,
	}
}

func (p *Processor) forwardError(info *ProxyInfo, start time.Time, status int, message string) *Result {
	errText := message
	info.ProxyError = &errText
	info.ProxyTime = roundSeconds(time.Since(start))
	p.log.Error("proxy request failed", "target", info.TargetURL, "error", message)
	return &Result{
		StatusCode: status,
		Body:       message,
		Headers:    map[string]string{},
		ProxyInfo:  info,
	}
}

// decodeBody reads the upstream body, transparently decoding gzip and
// deflate content.
func decodeBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			// Mislabelled encoding: fall back to the raw bytes.
			return io.ReadAll(resp.Body)
		}
		defer func() { _ = gz.Close() }()
		reader = gz
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer func() { _ = fl.Close() }()
		reader = fl
	}
	return io.ReadAll(reader)
}

func roundSeconds(d time.Duration) float64 {
	return float64(d.Milliseconds()) / 1000
}

func urlUnescape(s string) string {
	if unescaped, err := url.QueryUnescape(s); err == nil {
		return unescaped
	}
	return s
}
