// Package processor executes a matched service's response strategy:
// canned static bodies, reverse-proxied upstream calls, and
// condition-driven selection between the two.
package processor

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mockgate/mockgate/pkg/evaluator"
	"github.com/mockgate/mockgate/pkg/logging"
	"github.com/mockgate/mockgate/pkg/service"
)

// upstreamTimeout bounds every proxied call.
const upstreamTimeout = 30 * time.Second

// Fallback bodies. These are part of the response contract.
const (
	bodyNoConditionMatched = "No condition matched"
	bodyNoConditions       = "No conditions configured"
)

// Request is the buffered inbound request handed to a strategy. Body
// is read exactly once by the handler; the processor only borrows it.
type Request struct {
	Method  string
	Path    string
	URL     string // full request URL, for the evaluator context
	Query   string // raw query string
	Headers map[string]string
	Body    []byte
}

// BodyString returns the request body decoded as UTF-8 text, with
// invalid bytes replaced.
func (r *Request) BodyString() string {
	return strings.ToValidUTF8(string(r.Body), "�")
}

// Result is the strategy outcome the handler writes to the client.
type Result struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	ProxyInfo  *ProxyInfo
}

// ProxyInfo is upstream-call telemetry attached to the request log.
type ProxyInfo struct {
	TargetURL            string            `json:"target_url"`
	ProxyHeaders         map[string]string `json:"proxy_headers"`
	ProxyResponseStatus  *int              `json:"proxy_response_status"`
	ProxyResponseHeaders map[string]string `json:"proxy_response_headers"`
	ProxyResponseBody    string            `json:"proxy_response_body"`
	ProxyTime            float64           `json:"proxy_time"`
	ProxyError           *string           `json:"proxy_error"`
}

// Processor runs strategies. One instance is shared by all requests;
// the embedded HTTP client pools upstream connections.
type Processor struct {
	client *http.Client
	log    *slog.Logger
	sleep  func(time.Duration)
}

// Option customizes a Processor.
type Option func(*Processor)

// WithHTTPClient replaces the upstream HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Processor) {
		p.client = client
	}
}

// WithSleep replaces the delay function (tests).
func WithSleep(sleep func(time.Duration)) Option {
	return func(p *Processor) {
		p.sleep = sleep
	}
}

// New creates a Processor. The default client follows redirects and
// enforces the upstream timeout.
func New(log *slog.Logger, opts ...Option) *Processor {
	if log == nil {
		log = logging.Nop()
	}
	p := &Processor{
		log:   log,
		sleep: time.Sleep,
		client: &http.Client{
			Timeout: upstreamTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				// Decoding is handled explicitly so forwarded
				// Accept-Encoding headers cannot smuggle compressed
				// bytes past the response rewrite.
				DisableCompression: true,
			},
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process executes the service's strategy for the request and returns
// the response tuple. Errors are encoded into the Result; Process
// itself never fails the request.
func (p *Processor) Process(svc *service.Service, req *Request, pathParams map[string]string) *Result {
	if pathParams == nil {
		pathParams = map[string]string{}
	}

	switch svc.Strategy {
	case service.StrategyStatic:
		return p.processStatic(svc)
	case service.StrategyProxy:
		return p.processProxy(svc, req, pathParams)
	case service.StrategyConditional:
		return p.processConditional(svc, req, pathParams)
	default:
		return &Result{
			StatusCode: http.StatusInternalServerError,
			Body:       fmt.Sprintf("Unknown strategy %q", svc.Strategy),
			Headers:    map[string]string{},
		}
	}
}

func (p *Processor) processStatic(svc *service.Service) *Result {
	p.delay(svc.StaticDelay)

	headers := svc.StaticHeaders
	if headers == nil {
		headers = map[string]string{}
	}
	return &Result{
		StatusCode: svc.StaticStatusCode,
		Body:       svc.StaticResponse,
		Headers:    headers,
	}
}

func (p *Processor) processProxy(svc *service.Service, req *Request, pathParams map[string]string) *Result {
	if svc.ProxyURL == "" {
		return &Result{
			StatusCode: http.StatusInternalServerError,
			Body:       "proxy_url is not configured",
			Headers:    map[string]string{},
		}
	}

	p.delay(svc.ProxyDelay)

	target := BuildProxyURL(svc.ProxyURL, svc.Path, req.Path, pathParams, req.Query)
	return p.forward(target, req)
}

func (p *Processor) processConditional(svc *service.Service, req *Request, pathParams map[string]string) *Result {
	p.delay(svc.ConditionalDelay)

	defaultHeaders := svc.ConditionalHeaders
	if defaultHeaders == nil {
		defaultHeaders = map[string]string{}
	}

	if svc.ConditionCode == "" || len(svc.ConditionalResponses) == 0 {
		return &Result{
			StatusCode: svc.ConditionalStatusCode,
			Body:       bodyNoConditions,
			Headers:    defaultHeaders,
		}
	}

	ctx := evaluator.NewContext(evaluator.RequestData{
		Method:      req.Method,
		Path:        req.Path,
		URL:         req.URL,
		QueryParams: parseQuery(req.Query),
		Headers:     lowercaseKeys(req.Headers),
		Body:        req.BodyString(),
	}, pathParams)

	if err := evaluator.Run(svc.ConditionCode, ctx); err != nil {
		p.log.Error("condition code failed", "service", svc.Name, "error", err)
		return &Result{
			StatusCode: http.StatusInternalServerError,
			Body:       fmt.Sprintf("Condition code error: %v", err),
			Headers:    map[string]string{},
		}
	}

	for i, branch := range svc.ConditionalResponses {
		matched, err := evaluator.EvalBool(branch.Condition, ctx)
		if err != nil {
			p.log.Warn("condition evaluation failed, branch skipped",
				"service", svc.Name, "branch", i, "condition", branch.Condition, "error", err)
			continue
		}
		if !matched {
			continue
		}

		if branch.ResponseType == service.ResponseTypeProxy {
			if branch.ProxyURL == "" {
				return &Result{
					StatusCode: http.StatusInternalServerError,
					Body:       "proxy_url is not configured for the matched branch",
					Headers:    map[string]string{},
				}
			}
			p.delay(branch.Delay)

			// Parameter substitution sees the path parameters plus
			// every variable the condition script bound.
			extended := make(map[string]string, len(pathParams))
			for k, v := range pathParams {
				extended[k] = v
			}
			for k, v := range evaluator.UserVariables(ctx) {
				extended[k] = v
			}
			// The branch target replaces the whole URL; the mock path
			// contributes nothing beyond substitution values.
			target := BuildProxyURL(branch.ProxyURL, req.Path, req.Path, extended, req.Query)
			return p.forward(target, req)
		}

		p.delay(branch.Delay)
		headers := branch.Headers
		if headers == nil {
			headers = map[string]string{}
		}
		return &Result{
			StatusCode: branch.StatusCode,
			Body:       evaluator.ExpandTemplate(branch.Response, ctx),
			Headers:    headers,
		}
	}

	return &Result{
		StatusCode: svc.ConditionalStatusCode,
		Body:       bodyNoConditionMatched,
		Headers:    defaultHeaders,
	}
}

func (p *Processor) delay(seconds float64) {
	if seconds > 0 {
		p.sleep(time.Duration(seconds * float64(time.Second)))
	}
}

func parseQuery(raw string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		out[urlUnescape(key)] = urlUnescape(value)
	}
	return out
}

func lowercaseKeys(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[strings.ToLower(k)] = v
	}
	return out
}
