package processor

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockgate/mockgate/pkg/service"
)

func newTestProcessor(t *testing.T) (*Processor, *[]time.Duration) {
	t.Helper()
	var slept []time.Duration
	p := New(nil, WithSleep(func(d time.Duration) {
		slept = append(slept, d)
	}))
	return p, &slept
}

func getRequest(path, query string) *Request {
	u := "http://localhost" + path
	if query != "" {
		u += "?" + query
	}
	return &Request{
		Method:  "GET",
		Path:    path,
		URL:     u,
		Query:   query,
		Headers: map[string]string{"Accept": "application/json"},
	}
}

func TestProcessStatic(t *testing.T) {
	p, slept := newTestProcessor(t)
	svc := &service.Service{
		Strategy:         service.StrategyStatic,
		StaticResponse:   "hi",
		StaticStatusCode: 201,
		StaticHeaders:    map[string]string{"X-Mock": "1"},
		StaticDelay:      0.25,
	}

	res := p.Process(svc, getRequest("/hello", ""), nil)

	assert.Equal(t, 201, res.StatusCode)
	assert.Equal(t, "hi", res.Body)
	assert.Equal(t, "1", res.Headers["X-Mock"])
	assert.Nil(t, res.ProxyInfo)
	assert.Equal(t, []time.Duration{250 * time.Millisecond}, *slept)
}

func TestProcessProxyForwards(t *testing.T) {
	var gotMethod, gotPath, gotQuery string
	var gotHeaders http.Header
	var gotBody []byte
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("upstream says hi"))
	}))
	defer upstream.Close()

	p, _ := newTestProcessor(t)
	svc := &service.Service{
		Strategy: service.StrategyProxy,
		Path:     "/users/{id}",
		ProxyURL: upstream.URL + "/u/{id}",
	}
	req := getRequest("/users/42", "x=1")
	req.Method = "POST"
	req.Body = []byte("payload")
	req.Headers = map[string]string{
		"Content-Type":   "text/plain",
		"Content-Length": "7",
		"Host":           "mockgate.local",
		"Authorization":  "Bearer tok",
	}

	res := p.Process(svc, req, map[string]string{"id": "42"})

	assert.Equal(t, http.StatusAccepted, res.StatusCode)
	assert.Equal(t, "upstream says hi", res.Body)
	assert.Equal(t, "yes", res.Headers["X-Upstream"])

	assert.Equal(t, "POST", gotMethod)
	assert.Equal(t, "/u/42", gotPath)
	assert.Equal(t, "x=1", gotQuery)
	assert.Equal(t, "payload", string(gotBody))
	assert.Equal(t, "Bearer tok", gotHeaders.Get("Authorization"))
	assert.Equal(t, "text/plain", gotHeaders.Get("Content-Type"))
	assert.NotEqual(t, "mockgate.local", gotHeaders.Get("Host"), "Host is never forwarded")

	require.NotNil(t, res.ProxyInfo)
	assert.Equal(t, upstream.URL+"/u/42?x=1", res.ProxyInfo.TargetURL)
	require.NotNil(t, res.ProxyInfo.ProxyResponseStatus)
	assert.Equal(t, http.StatusAccepted, *res.ProxyInfo.ProxyResponseStatus)
	assert.Nil(t, res.ProxyInfo.ProxyError)
	_, hasHost := res.ProxyInfo.ProxyHeaders["Host"]
	assert.False(t, hasHost)
}

func TestProcessProxyStripsResponseHeaders(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Keep", "1")
		_, _ = w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	p, _ := newTestProcessor(t)
	svc := &service.Service{Strategy: service.StrategyProxy, Path: "/p", ProxyURL: upstream.URL}

	res := p.Process(svc, getRequest("/p", ""), nil)

	assert.Equal(t, "1", res.Headers["X-Keep"])
	for _, banned := range []string{"Content-Length", "Transfer-Encoding", "Connection", "Content-Encoding"} {
		_, present := res.Headers[banned]
		assert.False(t, present, "%s must be stripped", banned)
	}
}

func TestProcessProxyDecodesGzip(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		_, _ = gz.Write([]byte("compressed content"))
		_ = gz.Close()
	}))
	defer upstream.Close()

	p, _ := newTestProcessor(t)
	svc := &service.Service{Strategy: service.StrategyProxy, Path: "/p", ProxyURL: upstream.URL}

	res := p.Process(svc, getRequest("/p", ""), nil)

	assert.Equal(t, "compressed content", res.Body)
	_, present := res.Headers["Content-Encoding"]
	assert.False(t, present)
}

func TestProcessProxyUnreachableMapsTo502(t *testing.T) {
	p, _ := newTestProcessor(t)
	svc := &service.Service{
		Strategy: service.StrategyProxy,
		Path:     "/p",
		ProxyURL: "http://127.0.0.1:1/down",
	}

	res := p.Process(svc, getRequest("/p", ""), nil)

	assert.Equal(t, http.StatusBadGateway, res.StatusCode)
	require.NotNil(t, res.ProxyInfo)
	require.NotNil(t, res.ProxyInfo.ProxyError)
	assert.Nil(t, res.ProxyInfo.ProxyResponseStatus)
}

func TestProcessProxyWithoutURL(t *testing.T) {
	p, _ := newTestProcessor(t)
	svc := &service.Service{Strategy: service.StrategyProxy, Path: "/p"}

	res := p.Process(svc, getRequest("/p", ""), nil)

	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
}

func TestProcessProxyUpstreamErrorStatusPreserved(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	p, _ := newTestProcessor(t)
	svc := &service.Service{Strategy: service.StrategyProxy, Path: "/p", ProxyURL: upstream.URL}

	res := p.Process(svc, getRequest("/p", ""), nil)

	// Upstream 5xx is not a transport error; it passes through.
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	assert.Nil(t, res.ProxyInfo.ProxyError)
}

func conditionalService(branches ...service.ConditionalResponse) *service.Service {
	return &service.Service{
		Name:                  "cond",
		Path:                  "/x",
		Strategy:              service.StrategyConditional,
		ConditionCode:         "n = int(query.get('n', '0'))",
		ConditionalResponses:  branches,
		ConditionalStatusCode: 418,
		ConditionalHeaders:    map[string]string{"X-Default": "1"},
	}
}

func TestProcessConditionalStaticBranch(t *testing.T) {
	p, _ := newTestProcessor(t)
	svc := conditionalService(
		service.ConditionalResponse{
			Condition:    "n > 10",
			ResponseType: service.ResponseTypeStatic,
			Response:     `{"size": "big"}`,
			StatusCode:   200,
		},
		service.ConditionalResponse{
			Condition:    "True",
			ResponseType: service.ResponseTypeStatic,
			Response:     `{"n": n}`,
			StatusCode:   200,
		},
	)

	res := p.Process(svc, getRequest("/x", "n=3"), nil)

	assert.Equal(t, 200, res.StatusCode)
	assert.JSONEq(t, `{"n": 3}`, res.Body)
	assert.Nil(t, res.ProxyInfo)
}

func TestProcessConditionalFirstTruthyWins(t *testing.T) {
	p, _ := newTestProcessor(t)
	svc := conditionalService(
		service.ConditionalResponse{Condition: "n > 10", ResponseType: service.ResponseTypeStatic, Response: "big", StatusCode: 200},
		service.ConditionalResponse{Condition: "n > 5", ResponseType: service.ResponseTypeStatic, Response: "medium", StatusCode: 200},
	)

	res := p.Process(svc, getRequest("/x", "n=20"), nil)
	assert.Equal(t, "big", res.Body)
}

func TestProcessConditionalProxyBranch(t *testing.T) {
	var gotPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte("proxied"))
	}))
	defer upstream.Close()

	p, _ := newTestProcessor(t)
	svc := conditionalService(
		service.ConditionalResponse{
			Condition:    "n > 10",
			ResponseType: service.ResponseTypeProxy,
			ProxyURL:     upstream.URL + "/big/{n}",
		},
		service.ConditionalResponse{
			Condition:    "True",
			ResponseType: service.ResponseTypeStatic,
			Response:     `{"n": n}`,
			StatusCode:   200,
		},
	)

	res := p.Process(svc, getRequest("/x", "n=20"), nil)

	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, "proxied", res.Body)
	assert.Equal(t, "/big/20", gotPath, "script variable substituted into target")
	require.NotNil(t, res.ProxyInfo)
}

func TestProcessConditionalNoBranchMatched(t *testing.T) {
	p, _ := newTestProcessor(t)
	svc := conditionalService(
		service.ConditionalResponse{Condition: "n > 100", ResponseType: service.ResponseTypeStatic, Response: "huge", StatusCode: 200},
	)

	res := p.Process(svc, getRequest("/x", "n=1"), nil)

	assert.Equal(t, 418, res.StatusCode)
	assert.Equal(t, "No condition matched", res.Body)
	assert.Equal(t, "1", res.Headers["X-Default"])
}

func TestProcessConditionalScriptErrorIs500(t *testing.T) {
	p, _ := newTestProcessor(t)
	svc := conditionalService(
		service.ConditionalResponse{Condition: "True", ResponseType: service.ResponseTypeStatic, Response: "x", StatusCode: 200},
	)
	svc.ConditionCode = "n = int(undefined_name)"

	res := p.Process(svc, getRequest("/x", ""), nil)

	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Contains(t, res.Body, "Condition code error")
}

func TestProcessConditionalBrokenBranchSkipped(t *testing.T) {
	p, _ := newTestProcessor(t)
	svc := conditionalService(
		service.ConditionalResponse{Condition: "undefined_var > 1", ResponseType: service.ResponseTypeStatic, Response: "never", StatusCode: 200},
		service.ConditionalResponse{Condition: "True", ResponseType: service.ResponseTypeStatic, Response: "fallback", StatusCode: 200},
	)

	res := p.Process(svc, getRequest("/x", ""), nil)

	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, "fallback", res.Body)
}

func TestProcessConditionalBranchDelay(t *testing.T) {
	p, slept := newTestProcessor(t)
	svc := conditionalService(
		service.ConditionalResponse{
			Condition: "True", ResponseType: service.ResponseTypeStatic,
			Response: "slow", StatusCode: 200, Delay: 0.5,
		},
	)
	svc.ConditionalDelay = 0.1

	res := p.Process(svc, getRequest("/x", ""), nil)

	assert.Equal(t, "slow", res.Body)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 500 * time.Millisecond}, *slept)
}

func TestProcessConditionalJSONBody(t *testing.T) {
	p, _ := newTestProcessor(t)
	svc := conditionalService(
		service.ConditionalResponse{
			Condition:    "json != None and json.get('kind') == 'order'",
			ResponseType: service.ResponseTypeStatic,
			Response:     "order accepted",
			StatusCode:   202,
		},
	)

	req := getRequest("/x", "")
	req.Method = "POST"
	req.Body = []byte(`{"kind": "order"}`)

	res := p.Process(svc, req, nil)

	assert.Equal(t, 202, res.StatusCode)
	assert.Equal(t, "order accepted", res.Body)
}

func TestProcessUnknownStrategy(t *testing.T) {
	p, _ := newTestProcessor(t)
	svc := &service.Service{Strategy: "bogus"}

	res := p.Process(svc, getRequest("/x", ""), nil)
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
}
