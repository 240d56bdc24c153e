package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildProxyURL(t *testing.T) {
	tests := []struct {
		name        string
		proxyURL    string
		mockPath    string
		requestPath string
		params      map[string]string
		query       string
		want        string
	}{
		{
			name:        "placeholder substitution",
			proxyURL:    "https://api/u/{id}",
			mockPath:    "/users/{id}",
			requestPath: "/users/42",
			params:      map[string]string{"id": "42"},
			query:       "x=1",
			want:        "https://api/u/42?x=1",
		},
		{
			name:        "no placeholder keeps target as-is",
			proxyURL:    "https://upstream.example/endpoint/",
			mockPath:    "/soap",
			requestPath: "/soap",
			params:      map[string]string{},
			query:       "",
			want:        "https://upstream.example/endpoint",
		},
		{
			name:        "template mock path forwards the whole request path",
			proxyURL:    "https://upstream.example/api",
			mockPath:    "/files{*}",
			requestPath: "/files/a/b",
			params:      map[string]string{},
			query:       "",
			want:        "https://upstream.example/api/files/a/b",
		},
		{
			name:        "wildcard substitutes like a named param",
			proxyURL:    "https://upstream.example/root{*}",
			mockPath:    "/files{*}",
			requestPath: "/files/a/b",
			params:      map[string]string{"*": "/a/b"},
			query:       "",
			want:        "https://upstream.example/root/a/b",
		},
		{
			name:        "matching paths append nothing",
			proxyURL:    "https://upstream.example/api/",
			mockPath:    "/one",
			requestPath: "/one",
			params:      map[string]string{},
			query:       "a=b&c=d",
			want:        "https://upstream.example/api?a=b&c=d",
		},
		{
			name:        "unsubstituted placeholder falls through to suffix logic",
			proxyURL:    "https://upstream.example/{tenant}/api",
			mockPath:    "/svc",
			requestPath: "/svc",
			params:      map[string]string{"id": "1"},
			query:       "",
			want:        "https://upstream.example/{tenant}/api",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildProxyURL(tt.proxyURL, tt.mockPath, tt.requestPath, tt.params, tt.query)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAdditionalPath(t *testing.T) {
	tests := []struct {
		mock    string
		request string
		want    string
	}{
		{"/api", "/api", ""},
		{"/api", "/api/sub", "/sub"},
		{"/api/", "/api/sub/", "/sub"},
		{"/api", "/other", "/other"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, additionalPath(tt.mock, tt.request), "mock=%s request=%s", tt.mock, tt.request)
	}
}

func TestWildcardSuffixNotDoubled(t *testing.T) {
	// A mock path /files{*} never literally equals the request path, so
	// the suffix logic sees mockPath "/files{*}" and requestPath
	// "/files/x"; they share no prefix relationship and the whole
	// request path forwards.
	got := BuildProxyURL("https://up.example", "/files{*}", "/files/x", map[string]string{}, "")
	assert.Equal(t, "https://up.example/files/x", got)
}
