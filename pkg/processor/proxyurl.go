package processor

import "strings"

// BuildProxyURL composes the upstream target URL.
//
// When the configured target contains a {name} placeholder matching an
// available parameter, parameters are substituted in place and the
// request path contributes nothing. Otherwise the target (sans
// trailing slash) is used as-is, plus the suffix of the request path
// not covered by the mock path — the REST sub-resource case. The raw
// query string is appended last.
func BuildProxyURL(proxyURL, mockPath, requestPath string, params map[string]string, query string) string {
	target := proxyURL

	if hasPlaceholder(proxyURL, params) {
		for name, value := range params {
			target = strings.ReplaceAll(target, "{"+name+"}", value)
		}
	} else {
		target = strings.TrimRight(proxyURL, "/")
		if requestPath != mockPath {
			if extra := additionalPath(mockPath, requestPath); extra != "" {
				target += extra
			}
		}
	}

	if query != "" {
		target += "?" + query
	}
	return target
}

func hasPlaceholder(proxyURL string, params map[string]string) bool {
	for name := range params {
		if strings.Contains(proxyURL, "{"+name+"}") {
			return true
		}
	}
	return false
}

// additionalPath extracts the request-path suffix not covered by the
// mock path, with a leading slash ensured. Paths that do not share a
// prefix forward the whole request path.
func additionalPath(mockPath, requestPath string) string {
	mockPath = strings.TrimRight(mockPath, "/")
	requestPath = strings.TrimRight(requestPath, "/")

	if mockPath == requestPath {
		return ""
	}
	if strings.HasPrefix(requestPath, mockPath) {
		extra := requestPath[len(mockPath):]
		if extra == "" {
			return ""
		}
		if !strings.HasPrefix(extra, "/") {
			extra = "/" + extra
		}
		return extra
	}
	return requestPath
}
