// Package soap identifies SOAP requests and extracts the operation
// name the router uses to disambiguate services sharing one path.
package soap

import (
	"regexp"
	"strings"

	"github.com/beevik/etree"
)

var (
	actionQuotedPattern   = regexp.MustCompile(`(?i)action=["']([^"']+)["']`)
	actionUnquotedPattern = regexp.MustCompile(`(?i)action=([^;\s]+)`)

	// Regex fallbacks for envelopes etree cannot parse.
	soapBodyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<soap:Body[^>]*>\s*<([^:>\s/]+)[^>]*>`),
		regexp.MustCompile(`(?is)<soap12:Body[^>]*>\s*<([^:>\s/]+)[^>]*>`),
		regexp.MustCompile(`(?is)<Body[^>]*>\s*<([^:>\s/]+)[^>]*>`),
	}
	anyBodyOpenPattern = regexp.MustCompile(`(?i)<[^>]*Body[^>]*>`)
	elementPattern     = regexp.MustCompile(`<([^:>\s/]+)[^>]*>`)
	requestPattern     = regexp.MustCompile(`(?is)<([^:>\s/]+Request)[^>]*>`)
)

// ExtractMethod finds the SOAP operation name for a request, searching
// in priority order: the action parameter of Content-Type, the
// SOAPAction header (any name casing), and finally the first child of
// the envelope Body. Returns "" when no usable name is found.
func ExtractMethod(headers map[string]string, body string) string {
	fromHeaders := methodFromHeaders(headers)
	if usable(fromHeaders) {
		return fromHeaders
	}

	if body != "" {
		if fromBody := normalizeMethodName(methodFromBody(body)); fromBody != "" {
			return fromBody
		}
	}

	// A short header result carries no routing signal either.
	return ""
}

// usable filters out empty and single-character names, which carry no
// routing signal.
func usable(name string) bool {
	return len(strings.TrimSpace(name)) > 1
}

func methodFromHeaders(headers map[string]string) string {
	contentType := headerValue(headers, "content-type")
	if strings.Contains(strings.ToLower(contentType), "action=") {
		m := actionQuotedPattern.FindStringSubmatch(contentType)
		if m == nil {
			m = actionUnquotedPattern.FindStringSubmatch(contentType)
		}
		if m != nil {
			if name := methodFromAction(m[1]); name != "" {
				return name
			}
		}
	}

	if action := strings.Trim(headerValue(headers, "soapaction"), `"' `); action != "" {
		if name := methodFromAction(action); name != "" {
			return name
		}
	}

	return ""
}

// methodFromAction reduces an action URI to its trailing operation
// name: "urn:ns#getInfo" -> "getInfo", "http://x/svc/op" -> "op",
// "urn:ns:op" -> "op".
func methodFromAction(action string) string {
	action = strings.TrimSpace(action)
	if action == "" {
		return ""
	}

	if strings.Contains(action, "#") {
		parts := strings.Split(action, "#")
		if name := strings.TrimSpace(parts[len(parts)-1]); name != "" {
			return normalizeMethodName(name)
		}
	}
	if strings.Contains(action, "/") {
		parts := strings.Split(action, "/")
		name := strings.TrimSpace(parts[len(parts)-1])
		if strings.HasSuffix(strings.ToLower(name), ".wsdl") {
			// WSDL document references name no operation.
			return ""
		}
		if name != "" {
			return normalizeMethodName(name)
		}
	}
	if strings.Contains(action, ":") {
		parts := strings.Split(action, ":")
		name := strings.TrimSpace(parts[len(parts)-1])
		if name != "" && name != "urn" {
			return normalizeMethodName(name)
		}
	}
	return normalizeMethodName(action)
}

// normalizeMethodName strips quotes and whitespace, then drops any
// query string and takes the last fragment component.
func normalizeMethodName(name string) string {
	name = strings.Trim(strings.TrimSpace(name), `"'`)
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if i := strings.Index(name, "?"); i >= 0 {
		name = name[:i]
	}
	if strings.Contains(name, "#") {
		parts := strings.Split(name, "#")
		name = parts[len(parts)-1]
	}
	return name
}

// methodFromBody returns the first child element of the envelope Body,
// using XML parsing first and regex probing for malformed payloads.
func methodFromBody(body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromString(body); err == nil && doc.Root() != nil {
		if name := firstBodyChild(doc.Root()); name != "" {
			return name
		}
	}

	for _, pattern := range soapBodyPatterns {
		if m := pattern.FindStringSubmatch(body); m != nil {
			return m[1]
		}
	}

	// Probe for any Body-ish open tag and take the next element.
	if loc := anyBodyOpenPattern.FindStringIndex(body); loc != nil {
		if m := elementPattern.FindStringSubmatch(body[loc[1]:]); m != nil {
			return m[1]
		}
	}

	if m := requestPattern.FindStringSubmatch(body); m != nil {
		return m[1]
	}
	return ""
}

// firstBodyChild walks the parsed document for an element whose local
// tag contains "Body" and returns its first child's local name.
func firstBodyChild(root *etree.Element) string {
	var bodyElem *etree.Element
	var walk func(*etree.Element)
	walk = func(e *etree.Element) {
		if bodyElem != nil {
			return
		}
		if strings.Contains(e.Tag, "Body") {
			bodyElem = e
			return
		}
		for _, child := range e.ChildElements() {
			walk(child)
		}
	}
	walk(root)

	if bodyElem == nil {
		return ""
	}
	children := bodyElem.ChildElements()
	if len(children) == 0 {
		return ""
	}
	return children[0].Tag
}

// IsSOAP reports whether the request looks like a SOAP call, from
// headers first and the body as a fallback.
func IsSOAP(headers map[string]string, body string) bool {
	contentType := strings.ToLower(headerValue(headers, "content-type"))
	soapAction := strings.ToLower(headerValue(headers, "soapaction"))

	indicators := []string{
		"application/soap+xml",
		"text/xml",
		"application/xml",
		"soapaction",
		"action=",
	}
	for _, ind := range indicators {
		if strings.Contains(contentType, ind) || strings.Contains(soapAction, ind) {
			return true
		}
	}

	if body != "" {
		lower := strings.ToLower(body)
		for _, ind := range []string{
			"soap:envelope", "soap:body",
			"soap12:envelope", "soap12:body",
			"xmlns:soap", "xmlns:soap12",
		} {
			if strings.Contains(lower, ind) {
				return true
			}
		}
	}
	return false
}

// headerValue looks a header up case-insensitively in a plain map.
func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
