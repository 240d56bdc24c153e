// Package router selects the mock service answering an inbound
// request.
package router

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/mockgate/mockgate/internal/matching"
	"github.com/mockgate/mockgate/pkg/logging"
	"github.com/mockgate/mockgate/pkg/service"
	"github.com/mockgate/mockgate/pkg/soap"
)

// Provider supplies the active service set. The router snapshots it
// once per request.
type Provider interface {
	ListActive() []*service.Service
}

// Router matches requests against the active service set. Matching is
// deterministic: for a fixed set it depends only on path, method,
// headers and body.
type Router struct {
	provider Provider
	log      *slog.Logger
}

// New creates a Router over the given provider.
func New(provider Provider, log *slog.Logger) *Router {
	if log == nil {
		log = logging.Nop()
	}
	return &Router{provider: provider, log: log}
}

// Match finds the service handling the request and the path parameters
// extracted from its template. SOAP candidates are further
// discriminated by operation name; a SOAP service whose request
// carries no operation name is remembered as a fallback and returned
// only when no strict match exists. Returns (nil, nil) on a miss.
func (r *Router) Match(path, method string, headers map[string]string, body string) (*service.Service, map[string]string) {
	var fallback *service.Service
	var fallbackParams map[string]string

	// The operation name is independent of the candidate; extract once
	// on first need.
	soapMethod := ""
	soapExtracted := false

	for _, svc := range r.provider.ListActive() {
		if !svc.HasMethod(method) {
			continue
		}
		params, ok := matching.Match(svc.Path, path)
		if !ok {
			continue
		}

		if svc.ServiceType == service.TypeSOAP {
			if !soapExtracted {
				soapMethod = soap.ExtractMethod(headers, body)
				soapExtracted = true
			}
			if soapMethod != "" {
				if NameMatches(svc.Name, soapMethod) {
					r.log.Debug("soap service matched by operation",
						"service", svc.Name, "operation", soapMethod)
					return svc, params
				}
				continue
			}
			// No operation signal: remember the first viable SOAP
			// service and keep searching for a strict match.
			if fallback == nil {
				fallback = svc
				fallbackParams = params
			}
			continue
		}

		return svc, params
	}

	if fallback != nil {
		r.log.Debug("soap fallback selected", "service", fallback.Name)
		return fallback, fallbackParams
	}
	return nil, nil
}

var nameSplitPattern = regexp.MustCompile(`[._-]`)

// NameMatches reports whether a SOAP operation name belongs to a
// service, trying progressively looser rules: substring, underscore /
// dot / bare affixes, reverse substring, and finally any shared
// name component longer than two characters.
func NameMatches(serviceName, soapMethod string) bool {
	name := strings.ToLower(strings.TrimSpace(serviceName))
	op := strings.ToLower(strings.TrimSpace(soapMethod))
	if name == "" || op == "" {
		return false
	}

	if strings.Contains(name, op) {
		return true
	}
	if strings.HasSuffix(name, "_"+op) || strings.HasPrefix(name, op+"_") {
		return true
	}
	if strings.HasSuffix(name, "."+op) || strings.HasPrefix(name, op+".") {
		return true
	}
	if strings.HasSuffix(name, op) || strings.HasPrefix(name, op) {
		return true
	}
	if strings.Contains(op, name) {
		return true
	}

	for _, namePart := range nameSplitPattern.Split(name, -1) {
		if len(namePart) <= 2 {
			continue
		}
		for _, opPart := range nameSplitPattern.Split(op, -1) {
			if len(opPart) <= 2 {
				continue
			}
			if namePart == opPart ||
				strings.Contains(opPart, namePart) ||
				strings.Contains(namePart, opPart) {
				return true
			}
		}
	}
	return false
}
