package service

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/mockgate/mockgate/internal/matching"
)

// ValidationError describes a rejected service configuration.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Normalize applies defaults and canonical forms in place: methods are
// upper-cased, the path gains a leading slash, zero statuses become
// 200, branch response types default to static.
func (c *Create) Normalize() {
	for i, m := range c.Methods {
		c.Methods[i] = strings.ToUpper(strings.TrimSpace(m))
	}
	if c.Path != "" && !strings.HasPrefix(c.Path, "/") {
		c.Path = "/" + c.Path
	}
	if c.ServiceType == "" {
		c.ServiceType = TypeREST
	}
	if c.StaticStatusCode == 0 {
		c.StaticStatusCode = 200
	}
	if c.ConditionalStatusCode == 0 {
		c.ConditionalStatusCode = 200
	}
	for i := range c.ConditionalResponses {
		r := &c.ConditionalResponses[i]
		if r.ResponseType == "" {
			r.ResponseType = ResponseTypeStatic
		}
		if r.StatusCode == 0 {
			r.StatusCode = 200
		}
	}
}

// Validate checks a normalized Create against the model invariants.
// It returns non-fatal warnings (for example headers configured on a
// proxy branch, which are ignored at runtime) alongside any error.
func (c *Create) Validate() (warnings []string, err error) {
	if strings.TrimSpace(c.Name) == "" {
		return nil, &ValidationError{Field: "name", Message: "must not be empty"}
	}
	if err := matching.Validate(c.Path); err != nil {
		return nil, &ValidationError{Field: "path", Message: err.Error()}
	}
	if len(c.Methods) == 0 {
		return nil, &ValidationError{Field: "methods", Message: "at least one method is required"}
	}
	for _, m := range c.Methods {
		if !allowedMethod(m) {
			return nil, &ValidationError{Field: "methods", Message: fmt.Sprintf("unsupported HTTP method %q", m)}
		}
	}
	if c.ServiceType != TypeREST && c.ServiceType != TypeSOAP {
		return nil, &ValidationError{Field: "service_type", Message: fmt.Sprintf("unknown service type %q", c.ServiceType)}
	}
	if err := validStatus("static_status_code", c.StaticStatusCode); err != nil {
		return nil, err
	}
	if err := validStatus("conditional_status_code", c.ConditionalStatusCode); err != nil {
		return nil, err
	}
	if c.ProxyDelay < 0 || c.StaticDelay < 0 || c.ConditionalDelay < 0 {
		return nil, &ValidationError{Field: "delay", Message: "delays must not be negative"}
	}

	switch c.Strategy {
	case StrategyStatic:
		if c.StaticResponse == "" {
			return nil, &ValidationError{Field: "static_response", Message: "required for the static strategy"}
		}
	case StrategyProxy:
		if err := validProxyURL("proxy_url", c.ProxyURL); err != nil {
			return nil, err
		}
	case StrategyConditional:
		if strings.TrimSpace(c.ConditionCode) == "" {
			return nil, &ValidationError{Field: "condition_code", Message: "required for the conditional strategy"}
		}
		if len(c.ConditionalResponses) == 0 {
			return nil, &ValidationError{Field: "conditional_responses", Message: "at least one response is required"}
		}
		for i, r := range c.ConditionalResponses {
			w, err := validateBranch(i, r)
			if err != nil {
				return nil, err
			}
			warnings = append(warnings, w...)
		}
	default:
		return nil, &ValidationError{Field: "strategy", Message: fmt.Sprintf("unknown strategy %q", c.Strategy)}
	}

	return warnings, nil
}

func validateBranch(i int, r ConditionalResponse) (warnings []string, err error) {
	field := fmt.Sprintf("conditional_responses[%d]", i)
	if strings.TrimSpace(r.Condition) == "" {
		return nil, &ValidationError{Field: field + ".condition", Message: "must not be empty"}
	}
	if r.Delay < 0 {
		return nil, &ValidationError{Field: field + ".delay", Message: "must not be negative"}
	}
	switch r.ResponseType {
	case ResponseTypeStatic:
		if r.Response == "" {
			return nil, &ValidationError{Field: field + ".response", Message: "required for static branches"}
		}
		if err := validStatus(field+".status_code", r.StatusCode); err != nil {
			return nil, err
		}
	case ResponseTypeProxy:
		if err := validProxyURL(field+".proxy_url", r.ProxyURL); err != nil {
			return nil, err
		}
		if len(r.Headers) > 0 {
			warnings = append(warnings, fmt.Sprintf("%s.headers are ignored for proxy branches", field))
		}
	default:
		return nil, &ValidationError{Field: field + ".response_type", Message: fmt.Sprintf("unknown response type %q", r.ResponseType)}
	}
	return warnings, nil
}

func allowedMethod(m string) bool {
	for _, allowed := range AllowedMethods {
		if m == allowed {
			return true
		}
	}
	return false
}

func validStatus(field string, status int) error {
	if status < 100 || status > 599 {
		return &ValidationError{Field: field, Message: fmt.Sprintf("status %d outside 100-599", status)}
	}
	return nil
}

func validProxyURL(field, raw string) error {
	if raw == "" {
		return &ValidationError{Field: field, Message: "required for proxying"}
	}
	// Placeholder targets like https://api/u/{id} must stay parseable
	// after substitution; validate the scheme and host only.
	u, err := url.Parse(strings.NewReplacer("{", "", "}", "").Replace(raw))
	if err != nil {
		return &ValidationError{Field: field, Message: fmt.Sprintf("invalid URL: %v", err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Field: field, Message: "URL must be absolute http(s)"}
	}
	if u.Host == "" {
		return &ValidationError{Field: field, Message: "URL must include a host"}
	}
	return nil
}

// Apply copies the non-nil fields of an Update onto a Service. The
// caller re-validates the result before persisting it.
func (u *Update) Apply(s *Service) {
	if u.Name != nil {
		s.Name = *u.Name
	}
	if u.Path != nil {
		path := *u.Path
		if path != "" && !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		s.Path = path
	}
	if u.Methods != nil {
		methods := make([]string, len(u.Methods))
		for i, m := range u.Methods {
			methods[i] = strings.ToUpper(strings.TrimSpace(m))
		}
		s.Methods = methods
	}
	if u.Strategy != nil {
		s.Strategy = *u.Strategy
	}
	if u.ServiceType != nil {
		s.ServiceType = *u.ServiceType
	}
	if u.IsActive != nil {
		s.IsActive = *u.IsActive
	}
	if u.ProxyURL != nil {
		s.ProxyURL = *u.ProxyURL
	}
	if u.ProxyDelay != nil {
		s.ProxyDelay = *u.ProxyDelay
	}
	if u.StaticResponse != nil {
		s.StaticResponse = *u.StaticResponse
	}
	if u.StaticStatusCode != nil {
		s.StaticStatusCode = *u.StaticStatusCode
	}
	if u.StaticHeaders != nil {
		s.StaticHeaders = u.StaticHeaders
	}
	if u.StaticDelay != nil {
		s.StaticDelay = *u.StaticDelay
	}
	if u.ConditionCode != nil {
		s.ConditionCode = *u.ConditionCode
	}
	if u.ConditionalResponses != nil {
		s.ConditionalResponses = u.ConditionalResponses
	}
	if u.ConditionalDelay != nil {
		s.ConditionalDelay = *u.ConditionalDelay
	}
	if u.ConditionalStatusCode != nil {
		s.ConditionalStatusCode = *u.ConditionalStatusCode
	}
	if u.ConditionalHeaders != nil {
		s.ConditionalHeaders = u.ConditionalHeaders
	}
}

// ToService materializes a normalized, validated Create as a Service.
// The repository assigns ID and timestamps.
func (c *Create) ToService() *Service {
	active := true
	if c.IsActive != nil {
		active = *c.IsActive
	}
	return &Service{
		Name:                  c.Name,
		Path:                  c.Path,
		Methods:               append([]string(nil), c.Methods...),
		Strategy:              c.Strategy,
		ServiceType:           c.ServiceType,
		IsActive:              active,
		ProxyURL:              c.ProxyURL,
		ProxyDelay:            c.ProxyDelay,
		StaticResponse:        c.StaticResponse,
		StaticStatusCode:      c.StaticStatusCode,
		StaticHeaders:         c.StaticHeaders,
		StaticDelay:           c.StaticDelay,
		ConditionCode:         c.ConditionCode,
		ConditionalResponses:  append([]ConditionalResponse(nil), c.ConditionalResponses...),
		ConditionalDelay:      c.ConditionalDelay,
		ConditionalStatusCode: c.ConditionalStatusCode,
		ConditionalHeaders:    c.ConditionalHeaders,
	}
}
