// Package service defines the mock-service configuration model shared
// by the repository, router and strategy processor.
package service

import (
	"strings"
	"time"
)

// Strategy selects how a matched request is answered.
type Strategy string

const (
	StrategyStatic      Strategy = "static"
	StrategyProxy       Strategy = "proxy"
	StrategyConditional Strategy = "conditional"
)

// Type discriminates routing behavior; SOAP services get method-name
// disambiguation on top of path matching.
type Type string

const (
	TypeREST Type = "rest"
	TypeSOAP Type = "soap"
)

// ResponseTypeStatic and ResponseTypeProxy are the two branch kinds of
// a conditional response.
const (
	ResponseTypeStatic = "static"
	ResponseTypeProxy  = "proxy"
)

// AllowedMethods is the full HTTP method set a service may bind.
var AllowedMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"}

// ConditionalResponse is one ordered branch of a conditional service.
// Branches are evaluated in order; the first truthy condition wins.
type ConditionalResponse struct {
	// Condition is the boolean expression evaluated against the
	// request context.
	Condition string `json:"condition" yaml:"condition"`

	// ResponseType is "static" or "proxy". Defaults to "static".
	ResponseType string `json:"response_type" yaml:"response_type"`

	// Response is the static body template (static branches).
	Response string `json:"response,omitempty" yaml:"response,omitempty"`

	// ProxyURL is the forwarding target (proxy branches).
	ProxyURL string `json:"proxy_url,omitempty" yaml:"proxy_url,omitempty"`

	// StatusCode is the static branch status. Defaults to 200.
	StatusCode int `json:"status_code" yaml:"status_code"`

	// Headers are static branch headers. Ignored for proxy branches.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Delay is an extra pause in seconds applied when the branch wins.
	Delay float64 `json:"delay" yaml:"delay"`
}

// Service is one mock-service configuration record. The core treats
// services as read-only at dispatch time; mutation happens through the
// repository only.
type Service struct {
	ID          int      `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Path        string   `json:"path" yaml:"path"`
	Methods     []string `json:"methods" yaml:"methods"`
	Strategy    Strategy `json:"strategy" yaml:"strategy"`
	ServiceType Type     `json:"service_type" yaml:"service_type"`
	IsActive    bool     `json:"is_active" yaml:"is_active"`

	// Proxy strategy settings.
	ProxyURL   string  `json:"proxy_url,omitempty" yaml:"proxy_url,omitempty"`
	ProxyDelay float64 `json:"proxy_delay" yaml:"proxy_delay"`

	// Static strategy settings.
	StaticResponse   string            `json:"static_response,omitempty" yaml:"static_response,omitempty"`
	StaticStatusCode int               `json:"static_status_code" yaml:"static_status_code"`
	StaticHeaders    map[string]string `json:"static_headers,omitempty" yaml:"static_headers,omitempty"`
	StaticDelay      float64           `json:"static_delay" yaml:"static_delay"`

	// Conditional strategy settings. ConditionCode binds variables the
	// branch conditions and templates can reference; the status and
	// headers fields apply when no branch matches, while the delay is
	// applied before any branch is evaluated.
	ConditionCode         string                `json:"condition_code,omitempty" yaml:"condition_code,omitempty"`
	ConditionalResponses  []ConditionalResponse `json:"conditional_responses,omitempty" yaml:"conditional_responses,omitempty"`
	ConditionalDelay      float64               `json:"conditional_delay" yaml:"conditional_delay"`
	ConditionalStatusCode int                   `json:"conditional_status_code" yaml:"conditional_status_code"`
	ConditionalHeaders    map[string]string     `json:"conditional_headers,omitempty" yaml:"conditional_headers,omitempty"`

	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// Create carries the fields for a new service. Zero-value numeric
// fields receive defaults in Normalize.
type Create struct {
	Name        string   `json:"name" yaml:"name"`
	Path        string   `json:"path" yaml:"path"`
	Methods     []string `json:"methods" yaml:"methods"`
	Strategy    Strategy `json:"strategy" yaml:"strategy"`
	ServiceType Type     `json:"service_type" yaml:"service_type"`
	IsActive    *bool    `json:"is_active" yaml:"is_active"`

	ProxyURL   string  `json:"proxy_url,omitempty" yaml:"proxy_url,omitempty"`
	ProxyDelay float64 `json:"proxy_delay" yaml:"proxy_delay"`

	StaticResponse   string            `json:"static_response,omitempty" yaml:"static_response,omitempty"`
	StaticStatusCode int               `json:"static_status_code" yaml:"static_status_code"`
	StaticHeaders    map[string]string `json:"static_headers,omitempty" yaml:"static_headers,omitempty"`
	StaticDelay      float64           `json:"static_delay" yaml:"static_delay"`

	ConditionCode         string                `json:"condition_code,omitempty" yaml:"condition_code,omitempty"`
	ConditionalResponses  []ConditionalResponse `json:"conditional_responses,omitempty" yaml:"conditional_responses,omitempty"`
	ConditionalDelay      float64               `json:"conditional_delay" yaml:"conditional_delay"`
	ConditionalStatusCode int                   `json:"conditional_status_code" yaml:"conditional_status_code"`
	ConditionalHeaders    map[string]string     `json:"conditional_headers,omitempty" yaml:"conditional_headers,omitempty"`
}

// Update carries a partial mutation; nil fields are left unchanged.
type Update struct {
	Name        *string   `json:"name,omitempty"`
	Path        *string   `json:"path,omitempty"`
	Methods     []string  `json:"methods,omitempty"`
	Strategy    *Strategy `json:"strategy,omitempty"`
	ServiceType *Type     `json:"service_type,omitempty"`
	IsActive    *bool     `json:"is_active,omitempty"`

	ProxyURL   *string  `json:"proxy_url,omitempty"`
	ProxyDelay *float64 `json:"proxy_delay,omitempty"`

	StaticResponse   *string           `json:"static_response,omitempty"`
	StaticStatusCode *int              `json:"static_status_code,omitempty"`
	StaticHeaders    map[string]string `json:"static_headers,omitempty"`
	StaticDelay      *float64          `json:"static_delay,omitempty"`

	ConditionCode         *string               `json:"condition_code,omitempty"`
	ConditionalResponses  []ConditionalResponse `json:"conditional_responses,omitempty"`
	ConditionalDelay      *float64              `json:"conditional_delay,omitempty"`
	ConditionalStatusCode *int                  `json:"conditional_status_code,omitempty"`
	ConditionalHeaders    map[string]string     `json:"conditional_headers,omitempty"`
}

// HasMethod reports whether the service accepts the given HTTP method.
// Comparison is case-insensitive; stored methods are uppercase.
func (s *Service) HasMethod(method string) bool {
	for _, m := range s.Methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}
