package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockgate/mockgate/pkg/service"
)

type staticProvider []*service.Service

func (p staticProvider) ListActive() []*service.Service { return p }

func restService(id int, name, path string, methods ...string) *service.Service {
	if len(methods) == 0 {
		methods = []string{"GET"}
	}
	return &service.Service{
		ID: id, Name: name, Path: path, Methods: methods,
		Strategy: service.StrategyStatic, ServiceType: service.TypeREST,
		IsActive: true, StaticResponse: "ok",
	}
}

func soapService(id int, name, path string) *service.Service {
	return &service.Service{
		ID: id, Name: name, Path: path, Methods: []string{"POST"},
		Strategy: service.StrategyStatic, ServiceType: service.TypeSOAP,
		IsActive: true, StaticResponse: "<ok/>",
	}
}

func TestMatchRESTExact(t *testing.T) {
	r := New(staticProvider{restService(1, "hello", "/hello")}, nil)

	svc, params := r.Match("/hello", "GET", nil, "")
	require.NotNil(t, svc)
	assert.Equal(t, 1, svc.ID)
	assert.Empty(t, params)
}

func TestMatchMethodMembership(t *testing.T) {
	r := New(staticProvider{restService(1, "hello", "/hello", "POST", "PUT")}, nil)

	svc, _ := r.Match("/hello", "post", nil, "")
	assert.NotNil(t, svc, "method comparison is case-insensitive")

	svc, _ = r.Match("/hello", "GET", nil, "")
	assert.Nil(t, svc)
}

func TestMatchTemplatedParams(t *testing.T) {
	r := New(staticProvider{restService(1, "user", "/users/{id}")}, nil)

	svc, params := r.Match("/users/42", "GET", nil, "")
	require.NotNil(t, svc)
	assert.Equal(t, map[string]string{"id": "42"}, params)
}

func TestMatchFirstRESTWins(t *testing.T) {
	r := New(staticProvider{
		restService(1, "first", "/same"),
		restService(2, "second", "/same"),
	}, nil)

	svc, _ := r.Match("/same", "GET", nil, "")
	require.NotNil(t, svc)
	assert.Equal(t, 1, svc.ID)
}

func TestMatchMiss(t *testing.T) {
	r := New(staticProvider{restService(1, "hello", "/hello")}, nil)
	svc, params := r.Match("/nope", "GET", nil, "")
	assert.Nil(t, svc)
	assert.Nil(t, params)
}

func TestSOAPDisambiguationByAction(t *testing.T) {
	add := soapService(1, "Calc_Add", "/soap")
	sub := soapService(2, "Calc_Sub", "/soap")
	r := New(staticProvider{add, sub}, nil)

	svc, _ := r.Match("/soap", "POST", map[string]string{"SOAPAction": `"urn:Add"`}, "")
	require.NotNil(t, svc)
	assert.Equal(t, "Calc_Add", svc.Name)

	body := `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body><Sub/></soap:Body></soap:Envelope>`
	svc, _ = r.Match("/soap", "POST", map[string]string{"SOAPAction": `""`}, body)
	require.NotNil(t, svc)
	assert.Equal(t, "Calc_Sub", svc.Name)
}

func TestSOAPFallbackWithoutSignal(t *testing.T) {
	first := soapService(1, "Calc_Add", "/soap")
	second := soapService(2, "Calc_Sub", "/soap")
	r := New(staticProvider{first, second}, nil)

	// No action header and no parseable body: first registered wins.
	svc, _ := r.Match("/soap", "POST", map[string]string{}, "")
	require.NotNil(t, svc)
	assert.Equal(t, "Calc_Add", svc.Name)
}

func TestSOAPNonMatchingOperationMisses(t *testing.T) {
	r := New(staticProvider{soapService(1, "Calc_Add", "/soap")}, nil)

	svc, _ := r.Match("/soap", "POST", map[string]string{"SOAPAction": `"urn:Divide"`}, "")
	assert.Nil(t, svc)
}

func TestSOAPNonMatchingCandidateSkipped(t *testing.T) {
	// With an operation name present, an earlier candidate whose name
	// does not match is skipped, and a later matching one wins.
	generic := soapService(1, "Generic", "/soap")
	target := soapService(2, "Calc_Mul", "/soap")
	r := New(staticProvider{generic, target}, nil)

	svc, _ := r.Match("/soap", "POST", map[string]string{"SOAPAction": `"urn:Mul"`}, "")
	require.NotNil(t, svc)
	assert.Equal(t, "Calc_Mul", svc.Name)
}

func TestNameMatches(t *testing.T) {
	tests := []struct {
		service string
		op      string
		want    bool
	}{
		{"Calc_Add", "Add", true},          // suffix with underscore
		{"Add_Calc", "Add", true},          // prefix with underscore
		{"Calc.Add", "add", true},          // dot suffix, case folded
		{"CalcAdd", "Add", true},           // bare suffix
		{"AddCalc", "add", true},           // bare prefix
		{"Billing", "BillingService", true}, // reverse substring
		{"user-data", "get_info_v2", false},
		{"user-info", "fetch_info", true},  // shared component "info"
		{"ab-cd", "ab_cd", false},          // components too short
		{"Calc_Add", "Divide", false},
		{"", "Add", false},
		{"Calc", "", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NameMatches(tt.service, tt.op),
			"service %q op %q", tt.service, tt.op)
	}
}
