// Package endpoint defines the immutable description of one monitored HTTP
// target and the validation applied when it is built from configuration.
package endpoint

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Supported request methods.
const (
	MethodGet    = http.MethodGet
	MethodPost   = http.MethodPost
	MethodPut    = http.MethodPut
	MethodDelete = http.MethodDelete
)

// ValidationError reports a malformed endpoint definition.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid endpoint %s: %s", e.Field, e.Reason)
}

// Spec is the raw, unvalidated form of an endpoint as read from config.
type Spec struct {
	Name    string
	URL     string
	Method  string
	Headers map[string]string
	Body    any
}

// Endpoint is a validated monitoring target. The zero value is not usable;
// construct with New.
type Endpoint struct {
	name    string
	url     string
	host    string
	method  string
	headers map[string]string
	body    any
	hasBody bool
}

// New validates spec and returns the Endpoint it describes.
func New(spec Spec) (Endpoint, error) {
	method := strings.ToUpper(strings.TrimSpace(spec.Method))
	if method == "" {
		method = MethodGet
	}

	checks := []struct {
		field string
		value any
		rules []validation.Rule
	}{
		{"name", spec.Name, []validation.Rule{validation.Required.Error("is required")}},
		{"url", spec.URL, []validation.Rule{validation.Required.Error("is required"), validation.By(validateURL)}},
		{"method", method, []validation.Rule{validation.In(MethodGet, MethodPost, MethodPut, MethodDelete).
			Error(fmt.Sprintf("unsupported method %q (must be GET, POST, PUT, or DELETE)", spec.Method))}},
	}
	for _, c := range checks {
		if err := validation.Validate(c.value, c.rules...); err != nil {
			return Endpoint{}, &ValidationError{Field: c.field, Reason: err.Error()}
		}
	}

	u, _ := url.Parse(spec.URL)
	headers := make(map[string]string, len(spec.Headers))
	for k, v := range spec.Headers {
		headers[k] = v
	}

	return Endpoint{
		name:    spec.Name,
		url:     spec.URL,
		host:    u.Host,
		method:  method,
		headers: headers,
		body:    spec.Body,
		hasBody: spec.Body != nil,
	}, nil
}

func validateURL(value any) error {
	raw, _ := value.(string)
	u, err := url.Parse(raw)
	if err != nil {
		return errors.New("must be a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("must use http or https scheme")
	}
	if u.Host == "" {
		return errors.New("must have a host")
	}
	return nil
}

// Name returns the endpoint's display name.
func (e Endpoint) Name() string { return e.name }

// URL returns the target URL as configured.
func (e Endpoint) URL() string { return e.url }

// Host returns the network authority of the URL (host, plus port when
// present). Endpoints sharing a host share availability counters.
func (e Endpoint) Host() string { return e.host }

// Method returns the upper-case HTTP method.
func (e Endpoint) Method() string { return e.method }

// Headers returns a copy of the request headers.
func (e Endpoint) Headers() map[string]string {
	out := make(map[string]string, len(e.headers))
	for k, v := range e.headers {
		out[k] = v
	}
	return out
}

// Body returns the JSON-like request body and whether one was configured.
func (e Endpoint) Body() (any, bool) { return e.body, e.hasBody }

// SendsBody reports whether the body is sent for this endpoint's method.
func (e Endpoint) SendsBody() bool {
	return e.method != MethodGet
}

func (e Endpoint) String() string {
	return fmt.Sprintf("HTTPEndpoint(name=%s, url=%s, method=%s)", e.name, e.url, e.method)
}
