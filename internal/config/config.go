package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hazz-dev/availmon/internal/endpoint"
)

// LoadError reports an endpoint file that could not be read or parsed.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string { return fmt.Sprintf("loading %s: %v", e.Path, e.Err) }
func (e *LoadError) Unwrap() error { return e.Err }

// EndpointRecord is one entry of the endpoint file.
type EndpointRecord struct {
	Name    string            `yaml:"name"`
	URL     string            `yaml:"url"`
	Method  string            `yaml:"method"`
	Headers map[string]string `yaml:"headers"`
	Body    any               `yaml:"body"`
}

// LoadEndpoints reads, parses, and validates the endpoint file at path.
// The file is a YAML sequence of EndpointRecord. An empty sequence is valid.
func LoadEndpoints(path string) ([]endpoint.Endpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("reading file: %w", err)}
	}
	return ParseEndpoints(path, data)
}

// ParseEndpoints parses endpoint definitions from data; name is used in
// error messages only.
func ParseEndpoints(name string, data []byte) ([]endpoint.Endpoint, error) {
	var records []EndpointRecord
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, &LoadError{Path: name, Err: fmt.Errorf("parsing yaml: %w", err)}
	}

	endpoints := make([]endpoint.Endpoint, 0, len(records))
	for i, r := range records {
		ep, err := endpoint.New(endpoint.Spec{
			Name:    r.Name,
			URL:     r.URL,
			Method:  r.Method,
			Headers: r.Headers,
			Body:    r.Body,
		})
		if err != nil {
			label := fmt.Sprintf("endpoint[%d]", i)
			if r.Name != "" {
				label = fmt.Sprintf("endpoint[%d] %q", i, r.Name)
			}
			return nil, fmt.Errorf("%s: %w", label, err)
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints, nil
}

// IsValidation reports whether err was caused by an invalid endpoint
// definition rather than an unreadable file.
func IsValidation(err error) bool {
	var verr *endpoint.ValidationError
	return errors.As(err, &verr)
}
