package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hazz-dev/availmon/internal/config"
	"github.com/hazz-dev/availmon/internal/endpoint"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "*.yml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatal(err)
	}
	f.Close()
	return f.Name()
}

func TestLoadEndpoints_ValidConfig(t *testing.T) {
	path := writeTemp(t, `
- headers:
    user-agent: fetch-synthetic-monitor
  method: GET
  name: fetch index page
  url: https://fetch.com/
- headers:
    user-agent: fetch-synthetic-monitor
  method: GET
  name: fetch careers page
  url: https://fetch.com/careers
- body: '{"foo":"bar"}'
  headers:
    content-type: application/json
    user-agent: fetch-synthetic-monitor
  method: POST
  name: fetch some fake post endpoint
  url: https://fetch.com/some/post/endpoint
- name: fetch rewards index page
  url: https://www.fetchrewards.com/
`)
	eps, err := config.LoadEndpoints(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(eps) != 4 {
		t.Fatalf("expected 4 endpoints, got %d", len(eps))
	}
	if eps[0].Name() != "fetch index page" {
		t.Errorf("expected first endpoint name, got %q", eps[0].Name())
	}
	if eps[0].Headers()["user-agent"] != "fetch-synthetic-monitor" {
		t.Errorf("expected user-agent header, got %v", eps[0].Headers())
	}
	if eps[2].Method() != endpoint.MethodPost {
		t.Errorf("expected POST, got %q", eps[2].Method())
	}
	if body, ok := eps[2].Body(); !ok || body != `{"foo":"bar"}` {
		t.Errorf("expected string body, got %v (%v)", body, ok)
	}
	if eps[3].Method() != endpoint.MethodGet {
		t.Errorf("expected default method GET, got %q", eps[3].Method())
	}
	if eps[1].Host() != "fetch.com" || eps[3].Host() != "www.fetchrewards.com" {
		t.Errorf("unexpected hosts %q, %q", eps[1].Host(), eps[3].Host())
	}
}

func TestLoadEndpoints_StructuredBody(t *testing.T) {
	path := writeTemp(t, `
- name: create
  url: https://api.example.com/items
  method: PUT
  body:
    foo: bar
    count: 2
`)
	eps, err := config.LoadEndpoints(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body, ok := eps[0].Body()
	if !ok {
		t.Fatal("expected body")
	}
	m, ok := body.(map[string]any)
	if !ok {
		t.Fatalf("expected map body, got %T", body)
	}
	if m["foo"] != "bar" || m["count"] != 2 {
		t.Errorf("unexpected body %v", m)
	}
}

func TestLoadEndpoints_MissingURL(t *testing.T) {
	path := writeTemp(t, `
- name: ok
  url: https://example.com
- name: broken
`)
	_, err := config.LoadEndpoints(path)
	if err == nil {
		t.Fatal("expected error for missing url, got nil")
	}
	var verr *endpoint.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	if verr.Field != "url" {
		t.Errorf("expected field url, got %q", verr.Field)
	}
	if !config.IsValidation(err) {
		t.Error("IsValidation should report true")
	}
	if !strings.Contains(err.Error(), "endpoint[1]") {
		t.Errorf("error should identify the record: %v", err)
	}
}

func TestLoadEndpoints_MissingName(t *testing.T) {
	path := writeTemp(t, `
- url: https://example.com
`)
	_, err := config.LoadEndpoints(path)
	if err == nil {
		t.Fatal("expected error for missing name, got nil")
	}
	if !strings.Contains(err.Error(), "name") {
		t.Errorf("error should mention 'name': %v", err)
	}
}

func TestLoadEndpoints_UnknownMethod(t *testing.T) {
	path := writeTemp(t, `
- name: api
  url: https://example.com
  method: PATCH
`)
	_, err := config.LoadEndpoints(path)
	var verr *endpoint.ValidationError
	if !errors.As(err, &verr) || verr.Field != "method" {
		t.Fatalf("expected method ValidationError, got %v", err)
	}
}

func TestLoadEndpoints_Empty(t *testing.T) {
	eps, err := config.LoadEndpoints(writeTemp(t, "[]\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(eps) != 0 {
		t.Errorf("expected no endpoints, got %d", len(eps))
	}
}

func TestLoadEndpoints_Malformed(t *testing.T) {
	path := writeTemp(t, `
endpoints:
  - name: api
`)
	_, err := config.LoadEndpoints(path)
	var lerr *config.LoadError
	if !errors.As(err, &lerr) {
		t.Fatalf("expected LoadError, got %T: %v", err, err)
	}
	if config.IsValidation(err) {
		t.Error("parse failures are not validation errors")
	}
}

func TestLoadEndpoints_FileNotFound(t *testing.T) {
	_, err := config.LoadEndpoints(filepath.Join(t.TempDir(), "nonexistent.yml"))
	var lerr *config.LoadError
	if !errors.As(err, &lerr) {
		t.Fatalf("expected LoadError, got %T: %v", err, err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected wrapped ErrNotExist, got %v", err)
	}
}
