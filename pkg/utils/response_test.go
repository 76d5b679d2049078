package utils

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type decodeTarget struct {
	ProfileID string `json:"profileId"`
}

func TestDecodeJSONEmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
	var dst decodeTarget
	if err := DecodeJSON(req, &dst); err != nil {
		t.Fatalf("expected empty body accepted, got %v", err)
	}

	// 分块请求没有 Content-Length。
	req = httptest.NewRequest(http.MethodPost, "/api/sessions", io.NopCloser(strings.NewReader("")))
	req.ContentLength = -1
	if err := DecodeJSON(req, &dst); err != nil {
		t.Fatalf("expected empty chunked body accepted, got %v", err)
	}
	if dst.ProfileID != "" {
		t.Fatalf("expected zero value, got %+v", dst)
	}
}

func TestDecodeJSONBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(`{"profileId":"stock"}`))
	req.ContentLength = -1
	var dst decodeTarget
	if err := DecodeJSON(req, &dst); err != nil || dst.ProfileID != "stock" {
		t.Fatalf("unexpected decode result %+v %v", dst, err)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(`{"profileId":`))
	if err := DecodeJSON(req, &dst); err == nil {
		t.Fatal("expected error for truncated body")
	}
}
