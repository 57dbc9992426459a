package auth

import (
	"encoding/base64"
	"testing"
)

func TestParseBasicCredentials(t *testing.T) {
	raw := base64.StdEncoding.EncodeToString([]byte("admin@example.com:hunter2"))
	user, password, ok := ParseBasicCredentials("Basic " + raw)
	if !ok {
		t.Fatalf("expected ok")
	}
	if user != "admin@example.com" || password != "hunter2" {
		t.Fatalf("got user=%q password=%q", user, password)
	}
}

func TestParseBasicCredentialsRejectsWrongScheme(t *testing.T) {
	_, _, ok := ParseBasicCredentials("Bearer abc123")
	if ok {
		t.Fatalf("expected Bearer header to be rejected")
	}
}

func TestParseBasicCredentialsRejectsMalformedBase64(t *testing.T) {
	_, _, ok := ParseBasicCredentials("Basic not-base64!!!")
	if ok {
		t.Fatalf("expected malformed base64 to be rejected")
	}
}

func TestParseBasicCredentialsRejectsMissingColon(t *testing.T) {
	raw := base64.StdEncoding.EncodeToString([]byte("no-colon-here"))
	_, _, ok := ParseBasicCredentials("Basic " + raw)
	if ok {
		t.Fatalf("expected credentials without a colon to be rejected")
	}
}

func TestParseBearerToken(t *testing.T) {
	token, ok := ParseBearerToken("Bearer abc.def.ghi")
	if !ok || token != "abc.def.ghi" {
		t.Fatalf("got token=%q ok=%v", token, ok)
	}
}

func TestParseBearerTokenRejectsWrongScheme(t *testing.T) {
	_, ok := ParseBearerToken("Basic abc123")
	if ok {
		t.Fatalf("expected Basic header to be rejected")
	}
}
