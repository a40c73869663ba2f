package app

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestConsoleHandler_Line(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newConsoleHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	log.With("owner_id", "u1").WithGroup("req").Warn("auth.login.fail", "path", "/api/auth/login", "err", errors.New("bad password"))
	log.Debug("hidden")

	out := buf.String()
	if strings.Count(out, "\n") != 1 {
		t.Fatalf("expected exactly one line, got %q", out)
	}
	for _, want := range []string{
		" WARN  auth.login.fail",
		" owner_id=u1",
		" req.path=/api/auth/login",
		` req.err="bad password"`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
}

func TestConsoleHandler_MasksCredentials(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newConsoleHandler(&buf, nil))

	log.With("refresh_secret", "s3cr3t").Info("auth.debug",
		"password", "Abc12345!",
		"Authorization", "Bearer eyJhbGciOi",
		slog.Group("resp", "access_token", "eyJ.x.y", "status", 200),
	)

	out := buf.String()
	for _, leaked := range []string{"s3cr3t", "Abc12345!", "eyJhbGciOi", "eyJ.x.y"} {
		if strings.Contains(out, leaked) {
			t.Fatalf("credential %q leaked: %q", leaked, out)
		}
	}
	for _, want := range []string{"refresh_secret=***", "password=***", "Authorization=***", "resp.access_token=***", "resp.status=200"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
}

func TestSensitiveKey(t *testing.T) {
	t.Parallel()

	for key, want := range map[string]bool{
		"password":     true,
		"RefreshToken": true,
		"jwt_secret":   true,
		"cookie":       true,
		"owner_id":     false,
		"path":         false,
	} {
		if got := sensitiveKey(key); got != want {
			t.Fatalf("sensitiveKey(%q)=%v want=%v", key, got, want)
		}
	}
}

func TestQuoteIfNeeded(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":        `""`,
		"plain":   "plain",
		"a b":     `"a b"`,
		"k=v":     `"k=v"`,
		`say "x"`: `"say \"x\""`,
	}
	for in, want := range cases {
		if got := quoteIfNeeded(in); got != want {
			t.Fatalf("quoteIfNeeded(%q)=%q want=%q", in, got, want)
		}
	}
}
