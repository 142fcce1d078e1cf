package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHandlerRenamesCoreKeys(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewHandler(&buf)).Info("minted", "position", "stblpos1xyz")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	for _, key := range []string{"timestamp", "severity", "message"} {
		if _, ok := line[key]; !ok {
			t.Fatalf("missing %q in %v", key, line)
		}
	}
	if line["severity"] != "INFO" || line["message"] != "minted" {
		t.Fatalf("unexpected line %v", line)
	}
}

func TestMaskFieldRedactsUnlistedKeys(t *testing.T) {
	if attr := MaskField("authorization", "Bearer abc"); attr.Value.String() != RedactedValue {
		t.Fatalf("expected bearer token to be redacted, got %s", attr.Value)
	}
	if attr := MaskField("route", "/v1/positions"); attr.Value.String() != "/v1/positions" {
		t.Fatalf("allowlisted key was redacted")
	}
	if attr := MaskField("secret", ""); attr.Value.String() != "" {
		t.Fatalf("empty values must pass through")
	}
	for _, key := range RedactionAllowlist() {
		if strings.Contains(key, "token") || strings.Contains(key, "secret") {
			t.Fatalf("sensitive key %q allowlisted", key)
		}
	}
}

func TestSetupWithFileWritesRotatedLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hubd.log")
	logger, closer := SetupWithFile("hubd", "test", FileConfig{Path: path, MaxSizeMB: 1})
	defer closer.Close()
	logger.Info("ready")

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !bytes.Contains(raw, []byte(`"service":"hubd"`)) || !bytes.Contains(raw, []byte(`"message":"ready"`)) {
		t.Fatalf("unexpected log file contents %s", raw)
	}
}
