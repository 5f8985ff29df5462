package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"go.yaml.in/yaml/v3"
)

type sample struct {
	SocketPath string `json:"socket_path"`
	PID        int    `json:"pid"`
}

type texty struct{}

func (texty) Text() string { return "custom text" }

func newWriter(f Format) (*Writer, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return New(f, WithOutput(&out), WithErrorOutput(&errOut)), &out, &errOut
}

func TestParseFormat(t *testing.T) {
	for _, ok := range []string{"text", "json", "yaml"} {
		if _, err := ParseFormat(ok); err != nil {
			t.Errorf("ParseFormat(%q): %v", ok, err)
		}
	}
	if _, err := ParseFormat("toml"); err == nil {
		t.Fatalf("expected error for toml")
	}
}

func TestWriter_Write_Text(t *testing.T) {
	w, out, _ := newWriter(FormatText)
	if err := w.Write("hello"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if out.String() != "hello\n" {
		t.Fatalf("out=%q", out.String())
	}

	out.Reset()
	if err := w.Write(texty{}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if out.String() != "custom text\n" {
		t.Fatalf("Texter out=%q", out.String())
	}
}

func TestWriter_Write_JSON(t *testing.T) {
	w, out, _ := newWriter(FormatJSON)
	if err := w.Write(sample{SocketPath: "/tmp/s", PID: 7}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", out.String(), err)
	}
	if got["socket_path"] != "/tmp/s" || got["pid"] != float64(7) {
		t.Fatalf("got %v", got)
	}
}

func TestWriter_Write_YAML(t *testing.T) {
	w, out, _ := newWriter(FormatYAML)
	if err := w.Write(sample{SocketPath: "/tmp/s", PID: 7}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.Contains(out.String(), "socket_path: /tmp/s") {
		t.Fatalf("YAML does not use json keys: %q", out.String())
	}
	var got map[string]any
	if err := yaml.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("invalid YAML: %v", err)
	}
	if got["pid"] != 7 {
		t.Fatalf("pid=%v (%T)", got["pid"], got["pid"])
	}
}

func TestWriter_Write_YAMLNumbersUnquoted(t *testing.T) {
	w, out, _ := newWriter(FormatYAML)
	payload := map[string]any{
		"pid":     4242,
		"ratio":   0.5,
		"nested":  map[string]any{"border": 24},
		"entries": []any{1, "two"},
	}
	if err := w.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	text := out.String()
	for _, want := range []string{"pid: 4242\n", "ratio: 0.5\n", "border: 24\n", "- 1\n"} {
		if !strings.Contains(text, want) {
			t.Errorf("YAML missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, `"4242"`) {
		t.Fatalf("pid quoted as a string:\n%s", text)
	}
}

func TestWriter_Write_UnsupportedFormat(t *testing.T) {
	w, _, _ := newWriter(Format("xml"))
	if err := w.Write("x"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestWriter_SuccessAndError(t *testing.T) {
	w, _, errOut := newWriter(FormatText)
	w.Success("sent")
	w.Error(errors.New("boom"))
	if errOut.String() != "✓ sent\n✗ boom\n" {
		t.Fatalf("errOut=%q", errOut.String())
	}

	w, out, _ := newWriter(FormatJSON)
	w.Error(errors.New("boom"))
	var payload ErrorPayload
	if err := json.Unmarshal(out.Bytes(), &payload); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if payload.Message != "boom" || payload.Error != "error" {
		t.Fatalf("payload=%+v", payload)
	}
}
