package data

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestFormatOf(t *testing.T) {
	tests := []struct {
		name string
		want FileFormat
	}{
		{"ae.safetensors", FormatSafetensors},
		{"model.pt", FormatBinary},
		{"2xLexicaRRDBNet_Sharp.pth", FormatBinary},
		{"sd.ckpt", FormatBinary},
		{"Qwen_3_4b-Q8_0.gguf", FormatBinary},
		{"example_workflow.json", FormatOther},
		{"upper.SAFETENSORS", FormatOther},
		{"ae.safetensors.part", FormatOther},
	}
	for _, tc := range tests {
		if got := FormatOf(tc.name); got != tc.want {
			t.Fatalf("FormatOf(%q) = %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestCanTransition(t *testing.T) {
	allowed := [][2]TaskState{
		{TaskPending, TaskAlreadyPresent},
		{TaskPending, TaskFetching},
		{TaskAlreadyPresent, TaskSucceeded},
		{TaskFetching, TaskSucceeded},
		{TaskFetching, TaskSkipped},
	}
	for _, p := range allowed {
		if !CanTransition(p[0], p[1]) {
			t.Fatalf("%s -> %s should be allowed", p[0], p[1])
		}
	}
	denied := [][2]TaskState{
		{TaskPending, TaskSucceeded},
		{TaskAlreadyPresent, TaskSkipped},
		{TaskSucceeded, TaskFetching},
		{TaskSkipped, TaskFetching},
	}
	for _, p := range denied {
		if CanTransition(p[0], p[1]) {
			t.Fatalf("%s -> %s should be denied", p[0], p[1])
		}
	}
	if !TaskSkipped.IsTerminal() || !TaskSucceeded.IsTerminal() || TaskFetching.IsTerminal() {
		t.Fatalf("unexpected terminal classification")
	}
}

func TestManifestJSON(t *testing.T) {
	in := `[{"url":"https://huggingface.co/a/resolve/main/x.safetensors","path":"/models/vae/x.safetensors"}]`
	var m Manifest
	if err := m.FromJSON(strings.NewReader(in)); err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if len(m) != 1 || m[0].Name() != "x.safetensors" {
		t.Fatalf("unexpected manifest: %#v", m)
	}
	var buf bytes.Buffer
	if err := m.ToJSON(&buf); err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	if !strings.Contains(buf.String(), `"path": "/models/vae/x.safetensors"`) {
		t.Fatalf("unexpected encoding: %s", buf.String())
	}

	var bad Manifest
	if err := bad.FromJSON(strings.NewReader(`[{"url":"u","path":"/p","token":"x"}]`)); err == nil {
		t.Fatalf("expected unknown field error")
	}
}

func TestManifestValidate(t *testing.T) {
	m := Manifest{
		{URL: "https://h/a", Path: "/models/a.pt"},
		{URL: "https://h/b", Path: "relative/b.pt"},
	}
	err := m.Validate()
	if !errors.Is(err, ErrInvalidManifest) || !errors.Is(err, ErrTargetPath) {
		t.Fatalf("expected invalid manifest + target path, got %v", err)
	}
	var me *ManifestError
	if !errors.As(err, &me) || me.Index != 1 {
		t.Fatalf("expected index 1, got %v", err)
	}
}

func TestTallyAdd(t *testing.T) {
	var tl Tally
	tl.Add(TaskResult{State: TaskSucceeded})
	tl.Add(TaskResult{State: TaskSucceeded, Fetched: true})
	tl.Add(TaskResult{State: TaskSkipped})
	tl.Add(TaskResult{State: TaskSkipped})
	if tl.Present != 1 || tl.Downloaded != 1 || tl.Skipped != 2 {
		t.Fatalf("unexpected tally: %+v", tl)
	}
}

func TestFromMB(t *testing.T) {
	k := FromMB(map[string]int64{"qwen_3_4b.safetensors": 6000})
	if got := k.Lookup("qwen_3_4b.safetensors"); got != 6000*MiB {
		t.Fatalf("lookup = %d", got)
	}
	if got := k.Lookup("other.safetensors"); got != 0 {
		t.Fatalf("lookup other = %d", got)
	}
	var nilK KnownMinimums
	if nilK.Lookup("x") != 0 {
		t.Fatalf("nil lookup should be zero")
	}
}
