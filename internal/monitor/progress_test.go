package monitor

import (
	"reflect"
	"testing"
)

func TestParseProgress(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    float64
		ok      bool
	}{
		{"no steps", "loading dataset\n", 0, false},
		{"single step", "Step 50/200\n", 25, true},
		{"last occurrence wins", "Step 1/100\nloss=0.5\nStep 40/100\n", 40, true},
		{"full run", "Step 100/100\n", 100, true},
		{"zero denominator", "Step 5/0\n", 0, false},
		{"extra whitespace", "Step   7/10\n", 70, true},
		{"embedded in line", "INFO Step 3/4 loss=0.1", 75, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseProgress(tt.content)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ParseProgress() = (%v, %v), want (%v, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestParseSentinel(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		exitCode int
		hasCode  bool
		present  bool
	}{
		{"absent", "Step 1/10\n", 0, false, false},
		{"success", "Step 10/10\nJob completed with exit code 0\n", 0, true, true},
		{"failure", "Traceback...\nJob completed with exit code 1\n", 1, true, true},
		{"signal exit", "Job completed with exit code 137\n", 137, true, true},
		{"malformed code", "Job completed with exit code ?\n", 0, false, true},
		{"truncated", "Job completed with exit code", 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, hasCode, present := ParseSentinel(tt.content)
			if code != tt.exitCode || hasCode != tt.hasCode || present != tt.present {
				t.Errorf("ParseSentinel() = (%d, %v, %v), want (%d, %v, %v)",
					code, hasCode, present, tt.exitCode, tt.hasCode, tt.present)
			}
		})
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		content string
		want    []string
	}{
		{"a\nb\n", []string{"a", "b"}},
		{"a\nb", []string{"a", "b"}},
		{"", []string{}},
		{"\n", []string{""}},
	}
	for _, tt := range tests {
		got := splitLines(tt.content)
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitLines(%q) = %v, want %v", tt.content, got, tt.want)
		}
	}
}
