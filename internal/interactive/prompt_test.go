package interactive

import (
	"bytes"
	"strings"
	"testing"

	"github.com/molt-dev/molt/pkg/update"
)

func TestConfirm(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"yes short", "y\n", true},
		{"yes long", "yes\n", true},
		{"yes uppercase", "YES\n", true},
		{"no short", "n\n", false},
		{"no long", "no\n", false},
		{"empty line", "\n", false},
		{"garbage", "maybe\n", false},
		{"eof", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := NewPrompterWithIO(strings.NewReader(tt.input), &out)

			if got := p.Confirm("Install?"); got != tt.want {
				t.Errorf("Confirm() = %v, want %v", got, tt.want)
			}
			if !strings.Contains(out.String(), "[y/n]") {
				t.Errorf("prompt output missing [y/n]: %q", out.String())
			}
		})
	}
}

func TestConfirmAssumeYes(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompterWithIO(strings.NewReader(""), &out).WithAssumeYes(true)

	if !p.Confirm("Install?") {
		t.Error("Confirm() = false with assume-yes")
	}
	if out.Len() != 0 {
		t.Errorf("assume-yes should not prompt, wrote %q", out.String())
	}
}

func TestConfirmInstall(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompterWithIO(strings.NewReader("y\n"), &out)

	rel := &update.Release{Version: "1.1.0", Filename: "molt-1.1.0.tar.gz", Size: 5 * 1024 * 1024}
	if !p.ConfirmInstall("1.0.0", rel) {
		t.Error("ConfirmInstall() = false, want true")
	}

	got := out.String()
	for _, want := range []string{"1.0.0 -> 1.1.0", "molt-1.1.0.tar.gz", "5.0 MiB"} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt output missing %q:\n%s", want, got)
		}
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
		{3 * 1024 * 1024 * 1024, "3.0 GiB"},
	}

	for _, tt := range tests {
		if got := formatSize(tt.bytes); got != tt.want {
			t.Errorf("formatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}
