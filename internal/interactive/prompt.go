// Package interactive provides the confirmation prompt for installing updates.
package interactive

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/molt-dev/molt/pkg/update"
)

// Prompter reads confirmation answers from the user.
type Prompter struct {
	in        io.Reader
	out       io.Writer
	scanner   *bufio.Scanner
	assumeYes bool
}

// NewPrompter creates a prompter with stdin/stdout.
func NewPrompter() *Prompter {
	return NewPrompterWithIO(os.Stdin, os.Stdout)
}

// NewPrompterWithIO creates a prompter with custom input/output (for testing).
func NewPrompterWithIO(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		in:      in,
		out:     out,
		scanner: bufio.NewScanner(in),
	}
}

// WithAssumeYes makes every confirmation succeed without prompting.
func (p *Prompter) WithAssumeYes(yes bool) *Prompter {
	p.assumeYes = yes
	return p
}

// IsTerminal checks if stdin is a terminal (TTY).
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Confirm displays a question and reads a yes/no answer. EOF and anything
// other than yes count as no.
func (p *Prompter) Confirm(format string, args ...interface{}) bool {
	if p.assumeYes {
		return true
	}

	_, _ = fmt.Fprintf(p.out, format, args...)
	_, _ = fmt.Fprint(p.out, " [y/n] ")

	if !p.scanner.Scan() {
		return false
	}

	input := strings.ToLower(strings.TrimSpace(p.scanner.Text()))
	return input == "y" || input == "yes"
}

// ConfirmInstall shows the pending release and asks whether to install it.
func (p *Prompter) ConfirmInstall(currentVersion string, rel *update.Release) bool {
	_, _ = fmt.Fprintf(p.out, "Update available: %s -> %s\n", currentVersion, rel.Version)
	if rel.Filename != "" {
		_, _ = fmt.Fprintf(p.out, "  archive: %s", rel.Filename)
		if rel.Size > 0 {
			_, _ = fmt.Fprintf(p.out, " (%s)", formatSize(rel.Size))
		}
		_, _ = fmt.Fprintln(p.out)
	}
	return p.Confirm("Install and restart?")
}

// formatSize renders a byte count in a human unit.
func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
