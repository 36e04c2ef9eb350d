// Package message prints operator-facing CLI output. Diagnostic logging goes
// through slog; this package is for the lines a person running a scan reads.
package message

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/praetorian-inc/tenantscan/version"
)

var (
	mu        sync.RWMutex
	quiet     bool
	noColor   bool      = !isatty.IsTerminal(os.Stdout.Fd())
	outWriter io.Writer = os.Stdout

	infoColor    = color.New(color.FgCyan)
	successColor = color.New(color.FgGreen)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	bannerColor  = color.New(color.FgHiBlue, color.Bold)
)

const asciiBanner = `
 _                         _
| |_ ___ _ __   __ _ _ __ | |_ ___  ___ __ _ _ __
| __/ _ \ '_ \ / _' | '_ \| __/ __|/ __/ _' | '_ \
| ||  __/ | | | (_| | | | | |_\__ \ (_| (_| | | | |
 \__\___|_| |_|\__,_|_| |_|\__|___/\___\__,_|_| |_|
`

// SetQuiet suppresses everything except errors.
func SetQuiet(q bool) {
	mu.Lock()
	defer mu.Unlock()
	quiet = q
}

// SetNoColor forces plain output. Color is already off when stdout is not a
// terminal.
func SetNoColor(nc bool) {
	mu.Lock()
	defer mu.Unlock()
	noColor = nc
}

// SetOutput redirects output, mostly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	outWriter = w
}

func printf(c *color.Color, prefix, format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()

	msg := prefix + fmt.Sprintf(format, args...)
	if noColor {
		fmt.Fprintln(outWriter, msg)
		return
	}
	c.Fprintln(outWriter, msg)
}

func isQuiet() bool {
	mu.RLock()
	defer mu.RUnlock()
	return quiet
}

func Info(format string, args ...any) {
	if isQuiet() {
		return
	}
	printf(infoColor, "[*] ", format, args...)
}

func Success(format string, args ...any) {
	if isQuiet() {
		return
	}
	printf(successColor, "[+] ", format, args...)
}

func Warning(format string, args ...any) {
	if isQuiet() {
		return
	}
	printf(warningColor, "[!] ", format, args...)
}

// Error is printed even in quiet mode.
func Error(format string, args ...any) {
	printf(errorColor, "[-] ", format, args...)
}

// Table writes rows under a header, padded into columns.
func Table(header []string, rows [][]string) {
	mu.RLock()
	defer mu.RUnlock()

	tw := tabwriter.NewWriter(outWriter, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()
}

func Banner() {
	if isQuiet() {
		return
	}

	mu.RLock()
	defer mu.RUnlock()

	if noColor {
		fmt.Fprint(outWriter, asciiBanner, version.AbbreviatedVersion(), "\n")
		return
	}
	bannerColor.Fprint(outWriter, asciiBanner, version.AbbreviatedVersion(), "\n")
}
