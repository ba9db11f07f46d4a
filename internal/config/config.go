// Package config finds and loads the startup command files. Config files
// hold the same statements the user can type; each line runs through the
// interpreter, and a bad line is reported with its number while the rest
// of the file continues to load.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// StdlibName is the library file that must exist under the library dir;
// its absence is fatal at startup.
const StdlibName = "stdlib.tf"

// FindConfigFile returns the config file to load: the explicit -f path if
// given, else the first of ~/.tfrc, ~/tfrc, ./.tfrc, ./tfrc that exists.
// An empty result means no config. An unset or empty HOME never produces
// a /.tfrc fallback.
func FindConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	var candidates []string
	if home := os.Getenv("HOME"); home != "" {
		candidates = append(candidates,
			filepath.Join(home, ".tfrc"),
			filepath.Join(home, "tfrc"),
		)
	}
	candidates = append(candidates, ".tfrc", "tfrc")
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}

// LibDir returns the library directory: the -L flag when set, else
// $TFLIBDIR, else the built-in default.
func LibDir(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("TFLIBDIR"); env != "" {
		return env
	}
	return "/usr/local/share/gofugue"
}

// StdlibPath returns the stdlib file under dir and whether it exists.
func StdlibPath(dir string) (string, bool) {
	p := filepath.Join(dir, StdlibName)
	info, err := os.Stat(p)
	return p, err == nil && !info.IsDir()
}

// LoadFile reads path line by line and hands each statement to exec.
// Blank lines and ;-comments are skipped; a trailing backslash continues
// a statement onto the next line. Statement errors go to diag with the
// file name and line number and loading continues; only I/O errors abort.
func LoadFile(path string, exec func(string) error, diag func(string)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineno := 0
	startLine := 0
	var pending strings.Builder
	flush := func() {
		stmt := pending.String()
		pending.Reset()
		if strings.TrimSpace(stmt) == "" {
			return
		}
		if err := exec(stmt); err != nil {
			diag(fmt.Sprintf("%s:%d: %v", path, startLine, err))
		}
	}

	for scanner.Scan() {
		lineno++
		line := scanner.Text()
		if pending.Len() == 0 {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || strings.HasPrefix(trimmed, ";") {
				continue
			}
			startLine = lineno
		}
		if strings.HasSuffix(line, "\\") {
			pending.WriteString(strings.TrimSuffix(line, "\\"))
			continue
		}
		pending.WriteString(line)
		flush()
	}
	if pending.Len() > 0 {
		flush()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}
