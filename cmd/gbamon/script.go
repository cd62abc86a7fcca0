package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// runScript feeds command lines from r to the monitor. Blank lines and lines
// starting with # are skipped rather than repeating the last command.
func runScript(mon *monitor, r io.Reader) error {
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := mon.exec(line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
	return sc.Err()
}
