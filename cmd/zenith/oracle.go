package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/zenithlab/zenith/body"
	"github.com/zenithlab/zenith/oracle"
	"github.com/zenithlab/zenith/oracle/sgp4"
	"github.com/zenithlab/zenith/testutil"
)

// newOracle selects the position oracle from the root flags: an SGP4
// oracle fed by --tle when given, otherwise the seeded synthetic oracle.
func newOracle(cat body.Catalog) (oracle.Oracle, error) {
	tlePath, _ := rootCmd.Flags().GetString("tle")
	if tlePath == "" {
		seed, _ := rootCmd.Flags().GetInt64("seed")
		return testutil.NewOracle(cat, 2451545.0, seed), nil
	}
	return loadTLEOracle(tlePath)
}

// loadTLEOracle reads a three-line-element file where each entry's name
// line is the numeric body identifier it should be registered under.
func loadTLEOracle(path string) (*sgp4.Oracle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open TLE file: %w", err)
	}
	defer f.Close()

	orc := sgp4.New()
	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read TLE file: %w", err)
	}
	if len(lines)%3 != 0 {
		return nil, fmt.Errorf("TLE file %s: %d lines, expected name/line1/line2 triples", path, len(lines))
	}

	for i := 0; i < len(lines); i += 3 {
		id, err := strconv.Atoi(lines[i])
		if err != nil {
			return nil, fmt.Errorf("TLE entry %d: name line %q is not a body identifier", i/3, lines[i])
		}
		orc.Register(id, lines[i+1], lines[i+2])
	}
	return orc, nil
}
