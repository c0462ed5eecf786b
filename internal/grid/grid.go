// SPDX-License-Identifier: MPL-2.0

// Package grid parses member data files (<set>_NNNN.dat) into numeric grids.
//
// A member file starts with a free-form header, followed by blocks delimited
// by lines holding only "---". Each block lists the x knots, the Q knots, the
// flavor ids, and then one row per (x, Q) pair with one value per flavor.
// Q knots are stored squared.
package grid

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Separator delimits blocks in a member file.
const Separator = "---"

// maxLineSize bounds a single line of a member file.
const maxLineSize = 4 << 20

var (
	// ErrNoBlocks is returned for files without a complete block.
	ErrNoBlocks = errors.New("no grid blocks found")

	// ErrTruncatedBlock is returned when a block has too few rows.
	ErrTruncatedBlock = errors.New("truncated grid block")

	// ErrColumnCount is returned when a value row does not have one column per flavor.
	ErrColumnCount = errors.New("wrong number of columns")
)

type (
	// Grid is one block of a member file.
	Grid struct {
		X       []float64
		Q2      []float64
		Flavors []int
		// Values has len(X)*len(Q2) rows, x-major, and len(Flavors) columns.
		Values [][]float64
	}

	// ParseError locates a malformed block.
	ParseError struct {
		File  string
		Block int // zero-based
		Line  int // one-based
		Err   error
	}
)

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: block %d, line %d: %v", e.File, e.Block, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// At returns the value for flavor column f at knots (ix, iq).
func (g *Grid) At(ix, iq, f int) float64 {
	return g.Values[ix*len(g.Q2)+iq][f]
}

// ParseFile parses the member file at path.
func ParseFile(path string) ([]Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening member file: %w", err)
	}
	defer func() { _ = f.Close() }() // read-only file

	return Parse(f, path)
}

// Parse reads every block of a member file. Text after the last separator
// is ignored. name is only used to label errors.
func Parse(r io.Reader, name string) ([]Grid, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	var seps []int
	for i, l := range lines {
		if strings.TrimSpace(l) == Separator {
			seps = append(seps, i)
		}
	}
	if len(seps) < 2 {
		return nil, &ParseError{File: name, Line: len(lines), Err: ErrNoBlocks}
	}

	grids := make([]Grid, 0, len(seps)-1)
	for b := range len(seps) - 1 {
		start, end := seps[b]+1, seps[b+1]
		g, line, err := parseBlock(lines[start:end])
		if err != nil {
			return nil, &ParseError{File: name, Block: b, Line: start + line + 1, Err: err}
		}
		grids = append(grids, g)
	}
	return grids, nil
}

// parseBlock returns the offending line offset within the block on error.
func parseBlock(rows []string) (Grid, int, error) {
	if len(rows) < 3 {
		return Grid{}, len(rows), fmt.Errorf("%w: missing knot rows", ErrTruncatedBlock)
	}

	var g Grid
	var err error
	if g.X, err = parseFloats(rows[0]); err != nil {
		return Grid{}, 0, err
	}
	q, err := parseFloats(rows[1])
	if err != nil {
		return Grid{}, 1, err
	}
	g.Q2 = make([]float64, len(q))
	for i, v := range q {
		g.Q2[i] = v * v
	}
	flavors, err := parseFloats(rows[2])
	if err != nil {
		return Grid{}, 2, err
	}
	g.Flavors = make([]int, len(flavors))
	for i, f := range flavors {
		g.Flavors[i] = int(f)
	}

	want := len(g.X) * len(g.Q2)
	body := rows[3:]
	if len(body) != want {
		return Grid{}, 3 + min(len(body), want), fmt.Errorf("%w: want %d value rows, got %d", ErrTruncatedBlock, want, len(body))
	}

	g.Values = make([][]float64, want)
	for i, row := range body {
		vals, err := parseFloats(row)
		if err != nil {
			return Grid{}, 3 + i, err
		}
		if len(vals) != len(g.Flavors) {
			return Grid{}, 3 + i, fmt.Errorf("%w: want %d, got %d", ErrColumnCount, len(g.Flavors), len(vals))
		}
		g.Values[i] = vals
	}
	return g, 0, nil
}

func parseFloats(line string) ([]float64, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty row", ErrTruncatedBlock)
	}
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", f, err)
		}
		out[i] = v
	}
	return out, nil
}

func readLines(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}
