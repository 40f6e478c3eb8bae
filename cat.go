package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"dumpfloppy/imd"
)

// catConfig is everything the converter needs.
type catConfig struct {
	Image       string
	ShowComment bool
	FlatFile    string
	Verbose     bool
	ShowData    bool
	Flatten     imd.FlattenOptions
}

// runCat loads an image and performs the requested combination of comment
// output, verbose listing and flat-file conversion.
func runCat(cfg *catConfig) error {
	disk, err := imd.LoadFile(cfg.Image)
	if err != nil {
		return err
	}

	if cfg.ShowComment && !cfg.Verbose {
		imd.ShowComment(os.Stdout, disk)
	}

	if cfg.Verbose {
		if err := imd.ShowDisk(os.Stdout, disk, cfg.ShowData); err != nil {
			return err
		}
	}

	if cfg.FlatFile != "" {
		f, err := os.Create(cfg.FlatFile)
		if err != nil {
			return fmt.Errorf("cannot open %s for writing: %w", cfg.FlatFile, err)
		}
		defer f.Close()

		w := bufio.NewWriter(f)
		pick, closePicker := newDataPicker()
		defer closePicker()
		if err := imd.Flatten(disk, cfg.Flatten, pick, w, os.Stderr); err != nil {
			return err
		}
		return w.Flush()
	}

	return nil
}

// newDataPicker returns a DataPicker that asks the operator which recorded
// reading of an ambiguous sector to use. The prompt goes to stderr so a
// flat image on stdout stays clean; an empty line accepts the default
// (highest read count) and bad input reprompts.
func newDataPicker() (imd.DataPicker, func()) {
	var rl *readline.Instance

	pick := func(sector *imd.Sector, defaultID int) (int, error) {
		if rl == nil {
			var err error
			rl, err = readline.NewEx(&readline.Config{
				Stdout: os.Stderr,
			})
			if err != nil {
				return 0, err
			}
		}
		rl.SetPrompt(fmt.Sprintf(
			"Enter the 'IMD data id' to use for Logical C %d H %d S %d: [default: %d, count: %d]: ",
			sector.LogCyl, sector.LogHead, sector.LogSector,
			defaultID, sector.Datas.At(defaultID).Count))

		for {
			line, err := rl.Readline()
			if err != nil {
				return 0, fmt.Errorf("error reading stdin: %w", err)
			}
			line = strings.TrimSpace(line)
			if line == "" {
				fmt.Fprintf(os.Stderr, "Using default ID of %d\n", defaultID)
				return defaultID, nil
			}
			id, err := strconv.Atoi(line)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error parsing 'IMD data id': %v\n", err)
				continue
			}
			if id < 0 || id >= sector.Datas.Len() {
				fmt.Fprintf(os.Stderr, "Parsed invalid 'IMD data id': %d. Must be less than %d.\n",
					id, sector.Datas.Len())
				continue
			}
			return id, nil
		}
	}

	closePicker := func() {
		if rl != nil {
			rl.Close()
		}
	}
	return pick, closePicker
}

// parseRangeInto parses a range argument in the form "10:20" (inclusive,
// so parsed as [10, 21)), "10:", ":20" or "15", updating only the ends
// that are present.
func parseRangeInto(s string, r *imd.Range) error {
	first, rest, hasColon := strings.Cut(s, ":")

	if !hasColon {
		v, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("bad range %q", s)
		}
		r.Start = v
		r.End = v + 1
		return nil
	}

	if first != "" {
		v, err := strconv.Atoi(first)
		if err != nil {
			return fmt.Errorf("bad range %q", s)
		}
		r.Start = v
	}
	if rest != "" {
		v, err := strconv.Atoi(rest)
		if err != nil {
			return fmt.Errorf("bad range %q", s)
		}
		r.End = v + 1
	}
	return nil
}
