package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"dumpfloppy/fdc"
	"dumpfloppy/imd"
)

// dumpConfig is everything the acquisition driver needs; there is no other
// state.
type dumpConfig struct {
	AlwaysProbe  bool
	Drive        int
	Tracks       int // forced track count, -1 to autodetect
	ReadComment  bool
	IgnoreSector int // -1 for none
	MaxTries     int
	Retry        bool
	Image        string
	UI           bool
}

// probeDisk probes both sides of cylinder 2 to figure out the disk
// geometry: cylinder 2 because we need a physical cylinder greater than 0
// to spot doublestepping, and because cylinder 0 may reasonably be
// unformatted on disks where it's a bootblock. It adjusts p.cylScale and
// the disk's head count.
func (p *prober) probeDisk(disk *imd.Disk) error {
	const cyl = 2
	for head := 0; head < disk.NumHeads; head++ {
		if _, err := p.probeTrack(&disk.Tracks[cyl][head]); err != nil {
			return err
		}
	}

	side0 := &disk.Tracks[cyl][0]
	sec0 := &side0.Sectors[0]
	side1 := &disk.Tracks[cyl][1]
	sec1 := &side1.Sectors[0]

	switch {
	case side0.Status == imd.TrackUnknown && side1.Status == imd.TrackUnknown:
		return fmt.Errorf("cylinder 2 unreadable on either side")
	case side1.Status == imd.TrackUnknown:
		fmt.Fprintf(p.out, "Single-sided disk\n")
		disk.NumHeads = 1
	case sec0.LogHead == 0 && sec1.LogHead == 0:
		fmt.Fprintf(p.out, "Double-sided disk with separate sides\n")
	default:
		fmt.Fprintf(p.out, "Double-sided disk\n")
	}

	switch {
	case int(sec0.LogCyl)*2 == side0.PhysCyl:
		fmt.Fprintf(p.out, "Doublestepping required (40T disk in 80T drive)\n")
		p.cylScale = 2
	case int(sec0.LogCyl) == side0.PhysCyl*2:
		return fmt.Errorf("can't read this disk (80T disk in 40T drive)")
	case int(sec0.LogCyl) != side0.PhysCyl:
		fmt.Fprintf(p.out, "Mismatch between physical and logical cylinders\n")
	}
	return nil
}

// processFloppy runs one acquisition: geometry detection (or resume from an
// existing image), then every track in order, with retries, writing the IMD
// stream as it goes. The stream is flushed after every track so an aborted
// run still leaves a loadable prefix.
func processFloppy(cfg *dumpConfig) error {
	retrying := false
	var disk *imd.Disk

	// If the image exists already, load it and continue from there.
	if _, err := os.Stat(cfg.Image); err == nil {
		if !cfg.Retry {
			return fmt.Errorf("file %q already exists; specify -r to retry reads", cfg.Image)
		}
		disk, err = imd.LoadFile(cfg.Image)
		if err != nil {
			return err
		}
		retrying = true
		fmt.Printf("Loaded prior image. Retrying failed reads...\n")
	} else if cfg.Retry {
		return fmt.Errorf("cannot retry: file %q does not exist", cfg.Image)
	} else {
		disk = imd.NewDisk()
		disk.MakeComment(programName, programVersion, time.Now())
	}

	if cfg.ReadComment {
		if term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprintf(os.Stderr, "Enter comment, terminated by EOF\n")
		}
		extra, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read from stdin failed: %w", err)
		}
		disk.Comment = append(disk.Comment, extra...)
	}

	fmt.Printf("opening %s\n", fdc.DevicePath(cfg.Drive))
	dev, err := fdc.Open(cfg.Drive)
	if err != nil {
		return err
	}
	defer dev.Close()

	// The BIOS parameters aren't necessarily accurate (there's no BIOS type
	// for an 80-track 5.25" DD drive); they only provide the default track
	// count.
	params, err := dev.Params()
	if err != nil {
		return err
	}

	if err := dev.Reset(); err != nil {
		return err
	}
	// Recalibrate twice, in case the head was stepped past track 80.
	for i := 0; i < 2; i++ {
		if err := dev.Recalibrate(); err != nil {
			return err
		}
	}

	p := &prober{ctl: dev, cylScale: 1, ignoreSector: cfg.IgnoreSector, out: os.Stdout}

	var screen *acquireScreen
	if cfg.UI {
		screen, err = newAcquireScreen(cfg.Image)
		if err != nil {
			return err
		}
		defer screen.Close()
		p.out = io.Discard
	}

	if retrying {
		fmt.Fprintf(p.out, "Using previously probed disk cyls/heads from %s\n", cfg.Image)
	} else {
		if cfg.Tracks == -1 {
			disk.NumCyls = params.Tracks
		} else {
			disk.NumCyls = cfg.Tracks
		}
		disk.NumHeads = 2

		if err := p.probeDisk(disk); err != nil {
			return err
		}
		disk.NumCyls /= p.cylScale
	}

	image, err := os.Create(cfg.Image)
	if err != nil {
		return fmt.Errorf("cannot open %s for writing: %w", cfg.Image, err)
	}
	defer image.Close()

	w := bufio.NewWriter(image)
	if err := imd.WriteHeader(w, disk); err != nil {
		return err
	}

	stopped := false
dump:
	for cyl := 0; cyl < disk.NumCyls; cyl++ {
		for head := 0; head < disk.NumHeads; head++ {
			track := &disk.Tracks[cyl][head]

			if cfg.AlwaysProbe || retrying {
				// Don't assume a layout.
			} else if cyl > 0 {
				// Try the layout of the previous cyl on the same head.
				track.CopyLayoutFrom(&disk.Tracks[cyl-1][head])
			}

			for tryNum := 0; tryNum < cfg.MaxTries; tryNum++ {
				ok, err := p.readTrack(track, retrying)
				if err != nil {
					return err
				}
				if ok {
					break
				}

				if track.Status == imd.TrackGuessed {
					// Maybe we guessed wrong. Probe and try again.
					track.Init(cyl, head)
				}
			}

			if err := imd.WriteTrack(w, track); err != nil {
				return err
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if screen != nil {
				screen.Update(disk, cyl, head)
				if screen.Stopped() {
					stopped = true
					break dump
				}
			}
		}
	}

	if screen != nil {
		screen.Close()
	}
	if stopped {
		fmt.Printf("Stopped; partial image written to %s (resume with -r)\n", cfg.Image)
	}

	good, bad, missing := countSectors(disk)
	fmt.Printf("\nSector statuses:\nGood:    %d\nBad:     %d\nMissing: %d\n", good, bad, missing)
	return nil
}

// countSectors totals the sector statuses across the disk.
func countSectors(disk *imd.Disk) (good, bad, missing int) {
	for cyl := 0; cyl < disk.NumCyls; cyl++ {
		for head := 0; head < disk.NumHeads; head++ {
			track := &disk.Tracks[cyl][head]
			for i := 0; i < track.NumSectors; i++ {
				switch track.Sectors[i].Status {
				case imd.SectorGood:
					good++
				case imd.SectorBad:
					bad++
				case imd.SectorMissing:
					missing++
				}
			}
		}
	}
	return good, bad, missing
}
