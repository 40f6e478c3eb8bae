// The probing techniques used here are based on the "How to identify an
// unknown disk" document from the fdutils project:
// http://www.fdutils.linux.lu/disk-id.html

package main

import (
	"fmt"
	"io"

	"dumpfloppy/fdc"
	"dumpfloppy/imd"
)

// controller is the slice of the drive capability that probing and reading
// consume. *fdc.Device implements it; tests substitute a simulated drive.
type controller interface {
	ReadID(seekCyl, physHead, rate int, fm bool) (fdc.SectorID, fdc.Result, error)
	ReadData(seekCyl, physHead, rate int, fm bool, id fdc.SectorID, buf []byte) (fdc.Result, error)
}

// prober runs track probing and reading against one drive.
type prober struct {
	ctl controller
	// cylScale is the physical steps per model cylinder: 2 when
	// doublestepping a 40-track disk in an 80-track drive.
	cylScale int
	// ignoreSector drops READ-ID replies with this logical ID; -1 for none.
	ignoreSector int
	out          io.Writer
}

// seekCyl is the physical cylinder the drive must step to for a track.
func (p *prober) seekCyl(track *imd.Track) int {
	return track.PhysCyl * p.cylScale
}

// trackReadID reads the next sector ID off the medium and appends it to the
// track's sector list. It returns nil without error when the controller saw
// no ID within two index holes.
func (p *prober) trackReadID(track *imd.Track) (*imd.Sector, error) {
	if track.NumSectors == imd.MaxSectors-1 {
		return nil, fmt.Errorf("track %d.%d: read too many sector IDs", track.PhysCyl, track.PhysHead)
	}

	var id fdc.SectorID
	for {
		var res fdc.Result
		var err error
		id, res, err = p.ctl.ReadID(p.seekCyl(track), track.PhysHead, track.Mode.Rate, track.Mode.IsFM)
		if err != nil {
			return nil, err
		}
		if !res.OK {
			return nil, nil
		}
		if int(id.Sector) != p.ignoreSector {
			break
		}
	}

	sector := &track.Sectors[track.NumSectors]
	if sector.Status != imd.SectorMissing || sector.Datas.Len() != 0 {
		return nil, fmt.Errorf("track %d.%d: sector slot %d already used", track.PhysCyl, track.PhysHead, track.NumSectors)
	}
	sector.LogCyl = id.Cyl
	sector.LogHead = id.Head
	sector.LogSector = id.Sector

	if id.SizeCode == 0xFF {
		return nil, fmt.Errorf("track %d.%d: controller reported size code 0xFF", track.PhysCyl, track.PhysHead)
	}
	if track.SizeCode == -1 {
		track.SizeCode = int(id.SizeCode)
	} else if track.SizeCode != int(id.SizeCode) {
		return nil, fmt.Errorf("mixed sector formats within track: %d != %d", track.SizeCode, id.SizeCode)
	}

	track.NumSectors++
	return sector, nil
}

// probeTrack identifies the data mode and sector layout of a track. A false
// return without error means the track could not be identified; the caller
// may retry.
func (p *prober) probeTrack(track *imd.Track) (bool, error) {
	fmt.Fprintf(p.out, "Probe %2d.%d:", track.PhysCyl, track.PhysHead)

	// We want to start reading sector IDs from the index hole, but there is
	// no way to ask where the hole is -- other than getting the controller
	// to do a failing read, where it gives up when it sees the hole for the
	// second time. So make sure at least one READ-ID fails before the first
	// one that succeeds: the successful one is then aligned to the start of
	// the track. The mode scan below starts with DataModes[0], so probe
	// with a different mode here to guarantee one of the two fails.
	track.Mode = &imd.DataModes[1]
	if _, err := p.trackReadID(track); err != nil {
		return false, err
	}

	// Try all the possible data modes until we can read a sector ID.
	track.NumSectors = 0
	track.SizeCode = -1
	found := false
	for i := range imd.DataModes {
		track.Mode = &imd.DataModes[i]
		sector, err := p.trackReadID(track)
		if err != nil {
			return false, err
		}
		if sector != nil {
			// This succeeded -- so we're at the start of the track.
			found = true
			break
		}
	}
	if !found {
		fmt.Fprintf(p.out, " unknown data mode\n")
		return false, nil
	}

	// Read sector IDs until we've seen the complete sequence several times
	// over. Each logical sector must come around at least minSeen times, so
	// we can be reasonably confident we've caught them all.
	var seenSecs [imd.MaxSectors]int
	const minSeen = 3
	const maxCount = 100
	for count := 0; ; count++ {
		sector, err := p.trackReadID(track)
		if err != nil {
			return false, err
		}
		if sector == nil {
			fmt.Fprintf(p.out, " readid failed\n")
			return false, nil
		}

		seenSecs[sector.LogSector]++

		seenAll := true
		for i := range seenSecs {
			if seenSecs[i] != 0 && seenSecs[i] < minSeen {
				seenAll = false
			}
		}
		if seenAll {
			break
		}

		if count >= maxCount {
			fmt.Fprintf(p.out, " spent too long looking for sector IDs\n")
			return false, nil
		}
	}

	// Find where the first sector repeats; that is the track length.
	endPos := 1
	for !imd.SameAddr(&track.Sectors[0], &track.Sectors[endPos]) {
		endPos++
		if endPos == track.NumSectors {
			fmt.Fprintf(p.out, " couldn't find repeat of first sector\n")
			return false, nil
		}
	}

	// Check that the sequence repeated itself consistently after that.
	// If we're missing sectors, this has a reasonable chance of spotting it.
	for pos := endPos; pos < track.NumSectors; pos++ {
		if !imd.SameAddr(&track.Sectors[pos%endPos], &track.Sectors[pos]) {
			fmt.Fprintf(p.out, " sector sequence did not repeat consistently\n")
			return false, nil
		}
	}

	// Cut the sequence to length.
	track.NumSectors = endPos

	fmt.Fprintf(p.out, " %s %dx%d:", track.Mode.Name, track.NumSectors, imd.SectorBytes(track.SizeCode))
	for i := 0; i < track.NumSectors; i++ {
		fmt.Fprintf(p.out, " %d", track.Sectors[i].LogSector)
	}
	fmt.Fprintf(p.out, "\n")

	track.Status = imd.TrackProbed
	return true, nil
}
