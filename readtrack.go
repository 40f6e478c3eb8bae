package main

import (
	"fmt"

	"dumpfloppy/fdc"
	"dumpfloppy/imd"
)

// sectorID builds the READ-DATA address for a sector of a track.
func sectorID(track *imd.Track, sector *imd.Sector) fdc.SectorID {
	return fdc.SectorID{
		Cyl:      sector.LogCyl,
		Head:     sector.LogHead,
		Sector:   sector.LogSector,
		SizeCode: uint8(track.SizeCode),
	}
}

// readTrack tries to read any sectors in a track that haven't already been
// read, probing first if the layout is unknown. It reports whether every
// sector in the track is now good.
func (p *prober) readTrack(track *imd.Track, retrying bool) (bool, error) {
	if track.Status == imd.TrackUnknown {
		ok, err := p.probeTrack(track)
		if err != nil || !ok {
			return false, err
		}
	}

	if retrying {
		haveEverything := true
		for i := 0; i < track.NumSectors; i++ {
			if track.Sectors[i].Status != imd.SectorGood {
				haveEverything = false
				break
			}
		}
		if haveEverything {
			// Nothing else to do for this track; don't even print the
			// "Read" line.
			return true, nil
		}
	}

	fmt.Fprintf(p.out, "Read  %2d.%d:", track.PhysCyl, track.PhysHead)

	var lowest *imd.Sector
	contiguous := false
	if !retrying {
		var err error
		lowest, contiguous, err = track.ScanSectors()
		if err != nil {
			return false, err
		}
	}

	sectorSize := imd.SectorBytes(track.SizeCode)
	trackData := make([]byte, sectorSize*track.NumSectors)
	readWholeTrack := false

	if contiguous && !retrying && lowest != nil {
		// Try reading the whole track to start with. If this works, it's a
		// lot faster than reading sector by sector. The resulting data is
		// ordered by logical ID.
		res, err := p.ctl.ReadData(p.seekCyl(track), track.PhysHead, track.Mode.Rate, track.Mode.IsFM,
			sectorID(track, lowest), trackData)
		if err != nil {
			return false, err
		}
		if res.OK {
			readWholeTrack = true
		}
	}

	// Get sectors in physical order.
	allOK := true
	for i := 0; i < track.NumSectors; i++ {
		sector := &track.Sectors[i]

		if sector.Status == imd.SectorGood {
			// Already got this one.
			fmt.Fprintf(p.out, "    ")
			continue
		}

		fmt.Fprintf(p.out, "%3d", sector.LogSector)

		if readWholeTrack {
			// We read this sector as part of the whole track. Success!
			relSec := int(sector.LogSector) - int(lowest.LogSector)

			sector.Status = imd.SectorGood
			// If this was previously part of a bad read, the whole-track
			// success starts it over with this one good reading.
			sector.Datas.Reset()
			sector.Datas.Record(trackData[sectorSize*relSec : sectorSize*(relSec+1)])
			sector.Deleted = false

			fmt.Fprintf(p.out, "*")
			continue
		}

		// Read a single sector.
		buf := make([]byte, sectorSize)
		res, err := p.ctl.ReadData(p.seekCyl(track), track.PhysHead, track.Mode.Rate, track.Mode.IsFM,
			sectorID(track, sector), buf)
		if err != nil {
			return false, err
		}

		haveData := true
		badDataNewRead := true
		if !res.OK {
			allOK = false
			if res.ST1 == fdc.ST1CRC && res.ST2 == fdc.ST2CRC {
				// A clean CRC error in the data field: the bytes are better
				// than nothing, so keep them as evidence and try again
				// later.
				sector.Status = imd.SectorBad
				badDataNewRead = sector.Datas.Record(buf)
			} else {
				haveData = false
			}
		} else {
			// Success! A good read trumps any bad evidence gathered so far.
			sector.Status = imd.SectorGood
			sector.Datas.Trump(buf)
		}

		if haveData {
			// ST2 control mark means a deleted sector was read.
			sector.Deleted = res.ST2&fdc.ST2CM != 0

			switch {
			case sector.Status == imd.SectorBad:
				if badDataNewRead {
					fmt.Fprintf(p.out, "?")
				} else {
					fmt.Fprintf(p.out, "@")
				}
			case sector.Deleted:
				fmt.Fprintf(p.out, "x")
			default:
				fmt.Fprintf(p.out, "+")
			}
		} else {
			fmt.Fprintf(p.out, "-")
		}
	}

	fmt.Fprintf(p.out, "\n")
	return allOK, nil
}
