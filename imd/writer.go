package imd

import (
	"encoding/binary"
	"fmt"
	"io"
)

// WriteHeader writes the image comment and its terminator. During
// acquisition this goes out before any track so that an aborted run still
// leaves a loadable prefix.
func WriteHeader(w io.Writer, disk *Disk) error {
	if len(disk.Comment) > 0 {
		if _, err := w.Write(disk.Comment); err != nil {
			return err
		}
	}
	_, err := w.Write([]byte{endOfComment})
	return err
}

// WriteTrack writes one track record: the 5-byte header, the sector ID map,
// the optional logical cylinder and head maps, and one chain of Sector Data
// Records per sector.
func WriteTrack(w io.Writer, track *Track) error {
	if track.Mode == nil {
		return fmt.Errorf("track %d.%d has no data mode", track.PhysCyl, track.PhysHead)
	}
	if track.NumSectors > 255 {
		return fmt.Errorf("track %d.%d has %d sectors; the container stores at most 255", track.PhysCyl, track.PhysHead, track.NumSectors)
	}
	flags := 0

	secMap := make([]byte, track.NumSectors)
	cylMap := make([]byte, track.NumSectors)
	headMap := make([]byte, track.NumSectors)
	for i := 0; i < track.NumSectors; i++ {
		sector := &track.Sectors[i]

		secMap[i] = sector.LogSector
		cylMap[i] = sector.LogCyl
		headMap[i] = sector.LogHead

		if cylMap[i] != byte(track.PhysCyl) {
			flags |= needCylMap
		}
		if headMap[i] != byte(track.PhysHead) {
			flags |= needHeadMap
		}
	}

	sizeCode := byte(track.SizeCode)
	if track.SizeCode < 0 {
		// An unprobed track is recorded with no sectors and the
		// variable-size marker, as ImageDisk does.
		sizeCode = 0xFF
	}
	header := []byte{
		track.Mode.IMDMode,
		byte(track.PhysCyl),
		byte(flags | track.PhysHead),
		byte(track.NumSectors),
		sizeCode,
	}
	if _, err := w.Write(header); err != nil {
		return err
	}

	if _, err := w.Write(secMap); err != nil {
		return err
	}
	if flags&needCylMap != 0 {
		if _, err := w.Write(cylMap); err != nil {
			return err
		}
	}
	if flags&needHeadMap != 0 {
		if _, err := w.Write(headMap); err != nil {
			return err
		}
	}

	for i := 0; i < track.NumSectors; i++ {
		if err := writeSectorData(w, track, &track.Sectors[i]); err != nil {
			return err
		}
	}
	return nil
}

// writeSectorData emits the SDR chain for one sector: one record per
// distinct reading, in insertion order. The error and deleted flags go on
// the first record only; every record but the last carries the
// another-data-follows flag.
func writeSectorData(w io.Writer, track *Track, sector *Sector) error {
	if (sector.Datas.Len() == 0) != (sector.Status == SectorMissing) {
		return fmt.Errorf("sector %d readings do not match status %s", sector.LogSector, sector.Status)
	}

	if sector.Datas.Len() == 0 {
		_, err := w.Write([]byte{0})
		return err
	}

	t := sdrData
	if sector.Status == SectorBad {
		t += sdrIsError
	}
	if sector.Deleted {
		t += sdrIsDeleted
	}

	for i := 0; i < sector.Datas.Len(); i++ {
		reading := sector.Datas.At(i)
		if len(reading.Data) != SectorBytes(track.SizeCode) {
			return fmt.Errorf("sector %d reading is %d bytes, track sector size is %d",
				sector.LogSector, len(reading.Data), SectorBytes(track.SizeCode))
		}

		if reading.Count > 1 {
			t += sdrHasDataCount
		}
		if i != sector.Datas.Len()-1 {
			t += sdrAnotherFollows
		}

		// If every byte of this reading is identical, store it once with
		// the compressed flag.
		fill := reading.Data[0]
		compressed := true
		for _, b := range reading.Data {
			if b != fill {
				compressed = false
				break
			}
		}
		if compressed {
			t += sdrIsCompressed
		}

		if _, err := w.Write([]byte{byte(t)}); err != nil {
			return err
		}
		if reading.Count > 1 {
			var buf [4]byte
			binary.BigEndian.PutUint32(buf[:], reading.Count)
			if _, err := w.Write(buf[:]); err != nil {
				return err
			}
		}
		if compressed {
			if _, err := w.Write([]byte{fill}); err != nil {
				return err
			}
		} else {
			if _, err := w.Write(reading.Data); err != nil {
				return err
			}
		}

		// Only the first record carries the error and deleted flags.
		t = sdrData
	}
	return nil
}
