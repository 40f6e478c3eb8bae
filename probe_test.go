package main

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"dumpfloppy/fdc"
	"dumpfloppy/imd"
)

// fakeTrack simulates one rotating track: the IDs pass the head in order,
// and a failed READ-ID leaves the controller aligned to the index hole
// (it gives up only after seeing the hole twice).
type fakeTrack struct {
	rate     int
	fm       bool
	sizeCode uint8
	ids      []fdc.SectorID // physical order from the index hole
	pos      int
	good     map[uint8][]byte   // payload by logical sector
	badSeq   map[uint8][][]byte // CRC-failing payloads, consumed in order
	badUsed  map[uint8]int
	failAll  bool // unformatted: no ID is ever readable
	// wholeTrackOK lets multi-sector reads succeed; when false they fail
	// like a track with a read problem mid-stream.
	wholeTrackOK bool
}

func (f *fakeTrack) readID(rate int, fm bool) (fdc.SectorID, fdc.Result) {
	if f.failAll || rate != f.rate || fm != f.fm {
		f.pos = 0
		return fdc.SectorID{}, fdc.Result{OK: false, ST0: 0x40}
	}
	id := f.ids[f.pos]
	f.pos = (f.pos + 1) % len(f.ids)
	return id, fdc.Result{OK: true}
}

func (f *fakeTrack) isBad(sec uint8) bool {
	if f.badUsed == nil {
		f.badUsed = make(map[uint8]int)
	}
	return f.badUsed[sec] < len(f.badSeq[sec])
}

func (f *fakeTrack) readData(rate int, fm bool, id fdc.SectorID, buf []byte) fdc.Result {
	if f.failAll || rate != f.rate || fm != f.fm {
		return fdc.Result{OK: false, ST0: 0x40, ST1: 0x04}
	}
	secSize := 128 << id.SizeCode
	numSecs := len(buf) / secSize

	if numSecs > 1 {
		if !f.wholeTrackOK {
			return fdc.Result{OK: false, ST0: 0x40, ST1: fdc.ST1CRC, ST2: fdc.ST2CRC}
		}
		for i := 0; i < numSecs; i++ {
			sec := id.Sector + uint8(i)
			data, ok := f.good[sec]
			if !ok || f.isBad(sec) {
				return fdc.Result{OK: false, ST0: 0x40, ST1: fdc.ST1CRC, ST2: fdc.ST2CRC}
			}
			copy(buf[i*secSize:], data)
		}
		return fdc.Result{OK: true}
	}

	if f.isBad(id.Sector) {
		copy(buf, f.badSeq[id.Sector][f.badUsed[id.Sector]])
		f.badUsed[id.Sector]++
		return fdc.Result{OK: false, ST0: 0x40, ST1: fdc.ST1CRC, ST2: fdc.ST2CRC}
	}
	data, ok := f.good[id.Sector]
	if !ok {
		return fdc.Result{OK: false, ST0: 0x40, ST1: 0x04}
	}
	copy(buf, data)
	return fdc.Result{OK: true}
}

// fakeDrive dispatches to one fakeTrack per head. Every cylinder looks the
// same, which is all the probing tests need.
type fakeDrive struct {
	heads [2]*fakeTrack
}

func (d *fakeDrive) ReadID(seekCyl, physHead, rate int, fm bool) (fdc.SectorID, fdc.Result, error) {
	id, res := d.heads[physHead].readID(rate, fm)
	return id, res, nil
}

func (d *fakeDrive) ReadData(seekCyl, physHead, rate int, fm bool, id fdc.SectorID, buf []byte) (fdc.Result, error) {
	return d.heads[physHead].readData(rate, fm, id, buf), nil
}

// mfmTrack builds a standard MFM-250k track with the given logical IDs at
// size code 2, readable payloads derived from the ID.
func mfmTrack(cyl, head int, secIDs ...uint8) *fakeTrack {
	f := &fakeTrack{
		rate:         2,
		fm:           false,
		sizeCode:     2,
		good:         make(map[uint8][]byte),
		wholeTrackOK: true,
		pos:          3, // nowhere near the index hole until a read fails
	}
	for _, sec := range secIDs {
		f.ids = append(f.ids, fdc.SectorID{
			Cyl:      uint8(cyl),
			Head:     uint8(head),
			Sector:   sec,
			SizeCode: 2,
		})
		f.good[sec] = bytes.Repeat([]byte{sec}, 512)
	}
	f.pos %= len(f.ids)
	return f
}

func newProber(drive *fakeDrive) (*prober, *bytes.Buffer) {
	var out bytes.Buffer
	return &prober{ctl: drive, cylScale: 1, ignoreSector: -1, out: &out}, &out
}

func TestProbeAndReadTrack(t *testing.T) {
	// A PC-style track: MFM, 9x512, IDs 1..9 in physical order.
	drive := &fakeDrive{heads: [2]*fakeTrack{
		mfmTrack(2, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9),
		mfmTrack(2, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9),
	}}
	p, out := newProber(drive)

	var track imd.Track
	track.Init(2, 0)

	ok, err := p.probeTrack(&track)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatalf("probe failed: %s", out.String())
	}

	if track.Status != imd.TrackProbed {
		t.Errorf("status = %v, want probed", track.Status)
	}
	if track.Mode == nil || track.Mode.Name != "MFM-250k" {
		t.Errorf("mode = %v, want MFM-250k", track.Mode)
	}
	if track.NumSectors != 9 || track.SizeCode != 2 {
		t.Fatalf("geometry = %dx(code %d), want 9x(code 2)", track.NumSectors, track.SizeCode)
	}
	for i := 0; i < 9; i++ {
		if track.Sectors[i].LogSector != uint8(i+1) {
			t.Errorf("physical slot %d has ID %d, want %d", i, track.Sectors[i].LogSector, i+1)
		}
	}

	allOK, err := p.readTrack(&track, false)
	if err != nil {
		t.Fatal(err)
	}
	if !allOK {
		t.Fatalf("read failed: %s", out.String())
	}
	for i := 0; i < 9; i++ {
		sector := &track.Sectors[i]
		if sector.Status != imd.SectorGood || sector.Deleted {
			t.Errorf("sector %d: status %v", i+1, sector.Status)
		}
		if sector.Datas.Len() != 1 || sector.Datas.At(0).Count != 1 {
			t.Errorf("sector %d: %d readings", i+1, sector.Datas.Len())
		}
		want := bytes.Repeat([]byte{uint8(i + 1)}, 512)
		if !bytes.Equal(sector.Datas.At(0).Data, want) {
			t.Errorf("sector %d: wrong payload", i+1)
		}
	}
}

func TestProbeInterleavedTrack(t *testing.T) {
	// Physical order with 2:1 interleave; cycle extraction must still find
	// the true track length and keep the physical order.
	physOrder := []uint8{1, 6, 2, 7, 3, 8, 4, 9, 5}
	drive := &fakeDrive{heads: [2]*fakeTrack{
		mfmTrack(2, 0, physOrder...),
		mfmTrack(2, 0, physOrder...),
	}}
	p, _ := newProber(drive)

	var track imd.Track
	track.Init(2, 0)
	ok, err := p.probeTrack(&track)
	if err != nil || !ok {
		t.Fatalf("probe: ok=%v err=%v", ok, err)
	}
	if track.NumSectors != len(physOrder) {
		t.Fatalf("length = %d, want %d", track.NumSectors, len(physOrder))
	}
	for i, want := range physOrder {
		if track.Sectors[i].LogSector != want {
			t.Errorf("slot %d = %d, want %d", i, track.Sectors[i].LogSector, want)
		}
	}
}

func TestProbeUnknownMode(t *testing.T) {
	drive := &fakeDrive{heads: [2]*fakeTrack{
		{failAll: true},
		{failAll: true},
	}}
	p, out := newProber(drive)

	var track imd.Track
	track.Init(2, 0)
	ok, err := p.probeTrack(&track)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatalf("probe of unformatted track should fail")
	}
	if !strings.Contains(out.String(), "unknown data mode") {
		t.Errorf("output = %q", out.String())
	}
	if track.Status != imd.TrackUnknown {
		t.Errorf("status = %v, want unknown", track.Status)
	}
}

func TestProbeIgnoreSector(t *testing.T) {
	drive := &fakeDrive{heads: [2]*fakeTrack{
		mfmTrack(2, 0, 1, 2, 3, 66, 4),
		mfmTrack(2, 0, 1, 2, 3, 66, 4),
	}}
	p, _ := newProber(drive)
	p.ignoreSector = 66

	var track imd.Track
	track.Init(2, 0)
	ok, err := p.probeTrack(&track)
	if err != nil || !ok {
		t.Fatalf("probe: ok=%v err=%v", ok, err)
	}
	if track.NumSectors != 4 {
		t.Fatalf("length = %d, want 4", track.NumSectors)
	}
	for i := 0; i < track.NumSectors; i++ {
		if track.Sectors[i].LogSector == 66 {
			t.Errorf("ignored sector appears in the layout")
		}
	}
}

func TestReadTrackBadSectorEvidence(t *testing.T) {
	f := mfmTrack(2, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9)
	a := bytes.Repeat([]byte{0xAA}, 512)
	b := bytes.Repeat([]byte{0xBB}, 512)
	f.badSeq = map[uint8][][]byte{4: {a, b, a}}
	f.wholeTrackOK = false
	drive := &fakeDrive{heads: [2]*fakeTrack{f, f}}
	p, _ := newProber(drive)

	var track imd.Track
	track.Init(2, 0)
	if ok, err := p.probeTrack(&track); err != nil || !ok {
		t.Fatalf("probe: ok=%v err=%v", ok, err)
	}

	sector := &track.Sectors[3]

	// First pass: sector 4 comes back with a CRC error and payload A.
	if allOK, err := p.readTrack(&track, false); err != nil || allOK {
		t.Fatalf("first read: allOK=%v err=%v", allOK, err)
	}
	if sector.Status != imd.SectorBad || sector.Datas.Len() != 1 {
		t.Fatalf("after first read: %v, %d readings", sector.Status, sector.Datas.Len())
	}
	if sector.Datas.At(0).Count != 1 {
		t.Errorf("A count = %d, want 1", sector.Datas.At(0).Count)
	}

	// Second pass: payload B, still failing.
	if allOK, _ := p.readTrack(&track, true); allOK {
		t.Fatalf("second read should still fail")
	}
	if sector.Datas.Len() != 2 || sector.Datas.At(1).Count != 1 {
		t.Fatalf("after second read: %d readings", sector.Datas.Len())
	}

	// Third pass: A again; its count rises.
	if allOK, _ := p.readTrack(&track, true); allOK {
		t.Fatalf("third read should still fail")
	}
	if sector.Datas.Len() != 2 || sector.Datas.At(0).Count != 2 || sector.Datas.At(1).Count != 1 {
		t.Fatalf("after third read: counts %d/%d", sector.Datas.At(0).Count, sector.Datas.At(1).Count)
	}

	// Fourth pass: the read finally succeeds; the good data trumps the bad
	// evidence but the evidence is preserved.
	allOK, err := p.readTrack(&track, true)
	if err != nil || !allOK {
		t.Fatalf("fourth read: allOK=%v err=%v", allOK, err)
	}
	if sector.Status != imd.SectorGood {
		t.Fatalf("status = %v, want good", sector.Status)
	}
	if sector.Datas.Len() != 3 {
		t.Fatalf("readings = %d, want 3", sector.Datas.Len())
	}
	if sector.Datas.At(2).Count != math.MaxUint32 {
		t.Errorf("good read count = %d, want MaxUint32", sector.Datas.At(2).Count)
	}
	if !bytes.Equal(sector.Datas.At(2).Data, bytes.Repeat([]byte{4}, 512)) {
		t.Errorf("good read has the wrong payload")
	}
}

func TestReadTrackNonContiguousIDs(t *testing.T) {
	// Odd-only numbering: the whole-track fast path must be skipped, but
	// per-sector reads still recover everything.
	f := mfmTrack(2, 0, 1, 3, 5, 7)
	f.wholeTrackOK = false
	drive := &fakeDrive{heads: [2]*fakeTrack{f, f}}
	p, _ := newProber(drive)

	var track imd.Track
	track.Init(2, 0)
	if ok, err := p.probeTrack(&track); err != nil || !ok {
		t.Fatalf("probe: ok=%v err=%v", ok, err)
	}
	allOK, err := p.readTrack(&track, false)
	if err != nil || !allOK {
		t.Fatalf("read: allOK=%v err=%v", allOK, err)
	}
	for i := 0; i < track.NumSectors; i++ {
		if track.Sectors[i].Status != imd.SectorGood {
			t.Errorf("sector slot %d not good", i)
		}
	}
}

func TestGuessedLayoutReprobe(t *testing.T) {
	// The drive actually has IDs 11..14; the guessed layout says 1..4.
	f := mfmTrack(3, 0, 11, 12, 13, 14)
	f.wholeTrackOK = false
	drive := &fakeDrive{heads: [2]*fakeTrack{f, f}}
	p, _ := newProber(drive)

	var prev imd.Track
	prev.Init(2, 0)
	prev.Status = imd.TrackProbed
	prev.Mode = &imd.DataModes[0]
	prev.NumSectors = 4
	prev.SizeCode = 2
	for i := 0; i < 4; i++ {
		prev.Sectors[i].LogCyl = 2
		prev.Sectors[i].LogHead = 0
		prev.Sectors[i].LogSector = uint8(i + 1)
	}

	var track imd.Track
	track.Init(3, 0)
	track.CopyLayoutFrom(&prev)
	if track.Status != imd.TrackGuessed {
		t.Fatalf("layout copy did not mark the track guessed")
	}

	// This is the driver's retry loop: a failed read of a guessed track
	// resets it so the next try reprobes.
	var allOK bool
	for try := 0; try < 3; try++ {
		var err error
		allOK, err = p.readTrack(&track, false)
		if err != nil {
			t.Fatal(err)
		}
		if allOK {
			break
		}
		if track.Status == imd.TrackGuessed {
			track.Init(3, 0)
		}
	}

	if !allOK {
		t.Fatalf("track never recovered after reprobe")
	}
	if track.Status != imd.TrackProbed || track.NumSectors != 4 {
		t.Fatalf("status %v, %d sectors", track.Status, track.NumSectors)
	}
	if track.Sectors[0].LogSector != 11 {
		t.Errorf("reprobe kept the wrong layout")
	}
}

func TestProbeDiskGeometry(t *testing.T) {
	t.Run("double-sided", func(t *testing.T) {
		drive := &fakeDrive{heads: [2]*fakeTrack{
			mfmTrack(2, 0, 1, 2, 3),
			mfmTrack(2, 1, 1, 2, 3),
		}}
		p, out := newProber(drive)
		disk := imd.NewDisk()
		disk.NumCyls = 80
		disk.NumHeads = 2

		if err := p.probeDisk(disk); err != nil {
			t.Fatal(err)
		}
		if disk.NumHeads != 2 || p.cylScale != 1 {
			t.Errorf("heads=%d scale=%d", disk.NumHeads, p.cylScale)
		}
		if !strings.Contains(out.String(), "Double-sided disk\n") {
			t.Errorf("output = %q", out.String())
		}
	})

	t.Run("single-sided", func(t *testing.T) {
		drive := &fakeDrive{heads: [2]*fakeTrack{
			mfmTrack(2, 0, 1, 2, 3),
			{failAll: true},
		}}
		p, out := newProber(drive)
		disk := imd.NewDisk()
		disk.NumCyls = 80
		disk.NumHeads = 2

		if err := p.probeDisk(disk); err != nil {
			t.Fatal(err)
		}
		if disk.NumHeads != 1 {
			t.Errorf("heads = %d, want 1", disk.NumHeads)
		}
		if !strings.Contains(out.String(), "Single-sided disk") {
			t.Errorf("output = %q", out.String())
		}
	})

	t.Run("separate sides", func(t *testing.T) {
		drive := &fakeDrive{heads: [2]*fakeTrack{
			mfmTrack(2, 0, 1, 2, 3),
			mfmTrack(2, 0, 1, 2, 3), // side 1 also numbered head 0
		}}
		p, out := newProber(drive)
		disk := imd.NewDisk()
		disk.NumCyls = 80
		disk.NumHeads = 2

		if err := p.probeDisk(disk); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(out.String(), "separate sides") {
			t.Errorf("output = %q", out.String())
		}
	})

	t.Run("doublestep", func(t *testing.T) {
		// A 40-track disk in an 80-track drive: at physical cylinder 2 the
		// sector headers claim cylinder 1.
		f0 := mfmTrack(1, 0, 1, 2, 3)
		f1 := mfmTrack(1, 1, 1, 2, 3)
		drive := &fakeDrive{heads: [2]*fakeTrack{f0, f1}}
		p, out := newProber(drive)
		disk := imd.NewDisk()
		disk.NumCyls = 80
		disk.NumHeads = 2

		if err := p.probeDisk(disk); err != nil {
			t.Fatal(err)
		}
		if p.cylScale != 2 {
			t.Errorf("cylScale = %d, want 2", p.cylScale)
		}
		if !strings.Contains(out.String(), "Doublestepping required") {
			t.Errorf("output = %q", out.String())
		}
	})

	t.Run("80 tracks in a 40-track drive", func(t *testing.T) {
		drive := &fakeDrive{heads: [2]*fakeTrack{
			mfmTrack(4, 0, 1, 2, 3),
			mfmTrack(4, 1, 1, 2, 3),
		}}
		p, _ := newProber(drive)
		disk := imd.NewDisk()
		disk.NumCyls = 40
		disk.NumHeads = 2

		err := p.probeDisk(disk)
		if err == nil || !strings.Contains(err.Error(), "80T disk in 40T drive") {
			t.Errorf("got %v", err)
		}
	})

	t.Run("unreadable", func(t *testing.T) {
		drive := &fakeDrive{heads: [2]*fakeTrack{
			{failAll: true},
			{failAll: true},
		}}
		p, _ := newProber(drive)
		disk := imd.NewDisk()
		disk.NumCyls = 80
		disk.NumHeads = 2

		err := p.probeDisk(disk)
		if err == nil || !strings.Contains(err.Error(), "unreadable on either side") {
			t.Errorf("got %v", err)
		}
	})
}

func TestReadTrackSkipsCompleteTrackOnRetry(t *testing.T) {
	drive := &fakeDrive{heads: [2]*fakeTrack{
		mfmTrack(2, 0, 1, 2, 3),
		mfmTrack(2, 0, 1, 2, 3),
	}}
	p, out := newProber(drive)

	var track imd.Track
	track.Init(2, 0)
	if ok, err := p.probeTrack(&track); err != nil || !ok {
		t.Fatalf("probe: ok=%v err=%v", ok, err)
	}
	if allOK, err := p.readTrack(&track, false); err != nil || !allOK {
		t.Fatalf("read: allOK=%v err=%v", allOK, err)
	}

	out.Reset()
	allOK, err := p.readTrack(&track, true)
	if err != nil || !allOK {
		t.Fatalf("retry read: allOK=%v err=%v", allOK, err)
	}
	if out.Len() != 0 {
		t.Errorf("retry of a complete track printed %q", out.String())
	}
}

var _ controller = (*fakeDrive)(nil)
var _ controller = (*fdc.Device)(nil)
