package imd

import "fmt"

// MaxSectors is the most sector IDs a track can carry, a hard bound of the
// IMD container (the count is a single byte, and 256 IDs mean the prober
// has failed to find the track cycle anyway).
const MaxSectors = 256

// TrackStatus describes how we learned a track's layout.
type TrackStatus int

// Track statuses.
const (
	// TrackUnknown means the layout has not been determined.
	TrackUnknown TrackStatus = iota
	// TrackGuessed means the layout was inherited from a neighbouring
	// cylinder without direct evidence.
	TrackGuessed
	// TrackProbed means the layout was read from the medium itself.
	TrackProbed
)

// Track is one ring of medium under one head. Sectors is indexed by
// physical position: the order the sector IDs pass the head, starting at
// the index hole.
type Track struct {
	Status     TrackStatus
	Mode       *DataMode
	PhysCyl    int
	PhysHead   int
	NumSectors int
	// SizeCode is the controller size code shared by every sector in the
	// track; -1 until known. Sector bytes = 128 << SizeCode.
	SizeCode int
	Sectors   [MaxSectors]Sector
}

// Init resets the track to unknown with the given physical position.
func (t *Track) Init(physCyl, physHead int) {
	t.Status = TrackUnknown
	t.Mode = nil
	t.PhysCyl = physCyl
	t.PhysHead = physHead
	t.NumSectors = 0
	t.SizeCode = -1
	for i := range t.Sectors {
		t.Sectors[i].Init()
	}
}

// CopyLayoutFrom duplicates src's mode, sector count, size and sector IDs
// into t, adjusting the logical cylinder by the physical distance between
// the two tracks. t is marked guessed. An unknown src leaves t untouched.
func (t *Track) CopyLayoutFrom(src *Track) {
	if src.Status == TrackUnknown {
		return
	}

	t.Status = TrackGuessed
	t.Mode = src.Mode
	t.NumSectors = src.NumSectors
	t.SizeCode = src.SizeCode

	cylDiff := t.PhysCyl - src.PhysCyl
	for i := 0; i < src.NumSectors; i++ {
		t.Sectors[i].LogCyl = uint8(int(src.Sectors[i].LogCyl) + cylDiff)
		t.Sectors[i].LogHead = src.Sectors[i].LogHead
		t.Sectors[i].LogSector = src.Sectors[i].LogSector
	}
}

// ScanSectors finds the sector with the lowest logical ID and reports
// whether the track's logical IDs form a contiguous run. A duplicated
// logical ID within one track is a model violation.
func (t *Track) ScanSectors() (lowest *Sector, contiguous bool, err error) {
	var seen [MaxSectors]bool

	lowestID := MaxSectors
	highestID := 0
	for i := 0; i < t.NumSectors; i++ {
		sector := &t.Sectors[i]
		id := int(sector.LogSector)
		if seen[id] {
			return nil, false, fmt.Errorf("track %d.%d contains logical sector %d twice", t.PhysCyl, t.PhysHead, id)
		}
		seen[id] = true

		if id < lowestID {
			lowestID = id
			lowest = sector
		}
		if id > highestID {
			highestID = id
		}
	}

	for i := lowestID; i < highestID; i++ {
		if !seen[i] {
			return lowest, false, nil
		}
	}
	return lowest, true, nil
}

// Check verifies the track invariant: a probed track has a known mode and
// size code, and each in-range sector satisfies its own invariant.
func (t *Track) Check() error {
	if t.NumSectors > MaxSectors {
		return fmt.Errorf("track %d.%d has %d sectors", t.PhysCyl, t.PhysHead, t.NumSectors)
	}
	if t.Status == TrackProbed && t.NumSectors > 0 {
		if t.Mode == nil {
			return fmt.Errorf("probed track %d.%d has no data mode", t.PhysCyl, t.PhysHead)
		}
		if t.SizeCode < 0 {
			return fmt.Errorf("probed track %d.%d has no sector size", t.PhysCyl, t.PhysHead)
		}
	}
	for i := 0; i < t.NumSectors; i++ {
		if err := t.Sectors[i].Check(); err != nil {
			return fmt.Errorf("track %d.%d: %w", t.PhysCyl, t.PhysHead, err)
		}
	}
	return nil
}
