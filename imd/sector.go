package imd

import (
	"bytes"
	"fmt"
	"math"
)

// SectorStatus describes how much of a sector we have recovered.
type SectorStatus int

// Sector statuses, from worst to best.
const (
	SectorMissing SectorStatus = iota
	SectorBad
	SectorGood
)

func (s SectorStatus) String() string {
	switch s {
	case SectorMissing:
		return "missing"
	case SectorBad:
		return "bad"
	case SectorGood:
		return "good"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Reading is one distinct byte pattern recovered from a sector, along with
// the number of times the controller returned exactly those bytes.
type Reading struct {
	Data  []byte
	Count uint32
}

// ReadingSet is an insertion-ordered set of distinct readings. The order
// matters: it is preserved across IMD serialization, and the flattener
// identifies entries by their position when asking the operator to choose.
type ReadingSet struct {
	readings []Reading
}

// Len returns the number of distinct readings.
func (rs *ReadingSet) Len() int {
	return len(rs.readings)
}

// At returns the i'th reading in insertion order.
func (rs *ReadingSet) At(i int) Reading {
	return rs.readings[i]
}

// Reset discards all readings.
func (rs *ReadingSet) Reset() {
	rs.readings = nil
}

func (rs *ReadingSet) find(data []byte) int {
	for i := range rs.readings {
		if bytes.Equal(rs.readings[i].Data, data) {
			return i
		}
	}
	return -1
}

// Record notes one more sighting of data: an existing entry's count is
// incremented (saturating), otherwise the data is inserted with count 1.
// It reports whether the data had not been seen before.
func (rs *ReadingSet) Record(data []byte) bool {
	if i := rs.find(data); i >= 0 {
		if rs.readings[i].Count != math.MaxUint32 {
			rs.readings[i].Count++
		}
		return false
	}
	rs.readings = append(rs.readings, Reading{Data: append([]byte(nil), data...), Count: 1})
	return true
}

// Trump inserts a known-good reading. On an empty set it gets count 1; when
// bad readings are already present it gets the highest possible count so it
// dominates later selection. If the same bytes were already recorded, the
// existing count stands.
func (rs *ReadingSet) Trump(data []byte) {
	if rs.find(data) >= 0 {
		return
	}
	count := uint32(1)
	if len(rs.readings) > 0 {
		count = math.MaxUint32
	}
	rs.readings = append(rs.readings, Reading{Data: append([]byte(nil), data...), Count: count})
}

// Insert adds a reading with an explicit count, as loaded from an image.
// A duplicate is a container error.
func (rs *ReadingSet) Insert(data []byte, count uint32) error {
	if rs.find(data) >= 0 {
		return fmt.Errorf("unexpected duplicate data")
	}
	rs.readings = append(rs.readings, Reading{Data: data, Count: count})
	return nil
}

// BestIndex returns the position of the reading with the highest count.
// The earliest entry wins ties. It returns 0 on an empty set.
func (rs *ReadingSet) BestIndex() int {
	best := 0
	for i := 1; i < len(rs.readings); i++ {
		if rs.readings[i].Count > rs.readings[best].Count {
			best = i
		}
	}
	return best
}

// Sector is one numbered block within a track. The logical IDs are whatever
// the sector header on the medium claims; they need not match the physical
// position.
type Sector struct {
	Status    SectorStatus
	LogCyl    uint8
	LogHead   uint8
	LogSector uint8
	Deleted   bool
	Datas     ReadingSet
}

// Init resets the sector to the missing state.
func (s *Sector) Init() {
	s.Status = SectorMissing
	s.LogCyl = 0xFF
	s.LogHead = 0xFF
	s.LogSector = 0xFF
	s.Deleted = false
	s.Datas.Reset()
}

// Check verifies the sector invariant: readings exist exactly when the
// sector is not missing, a good sector has exactly one reading, and only a
// non-missing sector can carry the deleted mark.
func (s *Sector) Check() error {
	if (s.Datas.Len() == 0) != (s.Status == SectorMissing) {
		return fmt.Errorf("sector %d has %d readings with status %s", s.LogSector, s.Datas.Len(), s.Status)
	}
	if s.Status == SectorGood && s.Datas.Len() != 1 {
		return fmt.Errorf("good sector %d has %d readings", s.LogSector, s.Datas.Len())
	}
	if s.Deleted && s.Status == SectorMissing {
		return fmt.Errorf("missing sector %d carries the deleted mark", s.LogSector)
	}
	return nil
}

// SameAddr reports whether two sectors have the same logical address.
func SameAddr(a, b *Sector) bool {
	return a.LogCyl == b.LogCyl && a.LogHead == b.LogHead && a.LogSector == b.LogSector
}
