package imd

import (
	"fmt"
	"io"
)

// Range is a half-open [Start, End) interval of cylinder, head or sector
// numbers. An unset override range has both ends at -1.
type Range struct {
	Start int
	End   int
}

// UnsetRange returns a range meaning "no override".
func UnsetRange() Range {
	return Range{Start: -1, End: -1}
}

// Contains reports whether v falls inside the range.
func (r Range) Contains(v int) bool {
	return v >= r.Start && v < r.End
}

// update grows the range to include v.
func (r *Range) update(v int) {
	if v < r.Start {
		r.Start = v
	}
	if v >= r.End {
		r.End = v + 1
	}
}

// applyOverride copies any set ends of o over r.
func (r *Range) applyOverride(o Range) {
	if o.Start != -1 {
		r.Start = o.Start
	}
	if o.End != -1 {
		r.End = o.End
	}
}

// FlattenOptions selects which sectors feed the flat image and what C/H/S
// space the output covers. The In ranges filter the model; the Out ranges
// override the auto-detected output space.
type FlattenOptions struct {
	InCyls     Range
	InHeads    Range
	InSectors  Range
	OutCyls    Range
	OutHeads   Range
	OutSectors Range
	// Permissive allows two input sectors to land on the same output slot;
	// the later one wins.
	Permissive bool
}

// DefaultFlattenOptions covers the whole model with auto-detected output
// ranges.
func DefaultFlattenOptions() FlattenOptions {
	return FlattenOptions{
		InCyls:     Range{0, MaxCyls},
		InHeads:    Range{0, MaxHeads},
		InSectors:  Range{0, MaxSectors},
		OutCyls:    UnsetRange(),
		OutHeads:   UnsetRange(),
		OutSectors: UnsetRange(),
	}
}

// DataPicker chooses which of a bad sector's recorded readings goes into
// the flat image. It is called only when there is more than one;
// defaultID is the position of the highest-count reading. The returned
// position must be a valid index into sector.Datas.
type DataPicker func(sector *Sector, defaultID int) (int, error)

// PickDefault is a DataPicker that always takes the highest-count reading.
func PickDefault(sector *Sector, defaultID int) (int, error) {
	return defaultID, nil
}

type slot struct {
	cyl  int
	head int
	sec  int
}

// Flatten reduces the disk to a linear byte stream on out: every selected
// sector keyed by (physical cylinder, physical head, logical sector), then
// emitted in lexicographic order over the output ranges. Slots with no
// sector are filled with 0xFF bytes. Diagnostics go to warn.
func Flatten(disk *Disk, opts FlattenOptions, pick DataPicker, out, warn io.Writer) error {
	if pick == nil {
		pick = PickDefault
	}

	image := make(map[slot][]byte)

	// The output range starts empty and grows to cover what we load.
	outCyls := Range{MaxCyls, 0}
	outHeads := Range{MaxHeads, 0}
	outSectors := Range{MaxSectors, 0}
	sizeCode := -1

	for physCyl := max(opts.InCyls.Start, 0); physCyl < min(opts.InCyls.End, MaxCyls); physCyl++ {
		for physHead := max(opts.InHeads.Start, 0); physHead < min(opts.InHeads.End, MaxHeads); physHead++ {
			track := &disk.Tracks[physCyl][physHead]

			for physSec := 0; physSec < track.NumSectors; physSec++ {
				sector := &track.Sectors[physSec]

				// Physical cylinder and head, but logical sector.
				cyl := physCyl
				head := physHead
				sec := int(sector.LogSector)

				if !opts.InSectors.Contains(sec) {
					continue
				}

				outCyls.update(cyl)
				outHeads.update(head)
				outSectors.update(sec)

				if sector.Status == SectorMissing {
					continue
				}

				s := slot{cyl, head, sec}
				if _, dup := image[s]; dup && !opts.Permissive {
					return fmt.Errorf("two sectors found for cylinder %d head %d sector %d", cyl, head, sec)
				}

				dataID := 0
				if sector.Datas.Len() != 1 {
					id, err := pick(sector, sector.Datas.BestIndex())
					if err != nil {
						return err
					}
					if id < 0 || id >= sector.Datas.Len() {
						return fmt.Errorf("data id %d out of range for cylinder %d head %d sector %d", id, cyl, head, sec)
					}
					dataID = id
				}
				image[s] = sector.Datas.At(dataID).Data

				if len(image[s]) != SectorBytes(track.SizeCode) {
					return fmt.Errorf("cylinder %d head %d sector %d reading is %d bytes, expected %d",
						cyl, head, sec, len(image[s]), SectorBytes(track.SizeCode))
				}

				if sizeCode == -1 {
					sizeCode = track.SizeCode
				} else if track.SizeCode != sizeCode {
					fmt.Fprintf(warn, "Tracks have inconsistent sector sizes: %d != %d for %d,%d,%d,%d\n",
						track.SizeCode, sizeCode, cyl, head, sec, track.NumSectors)
				}
			}
		}
	}

	outCyls.applyOverride(opts.OutCyls)
	outHeads.applyOverride(opts.OutHeads)
	outSectors.applyOverride(opts.OutSectors)

	if sizeCode == -1 {
		// Nothing selected and nothing to fill with.
		return nil
	}

	dummy := make([]byte, SectorBytes(sizeCode))
	for i := range dummy {
		dummy[i] = 0xFF
	}

	for cyl := outCyls.Start; cyl < outCyls.End; cyl++ {
		for head := outHeads.Start; head < outHeads.End; head++ {
			for sec := outSectors.Start; sec < outSectors.End; sec++ {
				data, ok := image[slot{cyl, head, sec}]
				if !ok {
					data = dummy
				}
				if _, err := out.Write(data); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
