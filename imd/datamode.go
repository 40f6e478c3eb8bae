// Package imd holds the in-memory model of an FM/MFM floppy disk and the
// ImageDisk (.IMD) container codec for it, including the local extensions
// for multi-read evidence on bad sectors.
//
// The model follows the .IMD file format as described in the documentation
// for Dave Dunfield's ImageDisk program:
// http://www.classiccmp.org/dunfield/img/index.htm
package imd

// DataMode is one combination of encoding (FM or MFM) and bit rate that the
// controller can be programmed with. IMDMode is the mode byte stored in the
// IMD track header.
type DataMode struct {
	IMDMode byte
	Name    string
	Rate    int // controller rate select, 0 to 3
	IsFM    bool
}

// DataModes lists the recognized modes in the order probing tries them.
// The rates follow the .IMD convention of naming the data transfer rate to
// the drive, so FM-500k carries half the data of MFM-500k owing to the less
// efficient encoding.
var DataModes = []DataMode{
	// 5.25" DD/QD and 3.5" DD drives
	{5, "MFM-250k", 2, false},
	{2, "FM-250k", 2, true},

	// DD media in 5.25" HD drives
	{4, "MFM-300k", 1, false},
	{1, "FM-300k", 1, true},

	// 3.5" HD, 5.25" HD and 8" drives
	{3, "MFM-500k", 0, false},
	{0, "FM-500k", 0, true},

	// 3.5" ED drives. IMD 1.18 defines no mode byte for this; 6 is a local
	// extension. Rate 3 with FM is rejected by the controller, so there is
	// no FM-1000k entry.
	{6, "MFM-1000k", 3, false},
}

// ModeByIMD looks up a data mode by its IMD track header byte.
func ModeByIMD(b byte) *DataMode {
	for i := range DataModes {
		if DataModes[i].IMDMode == b {
			return &DataModes[i]
		}
	}
	return nil
}

// SectorBytes converts a controller sector size code to a size in bytes.
func SectorBytes(code int) int {
	return 128 << code
}
