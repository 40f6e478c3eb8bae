// Package fdc submits raw commands to a PC floppy disk controller through
// the kernel's raw-command facility. Only Linux exposes one (the fdrawcmd
// ioctl on /dev/fdN); other platforms get a stub that fails at open.
package fdc

import "fmt"

// uPD765 status register bits we interpret.
const (
	// ST1: CRC error in the ID or data field.
	ST1CRC = 0x20

	// ST2 bits.
	ST2CM  = 0x40 // control mark: a deleted sector was read
	ST2CRC = 0x20 // CRC error in the data field
	ST2WC  = 0x10 // wrong cylinder
	ST2SEH = 0x08 // scan equal hit
	ST2SNS = 0x04 // scan not satisfied
	ST2BC  = 0x02 // bad cylinder
	ST2MAM = 0x01 // missing address mark in data field
)

// READ DATA intersector gap. The M1543C datasheet has a table of these per
// format; the fdutils manual says the value makes no difference for reads.
const intersectorGap = 0x1B

// SectorID is the address field of one sector as reported by READ ID.
type SectorID struct {
	Cyl      uint8
	Head     uint8
	Sector   uint8
	SizeCode uint8
}

// Result carries the controller status registers from one command. OK is
// set when the ST0 interrupt code reports normal termination (and, for
// multi-sector reads, no deleted-data mark stopped the transfer).
type Result struct {
	OK  bool
	ST0 uint8
	ST1 uint8
	ST2 uint8
}

// Params are the BIOS-style drive parameters. They are not necessarily
// accurate (there is no BIOS type for an 80-track 5.25" DD drive), so
// callers only use them for defaults.
type Params struct {
	Tracks int
}

// DevicePath returns the device node for a drive number.
func DevicePath(drive int) string {
	return fmt.Sprintf("/dev/fd%d", drive)
}

// selector encodes the head and drive for a command's drive-select byte.
func selector(head, drive int) uint8 {
	return uint8(head<<2 | drive)
}
