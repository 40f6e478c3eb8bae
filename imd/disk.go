package imd

import (
	"fmt"
	"time"
)

// Hard bounds of the IMD container and PC controller addressing.
const (
	MaxCyls  = 256
	MaxHeads = 2
)

// Disk is a whole medium: up to MaxCyls cylinders of up to MaxHeads tracks,
// indexed by physical cylinder and head, plus the image comment.
type Disk struct {
	Comment  []byte
	NumCyls  int
	NumHeads int
	Tracks   [MaxCyls][MaxHeads]Track
}

// NewDisk returns an empty disk with every track initialized to unknown.
func NewDisk() *Disk {
	d := &Disk{}
	for cyl := 0; cyl < MaxCyls; cyl++ {
		for head := 0; head < MaxHeads; head++ {
			d.Tracks[cyl][head].Init(cyl, head)
		}
	}
	return d
}

// MakeComment stamps the disk with an ImageDisk-style timestamp comment.
func (d *Disk) MakeComment(program, version string, now time.Time) {
	d.Comment = []byte(fmt.Sprintf(
		"%s %s: %02d/%02d/%04d %02d:%02d:%02d\r\n",
		program, version,
		now.Day(), int(now.Month()), now.Year(),
		now.Hour(), now.Minute(), now.Second()))
}

// Check verifies the disk invariant: every track sits at the position its
// indices claim, and satisfies its own invariant.
func (d *Disk) Check() error {
	if d.NumCyls > MaxCyls {
		return fmt.Errorf("disk has %d cylinders", d.NumCyls)
	}
	if d.NumHeads > MaxHeads {
		return fmt.Errorf("disk has %d heads", d.NumHeads)
	}
	for cyl := 0; cyl < d.NumCyls; cyl++ {
		for head := 0; head < d.NumHeads; head++ {
			track := &d.Tracks[cyl][head]
			if track.PhysCyl != cyl || track.PhysHead != head {
				return fmt.Errorf("track at %d.%d claims to be %d.%d", cyl, head, track.PhysCyl, track.PhysHead)
			}
			if err := track.Check(); err != nil {
				return err
			}
		}
	}
	return nil
}
