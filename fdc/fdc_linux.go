//go:build linux

package fdc

import (
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl requests from <linux/fd.h>.
const (
	fdRawCmd      = 0x0258 // FDRAWCMD
	fdReset       = 0x0254 // FDRESET
	fdResetAlways = 2      // FD_RESET_ALWAYS
)

// floppy_raw_cmd flags from <linux/fd.h>.
const (
	rawRead     = 0x01 // FD_RAW_READ
	rawIntr     = 0x08 // FD_RAW_INTR
	rawNeedSeek = 0x80 // FD_RAW_NEED_SEEK
)

// rawCommand mirrors struct floppy_raw_cmd on 64-bit Linux.
type rawCommand struct {
	Flags        uint32
	_            [4]byte
	Data         uintptr
	KernelData   uintptr
	Next         uintptr
	Length       int64
	PhysLength   int64
	BufferLength int32
	Rate         uint8
	CmdCount     uint8
	Cmd          [16]uint8
	ReplyCount   uint8
	Reply        [16]uint8
	_            [1]byte
	Track        int32
	ResultCode   int32
	Reserved1    int32
	Reserved2    int32
}

// driveParams mirrors struct floppy_drive_params on 64-bit Linux. Only
// Tracks is interpreted.
type driveParams struct {
	Cmos           int8
	_              [7]byte
	MaxDtr         uint64
	Hlt            uint64
	Hut            uint64
	Srt            uint64
	Spinup         uint64
	Spindown       uint64
	SpindownOffset uint8
	SelectDelay    uint8
	Rps            uint8
	Tracks         uint8
	_              [4]byte
	Timeout        uint64
	InterleaveSect uint8
	_              [3]byte
	MaxErrors      [5]uint32
	Flags          int8
	ReadTrack      int8
	Autodetect     [8]int16
	_              [2]byte
	Checkfreq      int32
	NativeFormat   int32
}

// _IOR(2, 0x11, struct floppy_drive_params)
var fdGetDrvPrmReq = uintptr(2<<30 | unsafe.Sizeof(driveParams{})<<16 | 2<<8 | 0x11)

// Device is an open raw handle on one floppy drive.
type Device struct {
	fd    int
	drive int
}

// Open opens the raw device node for a drive. The descriptor is opened
// with no access mode, which is what the raw-command facility wants for
// ioctl-only use.
func Open(drive int) (*Device, error) {
	fd, err := unix.Open(DevicePath(drive), unix.O_ACCMODE|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", DevicePath(drive), err)
	}
	return &Device{fd: fd, drive: drive}, nil
}

// Close releases the device.
func (d *Device) Close() error {
	return unix.Close(d.fd)
}

func (d *Device) ioctl(req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// Reset resets the controller unconditionally.
func (d *Device) Reset() error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), fdReset, fdResetAlways)
	if errno != 0 {
		return fmt.Errorf("cannot reset controller: %w", errno)
	}
	return nil
}

// Params reads the BIOS drive parameters.
func (d *Device) Params() (Params, error) {
	var prm driveParams
	if err := d.ioctl(fdGetDrvPrmReq, unsafe.Pointer(&prm)); err != nil {
		return Params{}, fmt.Errorf("cannot get drive parameters: %w", err)
	}
	return Params{Tracks: int(prm.Tracks)}, nil
}

// submit runs one raw command and checks the reply length.
func (d *Device) submit(cmd *rawCommand, wantReply int, what string) error {
	if err := d.ioctl(fdRawCmd, unsafe.Pointer(cmd)); err != nil {
		return fmt.Errorf("%s failed: %w", what, err)
	}
	if int(cmd.ReplyCount) < wantReply {
		return fmt.Errorf("%s returned short reply", what)
	}
	return nil
}

// applyMode sets the command's data rate and MFM bit. Bit 0x40 of the
// command byte selects MFM; clearing it selects FM.
func applyMode(cmd *rawCommand, rate int, fm bool) {
	cmd.Rate = uint8(rate)
	if fm {
		cmd.Cmd[0] &^= 0x40
	} else {
		cmd.Cmd[0] |= 0x40
	}
}

// Recalibrate seeks the head back to cylinder 0. The controller gives up
// after 80 step pulses, so callers dealing with drives stepped past track
// 80 invoke this twice.
func (d *Device) Recalibrate() error {
	var cmd rawCommand

	// 0x07 is RECALIBRATE.
	cmd.Cmd[0] = 0x07
	cmd.Cmd[1] = selector(0, d.drive)
	cmd.CmdCount = 2
	cmd.Flags = rawIntr

	return d.submit(&cmd, 0, "FD_RECALIBRATE")
}

// ReadID waits for the next sector ID to pass the head and returns it.
// The controller gives up after two index holes; that case comes back with
// Result.OK false and a zero SectorID. seekCyl is the cylinder to step to
// (already scaled for doublestepping).
func (d *Device) ReadID(seekCyl, physHead, rate int, fm bool) (SectorID, Result, error) {
	var cmd rawCommand

	// 0x0A is READ ID.
	cmd.Cmd[0] = 0x0A
	cmd.Cmd[1] = selector(physHead, d.drive)
	cmd.CmdCount = 2
	cmd.Flags = rawIntr | rawNeedSeek
	cmd.Track = int32(seekCyl)
	applyMode(&cmd, rate, fm)

	if err := d.submit(&cmd, 7, "FD_READID"); err != nil {
		return SectorID{}, Result{}, err
	}

	res := result(&cmd)
	if !res.OK {
		return SectorID{}, res, nil
	}
	id := SectorID{
		Cyl:      cmd.Reply[3],
		Head:     cmd.Reply[4],
		Sector:   cmd.Reply[5],
		SizeCode: cmd.Reply[6],
	}
	return id, res, nil
}

// ReadData reads one or more sectors with consecutive logical IDs,
// starting from id, into buf. A multi-sector read that hits a
// deleted-data mark stops there and is reported as failed.
func (d *Device) ReadData(seekCyl, physHead, rate int, fm bool, id SectorID, buf []byte) (Result, error) {
	var cmd rawCommand

	// 0x06 is READ DATA.
	// (0x80 would be MT - span multiple tracks; 0x20 would be SK - skip
	// deleted data.)
	cmd.Cmd[0] = 0x06
	cmd.Cmd[1] = selector(physHead, d.drive)
	cmd.Cmd[2] = id.Cyl
	cmd.Cmd[3] = id.Head
	cmd.Cmd[4] = id.Sector
	cmd.Cmd[5] = id.SizeCode
	// End of track sector number.
	cmd.Cmd[6] = 0xFF
	cmd.Cmd[7] = intersectorGap
	// Bytes in sector -- meaningful only when the size code is 0.
	if id.SizeCode == 0 {
		cmd.Cmd[8] = 128
	} else {
		cmd.Cmd[8] = 0xFF
	}
	cmd.CmdCount = 9
	cmd.Flags = rawRead | rawIntr | rawNeedSeek
	cmd.Track = int32(seekCyl)
	cmd.Data = uintptr(unsafe.Pointer(&buf[0]))
	cmd.Length = int64(len(buf))
	applyMode(&cmd, rate, fm)

	err := d.submit(&cmd, 7, "FD_READ")
	runtime.KeepAlive(buf)
	if err != nil {
		return Result{}, err
	}

	res := result(&cmd)

	// A read spanning several sectors stops early at a deleted sector;
	// treat that as a failure so the caller falls back to sector-by-sector.
	if len(buf) > 128<<id.SizeCode && res.ST2&ST2CM != 0 {
		res.OK = false
	}
	return res, nil
}

// result decodes ST0-ST2 from a reply. The command succeeded when the ST0
// interrupt code is 00.
func result(cmd *rawCommand) Result {
	return Result{
		OK:  (cmd.Reply[0]>>6)&3 == 0,
		ST0: cmd.Reply[0],
		ST1: cmd.Reply[1],
		ST2: cmd.Reply[2],
	}
}
