//go:build !linux

package fdc

import (
	"fmt"
	"runtime"
)

// Device is an open raw handle on one floppy drive. On this platform no
// raw-command facility exists, so Open always fails and the methods are
// never reached.
type Device struct {
	drive int
}

// Open reports that raw floppy access is unavailable here.
func Open(drive int) (*Device, error) {
	return nil, fmt.Errorf("raw floppy access to %s requires the Linux fdrawcmd facility; not available on %s",
		DevicePath(drive), runtime.GOOS)
}

// Close releases the device.
func (d *Device) Close() error { return nil }

// Reset resets the controller.
func (d *Device) Reset() error { return errUnsupported() }

// Params reads the BIOS drive parameters.
func (d *Device) Params() (Params, error) { return Params{}, errUnsupported() }

// Recalibrate seeks the head back to cylinder 0.
func (d *Device) Recalibrate() error { return errUnsupported() }

// ReadID waits for the next sector ID to pass the head.
func (d *Device) ReadID(seekCyl, physHead, rate int, fm bool) (SectorID, Result, error) {
	return SectorID{}, Result{}, errUnsupported()
}

// ReadData reads sectors with consecutive logical IDs into buf.
func (d *Device) ReadData(seekCyl, physHead, rate int, fm bool, id SectorID, buf []byte) (Result, error) {
	return Result{}, errUnsupported()
}

func errUnsupported() error {
	return fmt.Errorf("raw floppy commands not supported on %s", runtime.GOOS)
}
