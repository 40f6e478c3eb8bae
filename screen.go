package main

import (
	"fmt"

	"dumpfloppy/imd"
	"dumpfloppy/retrodump"
)

// acquireScreen is the fullscreen progress display for dump --ui. When it
// is active the plain per-sector progress lines are suppressed and the same
// state is drawn as a disk map instead.
type acquireScreen struct {
	ui    *retrodump.UI
	image string
}

func newAcquireScreen(image string) (*acquireScreen, error) {
	ui, err := retrodump.NewUI()
	if err != nil {
		return nil, err
	}
	ui.SetTitle(fmt.Sprintf(" %s %s — %s ", programName, programVersion, image))
	ui.SetLegend(retrodump.Legend())
	ui.SetStatus([]string{"starting", "q/Esc stops after the current track"})
	ui.Draw()
	return &acquireScreen{ui: ui, image: image}, nil
}

// Update redraws the map after a track has been finished and written.
func (s *acquireScreen) Update(disk *imd.Disk, cyl, head int) {
	s.ui.SetMap(retrodump.DiskMap(disk))
	s.ui.SetStatus([]string{
		fmt.Sprintf("wrote track %d.%d", cyl, head),
		retrodump.Summary(disk),
		"q/Esc stops after the current track",
	})
	s.ui.Draw()
}

// Stopped reports whether the operator asked to stop.
func (s *acquireScreen) Stopped() bool {
	return s.ui.Stopped()
}

// Close restores the terminal; safe to call twice.
func (s *acquireScreen) Close() {
	s.ui.Close()
}
