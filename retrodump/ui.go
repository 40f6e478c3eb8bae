// Package retrodump provides a fullscreen terminal display for disk
// acquisition: a title bar, a legend, a one-glyph-per-sector progress map
// and a status block. It renders whatever the caller hands it and tracks
// nothing itself.
package retrodump

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
)

// UI is one fullscreen display session.
type UI struct {
	s        tcell.Screen
	stopChan chan struct{}
	once     sync.Once

	mu          sync.Mutex
	title       string
	legendLines []string
	mapLines    []string
	statusLines []string
}

// NewUI initializes the terminal screen and starts the event loop that
// watches for a stop request (q, Esc or Ctrl-C).
func NewUI() (*UI, error) {
	s, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := s.Init(); err != nil {
		return nil, err
	}
	s.DisableMouse()
	u := &UI{
		s:        s,
		stopChan: make(chan struct{}),
	}
	go u.eventLoop()
	return u, nil
}

// Close restores the terminal. It is safe to call more than once.
func (u *UI) Close() {
	if u.s == nil {
		return
	}
	u.RequestStop()
	u.s.Fini()
	u.s = nil
	fmt.Print("\033[?1049l\033[?25h")
}

// RequestStop signals that the operation should stop at the next safe
// point. It can be called multiple times safely.
func (u *UI) RequestStop() {
	u.once.Do(func() {
		close(u.stopChan)
		u.s.PostEvent(tcell.NewEventInterrupt(nil))
	})
}

// Stopped reports whether a stop has been requested.
func (u *UI) Stopped() bool {
	select {
	case <-u.stopChan:
		return true
	default:
		return false
	}
}

// SetTitle sets the centered title line.
func (u *UI) SetTitle(t string) {
	u.mu.Lock()
	u.title = t
	u.mu.Unlock()
}

// SetLegend sets the legend lines shown under the title.
func (u *UI) SetLegend(lines []string) {
	u.mu.Lock()
	u.legendLines = append([]string(nil), lines...)
	u.mu.Unlock()
}

// SetMap sets the progress map, one string per row.
func (u *UI) SetMap(lines []string) {
	u.mu.Lock()
	u.mapLines = append([]string(nil), lines...)
	u.mu.Unlock()
}

// SetStatus sets the status block at the bottom.
func (u *UI) SetStatus(lines []string) {
	u.mu.Lock()
	u.statusLines = append([]string(nil), lines...)
	u.mu.Unlock()
}

func putStr(s tcell.Screen, x, y int, str string) {
	w, _ := s.Size()
	for i, r := range []rune(str) {
		pos := x + i
		if pos >= w {
			break
		}
		s.SetContent(pos, y, r, nil, tcell.StyleDefault)
	}
}

// Draw redraws the whole screen from the current state.
func (u *UI) Draw() {
	if u.s == nil {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	u.s.Clear()
	w, h := u.s.Size()

	y := 0
	if u.title != "" {
		putStr(u.s, 0, y, strings.Repeat("═", w))
		putStr(u.s, (w-len(u.title))/2, y, u.title)
		y++
	}

	for _, line := range u.legendLines {
		if y >= h {
			break
		}
		putStr(u.s, 0, y, line)
		y++
	}

	// Leave room for the status block below the map.
	avail := h - y - len(u.statusLines) - 1
	if avail < 1 {
		avail = 1
	}
	rows := len(u.mapLines)
	if rows > avail {
		rows = avail
	}
	for i := 0; i < rows && y < h; i++ {
		runes := []rune(u.mapLines[i])
		if len(runes) > w {
			runes = runes[:w]
		}
		putStr(u.s, 0, y, string(runes))
		y++
	}

	if len(u.statusLines) > 0 && y < h {
		putStr(u.s, 0, y, strings.Repeat("─", w))
		putStr(u.s, 2, y, " Status ")
		y++
		for _, line := range u.statusLines {
			if y >= h {
				break
			}
			putStr(u.s, 0, y, line)
			y++
		}
	}

	u.s.Show()
}

func (u *UI) eventLoop() {
	for {
		select {
		case <-u.stopChan:
			return
		default:
		}
		ev := u.s.PollEvent()
		switch ev := ev.(type) {
		case *tcell.EventKey:
			switch {
			case ev.Key() == tcell.KeyCtrlC:
				u.RequestStop()
			case ev.Key() == tcell.KeyRune && (ev.Rune() == 'q' || ev.Rune() == 'Q'):
				u.RequestStop()
			case ev.Key() == tcell.KeyEscape:
				u.RequestStop()
			}
		case *tcell.EventResize:
			u.s.Sync()
		case *tcell.EventInterrupt:
			return
		case nil:
			return
		}
	}
}
