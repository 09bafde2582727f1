// Package ui shows the state of the current run in the system tray.
package ui

import (
	_ "embed"
	"fmt"
	"log/slog"
	"sync"

	"github.com/getlantern/systray"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/clipforge/clipforge-agent/internal/workflow"
)

//go:embed icon.png
var iconBytes []byte

// Runner is the part of the workflow the tray observes and controls.
type Runner interface {
	Subscribe(l workflow.Listener) func()
	Snapshot() workflow.Snapshot
	Cancel() error
}

type Tray struct {
	runner Runner
	logger *slog.Logger

	statusItem *systray.MenuItem
	shortsItem *systray.MenuItem
	cancelItem *systray.MenuItem

	mu sync.Mutex

	refresh     chan struct{}
	unsubscribe func()
	onQuit      func()
}

type TrayConfig struct {
	Runner Runner
	Logger *slog.Logger
	OnQuit func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		runner:  cfg.Runner,
		logger:  cfg.Logger,
		refresh: make(chan struct{}, 1),
		onQuit:  cfg.OnQuit,
	}
}

// Run blocks on the platform tray loop.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("ClipForge")
	systray.SetTooltip("ClipForge Agent")

	state := menuStateFor(t.runner.Snapshot())

	t.statusItem = systray.AddMenuItem(state.Status, "Current run phase")
	t.statusItem.Disable()

	t.shortsItem = systray.AddMenuItem(state.Shorts, "Shorts found by the current run")
	t.shortsItem.Disable()

	systray.AddSeparator()

	t.cancelItem = systray.AddMenuItem("Cancel run", "Stop waiting for the current video")
	if !state.CanCancel {
		t.cancelItem.Disable()
	}

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit ClipForge Agent")

	t.unsubscribe = t.runner.Subscribe(t.listen)

	go func() {
		for {
			select {
			case <-t.refresh:
				t.apply(menuStateFor(t.runner.Snapshot()))
			case <-t.cancelItem.ClickedCh:
				if err := t.runner.Cancel(); err != nil {
					t.logger.Debug("cancel from tray ignored", "error", err)
				}
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	if t.unsubscribe != nil {
		t.unsubscribe()
	}
	t.logger.Info("system tray exiting")
}

// listen coalesces workflow events into a single pending refresh.
func (t *Tray) listen(ev workflow.Event) {
	if ev.Kind == workflow.EventLog {
		return
	}
	select {
	case t.refresh <- struct{}{}:
	default:
	}
}

func (t *Tray) apply(s menuState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.statusItem.SetTitle(s.Status)
	t.shortsItem.SetTitle(s.Shorts)
	if s.CanCancel {
		t.cancelItem.Enable()
	} else {
		t.cancelItem.Disable()
	}
}

func (t *Tray) Quit() {
	systray.Quit()
}

// menuState is what the tray menu shows for one snapshot.
type menuState struct {
	Status    string
	Shorts    string
	CanCancel bool
}

var titleCaser = cases.Title(language.English)

func menuStateFor(s workflow.Snapshot) menuState {
	shorts := s.ShortsSeen
	if s.Outcome != nil {
		shorts = len(s.Outcome.Shorts)
	}
	return menuState{
		Status:    "Status: " + titleCaser.String(string(s.Phase)),
		Shorts:    fmt.Sprintf("Shorts: %d", shorts),
		CanCancel: s.Phase == workflow.PhaseProcessing,
	}
}
