// Package indicator shows the session state in the system tray.
package indicator

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"fyne.io/systray"

	"podcompanion/internal/ble"
	"podcompanion/internal/model"
	"podcompanion/internal/session"
)

// Actions are invoked from menu clicks. Nil actions are ignored.
type Actions struct {
	Toggle     func()
	Refresh    func()
	SetNoise   func(session.NoiseMode)
	SetSpatial func(session.SpatialMode)
	Quit       func()
}

var noiseModes = []struct {
	mode    session.NoiseMode
	title   string
	tooltip string
}{
	{session.NoiseOff, "Off", "Noise control disabled"},
	{session.Transparency, "Transparency", "Hear the world around you"},
	{session.NoiseCancellation, "Noise Cancellation", "Block background noise"},
}

var spatialModes = []struct {
	mode  session.SpatialMode
	title string
}{
	{session.SpatialOff, "Off"},
	{session.SpatialFixed, "Fixed"},
	{session.SpatialHeadTracked, "Head Tracked"},
}

// Indicator manages the tray icon and menu.
type Indicator struct {
	actions Actions
	iconDir string

	mu       sync.Mutex
	ready    bool
	state    session.State
	iconName string

	connectItem  *systray.MenuItem
	refreshItem  *systray.MenuItem
	batteryItems [3]*systray.MenuItem
	noiseItems   map[session.NoiseMode]*systray.MenuItem
	spatialItems map[session.SpatialMode]*systray.MenuItem
}

// New creates an indicator. Icons are read from iconDir as
// "<icon name>.png".
func New(actions Actions, iconDir string) *Indicator {
	return &Indicator{
		actions:      actions,
		iconDir:      iconDir,
		noiseItems:   make(map[session.NoiseMode]*systray.MenuItem),
		spatialItems: make(map[session.SpatialMode]*systray.MenuItem),
	}
}

// Start runs the tray in the background.
func (ind *Indicator) Start() {
	go systray.Run(ind.onReady, ind.onExit)
}

// Stop removes the tray icon.
func (ind *Indicator) Stop() {
	systray.Quit()
}

func (ind *Indicator) onReady() {
	systray.SetTitle("podcompanion")

	ind.connectItem = systray.AddMenuItem("Connect", "Connect to your AirPods")
	ind.refreshItem = systray.AddMenuItem("Refresh", "Read the battery levels again")
	systray.AddSeparator()

	ind.batteryItems[0] = systray.AddMenuItem("", "Left AirPod battery")
	ind.batteryItems[1] = systray.AddMenuItem("", "Right AirPod battery")
	ind.batteryItems[2] = systray.AddMenuItem("", "Case battery")
	for _, item := range ind.batteryItems {
		item.Disable()
	}
	systray.AddSeparator()

	systray.AddMenuItem("Noise Control", "").Disable()
	for _, m := range noiseModes {
		item := systray.AddMenuItemCheckbox(m.title, m.tooltip, false)
		ind.noiseItems[m.mode] = item
		go ind.onClick(item, func() {
			if ind.actions.SetNoise != nil {
				ind.actions.SetNoise(m.mode)
			}
		})
	}
	systray.AddSeparator()

	systray.AddMenuItem("Spatial Audio", "").Disable()
	for _, m := range spatialModes {
		item := systray.AddMenuItemCheckbox(m.title, "", false)
		ind.spatialItems[m.mode] = item
		go ind.onClick(item, func() {
			if ind.actions.SetSpatial != nil {
				ind.actions.SetSpatial(m.mode)
			}
		})
	}
	systray.AddSeparator()

	quit := systray.AddMenuItem("Quit", "Exit podcompanion")

	go ind.onClick(ind.connectItem, ind.actions.Toggle)
	go ind.onClick(ind.refreshItem, ind.actions.Refresh)
	go func() {
		<-quit.ClickedCh
		if ind.actions.Quit != nil {
			ind.actions.Quit()
		}
	}()

	ind.mu.Lock()
	defer ind.mu.Unlock()
	ind.ready = true
	ind.render(ind.state)
}

func (ind *Indicator) onExit() {
	slog.Info("system tray indicator exited")
}

func (ind *Indicator) onClick(item *systray.MenuItem, fn func()) {
	for range item.ClickedCh {
		if fn != nil {
			fn()
		}
	}
}

// Update shows a new session state. It may be called before the tray is
// ready; the latest state is rendered once it is.
func (ind *Indicator) Update(state session.State) {
	ind.mu.Lock()
	defer ind.mu.Unlock()
	ind.state = state
	if ind.ready {
		ind.render(state)
	}
}

// render must be called with mu held.
func (ind *Indicator) render(state session.State) {
	caps := state.Capabilities()
	connected := state.Status == session.Connected

	systray.SetTitle(title(state))
	systray.SetTooltip(tooltip(state))
	ind.setIcon(currentModel(state).IconName())

	ind.connectItem.SetTitle(connectLabel(state.Status))
	if state.Status == session.Scanning || state.Status == session.Connecting {
		ind.connectItem.Disable()
	} else {
		ind.connectItem.Enable()
	}
	enable(ind.refreshItem, connected)

	for i, line := range batteryLines(state.Battery) {
		ind.batteryItems[i].SetTitle(line)
	}

	for mode, item := range ind.noiseItems {
		enable(item, connected && mode.Supported(caps) && caps.NoiseControl())
		check(item, connected && state.Noise == mode)
	}
	for mode, item := range ind.spatialItems {
		enable(item, connected && mode.Supported(caps) && caps.SpatialAudio)
		check(item, connected && state.Spatial == mode)
	}
}

func (ind *Indicator) setIcon(name string) {
	if name == ind.iconName {
		return
	}
	data, err := os.ReadFile(filepath.Join(ind.iconDir, name+".png"))
	if err != nil {
		slog.Warn("failed to load tray icon", "icon", name, "error", err)
		return
	}
	systray.SetIcon(data)
	ind.iconName = name
}

func enable(item *systray.MenuItem, on bool) {
	if on {
		item.Enable()
	} else {
		item.Disable()
	}
}

func check(item *systray.MenuItem, on bool) {
	if on {
		item.Check()
	} else {
		item.Uncheck()
	}
}

// currentModel is the connected model, or the last one while disconnected.
func currentModel(state session.State) model.Model {
	if state.Session != nil {
		return state.Session.Model
	}
	return state.LastModel
}

func title(state session.State) string {
	if state.Session != nil {
		return state.Session.Name
	}
	return currentModel(state).DisplayName()
}

func tooltip(state session.State) string {
	name := currentModel(state).DisplayName()
	if state.Status != session.Connected {
		return fmt.Sprintf("%s - %s", name, state.Status)
	}
	if state.Battery != nil {
		if lowest, ok := state.Battery.Lowest(); ok {
			return fmt.Sprintf("%s - %d%%", name, lowest)
		}
	}
	return name
}

func connectLabel(s session.Status) string {
	switch s {
	case session.Connected:
		return "Disconnect"
	case session.Disconnected:
		return "Connect"
	default:
		return s.String()
	}
}

func batteryLines(b *session.Battery) [3]string {
	if b == nil {
		b = &session.Battery{}
	}
	return [3]string{
		"Left:  " + ble.FormatLevel(b.Left, b.LeftCharging),
		"Right: " + ble.FormatLevel(b.Right, b.RightCharging),
		"Case:  " + ble.FormatLevel(b.Case, b.CaseCharging),
	}
}
