package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"podcompanion/internal/model"
	"podcompanion/internal/session"
)

func level(v uint8) *uint8 { return &v }

func TestTooltip(t *testing.T) {
	assert.Equal(t, "AirPods - Disconnected", tooltip(session.State{}))
	assert.Equal(t, "AirPods Max - Disconnected", tooltip(session.State{LastModel: model.Max}))
	assert.Equal(t, "AirPods - Scanning...", tooltip(session.State{Status: session.Scanning}))

	connected := session.State{
		Status:  session.Connected,
		Session: &session.Session{Name: "Sasha's AirPods Pro", Model: model.Pro},
		Battery: &session.Battery{Left: level(80), Right: level(60), Case: level(20)},
	}
	assert.Equal(t, "AirPods Pro - 60%", tooltip(connected))

	connected.Battery = nil
	assert.Equal(t, "AirPods Pro", tooltip(connected))
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "AirPods (Gen 3)", title(session.State{LastModel: model.Gen3}))
	assert.Equal(t, "Gym", title(session.State{Session: &session.Session{Name: "Gym", Model: model.Gen3}}))
}

func TestConnectLabel(t *testing.T) {
	assert.Equal(t, "Connect", connectLabel(session.Disconnected))
	assert.Equal(t, "Scanning...", connectLabel(session.Scanning))
	assert.Equal(t, "Connecting...", connectLabel(session.Connecting))
	assert.Equal(t, "Disconnect", connectLabel(session.Connected))
}

func TestBatteryLines(t *testing.T) {
	assert.Equal(t, [3]string{"Left:  --", "Right: --", "Case:  --"}, batteryLines(nil))

	lines := batteryLines(&session.Battery{
		Left:         level(90),
		Right:        level(100),
		CaseCharging: true,
		Case:         level(45),
	})
	assert.Equal(t, [3]string{"Left:  90%", "Right: 100%", "Case:  45% (Charging)"}, lines)
}

func TestCurrentModel(t *testing.T) {
	assert.Equal(t, model.Unknown, currentModel(session.State{}))
	assert.Equal(t, model.Max, currentModel(session.State{LastModel: model.Max}))
	assert.Equal(t, model.Pro, currentModel(session.State{
		LastModel: model.Max,
		Session:   &session.Session{Model: model.Pro},
	}))
}
