package sorting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serviceConfig() Config {
	return Config{
		Columns: []Column{
			{Key: "service_name", APIKey: "name"},
			{Key: "created_at"},
			{Key: "updated_at"},
		},
		Presets: []Preset{
			{Key: "newest", Label: "Newest first", Spec: Spec{Key: "created_at", Direction: DESC}},
			{Key: "az", Label: "Name A-Z", Spec: Spec{Key: "name", Direction: ASC}},
		},
	}
}

func newBridge(t *testing.T) (*Bridge, *[]Spec) {
	t.Helper()
	var emitted []Spec
	b, err := New(serviceConfig(), func(s Spec) { emitted = append(emitted, s) })
	require.NoError(t, err)
	return b, &emitted
}

func TestNewEmitsDefault(t *testing.T) {
	b, emitted := newBridge(t)
	require.Len(t, *emitted, 1)
	assert.Equal(t, DefaultSpec, (*emitted)[0])
	assert.Equal(t, Descend, b.Indicator("updated_at"))
	assert.Equal(t, map[string]any{"sort": "updated_at", "direction": "DESC"}, map[string]any(b.Current().Params()))
}

func TestThreeClicksReturnToDefault(t *testing.T) {
	b, emitted := newBridge(t)

	spec, err := b.Click("service_name")
	require.NoError(t, err)
	assert.Equal(t, Spec{Key: "name", Direction: DESC}, spec)
	assert.Equal(t, Descend, b.Indicator("service_name"))
	assert.Equal(t, Unsorted, b.Indicator("updated_at"))

	spec, err = b.Click("service_name")
	require.NoError(t, err)
	assert.Equal(t, Spec{Key: "name", Direction: ASC}, spec)

	spec, err = b.Click("service_name")
	require.NoError(t, err)
	assert.Equal(t, DefaultSpec, spec)
	assert.Equal(t, Unsorted, b.Indicator("service_name"))

	for _, s := range *emitted {
		assert.NotEmpty(t, s.Key)
		assert.NotEmpty(t, s.Direction)
	}
}

func TestClickOnDefaultColumnCycles(t *testing.T) {
	b, _ := newBridge(t)

	spec, err := b.Click("updated_at")
	require.NoError(t, err)
	assert.Equal(t, Spec{Key: "updated_at", Direction: ASC}, spec)

	spec, err = b.Click("updated_at")
	require.NoError(t, err)
	assert.Equal(t, DefaultSpec, spec)
	assert.Equal(t, Unsorted, b.Indicator("updated_at"))

	spec, err = b.Click("updated_at")
	require.NoError(t, err)
	assert.Equal(t, DefaultSpec, spec)
	assert.Equal(t, Descend, b.Indicator("updated_at"))
}

func TestAtMostOneActiveColumn(t *testing.T) {
	b, _ := newBridge(t)
	sequence := []string{"service_name", "created_at", "service_name", "updated_at", "created_at", "created_at"}
	for _, col := range sequence {
		_, err := b.Click(col)
		require.NoError(t, err)
		active := 0
		for _, o := range b.Indicators() {
			if o != Unsorted {
				active++
			}
		}
		assert.LessOrEqual(t, active, 1)
	}
}

func TestPresetSyncsIndicator(t *testing.T) {
	b, emitted := newBridge(t)
	_, err := b.Click("service_name")
	require.NoError(t, err)

	spec, err := b.ApplyPreset("newest")
	require.NoError(t, err)
	assert.Equal(t, Spec{Key: "created_at", Direction: DESC}, spec)
	assert.Equal(t, Descend, b.Indicator("created_at"))
	assert.Equal(t, Unsorted, b.Indicator("service_name"))

	_, err = b.ApplyPreset("az")
	require.NoError(t, err)
	assert.Equal(t, Ascend, b.Indicator("service_name"))

	// Header click continues from the preset state.
	spec, err = b.Click("service_name")
	require.NoError(t, err)
	assert.Equal(t, DefaultSpec, spec)

	_, err = b.ApplyPreset("missing")
	assert.ErrorIs(t, err, ErrUnknownPreset)
	assert.Len(t, *emitted, 5)
}

func TestApplyUnmappedKeyClearsIndicators(t *testing.T) {
	b, _ := newBridge(t)
	_, err := b.Apply(Spec{Key: "score", Direction: ASC})
	require.NoError(t, err)
	for _, o := range b.Indicators() {
		assert.Equal(t, Unsorted, o)
	}

	_, err = b.Apply(Spec{Key: "score", Direction: "UP"})
	assert.ErrorIs(t, err, ErrInvalidDirection)
}

func TestSetOrder(t *testing.T) {
	b, _ := newBridge(t)

	spec, err := b.SetOrder("created_at", Ascend)
	require.NoError(t, err)
	assert.Equal(t, Spec{Key: "created_at", Direction: ASC}, spec)

	spec, err = b.SetOrder("created_at", Unsorted)
	require.NoError(t, err)
	assert.Equal(t, DefaultSpec, spec)

	_, err = b.SetOrder("nope", Descend)
	assert.ErrorIs(t, err, ErrUnknownColumn)
	_, err = b.Click("nope")
	assert.ErrorIs(t, err, ErrUnknownColumn)
	_, err = b.SetOrder("created_at", Order("sideways"))
	assert.ErrorIs(t, err, ErrInvalidDirection)
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Default: Spec{Key: "x", Direction: "UP"}}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{Columns: []Column{{Key: "a"}, {Key: "a"}}}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	b, err := New(Config{Default: Spec{Key: "name", Direction: ASC}}, nil)
	require.NoError(t, err)
	assert.Equal(t, Spec{Key: "name", Direction: ASC}, b.Current())
}

func TestTransitionTable(t *testing.T) {
	order := Unsorted
	var seen []Order
	for i := 0; i < 3; i++ {
		next, ok := Next(order, EventClick)
		require.True(t, ok)
		seen = append(seen, next)
		order = next
	}
	assert.Equal(t, []Order{Descend, Ascend, Unsorted}, seen)

	for _, o := range []Order{Unsorted, Descend, Ascend} {
		next, ok := Next(o, EventClear)
		require.True(t, ok)
		assert.Equal(t, Unsorted, next)
	}
}

func TestParseHelpers(t *testing.T) {
	d, err := ParseDirection(" asc ")
	require.NoError(t, err)
	assert.Equal(t, ASC, d)
	_, err = ParseDirection("sideways")
	assert.ErrorIs(t, err, ErrInvalidDirection)

	o, ok := ParseOrder("")
	assert.True(t, ok)
	assert.Equal(t, Unsorted, o)
	_, ok = ParseOrder("up")
	assert.False(t, ok)
}
