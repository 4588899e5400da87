package filters

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/govconsole/internal/listing"
)

type recorder struct {
	emitted []listing.Params
}

func (r *recorder) emit(p listing.Params) {
	r.emitted = append(r.emitted, p)
}

func (r *recorder) last() listing.Params {
	if len(r.emitted) == 0 {
		return nil
	}
	return r.emitted[len(r.emitted)-1]
}

func typeConfigs() []Config {
	return []Config{
		{
			Key:  "type",
			Kind: KindMultiSelect,
			Options: []Option{
				{Key: "A", Label: "A", Value: "A"},
				{Key: "B", Label: "B", Value: "B"},
			},
		},
		{Key: "online_at", Kind: KindDateRange},
	}
}

func newNormalizer(t *testing.T, configs []Config, exclusions ...Exclusion) (*Normalizer, *recorder) {
	t.Helper()
	rec := &recorder{}
	n, err := New(configs, Settings{OnEmit: rec.emit, Exclusions: exclusions})
	require.NoError(t, err)
	return n, rec
}

func assertSentinelInvariant(t *testing.T, v Value) {
	t.Helper()
	require.NotEmpty(t, v.Selected)
	if len(v.Selected) == 1 && isSentinel(v.Kind, v.Selected[0]) {
		return
	}
	for _, o := range v.Selected {
		assert.False(t, isSentinel(v.Kind, o), "sentinel mixed with concrete options: %+v", v.Selected)
	}
}

func TestNewInsertsSentinel(t *testing.T) {
	n, rec := newNormalizer(t, typeConfigs())
	assert.Empty(t, rec.emitted, "nothing emitted before Init")

	opts, err := n.Options("type")
	require.NoError(t, err)
	require.Len(t, opts, 3)
	assert.Equal(t, SentinelKey, opts[0].Key)
	assert.Equal(t, SentinelMultiValue, opts[0].Value)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name    string
		configs []Config
	}{
		{"missing key", []Config{{Kind: KindDateRange}}},
		{"unknown kind", []Config{{Key: "x", Kind: "slider"}}},
		{"select without options", []Config{{Key: "x", Kind: KindSingleSelect}}},
		{"duplicate key", []Config{{Key: "x", Kind: KindDateRange}, {Key: "x", Kind: KindDateRange}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.configs, Settings{})
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	_, err := New([]Config{{Key: "x", Kind: KindMultiSelect, Options: []Option{{Key: "a"}}, Initial: []string{"z"}}}, Settings{})
	assert.ErrorIs(t, err, ErrUnknownOption)
}

func TestInitEmitsDefaults(t *testing.T) {
	n, rec := newNormalizer(t, typeConfigs())
	n.Init()

	require.Len(t, rec.emitted, 1)
	assert.True(t, listing.Equal(listing.Params{"type": []any{}, "online_at": map[string]int64{}}, rec.last()))
}

func TestInitHonoursInitialValue(t *testing.T) {
	configs := typeConfigs()
	configs[0].Initial = []string{"B"}
	n, rec := newNormalizer(t, configs)
	n.Init()

	assert.Equal(t, []any{"B"}, rec.last()["type"])

	require.NoError(t, n.Toggle("type", "A"))
	require.NoError(t, n.Reset("type"))
	assert.Equal(t, []any{"B"}, rec.last()["type"])
}

func TestSentinelInvariantHoldsForAnyToggleSequence(t *testing.T) {
	n, _ := newNormalizer(t, typeConfigs())
	n.Init()

	keys := []string{"A", "B", SentinelKey}
	rnd := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		require.NoError(t, n.Toggle("type", keys[rnd.Intn(len(keys))]))
		v, err := n.Value("type")
		require.NoError(t, err)
		assertSentinelInvariant(t, v)
	}
}

func TestToggleMultiSelect(t *testing.T) {
	n, rec := newNormalizer(t, typeConfigs())
	n.Init()

	require.NoError(t, n.Toggle("type", "A"))
	require.NoError(t, n.Toggle("type", "B"))
	assert.Equal(t, []any{"A", "B"}, rec.last()["type"])

	require.NoError(t, n.Toggle("type", SentinelKey))
	assert.Equal(t, []any{}, rec.last()["type"])
	v, _ := n.Value("type")
	assert.True(t, v.IsUnrestricted())
}

func TestConfiguredSentinelLabelSurvivesToggleOff(t *testing.T) {
	n, rec := newNormalizer(t, []Config{{
		Key:  "type",
		Kind: KindMultiSelect,
		Options: []Option{
			{Key: SentinelKey, Label: "Any type"},
			{Key: "A", Label: "A", Value: "A"},
		},
	}})
	n.Init()
	v, _ := n.Value("type")
	require.Len(t, v.Selected, 1)
	assert.Equal(t, "Any type", v.Selected[0].Label)

	require.NoError(t, n.Toggle("type", "A"))
	require.NoError(t, n.Toggle("type", "A"))
	assert.Equal(t, []any{}, rec.last()["type"])

	v, _ = n.Value("type")
	require.Len(t, v.Selected, 1)
	assert.Equal(t, SentinelKey, v.Selected[0].Key)
	assert.Equal(t, "Any type", v.Selected[0].Label)
	assert.Equal(t, SentinelMultiValue, v.Selected[0].Value)

	n.ResetAll()
	v, _ = n.Value("type")
	assert.Equal(t, "Any type", v.Selected[0].Label)
}

func TestToggleSingleSelectReplacesAndCloses(t *testing.T) {
	n, rec := newNormalizer(t, []Config{{
		Key:     "status",
		Kind:    KindSingleSelect,
		Options: []Option{{Key: "on", Value: "online"}, {Key: "off", Value: "offline"}},
	}})
	n.Init()
	assert.Equal(t, "", rec.last()["status"])

	require.NoError(t, n.Open("status"))
	require.NoError(t, n.Toggle("status", "on"))
	assert.Equal(t, "online", rec.last()["status"])
	assert.False(t, n.IsOpen("status"))

	require.NoError(t, n.Toggle("status", "off"))
	assert.Equal(t, "offline", rec.last()["status"])

	v, _ := n.Value("status")
	require.Len(t, v.Selected, 1)
	assertSentinelInvariant(t, v)
}

func TestToggleErrors(t *testing.T) {
	n, rec := newNormalizer(t, typeConfigs())
	n.Init()

	assert.ErrorIs(t, n.Toggle("missing", "A"), ErrUnknownFilter)
	assert.ErrorIs(t, n.Toggle("type", "Z"), ErrUnknownOption)
	assert.ErrorIs(t, n.Toggle("online_at", "A"), ErrKindMismatch)
	assert.Len(t, rec.emitted, 1)
}

func TestOpenStateNeverEmits(t *testing.T) {
	configs := append(typeConfigs(), Config{
		Key:     "tags",
		Kind:    KindMultiSelect,
		Options: []Option{{Key: "x", Value: "x"}},
	})
	n, rec := newNormalizer(t, configs)
	n.Init()

	require.NoError(t, n.Open("type"))
	require.NoError(t, n.Open("tags"))
	assert.True(t, n.IsOpen("type"), "opening one multi-select must not close another")
	assert.True(t, n.IsOpen("tags"))

	open, err := n.ToggleOpen("type")
	require.NoError(t, err)
	assert.False(t, open)
	require.NoError(t, n.Close("tags"))
	assert.ErrorIs(t, n.Open("missing"), ErrUnknownFilter)

	assert.Len(t, rec.emitted, 1)
}

func TestDedupSuppressesEqualEmission(t *testing.T) {
	n, rec := newNormalizer(t, typeConfigs())
	n.Init()

	require.NoError(t, n.Toggle("type", "A"))
	require.NoError(t, n.Toggle("type", SentinelKey))
	require.Len(t, rec.emitted, 3)

	require.NoError(t, n.Toggle("type", SentinelKey))
	require.NoError(t, n.Reset("type"))
	require.NoError(t, n.SetDateRange("online_at", nil, nil))
	assert.Len(t, rec.emitted, 3)
}

func TestResetAllIsIdempotent(t *testing.T) {
	n, rec := newNormalizer(t, typeConfigs())
	n.Init()
	initial := rec.last()

	require.NoError(t, n.Toggle("type", "B"))
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(48 * time.Hour)
	require.NoError(t, n.SetDateRange("online_at", &start, &end))
	before := len(rec.emitted)

	n.ResetAll()
	n.ResetAll()
	assert.Len(t, rec.emitted, before+1)
	assert.True(t, listing.Equal(initial, rec.last()))
	assert.True(t, listing.Equal(initial, n.Canonical()))
}

func TestInitAlwaysEmitsEvenWhenUnchanged(t *testing.T) {
	n, rec := newNormalizer(t, typeConfigs())
	n.Init()
	require.NoError(t, n.Open("type"))
	n.Init()

	assert.Len(t, rec.emitted, 2)
	assert.False(t, n.IsOpen("type"))
}

func TestDateRange(t *testing.T) {
	start := time.Date(2024, 5, 10, 8, 30, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	t.Run("complete range emits", func(t *testing.T) {
		n, rec := newNormalizer(t, typeConfigs())
		n.Init()
		require.NoError(t, n.SetDateRange("online_at", &start, &end))
		assert.Equal(t, map[string]int64{"start_time": start.Unix(), "end_time": end.Unix()}, rec.last()["online_at"])

		require.NoError(t, n.SetDateRange("online_at", nil, nil))
		assert.Equal(t, map[string]int64{}, rec.last()["online_at"])
		assert.Len(t, rec.emitted, 3)
	})

	t.Run("inverted range rejected", func(t *testing.T) {
		n, rec := newNormalizer(t, typeConfigs())
		n.Init()
		err := n.SetDateRange("online_at", &end, &start)
		assert.ErrorIs(t, err, ErrInvalidRange)
		assert.Len(t, rec.emitted, 1)
		v, _ := n.Value("online_at")
		assert.True(t, v.IsUnrestricted())
	})

	t.Run("end only never emits", func(t *testing.T) {
		n, rec := newNormalizer(t, typeConfigs())
		n.Init()
		require.NoError(t, n.SetDateRange("online_at", nil, &end))
		err := n.BlurDateRange("online_at")
		assert.ErrorIs(t, err, ErrIncompleteRange)
		assert.Len(t, rec.emitted, 1)
	})

	t.Run("blur without pending is a no-op", func(t *testing.T) {
		n, rec := newNormalizer(t, typeConfigs())
		n.Init()
		require.NoError(t, n.BlurDateRange("online_at"))
		assert.Len(t, rec.emitted, 1)
	})

	t.Run("kind mismatch", func(t *testing.T) {
		n, _ := newNormalizer(t, typeConfigs())
		assert.ErrorIs(t, n.SetDateRange("type", &start, &end), ErrKindMismatch)
		assert.ErrorIs(t, n.BlurDateRange("type"), ErrKindMismatch)
	})
}

func TestSetNodes(t *testing.T) {
	n, rec := newNormalizer(t, []Config{{Key: "tree_ids", Kind: KindTreeMultiSelect}})
	n.Init()
	assert.Equal(t, []string{}, rec.last()["tree_ids"])

	require.NoError(t, n.SetNodes("tree_ids", []string{"n1", "n2", "n1", ""}))
	assert.Equal(t, []string{"n1", "n2"}, rec.last()["tree_ids"])

	require.NoError(t, n.SetNodes("tree_ids", []string{"n1", "n2"}))
	assert.Len(t, rec.emitted, 2)
}

func TestExclusionRegeneratesOptions(t *testing.T) {
	configs := []Config{
		{
			Key:     "published",
			Kind:    KindSingleSelect,
			Options: []Option{{Key: "yes", Value: 1}, {Key: "no", Value: 0}},
		},
		{
			Key:     "online",
			Kind:    KindMultiSelect,
			Options: []Option{{Key: "online", Value: "online"}, {Key: "offline", Value: "offline"}},
		},
	}
	exclusion := Exclusion{
		When:    Trigger{Key: "published", Option: "no"},
		Disable: Target{Key: "online", Options: []string{"online"}},
	}
	n, rec := newNormalizer(t, configs, exclusion)
	n.Init()

	require.NoError(t, n.Toggle("online", "online"))
	require.NoError(t, n.Toggle("published", "no"))

	opts, err := n.Options("online")
	require.NoError(t, err)
	assert.True(t, opts[1].Disabled)
	assert.False(t, opts[2].Disabled)
	assert.False(t, configs[1].Options[0].Disabled, "caller configs untouched")

	v, _ := n.Value("online")
	assert.True(t, v.Has("online"), "disabled selection is not cleared")

	require.NoError(t, n.Toggle("online", "online"), "removing a disabled selection is allowed")
	err = n.Toggle("online", "online")
	assert.True(t, errors.Is(err, ErrOptionDisabled))
	assert.Equal(t, []any{}, rec.last()["online"])

	require.NoError(t, n.Toggle("published", "yes"))
	opts, _ = n.Options("online")
	assert.False(t, opts[1].Disabled)
}

func TestNewRejectsBadExclusion(t *testing.T) {
	_, err := New(typeConfigs(), Settings{Exclusions: []Exclusion{{
		When:    Trigger{Key: "type", Option: "A"},
		Disable: Target{Key: "online_at", Options: []string{"x"}},
	}}})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(typeConfigs(), Settings{Exclusions: []Exclusion{{
		When:    Trigger{Key: "type", Option: "C"},
		Disable: Target{Key: "type", Options: []string{"B"}},
	}}})
	assert.ErrorIs(t, err, ErrUnknownOption)
}

func TestEndToEndScenario(t *testing.T) {
	n, rec := newNormalizer(t, typeConfigs())
	empty := listing.Params{"type": []any{}, "online_at": map[string]int64{}}

	n.Init()
	require.Len(t, rec.emitted, 1)
	assert.True(t, listing.Equal(empty, rec.last()))

	require.NoError(t, n.Toggle("type", "A"))
	require.Len(t, rec.emitted, 2)
	assert.True(t, listing.Equal(listing.Params{"type": []any{"A"}, "online_at": map[string]int64{}}, rec.last()))

	// Differs from the last emitted snapshot, so it is emitted.
	require.NoError(t, n.Toggle("type", "A"))
	require.Len(t, rec.emitted, 3)
	assert.True(t, listing.Equal(empty, rec.last()))

	// UI churn and repeated states are suppressed.
	require.NoError(t, n.Open("type"))
	require.NoError(t, n.Close("type"))
	require.NoError(t, n.Toggle("type", SentinelKey))
	require.Len(t, rec.emitted, 3)

	t0 := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	require.NoError(t, n.SetDateRange("online_at", &t0, nil))
	require.Len(t, rec.emitted, 3)

	require.NoError(t, n.BlurDateRange("online_at"))
	require.Len(t, rec.emitted, 4)
	want := listing.Params{
		"type":      []any{},
		"online_at": map[string]int64{"start_time": t0.Unix(), "end_time": EndOfDay(t0).Unix()},
	}
	assert.True(t, listing.Equal(want, rec.last()))
}

func TestEntriesReflectState(t *testing.T) {
	n, _ := newNormalizer(t, typeConfigs())
	n.Init()
	require.NoError(t, n.Open("type"))

	entries := n.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "type", entries[0].Config.Key)
	assert.True(t, entries[0].Open)
	assert.Len(t, entries[0].Options, 3)
	assert.Nil(t, entries[1].Options)
	assert.Equal(t, []string{"type", "online_at"}, n.Keys())
	assert.Len(t, n.Snapshot(), 2)
}
