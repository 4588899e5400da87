package query

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/govconsole/internal/listing"
)

type row struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func payload(t *testing.T, rows []row, total int) Payload {
	t.Helper()
	entries, err := json.Marshal(rows)
	require.NoError(t, err)
	count, err := json.Marshal(total)
	require.NoError(t, err)
	return Payload{"entries": entries, "total_count": count}
}

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *fakeRecorder) ObserveFetch(_ string, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func TestEmptyStateClassification(t *testing.T) {
	var empties []bool
	fetch := func(context.Context, listing.Params) (Payload, error) {
		return payload(t, []row{}, 0), nil
	}
	c := New[row](fetch, Options[row]{OnEmpty: func(e bool) { empties = append(empties, e) }})

	st := c.Mount(context.Background(), listing.Params{"offset": 1, "limit": 10})
	assert.Equal(t, EmptyInitial, st.Empty)

	st = c.SetParams(context.Background(), listing.Params{"offset": 1, "limit": 10, "keyword": "x"})
	assert.Equal(t, EmptyFiltered, st.Empty)

	st = c.SetParams(context.Background(), listing.Params{"offset": 1, "limit": 10, "keyword": ""})
	assert.Equal(t, EmptyInitial, st.Empty, "recomputed from params after filters are cleared")

	assert.Equal(t, []bool{true, true, true}, empties)
}

func TestExcludeKeysIgnoredForClassification(t *testing.T) {
	fetch := func(context.Context, listing.Params) (Payload, error) {
		return payload(t, nil, 0), nil
	}
	c := New[row](fetch, Options[row]{ExcludeKeys: []string{"tree_ids"}})
	st := c.Mount(context.Background(), listing.Params{"tree_ids": []string{"n1"}})
	assert.Equal(t, EmptyInitial, st.Empty)
}

func TestSuccessStoresRowsAndTotal(t *testing.T) {
	var updated int
	fetch := func(_ context.Context, p listing.Params) (Payload, error) {
		return payload(t, []row{{ID: "1", Name: "a"}, {ID: "2", Name: "b"}}, 42), nil
	}
	c := New[row](fetch, Options[row]{
		Transform: func(rs []row) []row { return rs[:1] },
		OnUpdated: func() { updated++ },
	})
	st := c.Mount(context.Background(), listing.Params{"limit": 2})

	assert.Equal(t, []row{{ID: "1", Name: "a"}}, st.Rows)
	assert.Equal(t, 42, st.Total)
	assert.Equal(t, 42, c.Handle().Total())
	assert.Equal(t, EmptyNone, st.Empty)
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.False(t, st.Loading)
	assert.Equal(t, 1, updated)
}

func TestCustomKeys(t *testing.T) {
	fetch := func(context.Context, listing.Params) (Payload, error) {
		return Payload{"items": json.RawMessage(`[{"id":"x"}]`), "count": json.RawMessage(`7`)}, nil
	}
	c := New[row](fetch, Options[row]{EntriesKey: "items", TotalKey: "count"})
	st := c.Mount(context.Background(), nil)
	assert.Len(t, st.Rows, 1)
	assert.Equal(t, 7, st.Total)
}

func TestDecodeFailureIsAFetchFailure(t *testing.T) {
	var formatted []error
	fetch := func(context.Context, listing.Params) (Payload, error) {
		return Payload{"entries": json.RawMessage(`{"bad":true}`)}, nil
	}
	c := New[row](fetch, Options[row]{FormatError: func(err error) { formatted = append(formatted, err) }})
	st := c.Mount(context.Background(), nil)

	require.Len(t, formatted, 1)
	assert.ErrorIs(t, formatted[0], ErrDecode)
	assert.Equal(t, EmptyUnavailable, st.Empty)
}

func TestSetParamsDedup(t *testing.T) {
	var calls int32
	fetch := func(context.Context, listing.Params) (Payload, error) {
		atomic.AddInt32(&calls, 1)
		return payload(t, nil, 0), nil
	}
	c := New[row](fetch, Options[row]{})
	c.Mount(context.Background(), listing.Params{"type": []any{}, "limit": 10})
	c.SetParams(context.Background(), listing.Params{"type": []string{}, "limit": int64(10)})
	c.SetParams(context.Background(), listing.Params{"limit": 10, "type": []any{}})
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	c.SetParams(context.Background(), listing.Params{"type": []any{"A"}, "limit": 10})
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	require.NoError(t, c.GetData(context.Background()))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSearchConditionIsSuperset(t *testing.T) {
	var seen listing.Params
	fetch := func(_ context.Context, p listing.Params) (Payload, error) {
		seen = p
		return payload(t, nil, 0), nil
	}
	c := New[row](fetch, Options[row]{PageSize: 20})
	st := c.Mount(context.Background(), listing.Params{"keyword": "k"})
	assert.Equal(t, "k", seen["keyword"])
	assert.Equal(t, 0, seen["offset"])
	assert.Equal(t, 20, seen["limit"])
	assert.True(t, listing.Equal(seen, st.SearchCondition))
}

func TestPageChange(t *testing.T) {
	var calls int32
	var last listing.Params
	fetch := func(_ context.Context, p listing.Params) (Payload, error) {
		atomic.AddInt32(&calls, 1)
		last = p
		return payload(t, nil, 0), nil
	}

	t.Run("host owned pagination ignores page changes", func(t *testing.T) {
		atomic.StoreInt32(&calls, 0)
		c := New[row](fetch, Options[row]{})
		c.Mount(context.Background(), listing.Params{"offset": 0, "limit": 10})
		c.PageChange(context.Background(), 10, 10)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("controller owned pagination fetches", func(t *testing.T) {
		atomic.StoreInt32(&calls, 0)
		c := New[row](fetch, Options[row]{OwnPagination: true})
		c.Mount(context.Background(), listing.Params{"offset": 99})
		assert.Equal(t, 0, last["offset"], "controller paging wins")

		c.PageChange(context.Background(), 10, 10)
		assert.Equal(t, 10, last["offset"])
		c.PageChange(context.Background(), 10, 10)
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

		c.SetParams(context.Background(), listing.Params{"keyword": "x"})
		assert.Equal(t, 0, last["offset"], "new params restart at the first page")
	})
}

func TestFailureWithoutFallback(t *testing.T) {
	var formatted, empties int
	boom := errors.New("503 service unavailable")
	fail := false
	fetch := func(context.Context, listing.Params) (Payload, error) {
		if fail {
			return nil, boom
		}
		return payload(t, []row{{ID: "1"}}, 1), nil
	}
	c := New[row](fetch, Options[row]{
		FormatError: func(error) { formatted++ },
		OnEmpty:     func(bool) { empties++ },
	})
	st := c.Mount(context.Background(), nil)
	require.Len(t, st.Rows, 1)

	fail = true
	st = c.SetParams(context.Background(), listing.Params{"keyword": "x"})
	assert.Empty(t, st.Rows)
	assert.Equal(t, 0, st.Total)
	assert.Equal(t, EmptyUnavailable, st.Empty)
	assert.ErrorIs(t, st.Err, boom)
	assert.Equal(t, PhaseIdle, st.Phase)

	require.NoError(t, c.GetData(context.Background()))
	assert.Equal(t, 2, formatted, "every failure is surfaced without fallback")
	assert.Equal(t, 3, empties)
}

func TestFallbackFormatsIdenticalFailureOnce(t *testing.T) {
	var formatted int
	msg := "connection refused"
	fetch := func(context.Context, listing.Params) (Payload, error) {
		return nil, errors.New(msg)
	}
	fallback := []row{{ID: "demo-1"}, {ID: "demo-2"}}
	var empties []bool
	c := New[row](fetch, Options[row]{
		Fallback:    fallback,
		FormatError: func(error) { formatted++ },
		OnEmpty:     func(e bool) { empties = append(empties, e) },
	})

	st := c.Mount(context.Background(), nil)
	assert.Equal(t, fallback, st.Rows)
	assert.Equal(t, 2, st.Total)
	assert.True(t, st.Degraded)
	assert.Equal(t, EmptyNone, st.Empty)

	require.NoError(t, c.GetData(context.Background()))
	require.NoError(t, c.GetData(context.Background()))
	assert.Equal(t, 1, formatted)

	msg = "timeout"
	require.NoError(t, c.GetData(context.Background()))
	assert.Equal(t, 2, formatted)
	assert.Equal(t, []bool{false, false, false, false}, empties)
}

func TestNewFetchCancelsInFlightAndDropsStale(t *testing.T) {
	rec := &fakeRecorder{}
	started := make(chan struct{})
	release := make(chan struct{})
	var formatted int32
	fetch := func(ctx context.Context, p listing.Params) (Payload, error) {
		if p["keyword"] == "slow" {
			close(started)
			<-release
			// Ignores cancellation and answers late.
			return payload(t, []row{{ID: "stale"}}, 1), nil
		}
		return payload(t, []row{{ID: "fresh"}}, 1), nil
	}
	c := New[row](fetch, Options[row]{
		Recorder:    rec,
		FormatError: func(error) { atomic.AddInt32(&formatted, 1) },
	})

	done := make(chan State[row])
	go func() {
		done <- c.Mount(context.Background(), listing.Params{"keyword": "slow"})
	}()
	<-started
	assert.True(t, c.State().Loading)

	st := c.SetParams(context.Background(), listing.Params{"keyword": "fresh"})
	require.Equal(t, "fresh", st.Rows[0].ID)

	close(release)
	<-done
	assert.Equal(t, "fresh", c.State().Rows[0].ID, "slow response must not overwrite the newer one")
	assert.Equal(t, "fresh", c.State().SearchCondition["keyword"])
	assert.Equal(t, int32(0), atomic.LoadInt32(&formatted))
	assert.ElementsMatch(t, []string{OutcomeSuccess, OutcomeStale}, rec.outcomes)
}

func TestAbortIsSilent(t *testing.T) {
	var formatted, updated int32
	// The transport reports a cancellation the controller did not ask for.
	fetch := func(context.Context, listing.Params) (Payload, error) {
		return nil, context.Canceled
	}
	c := New[row](fetch, Options[row]{
		FormatError: func(error) { atomic.AddInt32(&formatted, 1) },
		OnUpdated:   func() { atomic.AddInt32(&updated, 1) },
	})

	st := c.Mount(context.Background(), nil)

	assert.Equal(t, PhaseIdle, st.Phase)
	assert.NoError(t, st.Err)
	assert.Equal(t, EmptyNone, st.Empty)
	assert.Equal(t, int32(0), atomic.LoadInt32(&formatted))
	assert.Equal(t, int32(0), atomic.LoadInt32(&updated))
}

func TestCallerCancellationDoesNotAbortFetch(t *testing.T) {
	var calls int32
	fetch := func(ctx context.Context, p listing.Params) (Payload, error) {
		atomic.AddInt32(&calls, 1)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p["keyword"] == "x" {
			return payload(t, []row{{ID: "2", Name: "filtered"}}, 1), nil
		}
		return payload(t, []row{{ID: "1", Name: "unfiltered"}}, 1), nil
	}
	c := New[row](fetch, Options[row]{})
	c.Mount(context.Background(), listing.Params{"keyword": ""})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	st := c.SetParams(ctx, listing.Params{"keyword": "x"})

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, "x", st.SearchCondition["keyword"])
	require.Len(t, st.Rows, 1)
	assert.Equal(t, "filtered", st.Rows[0].Name)
	assert.Equal(t, PhaseIdle, st.Phase)
}

func TestAbortedConditionIsRefetched(t *testing.T) {
	var calls int32
	fetch := func(_ context.Context, p listing.Params) (Payload, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 2 {
			return nil, context.Canceled
		}
		if p["keyword"] == "x" {
			return payload(t, []row{{ID: "2", Name: "filtered"}}, 1), nil
		}
		return payload(t, []row{{ID: "1", Name: "unfiltered"}}, 1), nil
	}
	c := New[row](fetch, Options[row]{})
	c.Mount(context.Background(), listing.Params{"keyword": ""})

	st := c.SetParams(context.Background(), listing.Params{"keyword": "x"})
	assert.Equal(t, "unfiltered", st.Rows[0].Name)

	st = c.SetParams(context.Background(), listing.Params{"keyword": "x"})
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	require.Len(t, st.Rows, 1)
	assert.Equal(t, "filtered", st.Rows[0].Name)

	c.SetParams(context.Background(), listing.Params{"keyword": "x"})
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCloseCancelsAndStopsFetching(t *testing.T) {
	var calls int32
	started := make(chan struct{})
	fetch := func(ctx context.Context, _ listing.Params) (Payload, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return payload(t, nil, 0), nil
	}
	c := New[row](fetch, Options[row]{})
	done := make(chan State[row])
	go func() { done <- c.Mount(context.Background(), nil) }()
	<-started
	c.Close()
	st := <-done
	assert.Equal(t, PhaseIdle, st.Phase)

	assert.Error(t, c.GetData(context.Background()))
	c.SetParams(context.Background(), listing.Params{"keyword": "x"})
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestLoadingTransitions(t *testing.T) {
	cases := []struct {
		from  Phase
		event Event
		want  Phase
		ok    bool
	}{
		{PhaseIdle, EventStart, PhaseLoading, true},
		{PhaseLoading, EventStart, PhaseLoading, true},
		{PhaseLoading, EventResolve, PhaseSuccess, true},
		{PhaseLoading, EventReject, PhaseError, true},
		{PhaseLoading, EventAbort, PhaseIdle, true},
		{PhaseSuccess, EventSettle, PhaseIdle, true},
		{PhaseError, EventSettle, PhaseIdle, true},
		{PhaseIdle, EventResolve, "", false},
		{PhaseSuccess, EventStart, "", false},
	}
	for _, tc := range cases {
		got, ok := Advance(tc.from, tc.event)
		assert.Equal(t, tc.ok, ok, "%s/%s", tc.from, tc.event)
		assert.Equal(t, tc.want, got, "%s/%s", tc.from, tc.event)
	}
}
