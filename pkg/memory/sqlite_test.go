package memory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "memory.db"))
	require.NoError(t, err)
	store, err := NewSQLiteStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordFailureFirstObservation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.RecordFailure(ctx, Failure{
		SiteDomain: "shop.example.com",
		ActionType: "click",
		Selector:   "button.add-to-cart",
		Err:        "element not found",
		ErrorType:  "execution",
		Solution:   &Solution{Method: "text_match", Selector: "button[data-test='add']"},
	})
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	rec, err := store.Lookup(ctx, Query{
		SiteDomain: "shop.example.com",
		ActionType: "click",
		Selector:   "button.add-to-cart",
	})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 100.0, rec.SuccessRate)
	assert.Equal(t, 1, rec.TimesUsed)
	assert.Equal(t, "text_match", rec.SolutionMethod)
	assert.Equal(t, "button[data-test='add']", rec.SolutionSelector)
}

func TestRecordFailureWithoutSolutionStaysHidden(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.RecordFailure(ctx, Failure{
		SiteDomain: "shop.example.com",
		ActionType: "click",
		Selector:   "button.buy",
		Err:        "timeout",
		ErrorType:  "timeout",
	})
	require.NoError(t, err)

	// Rate 0 never clears any tier.
	rec, err := store.Lookup(ctx, Query{
		SiteDomain: "shop.example.com",
		ActionType: "click",
		Selector:   "button.buy",
	})
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRepeatObservationsBlendEMA(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	f := Failure{
		SiteDomain: "shop.example.com",
		ActionType: "fill",
		Selector:   "input.email",
		Err:        "not visible",
		ErrorType:  "execution",
		Solution:   &Solution{Method: "label_match"},
	}
	id, err := store.RecordFailure(ctx, f)
	require.NoError(t, err)

	// Second failed run with no fix: 0.3*0 + 0.7*100 = 70.
	f.Solution = nil
	id2, err := store.RecordFailure(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, id, id2)

	rec, err := store.Lookup(ctx, Query{
		SiteDomain: "shop.example.com",
		ActionType: "fill",
		Selector:   "input.email",
	})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.InDelta(t, 70.0, rec.SuccessRate, 0.001)
	assert.Equal(t, 2, rec.TimesUsed)
	// The earlier solution survives the solution-less update.
	assert.Equal(t, "label_match", rec.SolutionMethod)

	// A confirmed use: 0.3*100 + 0.7*70 = 79.
	require.NoError(t, store.RecordSuccess(ctx, rec.ID))
	rec, err = store.Lookup(ctx, Query{
		SiteDomain: "shop.example.com",
		ActionType: "fill",
		Selector:   "input.email",
	})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.InDelta(t, 79.0, rec.SuccessRate, 0.001)
	assert.Equal(t, 3, rec.TimesUsed)

	// A failed substitution: 0.3*0 + 0.7*79 = 55.3.
	require.NoError(t, store.RecordSolutionFailed(ctx, rec.ID))
	rec, err = store.Lookup(ctx, Query{
		SiteDomain: "shop.example.com",
		ActionType: "fill",
		Selector:   "input.email",
	})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.InDelta(t, 55.3, rec.SuccessRate, 0.001)
}

func TestObserveUnknownRecord(t *testing.T) {
	store := newTestStore(t)
	err := store.RecordSuccess(context.Background(), 9999)
	assert.Error(t, err)
}

func TestLearnSolutionDoesNotDisplaceProvenFix(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	learned := Learned{
		SiteDomain:       "shop.example.com",
		ActionType:       "click",
		OriginalSelector: "button.checkout",
		OriginalMethod:   "css_selector",
		Err:              "selector missed",
		Solution:         Solution{Method: "text_match", Selector: "button.pay"},
	}
	require.NoError(t, store.LearnSolution(ctx, learned))

	rec, err := store.Lookup(ctx, Query{
		SiteDomain: "shop.example.com",
		ActionType: "click",
		Selector:   "button.checkout",
	})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 100.0, rec.SuccessRate)

	// One failed substitution drops the rate to 70, still at the proven
	// threshold; a competing fix must not displace it.
	require.NoError(t, store.RecordSolutionFailed(ctx, rec.ID))
	competing := learned
	competing.Solution = Solution{Method: "js_click", Selector: "button.alt"}
	require.NoError(t, store.LearnSolution(ctx, competing))

	rec, err = store.Lookup(ctx, Query{
		SiteDomain: "shop.example.com",
		ActionType: "click",
		Selector:   "button.checkout",
	})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "text_match", rec.SolutionMethod)

	// Another failed substitution brings the rate to 49, below the
	// threshold; now a replacement is allowed and resets confidence.
	require.NoError(t, store.RecordSolutionFailed(ctx, rec.ID))
	require.NoError(t, store.LearnSolution(ctx, competing))

	rec, err = store.Lookup(ctx, Query{
		SiteDomain: "shop.example.com",
		ActionType: "click",
		Selector:   "button.checkout",
	})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "js_click", rec.SolutionMethod)
	assert.Equal(t, "button.alt", rec.SolutionSelector)
	assert.Equal(t, 100.0, rec.SuccessRate)
}

func TestLookupTierFallback(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// A proven fix for a different selector on the same site and action.
	require.NoError(t, store.LearnSolution(ctx, Learned{
		SiteDomain:       "shop.example.com",
		ActionType:       "click",
		OriginalSelector: "button.old-checkout",
		Solution:         Solution{Method: "text_match", Selector: "button.new-checkout"},
	}))

	rec, err := store.Lookup(ctx, Query{
		SiteDomain: "shop.example.com",
		ActionType: "click",
		Selector:   "button.never-seen",
	})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "button.old-checkout", rec.OriginalSelector)

	// A different action type does not match any tier.
	rec, err = store.Lookup(ctx, Query{
		SiteDomain: "shop.example.com",
		ActionType: "fill",
		Selector:   "button.never-seen",
	})
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestLookupCrossSitePromotion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.LearnSolution(ctx, Learned{
		SiteDomain:       "a.example.com",
		ActionType:       "click",
		OriginalSelector: "#onetrust-accept-btn-handler",
		Solution:         Solution{Method: "js_click"},
	}))

	// One confirmed use: times_used 2, below the promotion floor.
	rec, err := store.Lookup(ctx, Query{
		SiteDomain: "a.example.com",
		ActionType: "click",
		Selector:   "#onetrust-accept-btn-handler",
	})
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.NoError(t, store.RecordSuccess(ctx, rec.ID))

	other := Query{
		SiteDomain: "b.example.com",
		ActionType: "click",
		Selector:   "#onetrust-accept-btn-handler",
	}
	got, err := store.Lookup(ctx, other)
	require.NoError(t, err)
	assert.Nil(t, got)

	// A third use promotes the record across sites.
	require.NoError(t, store.RecordSuccess(ctx, rec.ID))
	got, err = store.Lookup(ctx, other)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a.example.com", got.SiteDomain)
	assert.Equal(t, "js_click", got.SolutionMethod)
}

func TestRecordFailureSanitizesSelector(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.RecordFailure(ctx, Failure{
		SiteDomain: "shop.example.com",
		ActionType: "click",
		Selector:   "error: element {{name}} not found",
		Err:        "boom",
		ErrorType:  "execution",
		Solution:   &Solution{Method: "text_match"},
	})
	require.NoError(t, err)

	// The record is keyed under the empty selector, not the garbage one.
	rec, err := store.Lookup(ctx, Query{
		SiteDomain: "shop.example.com",
		ActionType: "click",
		Selector:   "",
	})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "", rec.OriginalSelector)
}
