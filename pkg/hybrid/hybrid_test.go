package hybrid

import (
	"math"
	"testing"
)

func approxEqual(a, b, tol float32) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}

// TestRRFWorkedExample reproduces the fusion scenario: dense=[(1,0.9),
// (2,0.8),(3,0.7)], sparse=[(2,5),(4,4),(1,3)], rrf_k=60, k=3. Expected
// ranking is 2, 1, then 4 ahead of 3 (since 1/62 > 1/63); exact scores for
// ids 1, 3, and 4 follow directly from their single-list or both-list rank
// positions. id2 appears in both lists at its own distinct ranks (dense
// rank 2, sparse rank 1), giving 1/62+1/61, still strictly the top score.
func TestRRFWorkedExample(t *testing.T) {
	dense := []Hit{{ID: 1, Score: 0.9}, {ID: 2, Score: 0.8}, {ID: 3, Score: 0.7}}
	sparse := []Hit{{ID: 2, Score: 5}, {ID: 4, Score: 4}, {ID: 1, Score: 3}}

	fused := RRF(dense, sparse, 60, 3)
	if len(fused) != 3 {
		t.Fatalf("expected 3 results, got %d", len(fused))
	}

	ids := []uint64{fused[0].ID, fused[1].ID, fused[2].ID}
	if ids[0] != 2 || ids[1] != 1 {
		t.Fatalf("expected ranking [2, 1, ...], got %v", ids)
	}
	if ids[2] != 4 {
		t.Errorf("expected id 4 ahead of id 3 (1/62 > 1/63), got %v", ids)
	}

	scoreByID := make(map[uint64]float32, len(fused))
	for _, f := range fused {
		scoreByID[f.ID] = f.Score
	}

	wantID1 := float32(1.0/61.0 + 1.0/63.0)
	wantID4 := float32(1.0 / 62.0)
	if !approxEqual(scoreByID[1], wantID1, 1e-5) {
		t.Errorf("id 1 score = %v, want %v", scoreByID[1], wantID1)
	}
	if !approxEqual(scoreByID[4], wantID4, 1e-5) {
		t.Errorf("id 4 score = %v, want %v", scoreByID[4], wantID4)
	}
	wantID2 := float32(1.0/62.0 + 1.0/61.0)
	if !approxEqual(scoreByID[2], wantID2, 1e-5) {
		t.Errorf("id 2 score = %v, want %v", scoreByID[2], wantID2)
	}
}

func TestRRFMissingMembershipContributesZero(t *testing.T) {
	dense := []Hit{{ID: 1, Score: 1.0}}
	sparse := []Hit{{ID: 2, Score: 1.0}}
	fused := RRF(dense, sparse, 60, 10)
	if len(fused) != 2 {
		t.Fatalf("expected 2 results, got %d", len(fused))
	}
	// Both ids appear at rank 1 in their respective single list, so they
	// tie and the lower id sorts first.
	if fused[0].ID != 1 || fused[1].ID != 2 {
		t.Errorf("expected tie-break order [1, 2], got [%d, %d]", fused[0].ID, fused[1].ID)
	}
}

func TestRRFDefaultK(t *testing.T) {
	dense := []Hit{{ID: 1, Score: 1.0}}
	a := RRF(dense, nil, 0, 10)
	b := RRF(dense, nil, DefaultRRFK, 10)
	if a[0].Score != b[0].Score {
		t.Errorf("rrfK<=0 should fall back to DefaultRRFK")
	}
}

func TestLinearFusionBasic(t *testing.T) {
	dense := []Hit{{ID: 1, Score: 0.1}, {ID: 2, Score: 0.5}}  // distances: lower is better
	sparse := []Hit{{ID: 1, Score: 10.0}, {ID: 2, Score: 1.0}} // relevance: higher is better

	fused := Linear(dense, sparse, 0.5, 10)
	if len(fused) != 2 {
		t.Fatalf("expected 2 results, got %d", len(fused))
	}
	// id1 has both the better (lower) dense distance and the higher sparse
	// score; with alpha=0.5 the combination should still produce a
	// deterministic total order.
	if fused[0].Score < fused[1].Score {
		t.Errorf("expected descending score order, got %v then %v", fused[0].Score, fused[1].Score)
	}
}

func TestLinearFusionEmptyListContributesZero(t *testing.T) {
	dense := []Hit{{ID: 1, Score: 0.2}}
	fused := Linear(dense, nil, 0.5, 10)
	if len(fused) != 1 {
		t.Fatalf("expected 1 result, got %d", len(fused))
	}
	// Dense-only contribution: alpha * normalized dense similarity (a
	// single-entry list normalizes to 1.0) + (1-alpha)*0.
	want := float32(0.5)
	if !approxEqual(fused[0].Score, want, 1e-6) {
		t.Errorf("score = %v, want %v", fused[0].Score, want)
	}
}

func TestLinearFusionTieBreakByLowerID(t *testing.T) {
	dense := []Hit{{ID: 2, Score: 0.5}, {ID: 1, Score: 0.5}}
	fused := Linear(dense, nil, 0.5, 10)
	if fused[0].ID != 1 || fused[1].ID != 2 {
		t.Errorf("expected tie-break order [1, 2], got [%d, %d]", fused[0].ID, fused[1].ID)
	}
}

func TestLinearFusionAlphaOutOfRangeFallsBackToDefault(t *testing.T) {
	dense := []Hit{{ID: 1, Score: 0.1}, {ID: 2, Score: 0.9}}
	a := Linear(dense, nil, 0, 10)
	b := Linear(dense, nil, DefaultAlpha, 10)
	for i := range a {
		if !approxEqual(a[i].Score, b[i].Score, 1e-6) {
			t.Errorf("alpha<=0 should fall back to DefaultAlpha")
		}
	}
}

func TestMinMaxNormalizeConstantListNormalizesToOne(t *testing.T) {
	list := []Hit{{ID: 1, Score: 3}, {ID: 2, Score: 3}}
	norm := minMaxNormalize(list)
	for id, v := range norm {
		if math.Abs(float64(v-1.0)) > 1e-9 {
			t.Errorf("id %d: expected normalized 1.0 for constant list, got %v", id, v)
		}
	}
}
