package scd

import (
	"errors"
	"testing"
	"time"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func datePtr(s string) *time.Time {
	d := date(s)
	return &d
}

func TestCorrectIntervalsRepairsCorruptEnd(t *testing.T) {
	t.Parallel()

	// Two versions of one product: the first carries an end date before its
	// own start, the second is open-ended. The corrected first version must
	// close one day before its successor starts.
	in := []Version{
		{Key: "P1", Start: date("2020-01-01"), End: datePtr("2019-12-31")},
		{Key: "P1", Start: date("2021-06-01")},
	}
	out, err := CorrectIntervals(in, Day)
	if err != nil {
		t.Fatalf("CorrectIntervals: %v", err)
	}
	if out[0].End == nil || !out[0].End.Equal(date("2021-05-31")) {
		t.Errorf("first version end = %v; want 2021-05-31", out[0].End)
	}
	if out[1].End != nil {
		t.Errorf("last version end = %v; want open-ended", out[1].End)
	}
}

func TestCorrectIntervalsLastVersionBecomesOpenEnded(t *testing.T) {
	t.Parallel()

	in := []Version{
		{Key: "P1", Start: date("2022-03-01"), End: datePtr("2001-01-01")},
	}
	out, err := CorrectIntervals(in, Day)
	if err != nil {
		t.Fatalf("CorrectIntervals: %v", err)
	}
	if out[0].End != nil {
		t.Errorf("sole corrupt version end = %v; want nil", out[0].End)
	}
}

func TestCorrectIntervalsKeepsValidEnds(t *testing.T) {
	t.Parallel()

	in := []Version{
		{Key: "P1", Start: date("2020-01-01"), End: datePtr("2020-06-30")},
		{Key: "P1", Start: date("2021-01-01")},
	}
	out, err := CorrectIntervals(in, Day)
	if err != nil {
		t.Fatalf("CorrectIntervals: %v", err)
	}
	// A valid end is left alone even though it leaves a gap before the
	// successor.
	if out[0].End == nil || !out[0].End.Equal(date("2020-06-30")) {
		t.Errorf("valid end was modified: %v", out[0].End)
	}
}

func TestCorrectIntervalsSortsAndAssignsSurrogates(t *testing.T) {
	t.Parallel()

	in := []Version{
		{Key: "B", Start: date("2021-01-01"), Row: 0},
		{Key: "A", Start: date("2022-01-01"), Row: 1},
		{Key: "A", Start: date("2020-01-01"), Row: 2},
	}
	out, err := CorrectIntervals(in, Day)
	if err != nil {
		t.Fatalf("CorrectIntervals: %v", err)
	}

	wantKeys := []string{"A", "A", "B"}
	wantRows := []int{2, 1, 0}
	for i := range out {
		if out[i].Key != wantKeys[i] || out[i].Row != wantRows[i] {
			t.Fatalf("out[%d] = {Key:%s Row:%d}; want {Key:%s Row:%d}",
				i, out[i].Key, out[i].Row, wantKeys[i], wantRows[i])
		}
		if out[i].Surrogate != int64(i+1) {
			t.Fatalf("out[%d].Surrogate = %d; want %d", i, out[i].Surrogate, i+1)
		}
	}
}

func TestCorrectIntervalsRejectsEqualStarts(t *testing.T) {
	t.Parallel()

	in := []Version{
		{Key: "P1", Start: date("2020-01-01")},
		{Key: "P1", Start: date("2020-01-01")},
	}
	_, err := CorrectIntervals(in, Day)
	var ie *IntegrityError
	if !errors.As(err, &ie) {
		t.Fatalf("err = %v; want *IntegrityError", err)
	}
	if ie.Key != "P1" {
		t.Errorf("IntegrityError.Key = %q; want P1", ie.Key)
	}
}

func TestCorrectIntervalsDoesNotModifyInput(t *testing.T) {
	t.Parallel()

	in := []Version{
		{Key: "P1", Start: date("2020-01-01"), End: datePtr("2019-12-31")},
		{Key: "P1", Start: date("2021-06-01")},
	}
	if _, err := CorrectIntervals(in, Day); err != nil {
		t.Fatalf("CorrectIntervals: %v", err)
	}
	if in[0].End == nil || !in[0].End.Equal(date("2019-12-31")) {
		t.Error("input slice was modified")
	}
	if in[0].Surrogate != 0 {
		t.Error("input surrogate was assigned")
	}
}

func TestResolvePointInTime(t *testing.T) {
	t.Parallel()

	corrected, err := CorrectIntervals([]Version{
		{Key: "P1", Start: date("2020-01-01"), End: datePtr("2019-12-31")},
		{Key: "P1", Start: date("2021-06-01")},
	}, Day)
	if err != nil {
		t.Fatalf("CorrectIntervals: %v", err)
	}
	r := NewResolver(corrected)

	// Inside the corrected first interval.
	v, ok, err := r.Resolve("P1", date("2020-07-01"))
	if err != nil || !ok {
		t.Fatalf("Resolve(2020-07-01) = ok=%v err=%v", ok, err)
	}
	if v.Surrogate != corrected[0].Surrogate {
		t.Errorf("resolved surrogate = %d; want %d", v.Surrogate, corrected[0].Surrogate)
	}

	// Boundary days are inclusive on both sides.
	if _, ok, _ := r.Resolve("P1", date("2020-01-01")); !ok {
		t.Error("start boundary did not resolve")
	}
	if _, ok, _ := r.Resolve("P1", date("2021-05-31")); !ok {
		t.Error("end boundary did not resolve")
	}

	// In the open-ended current version, far in the future.
	v, ok, err = r.Resolve("P1", date("2030-01-01"))
	if err != nil || !ok {
		t.Fatalf("Resolve(2030-01-01) = ok=%v err=%v", ok, err)
	}
	if v.Surrogate != corrected[1].Surrogate {
		t.Errorf("resolved surrogate = %d; want %d", v.Surrogate, corrected[1].Surrogate)
	}
}

func TestResolveNoCoverage(t *testing.T) {
	t.Parallel()

	r := NewResolver([]Version{
		{Key: "P1", Start: date("2020-01-01"), Surrogate: 1},
	})

	// Before the first version.
	if _, ok, err := r.Resolve("P1", date("2019-01-01")); ok || err != nil {
		t.Errorf("Resolve(predating event) = ok=%v err=%v; want no match", ok, err)
	}
	// Unknown key.
	if _, ok, err := r.Resolve("NOPE", date("2020-06-01")); ok || err != nil {
		t.Errorf("Resolve(unknown key) = ok=%v err=%v; want no match", ok, err)
	}
}

func TestResolveOverlapIsIntegrityError(t *testing.T) {
	t.Parallel()

	// Overlapping intervals cannot come out of CorrectIntervals; build them
	// directly to check the resolver refuses to pick one silently.
	r := NewResolver([]Version{
		{Key: "P1", Start: date("2020-01-01"), End: datePtr("2020-12-31"), Surrogate: 1},
		{Key: "P1", Start: date("2020-06-01"), Surrogate: 2},
	})
	_, _, err := r.Resolve("P1", date("2020-07-01"))
	var ie *IntegrityError
	if !errors.As(err, &ie) {
		t.Fatalf("err = %v; want *IntegrityError", err)
	}
}
