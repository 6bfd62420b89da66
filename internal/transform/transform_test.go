package transform

import (
	"testing"
	"time"

	"dwetl/internal/records"
)

func TestNormalizeTrimsAndScrubs(t *testing.T) {
	t.Parallel()

	recs := []records.Record{
		{"name": "  Bike Frame ", "note": "a\u00a0b", "id": int64(7)},
	}
	Normalize{}.Apply(recs)

	if got := recs[0]["name"]; got != "Bike Frame" {
		t.Errorf("name = %q; want %q", got, "Bike Frame")
	}
	if got := recs[0]["note"]; got != "a b" {
		t.Errorf("note = %q; want %q (NBSP scrubbed)", got, "a b")
	}
	if got := recs[0]["id"]; got != int64(7) {
		t.Errorf("non-string value modified: %v", got)
	}
}

func TestNormalizeFoldDiacritics(t *testing.T) {
	t.Parallel()

	recs := []records.Record{{"name": "Křižík, Ängström"}}
	Normalize{FoldDiacritics: true}.Apply(recs)

	if got := recs[0]["name"]; got != "Krizik, Angstrom" {
		t.Errorf("name = %q; want %q", got, "Krizik, Angstrom")
	}
}

func TestCoerce(t *testing.T) {
	t.Parallel()

	recs := []records.Record{{
		"qty":     "42",
		"price":   "19.99",
		"active":  "true",
		"created": "20200115",
		"name":    "  padded  ",
		"bad_int": "4x2",
		"blank":   "   ",
	}}
	Coerce{
		Types: map[string]string{
			"qty":     "int",
			"price":   "float",
			"active":  "bool",
			"created": "date",
			"name":    "string",
			"bad_int": "int",
			"blank":   "int",
		},
		Layout: "20060102",
	}.Apply(recs)

	r := recs[0]
	if got := r["qty"]; got != int64(42) {
		t.Errorf("qty = %#v; want int64(42)", got)
	}
	if got := r["price"]; got != 19.99 {
		t.Errorf("price = %#v; want 19.99", got)
	}
	if got := r["active"]; got != true {
		t.Errorf("active = %#v; want true", got)
	}
	want := time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC)
	if got, ok := r["created"].(time.Time); !ok || !got.Equal(want) {
		t.Errorf("created = %#v; want %v", r["created"], want)
	}
	if got := r["name"]; got != "padded" {
		t.Errorf("name = %#v; want trimmed string", got)
	}
	if got := r["bad_int"]; got != nil {
		t.Errorf("bad_int = %#v; want nil (parse failure)", got)
	}
	if got := r["blank"]; got != nil {
		t.Errorf("blank = %#v; want nil", got)
	}
}

func TestCoerceDefaultLayout(t *testing.T) {
	t.Parallel()

	recs := []records.Record{{"d": "2021-06-01"}}
	Coerce{Types: map[string]string{"d": "date"}}.Apply(recs)

	want := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	if got, ok := recs[0]["d"].(time.Time); !ok || !got.Equal(want) {
		t.Errorf("d = %#v; want %v", recs[0]["d"], want)
	}
}

func TestRequireDropsAndReports(t *testing.T) {
	t.Parallel()

	var dropped []string
	q := Require{
		Columns: []string{"id"},
		OnDrop: func(_ records.Record, missing string) {
			dropped = append(dropped, missing)
		},
	}
	out := q.Apply([]records.Record{
		{"id": int64(1), "name": "keep"},
		{"id": nil, "name": "drop nil"},
		{"name": "drop missing"},
		{"id": "", "name": "drop empty"},
		{"id": int64(2), "name": "keep too"},
	})

	if len(out) != 2 {
		t.Fatalf("kept %d records; want 2", len(out))
	}
	if out[0]["name"] != "keep" || out[1]["name"] != "keep too" {
		t.Errorf("kept wrong records: %v", out)
	}
	if len(dropped) != 3 {
		t.Errorf("OnDrop called %d times; want 3", len(dropped))
	}
}

func TestChainAppliesInOrder(t *testing.T) {
	t.Parallel()

	recs := []records.Record{
		{"id": " 1 ", "d": "2020-01-01"},
		{"id": "  ", "d": "2020-01-02"},
	}
	out := Chain{
		Normalize{},
		Coerce{Types: map[string]string{"id": "int", "d": "date"}},
		Require{Columns: []string{"id"}},
	}.Apply(recs)

	if len(out) != 1 {
		t.Fatalf("kept %d records; want 1 (blank id dropped after trim)", len(out))
	}
	if got := out[0]["id"]; got != int64(1) {
		t.Errorf("id = %#v; want int64(1)", got)
	}
}
