package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		s    string
		def  int
		want int
	}{
		{"", 10, 10},
		{"42", 0, 42},
		{"-13", 1, -13},
		{"0012", 99, 12},
		{"x", 5, 5},
		{" 42", 7, 7},
		{"999999999999999999999999", -1, -1},
	}
	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Errorf("AtoiDefault(%q, %d) = %d, want %d", tc.s, tc.def, got, tc.want)
		}
	}
}

func TestParsePage(t *testing.T) {
	cases := []struct {
		page, size         string
		wantPage, wantSize int
	}{
		{"", "", DefaultPage, DefaultPageSize},
		{"3", "5", 3, 5},
		{"0", "0", 1, 1},
		{"-2", "500", 1, MaxPageSize},
		{"two", "ten", DefaultPage, DefaultPageSize},
	}
	for _, tc := range cases {
		p, s := ParsePage(tc.page, tc.size)
		if p != tc.wantPage || s != tc.wantSize {
			t.Errorf("ParsePage(%q, %q) = %d, %d; want %d, %d", tc.page, tc.size, p, s, tc.wantPage, tc.wantSize)
		}
	}
}

func TestWindow(t *testing.T) {
	cases := []struct {
		total, page, size int
		lo, hi, pages     int
	}{
		{0, 1, 20, 0, 0, 0},
		{45, 1, 20, 0, 20, 3},
		{45, 3, 20, 40, 45, 3},
		{45, 4, 20, 45, 45, 3},
		{20, 1, 20, 0, 20, 1},
	}
	for _, tc := range cases {
		lo, hi, pages := Window(tc.total, tc.page, tc.size)
		if lo != tc.lo || hi != tc.hi || pages != tc.pages {
			t.Errorf("Window(%d, %d, %d) = %d, %d, %d; want %d, %d, %d",
				tc.total, tc.page, tc.size, lo, hi, pages, tc.lo, tc.hi, tc.pages)
		}
	}
}
