package utils

import (
	"math"
	"reflect"
	"testing"
)

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
		// invalid -> default (no trim)
		{"x", 5, 5},
		{" 42", 7, 7},
		// overflow -> default
		{"999999999999999999999999", -1, -1},
	}

	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}

func TestClamp(t *testing.T) {
	if Clamp(0, 1, 100) != 1 || Clamp(500, 1, 100) != 100 || Clamp(20, 1, 100) != 20 {
		t.Fatalf("Clamp bounds wrong")
	}
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	cases := []struct {
		page, size int
		want       []int
	}{
		{1, 2, []int{1, 2}},
		{2, 2, []int{3, 4}},
		{3, 2, []int{5}},
		{4, 2, []int{}},
		{0, 3, []int{1, 2, 3}},
		{1, 10, []int{1, 2, 3, 4, 5}},
		{1, 0, []int{}},
	}
	for _, tc := range cases {
		got := Page(items, tc.page, tc.size)
		if got == nil || !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("Page(page=%d, size=%d) = %v; want %v", tc.page, tc.size, got, tc.want)
		}
	}
}

func TestPage_HugePageDoesNotWrap(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	// (page-1)*4 wraps to 0 in int arithmetic.
	page := math.MaxInt/2 + 2
	if got := Page(items, page, 4); got == nil || len(got) != 0 {
		t.Fatalf("Page(page=%d, size=4) = %v; want empty", page, got)
	}
	if got := Page(items, math.MaxInt, math.MaxInt); got == nil || len(got) != 0 {
		t.Fatalf("Page(MaxInt, MaxInt) = %v; want empty", got)
	}
}
