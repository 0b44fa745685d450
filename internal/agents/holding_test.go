package agents

import "testing"

func TestCalculateHoldingStatus(t *testing.T) {
	cases := []struct {
		name     string
		purchase string
		sell     string
		want     HoldingStatus
	}{
		{"day after anniversary", "2024-03-10", "2025-03-11", LongTerm},
		{"exactly one year", "2024-03-10", "2025-03-10", ShortTerm},
		{"well within year", "2024-03-10", "2024-06-01", ShortTerm},
		{"multi-year hold", "2020-01-02", "2024-01-02", LongTerm},
		{"leap purchase sold feb 28", "2024-02-29", "2025-02-28", ShortTerm},
		{"leap purchase sold mar 1", "2024-02-29", "2025-03-01", LongTerm},
		{"bad purchase date", "not-a-date", "2025-03-01", Unknown},
		{"bad sell date", "2024-03-10", "soon", Unknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CalculateHoldingStatus(tc.purchase, tc.sell); got != tc.want {
				t.Fatalf("CalculateHoldingStatus(%s, %s) = %s, want %s", tc.purchase, tc.sell, got, tc.want)
			}
		})
	}
}
