package capability

import (
	"testing"
	"time"
)

func TestValidCard(t *testing.T) {
	now := time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		card CardDetails
		want bool
	}{
		{"valid visa test number", CardDetails{Number: "4242424242424242", ExpMonth: 12, ExpYear: 2027}, true},
		{"expiring this month is still valid", CardDetails{Number: "4242424242424242", ExpMonth: 3, ExpYear: 2026}, true},
		{"expired last month", CardDetails{Number: "4242424242424242", ExpMonth: 2, ExpYear: 2026}, false},
		{"luhn failure", CardDetails{Number: "4242424242424241", ExpMonth: 12, ExpYear: 2027}, false},
		{"too short", CardDetails{Number: "42424242", ExpMonth: 12, ExpYear: 2027}, false},
		{"non-digit", CardDetails{Number: "4242x24242424242", ExpMonth: 12, ExpYear: 2027}, false},
		{"month out of range", CardDetails{Number: "4242424242424242", ExpMonth: 13, ExpYear: 2027}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := validCard(tc.card, now); got != tc.want {
				t.Fatalf("validCard = %v, want %v", got, tc.want)
			}
		})
	}
}
