package crawl

import (
	"testing"
	"time"
)

func TestParseCardDate(t *testing.T) {
	now := time.Date(2026, time.March, 15, 10, 30, 0, 0, time.UTC)
	tests := []struct {
		name  string
		texts []string
		want  time.Time
	}{
		{
			name:  "mis a jour",
			texts: []string{"Mis à jour le 12/03/2026"},
			want:  time.Date(2026, time.March, 12, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "publie",
			texts: []string{"Publié le 01/02/2026"},
			want:  time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "bare le with single digits",
			texts: []string{"Le 5/7/2025"},
			want:  time.Date(2025, time.July, 5, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "pattern priority beats text order",
			texts: []string{"Publié le 01/01/2020", "Mis à jour le 12/03/2026"},
			want:  time.Date(2026, time.March, 12, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "invalid month falls through",
			texts: []string{"Mis à jour le 12/13/2026"},
			want:  now,
		},
		{
			name:  "invalid day falls through",
			texts: []string{"Publié le 32/01/2026"},
			want:  now,
		},
		{
			name:  "no date falls back to now",
			texts: []string{"Arrêté préfectoral"},
			want:  now,
		},
		{
			name:  "nil texts",
			texts: nil,
			want:  now,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseCardDate(tt.texts, now)
			if !got.Equal(tt.want) {
				t.Fatalf("ParseCardDate(%v) = %v, want %v", tt.texts, got, tt.want)
			}
		})
	}
}

func TestParseCardDateReturnsUTC(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	now := time.Date(2026, time.March, 15, 1, 0, 0, 0, paris)
	got := ParseCardDate(nil, now)
	if got.Location() != time.UTC {
		t.Fatalf("fallback location = %v, want UTC", got.Location())
	}
	if !got.Equal(now) {
		t.Fatalf("fallback = %v, want the same instant as %v", got, now)
	}
}
