package crawl

import (
	"regexp"
	"strconv"
	"time"
)

// datePatterns are tried in priority order across all of a card's date
// texts: an explicit "Mis à jour" beats "Publié", which beats a bare "Le".
// Capture groups are day, month, year.
var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`Mis à jour le (\d{1,2})/(\d{1,2})/(\d{4})`),
	regexp.MustCompile(`Publié le (\d{1,2})/(\d{1,2})/(\d{4})`),
	regexp.MustCompile(`Le (\d{1,2})/(\d{1,2})/(\d{4})`),
}

// ParseCardDate resolves a publication date from the card's raw date texts.
// Higher-priority patterns win over earlier texts; unparseable or absent
// dates fall back to now, which keeps undated notices inside the freshness
// window rather than silently dropping them.
func ParseCardDate(texts []string, now time.Time) time.Time {
	for _, re := range datePatterns {
		for _, text := range texts {
			m := re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			day, _ := strconv.Atoi(m[1])
			month, _ := strconv.Atoi(m[2])
			year, _ := strconv.Atoi(m[3])
			if month < 1 || month > 12 || day < 1 || day > 31 {
				continue
			}
			return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		}
	}
	return now.UTC()
}
