package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/ivmel/modelbooth-bot/internal/models"
)

// Ledger tracks how many images each user generated per UTC calendar day.
// Counts only ever grow; a new day starts everyone at zero implicitly
// because each day has its own key.
type Ledger struct {
	mu   sync.Mutex
	path string
	days map[string]map[string]int
}

// OpenLedger loads the usage file, initializing an empty mapping when the
// file is missing or malformed.
func OpenLedger(path string) (*Ledger, error) {
	l := &Ledger{
		path: path,
		days: make(map[string]map[string]int),
	}
	if err := loadJSON(path, &l.days); err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	if l.days == nil {
		l.days = make(map[string]map[string]int)
	}
	return l, nil
}

// Count returns the user's generation count for today (UTC).
func (l *Ledger) Count(userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.days[models.DayKey(time.Now())][userID]
}

// Add increments today's count for the user by delta. Negative deltas are
// rejected; the ledger is monotonic within a day.
func (l *Ledger) Add(userID string, delta int) error {
	if delta < 0 {
		return fmt.Errorf("negative usage delta %d", delta)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	day := models.DayKey(time.Now())
	if l.days[day] == nil {
		l.days[day] = make(map[string]int)
	}
	l.days[day][userID] += delta
	return saveJSON(l.path, l.days)
}
