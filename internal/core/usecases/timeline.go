package usecases

import (
	"sort"
	"sync"
	"time"

	"github.com/samirrijal/locus/internal/core/domain"
)

// MinutesPerDay is the size of the per-day minute index.
const MinutesPerDay = 1440

// MinuteOfDay returns the local minute (0..1439) of t, rounded to the nearest minute.
// 23:59:30 and later stay on 1439.
func MinuteOfDay(t time.Time, loc *time.Location) int {
	lt := t.In(loc)
	m := lt.Hour()*60 + lt.Minute()
	if lt.Second() >= 30 {
		m++
	}
	if m > MinutesPerDay-1 {
		m = MinutesPerDay - 1
	}
	return m
}

type dayIndex struct {
	points  []domain.Point
	minutes [MinutesPerDay][]int // minute -> indices into points
}

// TimelineManager buckets points into local calendar days and answers minute lookups for
// the selected day. It owns the current-day and same-minute cycling state of one map view.
type TimelineManager struct {
	mu   sync.Mutex
	loc  *time.Location
	raw  []domain.Point
	days map[string]*dayIndex
	keys []string

	current     string
	cycleMinute int
	cycleIdx    int
}

// NewTimelineManager creates an empty timeline in loc (UTC if nil).
func NewTimelineManager(loc *time.Location) *TimelineManager {
	if loc == nil {
		loc = time.UTC
	}
	return &TimelineManager{loc: loc, days: make(map[string]*dayIndex), cycleMinute: -1}
}

// Load replaces the timeline's points. Points must already be sorted ascending by time.
// The current day becomes the latest day with data.
func (m *TimelineManager) Load(points []domain.Point) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raw = points
	m.rebuild()
}

// SetLocation changes the viewer timezone and re-buckets the points, keeping the current
// day if it still exists.
func (m *TimelineManager) SetLocation(loc *time.Location) {
	if loc == nil {
		loc = time.UTC
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.current
	m.loc = loc
	m.rebuild()
	if _, ok := m.days[prev]; ok {
		m.current = prev
	}
}

// Location returns the viewer timezone.
func (m *TimelineManager) Location() *time.Location {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loc
}

func (m *TimelineManager) rebuild() {
	m.days = make(map[string]*dayIndex)
	m.keys = m.keys[:0]
	for _, p := range m.raw {
		key := p.Time().In(m.loc).Format(time.DateOnly)
		d, ok := m.days[key]
		if !ok {
			d = &dayIndex{}
			m.days[key] = d
			m.keys = append(m.keys, key)
		}
		minute := MinuteOfDay(p.Time(), m.loc)
		d.minutes[minute] = append(d.minutes[minute], len(d.points))
		d.points = append(d.points, p)
	}
	sort.Strings(m.keys)

	m.current = ""
	if len(m.keys) > 0 {
		m.current = m.keys[len(m.keys)-1]
	}
	m.resetCycle()
}

func (m *TimelineManager) resetCycle() {
	m.cycleMinute = -1
	m.cycleIdx = 0
}

// AvailableDays returns the day keys (YYYY-MM-DD) with data, ascending.
func (m *TimelineManager) AvailableDays() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.keys...)
}

// Buckets returns every day bucket, ascending by key.
func (m *TimelineManager) Buckets() []domain.DayBucket {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.DayBucket, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, domain.DayBucket{Key: k, Points: m.days[k].points})
	}
	return out
}

// CurrentDay returns the selected day key, or "" when the timeline is empty.
func (m *TimelineManager) CurrentDay() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// SetDay selects a day. It returns false if the day has no data.
func (m *TimelineManager) SetDay(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.days[key]; !ok {
		return false
	}
	if key != m.current {
		m.current = key
		m.resetCycle()
	}
	return true
}

// PrevDay moves to the previous day with data. It returns false at the first day.
func (m *TimelineManager) PrevDay() bool {
	return m.step(-1)
}

// NextDay moves to the next day with data. It returns false at the last day.
func (m *TimelineManager) NextDay() bool {
	return m.step(1)
}

func (m *TimelineManager) step(dir int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := sort.SearchStrings(m.keys, m.current)
	j := i + dir
	if i >= len(m.keys) || j < 0 || j >= len(m.keys) {
		return false
	}
	m.current = m.keys[j]
	m.resetCycle()
	return true
}

// DayAfter returns the next day with data after key.
func (m *TimelineManager) DayAfter(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := sort.SearchStrings(m.keys, key)
	if i < len(m.keys) && m.keys[i] == key {
		i++
	}
	if i >= len(m.keys) {
		return "", false
	}
	return m.keys[i], true
}

// DayPoints returns the points of a day, ascending by time.
func (m *TimelineManager) DayPoints(key string) []domain.Point {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.days[key]; ok {
		return d.points
	}
	return nil
}

// CurrentPoints returns the points of the current day.
func (m *TimelineManager) CurrentPoints() []domain.Point {
	return m.DayPoints(m.CurrentDay())
}

// HasDataAtMinute reports whether any point of the current day rounds to minute.
func (m *TimelineManager) HasDataAtMinute(minute int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.days[m.current]
	if d == nil || minute < 0 || minute >= MinutesPerDay {
		return false
	}
	return len(d.minutes[minute]) > 0
}

// FindNearestMinuteWithPoints searches outward from minute (minute, minute-1, minute+1, ...)
// and returns the first minute of the current day with data. The earlier minute wins when
// two candidates are equally far. ok is false only when the current day has no points.
func (m *TimelineManager) FindNearestMinuteWithPoints(minute int) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nearest(minute)
}

func (m *TimelineManager) nearest(minute int) (int, bool) {
	d := m.days[m.current]
	if d == nil || len(d.points) == 0 {
		return 0, false
	}
	minute = clampMinute(minute)
	for dist := 0; dist < MinutesPerDay; dist++ {
		if lo := minute - dist; lo >= 0 && len(d.minutes[lo]) > 0 {
			return lo, true
		}
		if hi := minute + dist; hi < MinutesPerDay && len(d.minutes[hi]) > 0 {
			return hi, true
		}
	}
	return 0, false
}

// PointAtPosition returns a point of the current day at minute, falling back to the nearest
// minute with data. Repeated calls for the same minute return the point selected by the
// same-minute cycle; moving to another minute restarts the cycle at its first point.
// The returned index is the point's position within the day.
func (m *TimelineManager) PointAtPosition(minute int) (domain.Point, int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	resolved, ok := m.nearest(minute)
	if !ok {
		return domain.Point{}, 0, false
	}
	if resolved != m.cycleMinute {
		m.cycleMinute = resolved
		m.cycleIdx = 0
	}
	return m.cyclePoint()
}

// CycleNext moves to the next point sharing the current minute, wrapping around.
func (m *TimelineManager) CycleNext() (domain.Point, int, bool) {
	return m.cycle(1)
}

// CyclePrev moves to the previous point sharing the current minute, wrapping around.
func (m *TimelineManager) CyclePrev() (domain.Point, int, bool) {
	return m.cycle(-1)
}

func (m *TimelineManager) cycle(dir int) (domain.Point, int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.days[m.current]
	if d == nil || m.cycleMinute < 0 {
		return domain.Point{}, 0, false
	}
	n := len(d.minutes[m.cycleMinute])
	if n == 0 {
		return domain.Point{}, 0, false
	}
	m.cycleIdx = ((m.cycleIdx+dir)%n + n) % n
	return m.cyclePoint()
}

func (m *TimelineManager) cyclePoint() (domain.Point, int, bool) {
	d := m.days[m.current]
	idxs := d.minutes[m.cycleMinute]
	if len(idxs) == 0 {
		return domain.Point{}, 0, false
	}
	i := idxs[m.cycleIdx%len(idxs)]
	return d.points[i], i, true
}

// SameMinuteCount returns how many points of the current day share minute.
func (m *TimelineManager) SameMinuteCount(minute int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.days[m.current]
	if d == nil || minute < 0 || minute >= MinutesPerDay {
		return 0
	}
	return len(d.minutes[minute])
}

// DataDensity splits the current day into n equal time bins and returns each bin's point
// count normalised to the busiest bin (0..1). An empty day yields all zeros.
func (m *TimelineManager) DataDensity(n int) []float64 {
	if n <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]float64, n)
	d := m.days[m.current]
	if d == nil {
		return out
	}
	maxCount := 0.0
	for minute, idxs := range d.minutes {
		if len(idxs) == 0 {
			continue
		}
		bin := minute * n / MinutesPerDay
		out[bin] += float64(len(idxs))
		if out[bin] > maxCount {
			maxCount = out[bin]
		}
	}
	if maxCount == 0 {
		return out
	}
	for i := range out {
		out[i] /= maxCount
	}
	return out
}

func clampMinute(m int) int {
	if m < 0 {
		return 0
	}
	if m >= MinutesPerDay {
		return MinutesPerDay - 1
	}
	return m
}
