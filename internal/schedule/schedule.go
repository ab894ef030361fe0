// Package schedule projects bookings onto a worker's calendar.
package schedule

import (
	"sort"
	"time"

	"servicenest/internal/models"
)

// Cell addresses one hour of one day in the week grid.
type Cell struct {
	Date models.Date
	Hour int
}

// Grid maps calendar cells to the bookings starting in them.
type Grid struct {
	WeekStart models.Date
	Days      []models.Date
	cells     map[Cell][]models.Booking
}

// Hours returns the grid rows, first to last hour inclusive.
func Hours() []int {
	hours := make([]int, 0, models.CalendarLastHour-models.CalendarFirstHour+1)
	for h := models.CalendarFirstHour; h <= models.CalendarLastHour; h++ {
		hours = append(hours, h)
	}
	return hours
}

// WeekStart returns the Monday of the week containing d.
func WeekStart(d models.Date) models.Date {
	wd := d.Weekday()
	if wd < 0 {
		return d
	}
	// Sunday belongs to the week that started six days earlier.
	offset := (int(wd) + 6) % 7
	return d.AddDays(-offset)
}

// WeekGrid places accepted and in-progress bookings of the seven days from
// weekStart by the start hour of their slot. Bookings with unparsable slots or
// hours outside the grid are left out.
func WeekGrid(weekStart models.Date, bookings []models.Booking) Grid {
	g := Grid{
		WeekStart: weekStart,
		Days:      make([]models.Date, 0, models.DaysPerWeek),
		cells:     make(map[Cell][]models.Booking),
	}
	inWeek := make(map[models.Date]bool, models.DaysPerWeek)
	for i := 0; i < models.DaysPerWeek; i++ {
		d := weekStart.AddDays(i)
		g.Days = append(g.Days, d)
		inWeek[d] = true
	}

	for _, b := range bookings {
		if !b.Status.Active() || !inWeek[b.ServiceDate] {
			continue
		}
		h, err := b.ServiceTime.StartHour()
		if err != nil || h < models.CalendarFirstHour || h > models.CalendarLastHour {
			continue
		}
		c := Cell{Date: b.ServiceDate, Hour: h}
		g.cells[c] = append(g.cells[c], b)
	}
	for c := range g.cells {
		SortBySchedule(g.cells[c])
	}
	return g
}

// At returns the bookings starting in the given cell.
func (g Grid) At(date models.Date, hour int) []models.Booking {
	return g.cells[Cell{Date: date, Hour: hour}]
}

// Count returns the number of placed bookings.
func (g Grid) Count() int {
	n := 0
	for _, bs := range g.cells {
		n += len(bs)
	}
	return n
}

// Today returns active bookings scheduled on today, earliest slot first.
func Today(bookings []models.Booking, today models.Date) []models.Booking {
	var out []models.Booking
	for _, b := range bookings {
		if b.Status.Active() && b.ServiceDate == today {
			out = append(out, b)
		}
	}
	SortBySchedule(out)
	return out
}

// Upcoming returns active bookings strictly after today, by date then slot start.
func Upcoming(bookings []models.Booking, today models.Date) []models.Booking {
	var out []models.Booking
	for _, b := range bookings {
		if b.Status.Active() && b.ServiceDate.After(today) {
			out = append(out, b)
		}
	}
	SortBySchedule(out)
	return out
}

// SortBySchedule orders bookings by service date, then slot start time, then id.
func SortBySchedule(bookings []models.Booking) {
	sort.SliceStable(bookings, func(i, j int) bool {
		a, b := bookings[i], bookings[j]
		if a.ServiceDate != b.ServiceDate {
			return a.ServiceDate < b.ServiceDate
		}
		am, bm := a.ServiceTime.StartMinutes(), b.ServiceTime.StartMinutes()
		if am != bm {
			return am < bm
		}
		return a.ID < b.ID
	})
}

// Availability is a worker's weekly working pattern.
type Availability struct {
	Days       []time.Weekday `yaml:"days" json:"days"`
	StartHour  int            `yaml:"start_hour" json:"start_hour"`
	EndHour    int            `yaml:"end_hour" json:"end_hour"`
	BreakStart int            `yaml:"break_start" json:"break_start"`
	BreakEnd   int            `yaml:"break_end" json:"break_end"`
}

// DefaultAvailability: понедельник-пятница, 9:00-17:00, перерыв 13:00-14:00
func DefaultAvailability() Availability {
	return Availability{
		Days:       []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		StartHour:  9,
		EndHour:    17,
		BreakStart: 13,
		BreakEnd:   14,
	}
}

// Works reports whether the worker takes jobs starting at hour on date.
func (a Availability) Works(date models.Date, hour int) bool {
	wd := date.Weekday()
	if wd < 0 {
		return false
	}
	worksDay := false
	for _, d := range a.Days {
		if d == wd {
			worksDay = true
			break
		}
	}
	if !worksDay || hour < a.StartHour || hour >= a.EndHour {
		return false
	}
	if a.BreakEnd > a.BreakStart && hour >= a.BreakStart && hour < a.BreakEnd {
		return false
	}
	return true
}

// FreeSlots lists the cells of the grid inside the availability that hold no booking.
func (g Grid) FreeSlots(a Availability) []Cell {
	var out []Cell
	for _, d := range g.Days {
		for _, h := range Hours() {
			if !a.Works(d, h) {
				continue
			}
			if len(g.At(d, h)) == 0 {
				out = append(out, Cell{Date: d, Hour: h})
			}
		}
	}
	return out
}
