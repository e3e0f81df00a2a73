package model

import (
	"fmt"
	"regexp"
	"time"
)

// DateLayout is the calendar-day format used on the wire.
const DateLayout = "2006-01-02"

// FilterAll selects every date.
const FilterAll = "all"

// TimeSlot is one of the fixed exam sessions.
type TimeSlot string

const (
	SlotMorning   TimeSlot = "08:00-12:00"
	SlotAfternoon TimeSlot = "12:00-15:00"
)

// TimeSlots lists the valid slots in display order.
var TimeSlots = []TimeSlot{SlotMorning, SlotAfternoon}

// Valid reports whether s is a known slot.
func (s TimeSlot) Valid() bool {
	for _, v := range TimeSlots {
		if s == v {
			return true
		}
	}
	return false
}

var rfidPattern = regexp.MustCompile(`^\d{10}$`)

// ValidRFIDTag reports whether tag is exactly ten digits.
func ValidRFIDTag(tag string) bool {
	return rfidPattern.MatchString(tag)
}

// ParseDate parses a YYYY-MM-DD calendar day.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return d, nil
}

// Today returns the local calendar day of now.
func Today(now time.Time) string {
	return now.Format(DateLayout)
}

// Faculty is an invigilator. Admins manage the system and are never allocated.
type Faculty struct {
	ID           int64  `json:"faculty_id"`
	Name         string `json:"name"`
	MobileNumber string `json:"mobile_number"`
	Email        string `json:"email_id"`
	RFIDTag      string `json:"rfid_tag,omitempty"`
	IsAdmin      bool   `json:"is_admin"`
}

// Venue is an exam room.
type Venue struct {
	ID       int64  `json:"venue_id"`
	Name     string `json:"name"`
	Location string `json:"location"`
	Capacity int    `json:"capacity"`
}

// Allocation assigns one faculty to one venue for a date and slot.
type Allocation struct {
	ID            int64    `json:"allocation_id"`
	FacultyID     int64    `json:"faculty_id"`
	FacultyName   string   `json:"faculty_name"`
	VenueID       int64    `json:"venue_id"`
	VenueName     string   `json:"venue_name"`
	VenueLocation string   `json:"venue_location"`
	Date          string   `json:"date"`
	TimeSlot      TimeSlot `json:"time_slot"`
	IsPresent     bool     `json:"is_present"`
}

// AttendanceRecord is the attendance view of one allocation.
type AttendanceRecord struct {
	ID           int64    `json:"id"`
	AllocationID int64    `json:"allocation_id"`
	FacultyID    int64    `json:"faculty_id"`
	FacultyName  string   `json:"faculty_name"`
	RFIDTag      string   `json:"rfid_tag"`
	VenueName    string   `json:"venue_name"`
	Date         string   `json:"date"`
	TimeSlot     TimeSlot `json:"time_slot"`
	IsPresent    bool     `json:"is_present"`
}

// User is the identity behind a session.
type User struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin,omitempty"`
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	IsAdmin bool   `json:"is_admin"`
	User    User   `json:"user"`
}

// GenerateRequest asks the service to (re)build the allocations of one date and slot.
type GenerateRequest struct {
	Date            string   `json:"date" binding:"required"`
	TimeSlot        TimeSlot `json:"time_slot" binding:"required,timeslot"`
	FacultyPerVenue int      `json:"faculty_per_venue" binding:"required,min=1"`
}

// MarkRequest is the attendance mutation payload. Exactly one of RFIDTag or
// AllocationID is set for kiosk and override marks; neither for self marks.
type MarkRequest struct {
	RFIDTag      string `json:"rfid_tag,omitempty"`
	AllocationID int64  `json:"allocation_id,omitempty"`
	Date         string `json:"date"`
}

// ImportResult summarises a bulk import.
type ImportResult struct {
	Imported int `json:"imported"`
	Updated  int `json:"updated"`
}
