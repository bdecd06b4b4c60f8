package model

import "time"

// Entity type names of the dashboard's registered record kinds.
const (
	EntityAppointment = "Appointment"
	EntityPatient     = "Patient"
	EntityAttendance  = "AttendanceRecord"
	EntityInventory   = "InventoryItem"
	EntityRole        = "Role"
)

type Appointment struct {
	ID             string    `json:"id"`
	ClinicID       string    `json:"clinic_id,omitempty"`
	PatientID      string    `json:"patient_id,omitempty"`
	PractitionerID string    `json:"practitioner_id,omitempty"`
	Status         string    `json:"status"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	Notes          string    `json:"notes,omitempty"`
}

func (a Appointment) EntityID() string { return a.ID }

type Patient struct {
	ID          string `json:"id"`
	ClinicID    string `json:"clinic_id,omitempty"`
	FullName    string `json:"full_name"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
}

func (p Patient) EntityID() string { return p.ID }

type AttendanceRecord struct {
	ID       string     `json:"id"`
	ClinicID string     `json:"clinic_id,omitempty"`
	StaffID  string     `json:"staff_id"`
	Date     string     `json:"date"`
	CheckIn  time.Time  `json:"check_in"`
	CheckOut *time.Time `json:"check_out,omitempty"`
}

func (r AttendanceRecord) EntityID() string { return r.ID }

type InventoryItem struct {
	ID       string `json:"id"`
	ClinicID string `json:"clinic_id,omitempty"`
	SKU      string `json:"sku"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Unit     string `json:"unit,omitempty"`
}

func (i InventoryItem) EntityID() string { return i.ID }

type Role struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions,omitempty"`
}

func (r Role) EntityID() string { return r.ID }
