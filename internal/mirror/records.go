package mirror

import (
	"fmt"
	"time"
)

// DailyLog is one day of machine operation: hour meter reading, consumption,
// and free-form notes. The JSON form doubles as the queue payload for
// daily_log items.
type DailyLog struct {
	ID        string `json:"id"`
	MachineID string `json:"machine_id"`
	// Date is the operation day in YYYY-MM-DD form.
	Date string `json:"date"`
	// HoursMeter is the hour meter reading at end of day.
	HoursMeter   float64 `json:"hm"`
	FuelLiters   float64 `json:"fuel_liters,omitempty"`
	AreaHectares float64 `json:"area_hectares,omitempty"`
	Operator     string  `json:"operator,omitempty"`
	Notes        string  `json:"notes,omitempty"`

	Synced    bool      `json:"synced"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the fields a capture surface must fill in before enqueuing.
func (l *DailyLog) Validate() error {
	if l.ID == "" {
		return fmt.Errorf("id is required")
	}
	if l.MachineID == "" {
		return fmt.Errorf("machine_id is required")
	}
	if l.Date == "" {
		return fmt.Errorf("date is required")
	}
	if _, err := time.Parse("2006-01-02", l.Date); err != nil {
		return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	if l.HoursMeter < 0 {
		return fmt.Errorf("hm must not be negative (got %v)", l.HoursMeter)
	}
	return nil
}

// MaintenanceRecord documents service work performed on a machine.
type MaintenanceRecord struct {
	ID        string `json:"id"`
	MachineID string `json:"machine_id"`
	// Date is the service day in YYYY-MM-DD form.
	Date string `json:"date"`
	// Kind is the service category: oil_change, repair, inspection, other.
	Kind       string   `json:"kind"`
	HoursMeter float64  `json:"hm,omitempty"`
	Cost       float64  `json:"cost,omitempty"`
	Parts      []string `json:"parts,omitempty"`
	Notes      string   `json:"notes,omitempty"`

	Synced    bool      `json:"synced"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the fields a capture surface must fill in before enqueuing.
func (r *MaintenanceRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if r.MachineID == "" {
		return fmt.Errorf("machine_id is required")
	}
	if r.Date == "" {
		return fmt.Errorf("date is required")
	}
	if _, err := time.Parse("2006-01-02", r.Date); err != nil {
		return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	if r.Kind == "" {
		return fmt.Errorf("kind is required")
	}
	return nil
}

// Machine is the master-data record for a piece of field equipment.
type Machine struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Model        string  `json:"model,omitempty"`
	SerialNumber string  `json:"serial_number,omitempty"`
	HoursMeter   float64 `json:"hm,omitempty"`
	// Status is the operational state: active, idle, retired.
	Status string `json:"status,omitempty"`

	Synced    bool      `json:"synced"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the fields a capture surface must fill in before enqueuing.
func (m *Machine) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("id is required")
	}
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(m.Name) > 200 {
		return fmt.Errorf("name must be 200 characters or less (got %d)", len(m.Name))
	}
	return nil
}
