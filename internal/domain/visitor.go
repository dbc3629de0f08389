// Package domain holds the record types the core persists and backs up.
package domain

import "time"

// Visitor is one entry in the visitor log.
//
// Optional fields are pointers so that "absent" survives a CSV round trip
// distinctly from an empty value in JSON.
type Visitor struct {
	ID             string     `json:"id" validate:"required"`
	Name           string     `json:"name" validate:"required"`
	Company        *string    `json:"company,omitempty"`
	HostName       *string    `json:"hostName,omitempty"`
	Purpose        *string    `json:"purpose,omitempty"`
	BadgeNumber    *string    `json:"badgeNumber,omitempty"`
	CheckInTime    time.Time  `json:"checkInTime" validate:"required"`
	CheckOutTime   *time.Time `json:"checkOutTime,omitempty" validate:"omitempty,gtefield=CheckInTime"`
	Notes          *string    `json:"notes,omitempty"`
	NDASigned      bool       `json:"ndaSigned"`
	EscortRequired bool       `json:"escortRequired"`
}

