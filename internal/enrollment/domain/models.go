package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusDropped   Status = "dropped"
)

// Enrollment is created once per (student, course) and never mutated by the
// enrollment workflow. Paid enrollments carry the capture id of the payment.
type Enrollment struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	StudentID        snowflake.ID `gorm:"not null" json:"studentId"`
	CourseID         snowflake.ID `gorm:"not null" json:"courseId"`
	Status           Status       `gorm:"not null;default:active" json:"status"`
	EnrolledAt       time.Time    `gorm:"not null" json:"enrolledAt"`
	PaymentReference *string      `json:"paymentReference,omitempty"`
	PaymentProvider  *string      `json:"paymentProvider,omitempty"`
	CreatedAt        time.Time    `gorm:"not null" json:"createdAt"`
	UpdatedAt        time.Time    `gorm:"not null" json:"updatedAt"`

	// Joined from users by ListByCourse. Never written.
	StudentName  string `gorm:"->" json:"studentName,omitempty"`
	StudentEmail string `gorm:"->" json:"studentEmail,omitempty"`
}

func (Enrollment) TableName() string { return "enrollments" }

// Paid reports whether the enrollment is linked to a captured payment.
func (e Enrollment) Paid() bool {
	return e.PaymentReference != nil && *e.PaymentReference != ""
}
