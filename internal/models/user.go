package models

import (
	"time"

	"gorm.io/gorm"
)

type UserRole string

const (
	UserRoleStudent    UserRole = "STUDENT"
	UserRoleTutor      UserRole = "TUTOR"
	UserRoleAdmin      UserRole = "ADMIN"
	UserRoleSuperAdmin UserRole = "SUPER_ADMIN"
)

type User struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	FirebaseUID string   `gorm:"type:varchar(128);uniqueIndex" json:"firebase_uid"`
	Email       string   `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	FirstName   string   `gorm:"type:varchar(100)" json:"first_name"`
	LastName    string   `gorm:"type:varchar(100)" json:"last_name"`
	PhoneNumber string   `gorm:"type:varchar(30)" json:"phone_number"`
	Role        UserRole `gorm:"type:varchar(20);default:'STUDENT'" json:"role"`
	IsActive    bool     `gorm:"default:true" json:"is_active"`
}

// IsAdmin reports whether the user holds an administrative role.
func (u User) IsAdmin() bool {
	return u.Role == UserRoleAdmin || u.Role == UserRoleSuperAdmin
}
