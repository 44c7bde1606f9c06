// Package domain defines the persistence models for clinics, locations,
// staff, rooms and equipment. These types are mapped with GORM and form the
// core data layer of the FaceCloud backend.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Staff roles accepted by the staff wizard.
const (
	RoleOwner           = "owner"
	RoleNurse           = "nurse"
	RoleDoctor          = "doctor"
	RoleDermalTherapist = "dermal_therapist"
	RoleReception       = "reception"
)

// Room kinds accepted by the room wizard.
const (
	RoomTreatment = "treatment"
	RoomConsult   = "consult"
	RoomStorage   = "storage"
)

// Clinic is a tenant-owned business. Every clinic has at least one Location;
// the clinic wizard creates both in one transaction.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - OwnerID: user that created the clinic; every query is scoped by it.
//   - Name / Email / Phone: public contact details.
//   - ABN: optional Australian Business Number (11 digits).
//   - LogoPath: object-storage path of the uploaded logo, if any.
//   - DeletedAt: soft deletion marker.
type Clinic struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	OwnerID   string         `json:"owner_id"   gorm:"type:char(36);not null;index:idx_owner_clinics"`
	Name      string         `json:"name"       gorm:"type:varchar(120);not null"`
	Email     string         `json:"email"      gorm:"type:varchar(255);not null"`
	Phone     string         `json:"phone"      gorm:"type:varchar(32);not null"`
	ABN       string         `json:"abn,omitempty" gorm:"type:varchar(11)"`
	LogoPath  string         `json:"logo_path,omitempty" gorm:"type:varchar(512)"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`

	Locations []Location `json:"locations,omitempty" gorm:"foreignKey:ClinicID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Clinic.
func (Clinic) TableName() string { return "clinics" }

// Location is a physical site of a clinic.
type Location struct {
	ID        string    `json:"id"        gorm:"type:char(36);primaryKey"`
	ClinicID  string    `json:"clinic_id" gorm:"type:char(36);not null;index"`
	Address   string    `json:"address"   gorm:"type:varchar(255);not null"`
	Suburb    string    `json:"suburb"    gorm:"type:varchar(120);not null"`
	State     string    `json:"state"     gorm:"type:varchar(3);not null"`
	Postcode  string    `json:"postcode"  gorm:"type:varchar(4);not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Hours []OperatingHour `json:"hours,omitempty" gorm:"foreignKey:LocationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Location.
func (Location) TableName() string { return "locations" }

// OperatingHour is one weekday row of a location's trading hours.
// Weekday follows time.Weekday (0 = Sunday). OpensAt/ClosesAt are "HH:MM"
// and are empty when Open is false.
type OperatingHour struct {
	ID         string `json:"-"         gorm:"type:char(36);primaryKey"`
	LocationID string `json:"-"         gorm:"type:char(36);not null;uniqueIndex:ux_location_weekday"`
	Weekday    int    `json:"weekday"   gorm:"not null;uniqueIndex:ux_location_weekday;check:weekday BETWEEN 0 AND 6"`
	Open       bool   `json:"open"      gorm:"not null"`
	OpensAt    string `json:"opens_at,omitempty"  gorm:"type:varchar(5)"`
	ClosesAt   string `json:"closes_at,omitempty" gorm:"type:varchar(5)"`
}

// TableName returns the database table name for OperatingHour.
func (OperatingHour) TableName() string { return "operating_hours" }

// StaffMember is a person working at a clinic. UserID is set once the
// invited staff member has an account.
type StaffMember struct {
	ID          string         `json:"id"          gorm:"type:char(36);primaryKey"`
	ClinicID    string         `json:"clinic_id"   gorm:"type:char(36);not null;index;uniqueIndex:ux_staff_clinic_email"`
	UserID      *string        `json:"user_id,omitempty" gorm:"type:char(36);index"`
	FirstName   string         `json:"first_name"  gorm:"type:varchar(80);not null"`
	LastName    string         `json:"last_name"   gorm:"type:varchar(80);not null"`
	Email       string         `json:"email"       gorm:"type:varchar(255);not null;uniqueIndex:ux_staff_clinic_email"`
	Role        string         `json:"role"        gorm:"type:varchar(32);not null"`
	AHPRANumber string         `json:"ahpra_number,omitempty" gorm:"type:varchar(13)"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-"           gorm:"index"`

	Clinic Clinic `json:"-" gorm:"foreignKey:ClinicID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for StaffMember.
func (StaffMember) TableName() string { return "staff_members" }

// Room is a bookable space in a location.
type Room struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	LocationID string    `json:"location_id" gorm:"type:char(36);not null;index"`
	Name       string    `json:"name"        gorm:"type:varchar(80);not null"`
	Kind       string    `json:"kind"        gorm:"type:varchar(16);not null"`
	Capacity   int       `json:"capacity"    gorm:"not null;default:1"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Equipment []Equipment `json:"equipment,omitempty" gorm:"foreignKey:RoomID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Location  Location    `json:"-" gorm:"foreignKey:LocationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Room.
func (Room) TableName() string { return "rooms" }

// Equipment is a device kept in a room.
type Equipment struct {
	ID        string    `json:"id"      gorm:"type:char(36);primaryKey"`
	RoomID    string    `json:"room_id" gorm:"type:char(36);not null;index"`
	Name      string    `json:"name"    gorm:"type:varchar(120);not null"`
	Serial    string    `json:"serial,omitempty" gorm:"type:varchar(64)"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Equipment.
func (Equipment) TableName() string { return "equipment" }
