// Package services defines the business logic for clinics, staff, rooms,
// wizards, the dashboard, and authentication. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

var (
	// ErrClinicNotFound indicates that the requested clinic does not exist or
	// is not owned by the current user.
	ErrClinicNotFound = errors.New("clinic not found")

	// ErrLocationNotFound indicates that the requested location does not
	// exist or belongs to a clinic the user does not own.
	ErrLocationNotFound = errors.New("location not found")

	// ErrStaffNotFound indicates that the staff member does not exist or is
	// not accessible to the current user.
	ErrStaffNotFound = errors.New("staff member not found")

	// ErrRoomNotFound indicates that the room does not exist or is not
	// accessible to the current user.
	ErrRoomNotFound = errors.New("room not found")

	// ErrDuplicateStaff is returned when a staff email is already used in the
	// same clinic.
	ErrDuplicateStaff = errors.New("a staff member with this email already exists in the clinic")

	// ErrNoClinic is returned by the staff wizard when the user owns no
	// clinic to assign staff to.
	ErrNoClinic = errors.New("create a clinic first")

	// ErrInvalidTimeframe is returned for a timeframe outside day, week,
	// month and year.
	ErrInvalidTimeframe = errors.New("invalid timeframe")

	// ErrInvalidAction is returned by wizard navigation for an unknown action.
	ErrInvalidAction = errors.New("invalid navigation action")

	// ErrFetchFailed wraps storage failures behind dashboard metrics; callers
	// may retry.
	ErrFetchFailed = errors.New("failed to load metrics")
)
