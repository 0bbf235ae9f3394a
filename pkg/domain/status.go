package domain

import dErrors "flock/pkg/domain-errors"

// AttendanceStatus is the recorded state of one member for one session.
type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "present"
	StatusAbsent  AttendanceStatus = "absent"
	StatusExcused AttendanceStatus = "excused"
)

// IsValid reports whether the status is one of the closed set.
func (s AttendanceStatus) IsValid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusExcused:
		return true
	}
	return false
}

// ParseAttendanceStatus parses and validates a status at a trust boundary.
func ParseAttendanceStatus(raw string) (AttendanceStatus, error) {
	status := AttendanceStatus(raw)
	if !status.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "status must be one of present, absent, excused")
	}
	return status, nil
}

// ServiceType names a recurring kind of gathering ("sunday_first",
// "midweek", ...). Free-form from this subsystem's perspective; the
// metadata collaborator owns the catalogue.
type ServiceType string

// GroupBy selects the grouping dimension for analytics queries.
type GroupBy string

const (
	GroupByService  GroupBy = "service"
	GroupByMinistry GroupBy = "ministry"
	GroupByCombined GroupBy = "combined"
)

// IsValid reports whether the grouping is one of the closed set.
func (g GroupBy) IsValid() bool {
	switch g {
	case GroupByService, GroupByMinistry, GroupByCombined:
		return true
	}
	return false
}
