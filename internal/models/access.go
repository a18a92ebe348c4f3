package models

// AccessLevel is the permission grant a user holds on a location.
// Levels form a total order: None < View < Edit < Owner.
type AccessLevel int

const (
	AccessNone AccessLevel = iota
	AccessView
	AccessEdit
	AccessOwner
)

func (l AccessLevel) String() string {
	switch l {
	case AccessView:
		return "view"
	case AccessEdit:
		return "edit"
	case AccessOwner:
		return "owner"
	default:
		return "none"
	}
}

// Meets reports whether the grant satisfies the required minimum level.
func (l AccessLevel) Meets(min AccessLevel) bool {
	return l >= min
}

// ParseAccessLevel maps the stored/API string form back to a level.
// Unknown strings degrade to AccessNone.
func ParseAccessLevel(s string) AccessLevel {
	switch s {
	case "view":
		return AccessView
	case "edit":
		return AccessEdit
	case "owner":
		return AccessOwner
	}
	return AccessNone
}

// UserLocation is a single (user, location) grant row.
type UserLocation struct {
	UserID      string      `json:"user_id" db:"user_id"`
	LocationID  int64       `json:"location_id" db:"location_id"`
	AccessLevel AccessLevel `json:"access_level" db:"access_level"`
}
