package models

// DuplicatePolicy decides what adding a film that is already in the
// library does.
type DuplicatePolicy string

const (
	// DuplicateConfirm asks the user before adding the film again.
	DuplicateConfirm DuplicatePolicy = "confirm"
	// DuplicateAllow adds the film again and says so.
	DuplicateAllow DuplicatePolicy = "allow"
	// DuplicateReject refuses the add.
	DuplicateReject DuplicatePolicy = "reject"
)

// Valid reports whether p is a known policy.
func (p DuplicatePolicy) Valid() bool {
	switch p {
	case DuplicateConfirm, DuplicateAllow, DuplicateReject:
		return true
	}
	return false
}
