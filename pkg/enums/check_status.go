package enums

// CheckStatus is the moderation/lifecycle state of a Pair. Values >=
// CheckStatusDifferentItems are unsuitable and age out of the store.
type CheckStatus int16

const (
	CheckStatusUnchecked        CheckStatus = 0
	CheckStatusApproved         CheckStatus = 1
	CheckStatusDifferentItems   CheckStatus = 2
	CheckStatusDifferentPackage CheckStatus = 3
	CheckStatusCannotList       CheckStatus = 4
	CheckStatusCustomReason     CheckStatus = 5
	CheckStatusClosedByOwner    CheckStatus = 6
)

// Unsuitable reports whether the pair failed moderation or listing.
func (s CheckStatus) Unsuitable() bool {
	return s >= CheckStatusDifferentItems
}

func (s CheckStatus) String() string {
	switch s {
	case CheckStatusUnchecked:
		return "unchecked"
	case CheckStatusApproved:
		return "approved"
	case CheckStatusDifferentItems:
		return "different items"
	case CheckStatusDifferentPackage:
		return "different package"
	case CheckStatusCannotList:
		return "cannot be added to the store"
	case CheckStatusCustomReason:
		return "custom reason"
	case CheckStatusClosedByOwner:
		return "closed by owner"
	default:
		return "unknown"
	}
}
