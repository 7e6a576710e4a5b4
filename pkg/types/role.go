package types

// role a node plays after joining
// set once per successful join and never changes afterwards
type Role uint

const (
	RoleUnresolved Role = iota
	RoleCoordinator
	RoleParticipant
)

func (r Role) String() string {
	switch r {
	case RoleCoordinator:
		return "coordinator"
	case RoleParticipant:
		return "participant"
	default:
		return "unresolved"
	}
}
