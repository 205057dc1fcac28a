package pathfinding

import "fmt"

type State int32

const (
	Unobstructed State = iota
	SearchingForPath
	FollowingPath
	FailedToFindPath
	// Crashed is terminal; the pathfinder ignores all further work.
	Crashed
)

func (s State) String() string {
	switch s {
	case Unobstructed:
		return "Unobstructed"
	case SearchingForPath:
		return "SearchingForPath"
	case FollowingPath:
		return "FollowingPath"
	case FailedToFindPath:
		return "FailedToFindPath"
	case Crashed:
		return "Crashed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}
