package agent

// State is the position of a Controller in the agent cycle.
type State int

const (
	Idle State = iota
	AwaitingModel
	ParsingTools
	AwaitingReview
	Continuing
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingModel:
		return "awaiting_model"
	case ParsingTools:
		return "parsing_tools"
	case AwaitingReview:
		return "awaiting_review"
	case Continuing:
		return "continuing"
	case Error:
		return "error"
	}
	return "unknown"
}
