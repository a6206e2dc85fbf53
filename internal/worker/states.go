package worker

type Phase int32

const (
	AwaitInitialize Phase = iota
	Ready
	Evaluating
	Reporting
)

func (p Phase) String() string {
	switch p {
	case AwaitInitialize:
		return "await-initialize"
	case Ready:
		return "ready"
	case Evaluating:
		return "evaluating"
	case Reporting:
		return "reporting"
	default:
		return "unknown"
	}
}
