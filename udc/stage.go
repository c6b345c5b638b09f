package udc

// Stage is the current phase of the EP0 control-transfer protocol. It is
// advanced only by the control state machine and never regresses within a
// transfer: Setup precedes one of DataOut, DataIn or NoData, which precedes
// one of StatusOut or StatusIn; completing a status stage returns to Setup
// for the next request.
type Stage uint8

const (
	StageSetup Stage = iota
	StageDataOut
	StageDataIn
	StageNoData
	StageStatusOut
	StageStatusIn
)

func (s Stage) String() string {
	switch s {
	case StageSetup:
		return "SETUP"
	case StageDataOut:
		return "DATA_OUT"
	case StageDataIn:
		return "DATA_IN"
	case StageNoData:
		return "NO_DATA"
	case StageStatusOut:
		return "STATUS_OUT"
	case StageStatusIn:
		return "STATUS_IN"
	default:
		return "INVALID"
	}
}

// stageFromSetup derives the stage following SETUP from the packet's
// direction and length fields: no data stage for a zero length, otherwise a
// data stage in the requested direction.
func stageFromSetup(p SetupPacket) Stage {
	if p.Length == 0 {
		return StageNoData
	}
	if p.DirectionIn() {
		return StageDataIn
	}
	return StageDataOut
}
