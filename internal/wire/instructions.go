package wire

// EpisodeCtrlVar is the vehicle variable read by the remote episode
// manager.
const EpisodeCtrlVar = "EPISODE_MGR_CTRL"

// Values posted to EpisodeCtrlVar.
const (
	EpisodeCtrlStart        = "type=start"
	EpisodeCtrlPause        = "type=pause"
	EpisodeCtrlHardStop     = "type=hardstop"
	EpisodeCtrlResetSuccess = "type=reset,success=true"
	EpisodeCtrlResetFailure = "type=reset,success=false"
)

// Canonical instructions synthesized by the mission manager. They are
// shared values; treat them as read-only.
var (
	RequestState = Instruction{
		Action:  Action{Posts: map[string]string{}},
		CtrlMsg: CtrlSendState,
	}
	Start = Instruction{
		Action:  Action{Posts: map[string]string{EpisodeCtrlVar: EpisodeCtrlStart}},
		CtrlMsg: CtrlSendState,
	}
	Pause = Instruction{
		Action:  Action{Posts: map[string]string{EpisodeCtrlVar: EpisodeCtrlPause}},
		CtrlMsg: CtrlSendState,
	}
	Stop = Instruction{
		Action:  Action{Posts: map[string]string{EpisodeCtrlVar: EpisodeCtrlHardStop}},
		CtrlMsg: CtrlSendState,
	}
	// ResetSuccess and ResetFailure are must-posts: they carry no control
	// message and the vehicle does not answer them with a state.
	ResetSuccess = Instruction{
		Action: Action{Posts: map[string]string{EpisodeCtrlVar: EpisodeCtrlResetSuccess}},
	}
	ResetFailure = Instruction{
		Action: Action{Posts: map[string]string{EpisodeCtrlVar: EpisodeCtrlResetFailure}},
	}
)

// Reset returns the canonical reset instruction for the given outcome.
func Reset(success bool) Instruction {
	if success {
		return ResetSuccess
	}
	return ResetFailure
}

// Halt stops the vehicle without requesting another state.
var Halt = Instruction{
	Action:  Action{Posts: map[string]string{}},
	CtrlMsg: CtrlPause,
}
