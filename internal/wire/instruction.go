package wire

const (
	KeySpeed   = "speed"
	KeyCourse  = "course"
	KeyPosts   = "posts"
	KeyCtrlMsg = "ctrl_msg"
)

// Control messages understood by the vehicle side.
const (
	// CtrlSendState asks the vehicle to apply the instruction and reply
	// with a fresh state.
	CtrlSendState = "SEND_STATE"
	// CtrlPause halts the vehicle; it sends no state until asked again.
	CtrlPause = "PAUSE"
)

// Action is a motion decision plus side-effect posts.
type Action struct {
	Speed  float64           `json:"speed"`
	Course float64           `json:"course"`
	Posts  map[string]string `json:"posts,omitempty"`
}

// Instruction is an Action as sent to a vehicle, with the control message
// telling it what to do next.
type Instruction struct {
	Action
	CtrlMsg string `json:"ctrl_msg"`
}

func postsToAny(posts map[string]string) map[string]any {
	out := make(map[string]any, len(posts))
	for k, v := range posts {
		out[k] = v
	}
	return out
}

func (a Action) toMap() map[string]any {
	return map[string]any{
		KeySpeed:  a.Speed,
		KeyCourse: a.Course,
		KeyPosts:  postsToAny(a.Posts),
	}
}

func actionFromMap(m map[string]any) (Action, error) {
	var (
		a   Action
		err error
	)
	if a.Speed, err = coerceFloat(m, KeySpeed); err != nil {
		return Action{}, err
	}
	if a.Course, err = coerceFloat(m, KeyCourse); err != nil {
		return Action{}, err
	}
	switch p := m[KeyPosts].(type) {
	case nil:
		a.Posts = map[string]string{}
	case map[string]any:
		a.Posts = make(map[string]string, len(p))
		for k, v := range p {
			s, ok := v.(string)
			if !ok {
				return Action{}, wrongType(KeyPosts+"."+k, "string", v)
			}
			a.Posts[k] = s
		}
	default:
		return Action{}, wrongType(KeyPosts, "map", p)
	}
	return a, nil
}

// EncodeAction serializes a bare action (no control message).
func EncodeAction(a Action) ([]byte, error) {
	return marshal(a.toMap())
}

// DecodeAction parses and validates an action payload. Numeric strings
// are accepted for speed and course.
func DecodeAction(payload []byte) (Action, error) {
	m, err := unmarshalMap(payload)
	if err != nil {
		return Action{}, err
	}
	return actionFromMap(m)
}

// EncodeInstruction serializes an instruction for the vehicle.
func EncodeInstruction(in Instruction) ([]byte, error) {
	m := in.toMap()
	m[KeyCtrlMsg] = in.CtrlMsg
	return marshal(m)
}

// DecodeInstruction parses and validates an instruction payload.
func DecodeInstruction(payload []byte) (Instruction, error) {
	m, err := unmarshalMap(payload)
	if err != nil {
		return Instruction{}, err
	}
	a, err := actionFromMap(m)
	if err != nil {
		return Instruction{}, err
	}
	in := Instruction{Action: a}
	switch c := m[KeyCtrlMsg].(type) {
	case nil:
	case string:
		in.CtrlMsg = c
	default:
		return Instruction{}, wrongType(KeyCtrlMsg, "string", c)
	}
	return in, nil
}

// WithCtrl returns the action as an instruction carrying ctrl.
func (a Action) WithCtrl(ctrl string) Instruction {
	return Instruction{Action: a, CtrlMsg: ctrl}
}
