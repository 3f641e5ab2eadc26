package wire

// Transition is a logged (state, action, next-state) triple.
type Transition struct {
	S1 State  `json:"s1"`
	A  Action `json:"a"`
	S2 State  `json:"s2"`
}

const (
	keyS1 = "s1"
	keyA  = "a"
	keyS2 = "s2"
)

// EncodeTransition serializes t as one transition-log record.
func EncodeTransition(t Transition) ([]byte, error) {
	return marshal(map[string]any{
		keyS1: t.S1.toMap(),
		keyA:  t.A.toMap(),
		keyS2: t.S2.toMap(),
	})
}

// DecodeTransition parses one transition-log record.
func DecodeTransition(record []byte) (Transition, error) {
	m, err := unmarshalMap(record)
	if err != nil {
		return Transition{}, err
	}
	var t Transition
	s1, ok := m[keyS1].(map[string]any)
	if !ok {
		return Transition{}, wrongType(keyS1, "map", m[keyS1])
	}
	if t.S1, err = stateFromMap(s1); err != nil {
		return Transition{}, prefixField(keyS1, err)
	}
	a, ok := m[keyA].(map[string]any)
	if !ok {
		return Transition{}, wrongType(keyA, "map", m[keyA])
	}
	if t.A, err = actionFromMap(a); err != nil {
		return Transition{}, prefixField(keyA, err)
	}
	s2, ok := m[keyS2].(map[string]any)
	if !ok {
		return Transition{}, wrongType(keyS2, "map", m[keyS2])
	}
	if t.S2, err = stateFromMap(s2); err != nil {
		return Transition{}, prefixField(keyS2, err)
	}
	return t, nil
}
