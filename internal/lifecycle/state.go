package lifecycle

import "encoding/json"

// State is the dormant/active position of the controller. It says nothing
// about whether the process is running at all; that is the machine's
// running flag.
type State int

const (
	Dormant State = iota
	Active
)

var stateNames = map[State]string{
	Dormant: "dormant",
	Active:  "active",
}

var stateFromName = map[string]State{
	"dormant": Dormant,
	"active":  Active,
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	if v, ok := stateFromName[name]; ok {
		*s = v
	}
	return nil
}
