package hue

// LightState is the state block of a v1 light resource.
type LightState struct {
	On        bool `json:"on"`
	Bri       int  `json:"bri"`
	Sat       *int `json:"sat,omitempty"`
	Hue       *int `json:"hue,omitempty"`
	Reachable bool `json:"reachable"`
}

// Light represents a Hue light (v1 API). The bridge returns lights as a map
// of index-string to this shape.
type Light struct {
	Name  string     `json:"name"`
	State LightState `json:"state"`
}

// Group represents a Hue group (v1 API), mapping a room name to the light
// indexes it contains.
type Group struct {
	Name   string   `json:"name"`
	Lights []string `json:"lights"`
}

// StateUpdate is the body of a light state PUT. Hue is a pointer so an
// explicit zero survives marshalling while an unset hue is omitted entirely.
type StateUpdate struct {
	On  bool `json:"on"`
	Sat int  `json:"sat"`
	Bri int  `json:"bri"`
	Hue *int `json:"hue,omitempty"`
}

// apiResult is one entry of the array the v1 API returns for mutations.
type apiResult struct {
	Error *struct {
		Type        int    `json:"type"`
		Address     string `json:"address"`
		Description string `json:"description"`
	} `json:"error"`
}
