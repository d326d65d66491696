package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	PolicyName      string `json:"policy_name,omitempty"`

	// ResetParameters optionally overrides the curriculum for this session,
	// keyed like the trainer's reset parameters ("hive_radius", "use_radius").
	ResetParameters map[string]float64 `json:"reset_parameters,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string             `json:"type"`
	ProtocolVersion string             `json:"protocol_version"`
	SessionID       string             `json:"session_id"`
	ObservationSize int                `json:"observation_size"`
	ActionSizes     []int              `json:"action_sizes"`
	MaxSteps        int                `json:"max_steps"`
	DT              float64            `json:"dt"`
	ResetParameters map[string]float64 `json:"reset_parameters"`
}

// OBS (server -> client), sent after WELCOME and after every ACT.
type ObsMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	Episode         int       `json:"episode"`
	Step            int       `json:"step"`
	Observation     []float64 `json:"observation"`
	Reward          float64   `json:"reward"`
	Done            bool      `json:"done"`
}

// ACT (client -> server). Action is [thrust, yaw] or [thrust, pitch, yaw].
type ActMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	Step            int       `json:"step"`
	Action          []float64 `json:"action"`
	Reset           bool      `json:"reset,omitempty"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}
