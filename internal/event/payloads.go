package event

// Typed payloads for the events the services consume. Producers build map
// payloads via Envelope; consumers decode into these.

// RunStarted announces a new run. Seed/robots/jobs are optional; consumers
// fall back to their configured defaults.
type RunStarted struct {
	EventID string `json:"event_id"`
	RunID   string `json:"run_id"`
	Mode    string `json:"mode"`
	Seed    *int64 `json:"seed"`
	Scale   string `json:"scale"`
	Robots  *int   `json:"robots"`
	Jobs    *int   `json:"jobs"`
}

// JobCreated carries a generated job's definition at sim start.
type JobCreated struct {
	EventID    string  `json:"event_id"`
	RunID      string  `json:"run_id"`
	SimTimeS   int     `json:"sim_time_s"`
	JobID      string  `json:"job_id"`
	PickupX    float64 `json:"pickup_x"`
	PickupY    float64 `json:"pickup_y"`
	DropoffX   float64 `json:"dropoff_x"`
	DropoffY   float64 `json:"dropoff_y"`
	DeadlineTS int     `json:"deadline_ts"`
	Priority   int     `json:"priority"`
	State      string  `json:"state"`
}

// RobotUpdated carries a robot state/position update. RobotID, State and
// SimTimeS are required; the dispatcher drops payloads missing any of them.
type RobotUpdated struct {
	EventID      string   `json:"event_id"`
	RunID        string   `json:"run_id"`
	RobotID      *int     `json:"robot_id"`
	State        *string  `json:"state"`
	SimTimeS     *int     `json:"sim_time_s"`
	X            *float64 `json:"x"`
	Y            *float64 `json:"y"`
	Speed        *float64 `json:"speed"`
	Battery      *float64 `json:"battery"`
	CurrentJobID *string  `json:"current_job_id"`
}

// JobAssigned instructs the simulation to start a job on a robot.
type JobAssigned struct {
	EventID        string `json:"event_id"`
	RunID          string `json:"run_id"`
	SimTimeS       int    `json:"sim_time_s"`
	JobID          string `json:"job_id"`
	RobotID        int    `json:"robot_id"`
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key"`
}
