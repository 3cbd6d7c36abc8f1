package core

// Robot is the full robot state tracked by the simulation engine.
type Robot struct {
	ID               int
	X                float64
	Y                float64
	Speed            float64
	Battery          float64
	State            RobotState
	CurrentJobID     string
	TargetX          float64
	TargetY          float64
	HasTarget        bool
	PhaseRemainingS  float64
	DistanceTraveled float64
}

// RobotInfo is the wire view of a robot shared with the optimizer.
type RobotInfo struct {
	ID           int        `json:"id"`
	X            float64    `json:"x"`
	Y            float64    `json:"y"`
	Speed        float64    `json:"speed"`
	Battery      float64    `json:"battery"`
	State        RobotState `json:"state"`
	CurrentJobID *string    `json:"current_job_id,omitempty"`
}

// Info returns the robot's wire view with 3-decimal rounding applied.
func (r *Robot) Info() RobotInfo {
	info := RobotInfo{
		ID:      r.ID,
		X:       Round3(r.X),
		Y:       Round3(r.Y),
		Speed:   r.Speed,
		Battery: Round3(r.Battery),
		State:   r.State,
	}
	if r.CurrentJobID != "" {
		id := r.CurrentJobID
		info.CurrentJobID = &id
	}
	return info
}
