package domain

// ScoreBreakdown is the per-candidate assignment score. Ephemeral; kept only
// in audit trails.
type ScoreBreakdown struct {
	WorkerID     string `json:"worker_id"`
	Availability int    `json:"availability"` // 0-30
	Skills       int    `json:"skills"`       // 0-25
	Performance  int    `json:"performance"`  // 0-20
	Proximity    int    `json:"proximity"`    // 0-15
	Workload     int    `json:"workload"`     // 0-10
	Total        int    `json:"total"`
}

// MinSelectableScore is the floor below which no candidate qualifies.
const MinSelectableScore = 30
