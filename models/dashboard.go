package models

type LeaderboardEntry struct {
	Rank             int    `json:"rank"`
	TeamID           string `json:"team_id"`
	TeamName         string `json:"team_name"`
	Score            int    `json:"score"`
	CurrentStepIndex int    `json:"current_step_index"`
	Finished         bool   `json:"finished"`
}

// TeamPosition places a team on the live map by the waypoint it is working on.
type TeamPosition struct {
	Team            Team      `json:"team"`
	CurrentWaypoint *Waypoint `json:"current_waypoint,omitempty"`
	Finished        bool      `json:"finished"`
}

type MapSnapshot struct {
	Race      *Race          `json:"race"`
	Waypoints []Waypoint     `json:"waypoints"`
	Teams     []TeamPosition `json:"teams"`
}
