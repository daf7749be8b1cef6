package domain

import "time"

type HealthReport struct {
	Reachable        bool       `json:"reachable"`
	EndpointsWorking bool       `json:"endpoints_working"`
	ServerTime       *time.Time `json:"server_time,omitempty"`
	Errors           []string   `json:"errors"`
	CheckedAt        time.Time  `json:"checked_at"`
}

func (r HealthReport) Healthy() bool {
	return r.Reachable && r.EndpointsWorking
}
