package model

import "time"

// PolicyConfig правила классификации, неизменны в пределах одного вычисления
type PolicyConfig struct {
	LateThreshold       time.Duration `json:"late_threshold"`
	AbsenceAfter        time.Duration `json:"absence_after"`
	ConfidenceThreshold float64       `json:"confidence_threshold"`
}
