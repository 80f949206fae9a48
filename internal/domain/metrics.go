package domain

import "time"

// RoomMetrics is the per-room counters record, persisted separately from the
// room record itself.
type RoomMetrics struct {
	RoomID            string    `json:"roomId"`
	TotalOperations   uint64    `json:"totalOperations"`
	TotalMessages     uint64    `json:"totalMessages"`
	ConflictsResolved uint64    `json:"conflictsResolved"`
	AutoSaves         uint64    `json:"autoSaves"`
	PeakParticipants  int       `json:"peakParticipants"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// ObservePeak raises the peak participant count if n exceeds it.
func (m *RoomMetrics) ObservePeak(n int) {
	if n > m.PeakParticipants {
		m.PeakParticipants = n
	}
}
