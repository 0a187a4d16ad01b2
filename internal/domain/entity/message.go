package entity

import "github.com/google/uuid"

// GeotagRequestMessage is the inbound message from the geotag.process queue.
type GeotagRequestMessage struct {
	JobID     uuid.UUID `json:"job_id"`
	UserID    string    `json:"user_id"`
	VideoKey  string    `json:"video_key"`
	FileSize  int64     `json:"file_size"`
	UserEmail string    `json:"user_email"`
}

// GeotagStatusMessage is the outbound message published to the geotag.status queue.
type GeotagStatusMessage struct {
	JobID        uuid.UUID `json:"job_id"`
	UserID       string    `json:"user_id"`
	Status       JobStatus `json:"status"`
	VideoKey     string    `json:"video_key"`
	ImagesKey    string    `json:"images_key,omitempty"`
	FrameCount   int       `json:"frame_count,omitempty"`
	FixCount     int       `json:"fix_count,omitempty"`
	Duration     float64   `json:"duration_seconds,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Attempt      int       `json:"attempt"`
	MaxAttempts  int       `json:"max_attempts"`
}
