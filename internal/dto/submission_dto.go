package dto

// GradeUpdateRequest overrides the score and remarks of an evaluation.
type GradeUpdateRequest struct {
	Score   float64 `json:"score" validate:"gte=0"`
	Remarks string  `json:"remarks"`
}

// UploadResponse summarises a batch upload.
type UploadResponse struct {
	Message     string   `json:"message"`
	Submissions []string `json:"submissions"`
}
