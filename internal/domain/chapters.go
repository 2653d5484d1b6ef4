package domain

// ChapterResult is the provider's answer to a generation request: the chapter
// timecode text plus the reason the model stopped.
type ChapterResult struct {
	Chapters     string `json:"chapters"`
	FinishReason string `json:"finishReason,omitempty"`
	Model        string `json:"model,omitempty"`
}
