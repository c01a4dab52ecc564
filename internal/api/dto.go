package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/everzim/internal/sanitize"
)

// RewriteRequest is the request body for POST /rewrite.
type RewriteRequest struct {
	Content string `json:"content" example:"## Title\n![logo](a%20b.png)" validate:"required"`
}

// Validate implements validation.Validatable.
func (r RewriteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Content, validation.Required),
	)
}

// ContentResponse carries rewritten or converted note text.
type ContentResponse struct {
	Content string `json:"content" example:"==== Title\n{{/backup/uncategorized/a_b.png?800|logo}}" validate:"required"`
}

// SanitizeRequest is the request body for POST /sanitize.
type SanitizeRequest struct {
	Input string `json:"input" example:"What? #1.html"`
	Mode  string `json:"mode" example:"full" enums:"full,trailing"`
}

// Validate implements validation.Validatable.
func (r SanitizeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Mode, validation.In("", sanitize.ModeFull.String(), sanitize.ModeTrailing.String())),
	)
}

// SanitizeResponse is the response body for POST /sanitize.
type SanitizeResponse struct {
	Output string `json:"output" example:"What___1.html" validate:"required"`
}

// ConvertRequest is the request body for POST /convert.
type ConvertRequest struct {
	HTML string `json:"html" example:"<h2>Title</h2>" validate:"required"`
	Zim  bool   `json:"zim" example:"true"`
}

// Validate implements validation.Validatable.
func (r ConvertRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.HTML, validation.Required),
	)
}

// UploadResponse is returned after an uploaded note is converted.
type UploadResponse struct {
	Path string `json:"path" example:"uncategorized/Trip_Plan.txt" validate:"required"`
	Size int64  `json:"size" example:"12345" validate:"required"`
	URL  string `json:"url" example:"/api/files/uncategorized/Trip_Plan.txt" validate:"required"`
}
