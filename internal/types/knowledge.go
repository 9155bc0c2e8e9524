package types

import "time"

// Document types in the knowledge store.
const (
	DocTypeReference  = "reference"
	DocTypeExemplar   = "exemplar"
	DocTypeCompetitor = "competitor"
	DocTypeGenerated  = "generated"
)

// Document is a tagged text fragment in the knowledge store.
type Document struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	DocType   string    `json:"doc_type"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateDocumentRequest adds a knowledge document.
type CreateDocumentRequest struct {
	Title   string   `json:"title" validate:"required,max=500"`
	Content string   `json:"content" validate:"required"`
	DocType string   `json:"doc_type" validate:"omitempty,oneof=reference exemplar competitor generated"`
	Tags    []string `json:"tags" validate:"dive,required,max=100"`
}

// Validate validates the CreateDocumentRequest using the validator.
func (r *CreateDocumentRequest) Validate() error {
	return validate.Struct(r)
}
