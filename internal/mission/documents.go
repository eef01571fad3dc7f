package mission

import (
	"context"
	"strings"

	"github.com/ankittk/missioncontrol/internal/store"
	"github.com/ankittk/missioncontrol/pkg/models"
)

// DocumentInput creates a document. Title and a valid Type are required.
type DocumentInput struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Type    string  `json:"type"`
	TaskID  *string `json:"taskId,omitempty"`
}

func (s *Service) CreateDocument(ctx context.Context, in DocumentInput) (models.Document, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return models.Document{}, invalid("document title required")
	}
	if !models.ValidDocumentType(in.Type) {
		return models.Document{}, invalid("unknown document type %q", in.Type)
	}
	if in.TaskID != nil && *in.TaskID == "" {
		in.TaskID = nil
	}
	d, err := s.Store.CreateDocument(ctx, store.DocumentInput{Title: in.Title, Content: in.Content, Type: in.Type, TaskID: in.TaskID})
	if err != nil {
		return models.Document{}, err
	}
	s.publish("document_update", map[string]any{"document": d})
	return d, nil
}

// UpdateDocument changes the fields that are non-nil and non-empty; updatedAt always moves.
func (s *Service) UpdateDocument(ctx context.Context, id string, title, content *string) (models.Document, error) {
	d, err := s.Store.UpdateDocument(ctx, id, title, content)
	if err != nil {
		return models.Document{}, err
	}
	s.publish("document_update", map[string]any{"document": d})
	return d, nil
}
