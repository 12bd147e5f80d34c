package eligibility

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// DocumentFlag names one of the three progress flags of a requested document.
type DocumentFlag uint8

const (
	FlagAvailable DocumentFlag = iota + 1
	FlagApproved
	FlagCleared
)

func (f DocumentFlag) String() string {
	switch f {
	case FlagAvailable:
		return "available"
	case FlagApproved:
		return "approved"
	case FlagCleared:
		return "cleared"
	}
	return "unknown"
}

// setFlag changes one flag and keeps cleared => approved => available.
// Lowering a flag lowers everything that depends on it; raising a flag whose
// prerequisite is false is rejected.
func (d *RequestedDocument) setFlag(f DocumentFlag, v bool) error {
	switch f {
	case FlagAvailable:
		d.Available = v
		if !v {
			d.Approved = false
			d.Cleared = false
		}
	case FlagApproved:
		if v && !d.Available {
			return invalidArg("document %q must be available before it can be approved", d.Name)
		}
		d.Approved = v
		if !v {
			d.Cleared = false
		}
	case FlagCleared:
		if v && !d.Approved {
			return invalidArg("document %q must be approved before it can be cleared", d.Name)
		}
		d.Cleared = v
	default:
		return invalidArg("unknown document flag %d", f)
	}
	return nil
}

func (c *Case) document(id uuid.UUID) *RequestedDocument {
	for i := range c.Documents {
		if c.Documents[i].ID == id {
			return &c.Documents[i]
		}
	}
	return nil
}

// unclearedDocuments returns the names of documents not yet cleared, in
// request order.
func (c *Case) unclearedDocuments() []string {
	var names []string
	for _, d := range c.Documents {
		if !d.Cleared {
			names = append(names, d.Name)
		}
	}
	return names
}

// AddDocumentRequest asks the patient for a document. All flags start false.
func (s *Service) AddDocumentRequest(ctx context.Context, patientID uuid.UUID, name, reason string) (*RequestedDocument, error) {
	name, reason = strings.TrimSpace(name), strings.TrimSpace(reason)
	if name == "" {
		return nil, invalidArg("document name is required")
	}
	if reason == "" {
		return nil, invalidArg("document reason is required")
	}
	var doc RequestedDocument
	_, err := s.mutate(ctx, patientID, func(c *Case) error {
		now := s.clock()
		doc = RequestedDocument{
			ID:          uuid.New(),
			PatientID:   patientID,
			Name:        name,
			Reason:      reason,
			RequestedAt: now,
			UpdatedAt:   now,
		}
		c.Documents = append(c.Documents, doc)
		c.Patient.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *Service) SetAvailability(ctx context.Context, docID uuid.UUID, v bool) (*RequestedDocument, error) {
	return s.setDocumentFlag(ctx, docID, FlagAvailable, v)
}

func (s *Service) SetApproval(ctx context.Context, docID uuid.UUID, v bool) (*RequestedDocument, error) {
	return s.setDocumentFlag(ctx, docID, FlagApproved, v)
}

func (s *Service) SetCleared(ctx context.Context, docID uuid.UUID, v bool) (*RequestedDocument, error) {
	return s.setDocumentFlag(ctx, docID, FlagCleared, v)
}

func (s *Service) setDocumentFlag(ctx context.Context, docID uuid.UUID, f DocumentFlag, v bool) (*RequestedDocument, error) {
	owner, err := s.repo.FindDocumentOwner(ctx, docID)
	if err != nil {
		return nil, s.storageErr("find document", uuid.Nil, err)
	}
	var out RequestedDocument
	_, err = s.mutate(ctx, owner, func(c *Case) error {
		d := c.document(docID)
		if d == nil {
			return notFound("document %s", docID)
		}
		if err := d.setFlag(f, v); err != nil {
			return err
		}
		d.UpdatedAt = s.clock()
		c.Patient.UpdatedAt = d.UpdatedAt
		out = *d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) ListDocuments(ctx context.Context, patientID uuid.UUID) ([]RequestedDocument, error) {
	c, err := s.load(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return c.Documents, nil
}

// AllDocumentsCleared reports whether every requested document is cleared.
// A patient with no requested documents has nothing outstanding.
func (s *Service) AllDocumentsCleared(ctx context.Context, patientID uuid.UUID) (bool, error) {
	c, err := s.load(ctx, patientID)
	if err != nil {
		return false, err
	}
	return len(c.unclearedDocuments()) == 0, nil
}
