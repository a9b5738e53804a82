package court

import (
	"iter"

	"github.com/google/uuid"
	es "github.com/terraskye/progression"
)

// UploadedDocument records one file upload. Every upload is a new stream.
type UploadedDocument struct {
	ID            uuid.UUID `json:"id"`
	FileServiceID uuid.UUID `json:"fileServiceId"`
	MaterialID    uuid.UUID `json:"materialId"`
}

var UploadedDocumentType = es.AggregateType[*UploadedDocument]{
	Name: "court.UploadedDocument",
	New:  func(id uuid.UUID) *UploadedDocument { return &UploadedDocument{ID: id} },
}

func (u *UploadedDocument) Apply(ev es.Event) error {
	return es.ApplyWith(ev,
		es.On(func(e DocumentUploaded) {
			u.FileServiceID = e.FileServiceID
			u.MaterialID = e.MaterialID
		}),
	)
}

func (u *UploadedDocument) Record(fileServiceID, materialID uuid.UUID) (iter.Seq[es.Event], error) {
	if u.FileServiceID != uuid.Nil {
		return nil, ErrDocumentAlreadyUploaded
	}
	return es.Events(DocumentUploaded{
		UploadID:      u.ID,
		FileServiceID: fileServiceID,
		MaterialID:    materialID,
	}), nil
}
