package sqlite

import "time"

// DocumentModel is one persisted document: a flat JSON attribute blob keyed
// by (collection, doc_id). Seq preserves insertion order within a
// collection.
type DocumentModel struct {
	Seq        int64  `gorm:"primaryKey;autoIncrement"`
	Collection string `gorm:"not null;index:idx_collection_doc,unique"`
	DocID      string `gorm:"column:doc_id;not null;index:idx_collection_doc,unique"`
	Attrs      string `gorm:"not null;default:'{}'"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (DocumentModel) TableName() string { return "documents" }
