package sqlite

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/uk030621/MultiAdaptDB/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"
)

// DocumentStore implements domain.DocumentStore on a single sqlite table of
// JSON documents. Each call is an independent transaction; there is no
// cross-call transaction, matching the persistence contract the service is
// written against.
type DocumentStore struct {
	db *gorm.DB
}

func Open(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        path,
	}, &gorm.Config{})
}

func NewDocumentStore(db *gorm.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

func (s *DocumentStore) FindAll(ctx context.Context, collection string) ([]domain.Document, error) {
	rows := make([]DocumentModel, 0)
	err := s.db.WithContext(ctx).
		Where("collection = ?", collection).
		Order("seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	docs := make([]domain.Document, 0, len(rows))
	for _, m := range rows {
		doc, err := decodeDocument(m)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *DocumentStore) FindByID(ctx context.Context, collection string, id domain.DocumentID) (domain.Document, error) {
	var m DocumentModel
	err := s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, string(id)).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Document{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Document{}, err
	}
	return decodeDocument(m)
}

// FindByAttr returns the first document whose top-level attribute equals
// value, in storage order.
func (s *DocumentStore) FindByAttr(ctx context.Context, collection, key string, value any) (domain.Document, error) {
	var m DocumentModel
	err := s.db.WithContext(ctx).
		Where("collection = ? AND json_extract(attrs, ?) = ?", collection, "$."+key, value).
		Order("seq ASC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Document{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Document{}, err
	}
	return decodeDocument(m)
}

func (s *DocumentStore) InsertOne(ctx context.Context, collection string, attrs map[string]any) (domain.Document, error) {
	if attrs == nil {
		attrs = map[string]any{}
	}
	blob, err := json.Marshal(attrs)
	if err != nil {
		return domain.Document{}, err
	}
	m := DocumentModel{Collection: collection, DocID: domain.NewDocumentID().String(), Attrs: string(blob)}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.Document{}, err
	}
	return decodeDocument(m)
}

func (s *DocumentStore) InsertMany(ctx context.Context, collection string, docs []map[string]any) error {
	if len(docs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, attrs := range docs {
			blob, err := json.Marshal(attrs)
			if err != nil {
				return err
			}
			m := DocumentModel{Collection: collection, DocID: domain.NewDocumentID().String(), Attrs: string(blob)}
			if err := tx.Create(&m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateOne merges set into the stored attribute map of one document.
func (s *DocumentStore) UpdateOne(ctx context.Context, collection string, id domain.DocumentID, set map[string]any) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m DocumentModel
		err := tx.Where("collection = ? AND doc_id = ?", collection, string(id)).First(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		attrs, err := decodeAttrs(m.Attrs)
		if err != nil {
			return err
		}
		for key, value := range set {
			attrs[key] = value
		}
		blob, err := json.Marshal(attrs)
		if err != nil {
			return err
		}
		return tx.Model(&DocumentModel{}).Where("seq = ?", m.Seq).Update("attrs", string(blob)).Error
	})
}

// UpdateMany applies set and unset to every document of a collection, as a
// single slot-wide bulk write.
func (s *DocumentStore) UpdateMany(ctx context.Context, collection string, set map[string]any, unset []string) error {
	if len(set) == 0 && len(unset) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows := make([]DocumentModel, 0)
		if err := tx.Where("collection = ?", collection).Find(&rows).Error; err != nil {
			return err
		}
		for _, m := range rows {
			attrs, err := decodeAttrs(m.Attrs)
			if err != nil {
				return err
			}
			for key, value := range set {
				attrs[key] = value
			}
			for _, key := range unset {
				delete(attrs, key)
			}
			blob, err := json.Marshal(attrs)
			if err != nil {
				return err
			}
			if err := tx.Model(&DocumentModel{}).Where("seq = ?", m.Seq).Update("attrs", string(blob)).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertByAttr updates the first document whose attribute equals value, or
// inserts a fresh one when none exists.
func (s *DocumentStore) UpsertByAttr(ctx context.Context, collection, key string, value any, set map[string]any) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m DocumentModel
		err := tx.Where("collection = ? AND json_extract(attrs, ?) = ?", collection, "$."+key, value).
			Order("seq ASC").
			First(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			blob, err := json.Marshal(set)
			if err != nil {
				return err
			}
			fresh := DocumentModel{Collection: collection, DocID: domain.NewDocumentID().String(), Attrs: string(blob)}
			return tx.Create(&fresh).Error
		}
		if err != nil {
			return err
		}
		attrs, err := decodeAttrs(m.Attrs)
		if err != nil {
			return err
		}
		for k, v := range set {
			attrs[k] = v
		}
		blob, err := json.Marshal(attrs)
		if err != nil {
			return err
		}
		return tx.Model(&DocumentModel{}).Where("seq = ?", m.Seq).Update("attrs", string(blob)).Error
	})
}

func (s *DocumentStore) DeleteOne(ctx context.Context, collection string, id domain.DocumentID) error {
	res := s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, string(id)).
		Delete(&DocumentModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *DocumentStore) DeleteMany(ctx context.Context, collection string) error {
	return s.db.WithContext(ctx).
		Where("collection = ?", collection).
		Delete(&DocumentModel{}).Error
}

func decodeDocument(m DocumentModel) (domain.Document, error) {
	attrs, err := decodeAttrs(m.Attrs)
	if err != nil {
		return domain.Document{}, err
	}
	return domain.Document{ID: domain.DocumentID(m.DocID), Attrs: attrs}, nil
}

func decodeAttrs(blob string) (map[string]any, error) {
	attrs := map[string]any{}
	if blob == "" {
		return attrs, nil
	}
	if err := json.Unmarshal([]byte(blob), &attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}
