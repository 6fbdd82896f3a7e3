package domain

// SlotCount is the number of independent database slots. Each slot owns one
// field registry and one record collection, disjoint from the others.
const SlotCount = 3

// FieldType enumerates the value kinds a field definition can declare.
// Changing a definition's type never converts values already stored.
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeNumber   FieldType = "number"
	FieldTypeEmail    FieldType = "email"
	FieldTypeDate     FieldType = "date"
	FieldTypeTextarea FieldType = "textarea"
	FieldTypeSelect   FieldType = "select"
	FieldTypeURL      FieldType = "url"
)

var fieldTypes = map[FieldType]struct{}{
	FieldTypeText:     {},
	FieldTypeNumber:   {},
	FieldTypeEmail:    {},
	FieldTypeDate:     {},
	FieldTypeTextarea: {},
	FieldTypeSelect:   {},
	FieldTypeURL:      {},
}

func (t FieldType) Valid() bool {
	_, ok := fieldTypes[t]
	return ok
}

// FieldDefinition describes one user-defined record attribute within a slot.
// Name is the machine key used as the record attribute key; it is generated
// at creation time and immutable afterwards. Options only carry meaning when
// Type is select.
type FieldDefinition struct {
	ID      DocumentID `json:"id"`
	Name    string     `json:"name"`
	Label   string     `json:"label"`
	Type    FieldType  `json:"type"`
	Options []string   `json:"options,omitempty"`
	Order   int        `json:"order"`
}

// FieldPatch carries a partial update for a field definition. Nil members
// leave the stored value untouched.
type FieldPatch struct {
	Label   *string
	Type    *FieldType
	Options *[]string
	Order   *int
}

// Record is one user-data document in a slot. Attrs holds one entry per
// field name; values are whatever the client stored (string, number, null).
type Record struct {
	ID    DocumentID     `json:"id"`
	Attrs map[string]any `json:"attrs"`
}

// Slot identifies one of the fixed database namespaces together with its
// display name.
type Slot struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

// Document is the raw unit the persistence port exchanges: a store-assigned
// identifier plus a flat attribute map. The identifier is never part of the
// attribute map.
type Document struct {
	ID    DocumentID
	Attrs map[string]any
}

// AllowedEmail is one entry of the mutation allow-list.
type AllowedEmail struct {
	ID    DocumentID `json:"id"`
	Email string     `json:"email"`
}
