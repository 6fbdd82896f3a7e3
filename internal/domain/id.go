package domain

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// DocumentID is the canonical document identifier: 24 lowercase hex
// characters encoding a 4-byte unix timestamp followed by 8 random bytes.
// All identifier handling normalizes to this form once at the boundary;
// everything below the boundary compares canonical strings only.
type DocumentID string

const idHexLen = 24

// NewDocumentID returns a fresh identifier for a document being inserted.
func NewDocumentID() DocumentID {
	raw := make([]byte, 12)
	binary.BigEndian.PutUint32(raw[:4], uint32(time.Now().Unix()))
	if _, err := rand.Read(raw[4:]); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return DocumentID(hex.EncodeToString(raw))
}

func (id DocumentID) String() string { return string(id) }

// Valid reports whether id is a well-formed canonical identifier.
func (id DocumentID) Valid() bool {
	if len(id) != idHexLen {
		return false
	}
	_, err := hex.DecodeString(string(id))
	return err == nil
}

// ParseDocumentID normalizes a client-supplied identifier. Clients may send
// either the raw hex string or the store-native round-trip form
// {"$oid": "<hex>"} produced by extended-JSON serialization; both decode to
// the same canonical DocumentID. Anything else is ErrInvalidArgument.
func ParseDocumentID(value any) (DocumentID, error) {
	switch v := value.(type) {
	case string:
		return parseHexID(v)
	case DocumentID:
		return parseHexID(string(v))
	case map[string]any:
		raw, ok := v["$oid"].(string)
		if !ok {
			return "", fmt.Errorf("%w: identifier object must carry $oid", ErrInvalidArgument)
		}
		return parseHexID(raw)
	default:
		return "", fmt.Errorf("%w: identifier must be a string", ErrInvalidArgument)
	}
}

func parseHexID(raw string) (DocumentID, error) {
	id := DocumentID(strings.ToLower(strings.TrimSpace(raw)))
	if !id.Valid() {
		return "", fmt.Errorf("%w: malformed identifier %q", ErrInvalidArgument, raw)
	}
	return id, nil
}
