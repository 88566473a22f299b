package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// DocumentList is stored as a comma-joined string and travels as a JSON array.
type DocumentList []string

const documentSeparator = ", "

func (dl DocumentList) String() string {
	return strings.Join(dl, documentSeparator)
}

func (dl DocumentList) Value() (driver.Value, error) {
	if len(dl) == 0 {
		return nil, nil
	}
	return dl.String(), nil
}

func (dl *DocumentList) Scan(value interface{}) error {
	if value == nil {
		*dl = nil
		return nil
	}
	var raw string
	switch v := value.(type) {
	case []byte:
		raw = string(v)
	case string:
		raw = v
	default:
		return fmt.Errorf("unsupported type for DocumentList: %T", value)
	}
	*dl = ParseDocumentList(raw)
	return nil
}

// ParseDocumentList splits a stored document string back into its entries.
func ParseDocumentList(raw string) DocumentList {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make(DocumentList, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
