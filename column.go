package nocodb

// DataType is a NocoDB field type identifier (the "uidt" value in column
// metadata).
type DataType string

const (
	TypeID                  DataType = "ID"
	TypeSingleLineText      DataType = "SingleLineText"
	TypeLongText            DataType = "LongText"
	TypeNumber              DataType = "Number"
	TypeDecimal             DataType = "Decimal"
	TypeCheckbox            DataType = "Checkbox"
	TypeDate                DataType = "Date"
	TypeDateTime            DataType = "DateTime"
	TypeEmail               DataType = "Email"
	TypeURL                 DataType = "URL"
	TypePhoneNumber         DataType = "PhoneNumber"
	TypeSingleSelect        DataType = "SingleSelect"
	TypeMultiSelect         DataType = "MultiSelect"
	TypeAttachment          DataType = "Attachment"
	TypeFormula             DataType = "Formula"
	TypeRollup              DataType = "Rollup"
	TypeLookup              DataType = "Lookup"
	TypeLinks               DataType = "Links"
	TypeLinkToAnotherRecord DataType = "LinkToAnotherRecord"
)

// LinkType selects the relation kind for linked-column creation.
type LinkType string

const (
	LinkHasMany    LinkType = "hm"
	LinkManyToMany LinkType = "mm"
)

// Column is an immutable descriptor of one field within a table version.
// It holds no reference back to its Table; callers pass both explicitly.
type Column struct {
	ID     string
	Title  string
	Name   string
	System bool
	Type   DataType

	// LinkedTableID identifies the related table for link columns. When
	// non-empty it is authoritative: title heuristics must never override
	// it. Empty for non-link columns and for link columns whose metadata
	// omits the related model.
	LinkedTableID string

	// Metadata is the raw column object as returned by the server.
	Metadata map[string]any
}

// newColumn builds a Column from the server's column metadata object.
func newColumn(meta map[string]any) Column {
	col := Column{
		ID:       stringField(meta, "id"),
		Title:    stringField(meta, "title"),
		Name:     stringField(meta, "column_name"),
		System:   boolField(meta, "system"),
		Type:     DataType(stringField(meta, "uidt")),
		Metadata: meta,
	}
	if opts, ok := meta["colOptions"].(map[string]any); ok {
		col.LinkedTableID = stringField(opts, "fk_related_model_id")
	}
	return col
}

// IsLink reports whether the column represents a relationship.
func (c Column) IsLink() bool {
	return c.Type == TypeLinks || c.Type == TypeLinkToAnotherRecord
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// boolField tolerates the 0/1 integer encoding the meta API uses for some
// boolean flags.
func boolField(m map[string]any, key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case float64:
		return v != 0
	default:
		return false
	}
}
