package nocodb

import "fmt"

// ColumnNotFoundError reports a column title that does not exist on a table.
type ColumnNotFoundError struct {
	Table string
	Title string
}

func (e ColumnNotFoundError) Error() string {
	return fmt.Sprintf("column with title %s not found on table %s", e.Title, e.Table)
}

// TableNotFoundError reports a table title that does not exist in a base.
type TableNotFoundError struct {
	Base  string
	Title string
}

func (e TableNotFoundError) Error() string {
	return fmt.Sprintf("table with title %s not found in base %s", e.Title, e.Base)
}

// BaseNotFoundError reports a base title that does not exist.
type BaseNotFoundError struct {
	Title string
}

func (e BaseNotFoundError) Error() string {
	return fmt.Sprintf("base with title %s not found", e.Title)
}

// LinkedTableUndeterminedError is returned when a link column carries no
// authoritative table id and no table in the base matches its title, with
// or without the pluralizing suffix.
type LinkedTableUndeterminedError struct {
	Column string
}

func (e LinkedTableUndeterminedError) Error() string {
	return fmt.Sprintf("could not determine linked table for column %s", e.Column)
}

// LinkedTableNotFoundError is returned by the foreign-key recovery path
// when no table in the base matches the column title exactly.
type LinkedTableNotFoundError struct {
	Column string
}

func (e LinkedTableNotFoundError) Error() string {
	return fmt.Sprintf("could not find linked table %s", e.Column)
}

// MissingIDColumnsError reports that one of the two tables involved in a
// linked-column creation has no Id column to build the relation on.
type MissingIDColumnsError struct {
	Table  string
	Target string
}

func (e MissingIDColumnsError) Error() string {
	return fmt.Sprintf("could not find Id columns for tables %s and %s", e.Table, e.Target)
}

// InvalidFieldError reports a field whose value has the wrong shape for
// the requested operation, e.g. attachments requested on a non-list field.
type InvalidFieldError struct {
	Field string
}

func (e InvalidFieldError) Error() string {
	return fmt.Sprintf("invalid value for field %s", e.Field)
}

// ShortPageError is returned in strict-pages mode when the server hands
// back fewer rows than the page size without declaring the last page.
type ShortPageError struct {
	Path   string
	Offset int
	Limit  int
	Got    int
}

func (e ShortPageError) Error() string {
	return fmt.Sprintf("short page from %s at offset %d: expected %d rows, got %d before last-page marker", e.Path, e.Offset, e.Limit, e.Got)
}
