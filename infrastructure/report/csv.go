package report

import (
	"bufio"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"spscan/domain/sharepoint"
	"spscan/logging"
)

// The five report tables. File names double as table identifiers in
// the archived report.
const (
	TableContents      = "Contents"
	TableGroups        = "Groups"
	TableUsers         = "Users"
	TableBrokenObjects = "BrokenObjects"
	TableBrokenAccess  = "BrokenAccess"
)

// Column sets are a fixed external contract, never derived from
// populated fields.
var tableColumns = map[string][]string{
	TableContents:      {"Id", "Type", "Title", "Url"},
	TableGroups:        {"Id", "Role", "Title", "PermissionLevel", "Owner"},
	TableUsers:         {"Id", "LoginName", "DisplayName", "Email", "PermissionLevel", "ViaGroup", "ViaGroupId", "ViaGroupType", "AssignmentType", "NestingLevel", "ParentGroup"},
	TableBrokenObjects: {"Id", "Type", "Title", "Url"},
	TableBrokenAccess:  {"Url", "Id", "LoginName", "DisplayName", "Email", "PermissionLevel", "ViaGroup", "ViaGroupId", "ViaGroupType", "AssignmentType", "NestingLevel", "ParentGroup", "SharedDateTime", "SharedByDisplayName", "SharedByLoginName"},
}

// tableOrder fixes file creation and listing order.
var tableOrder = []string{TableContents, TableGroups, TableUsers, TableBrokenObjects, TableBrokenAccess}

// UserRow is one Users-table row, shared by the BrokenAccess table
// which extends it.
type UserRow struct {
	ID              string
	LoginName       string
	DisplayName     string
	Email           string
	PermissionLevel string
	ViaGroup        string
	ViaGroupID      string
	ViaGroupType    string
	AssignmentType  string
	NestingLevel    string
	ParentGroup     string
}

// CsvReportWriter emits the five report tables incrementally into a
// staging directory. Writes are buffered; Close flushes everything,
// Discard removes the staging directory without archiving.
//
// Output is UTF-8 with no byte-order mark. The escaping rule is an
// external-compatibility contract: see escapeValue.
type CsvReportWriter struct {
	fs      afero.Fs
	dir     string
	files   map[string]afero.File
	writers map[string]*bufio.Writer
	logger  *logging.Logger
}

// NewCsvReportWriter creates the staging directory and opens all five
// table files with their header rows written.
func NewCsvReportWriter(fs afero.Fs, dir string) (*CsvReportWriter, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}

	w := &CsvReportWriter{
		fs:      fs,
		dir:     dir,
		files:   make(map[string]afero.File, len(tableOrder)),
		writers: make(map[string]*bufio.Writer, len(tableOrder)),
		logger:  logging.Default().WithComponent("csv_writer"),
	}

	for _, table := range tableOrder {
		f, err := fs.Create(filepath.Join(dir, table+".csv"))
		if err != nil {
			w.closeFiles()
			return nil, fmt.Errorf("create %s table: %w", table, err)
		}
		w.files[table] = f
		bw := bufio.NewWriter(f)
		w.writers[table] = bw

		if err := writeRow(bw, tableColumns[table]); err != nil {
			w.closeFiles()
			return nil, fmt.Errorf("write %s header: %w", table, err)
		}
	}

	return w, nil
}

// AppendRow writes one row to a table. The value count must match the
// table's column contract exactly.
func (w *CsvReportWriter) AppendRow(table string, values []string) error {
	bw, ok := w.writers[table]
	if !ok {
		return fmt.Errorf("unknown report table: %s", table)
	}
	if len(values) != len(tableColumns[table]) {
		return fmt.Errorf("table %s expects %d columns, got %d", table, len(tableColumns[table]), len(values))
	}
	return writeRow(bw, values)
}

// WriteContent appends one object to the Contents table.
func (w *CsvReportWriter) WriteContent(obj sharepoint.ScannedObject) error {
	return w.AppendRow(TableContents, []string{obj.ID, string(obj.Type), obj.Title, obj.URL})
}

// WriteGroup appends one site group to the Groups table. Multiple
// permission levels are joined into the single PermissionLevel column.
func (w *CsvReportWriter) WriteGroup(g *sharepoint.SiteGroup) error {
	return w.AppendRow(TableGroups, []string{
		fmt.Sprintf("%d", g.ID),
		string(g.Role),
		g.Title,
		strings.Join(g.PermissionLevels, ", "),
		g.OwnerTitle,
	})
}

// WriteUser appends one resolved user to the Users table.
func (w *CsvReportWriter) WriteUser(row UserRow) error {
	return w.AppendRow(TableUsers, []string{
		row.ID, row.LoginName, row.DisplayName, row.Email, row.PermissionLevel,
		row.ViaGroup, row.ViaGroupID, row.ViaGroupType, row.AssignmentType,
		row.NestingLevel, row.ParentGroup,
	})
}

// WriteBrokenObject appends one broken-inheritance object.
func (w *CsvReportWriter) WriteBrokenObject(obj sharepoint.ScannedObject) error {
	return w.AppendRow(TableBrokenObjects, []string{obj.ID, string(obj.Type), obj.Title, obj.URL})
}

// WriteBrokenAccess appends one broken-inheritance access row: the
// Users shape keyed by the object URL, plus sharing metadata.
func (w *CsvReportWriter) WriteBrokenAccess(url string, row UserRow, sharedDateTime, sharedByDisplayName, sharedByLoginName string) error {
	return w.AppendRow(TableBrokenAccess, []string{
		url,
		row.ID, row.LoginName, row.DisplayName, row.Email, row.PermissionLevel,
		row.ViaGroup, row.ViaGroupID, row.ViaGroupType, row.AssignmentType,
		row.NestingLevel, row.ParentGroup,
		sharedDateTime, sharedByDisplayName, sharedByLoginName,
	})
}

// Files returns the staged table files in fixed order, for handoff to
// the report sink. Call after Close.
func (w *CsvReportWriter) Files() []string {
	paths := make([]string, 0, len(tableOrder))
	for _, table := range tableOrder {
		paths = append(paths, filepath.Join(w.dir, table+".csv"))
	}
	return paths
}

// Close flushes and closes all table files, leaving them in the
// staging directory.
func (w *CsvReportWriter) Close() error {
	var firstErr error
	for _, table := range tableOrder {
		if bw := w.writers[table]; bw != nil {
			if err := bw.Flush(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("flush %s: %w", table, err)
			}
		}
	}
	w.closeFiles()
	return firstErr
}

// Discard closes and deletes the staging directory. Used on scan
// failure or cancellation so no partial report survives.
func (w *CsvReportWriter) Discard() error {
	w.closeFiles()
	if err := w.fs.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("remove staging dir: %w", err)
	}
	return nil
}

func (w *CsvReportWriter) closeFiles() {
	for _, f := range w.files {
		_ = f.Close()
	}
}

// writeRow escapes and writes one CSV record.
func writeRow(bw *bufio.Writer, values []string) error {
	for i, v := range values {
		if i > 0 {
			if err := bw.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := bw.WriteString(escapeValue(v)); err != nil {
			return err
		}
	}
	if _, err := bw.WriteString("\r\n"); err != nil {
		return err
	}
	return nil
}

// escapeValue applies the report's escaping contract: a value is
// quoted, with internal quotes doubled, when it is empty, contains a
// comma, quote or line break, or starts with a character a spreadsheet
// would interpret as a formula, number or date (+ - = / digits . :).
func escapeValue(v string) string {
	if needsQuoting(v) {
		return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
	}
	return v
}

func needsQuoting(v string) bool {
	if v == "" {
		return true
	}
	if strings.ContainsAny(v, ",\"\n\r") {
		return true
	}
	switch c := v[0]; {
	case c == '+' || c == '-' || c == '=' || c == '/' || c == '.' || c == ':':
		return true
	case c >= '0' && c <= '9':
		return true
	}
	return false
}
