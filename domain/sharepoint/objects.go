package sharepoint

// ObjectType tags a scanned object in the report output. The tag
// values are part of the external CSV contract.
type ObjectType string

const (
	ObjectTypeSubsite   ObjectType = "SUBSITE"
	ObjectTypeList      ObjectType = "LIST"
	ObjectTypeLibrary   ObjectType = "LIBRARY"
	ObjectTypeSitePages ObjectType = "SITEPAGES"
	ObjectTypeFolder    ObjectType = "FOLDER"
	ObjectTypeFile      ObjectType = "FILE"
	ObjectTypeItem      ObjectType = "ITEM"
)

// ScannedObject is one site, list, folder, file or item as it appears
// in the Contents and BrokenObjects tables.
type ScannedObject struct {
	ID    string
	Type  ObjectType
	Title string
	URL   string
}

// Web represents a SharePoint web (site or subsite).
type Web struct {
	ID       string
	URL      string
	Title    string
	Template string
}

// List represents a SharePoint list or document library.
type List struct {
	ID           string
	WebID        string
	Title        string
	URL          string
	BaseTemplate int
	ItemCount    int
	Hidden       bool
	HasUnique    bool
}

// Base template identifiers for the built-in and system lists the
// structure phase excludes, plus the templates that drive the
// LIST/LIBRARY/SITEPAGES object-type classification.
const (
	TemplateGenericList     = 100
	TemplateDocumentLibrary = 101
	TemplateSitePages       = 119
)

// excludedTemplates are SharePoint infrastructure lists that never
// carry user content and are skipped during structure scanning.
var excludedTemplates = map[int]bool{
	109:  true, // Picture library used by themes
	113:  true, // Web part gallery
	114:  true, // List template gallery
	115:  true, // XML form library
	116:  true, // Master page gallery
	117:  true, // No-code workflows
	118:  true, // Custom workflow process
	120:  true, // Custom grid for lists
	121:  true, // Solution gallery
	122:  true, // No-code public workflow
	123:  true, // Style library
	175:  true, // Maintenance logs
	851:  true, // Asset library (system)
	1100: true, // Issue tracking (workflow history)
	3300: true, // Access requests
}

// IsSystemList reports whether the list's template excludes it from
// structure and item scanning.
func (l *List) IsSystemList() bool {
	return excludedTemplates[l.BaseTemplate]
}

// ObjectType classifies the list for the Contents table.
func (l *List) ObjectType() ObjectType {
	switch l.BaseTemplate {
	case TemplateSitePages:
		return ObjectTypeSitePages
	case TemplateDocumentLibrary:
		return ObjectTypeLibrary
	default:
		return ObjectTypeList
	}
}

// Item is one list item, folder or file, selected with only the
// fields needed to test broken inheritance cheaply.
type Item struct {
	ID        int
	GUID      string
	ListID    string
	Name      string
	URL       string
	IsFolder  bool
	HasUnique bool
}

// ObjectType classifies the item for the BrokenObjects table.
func (i *Item) ObjectType(parentIsLibrary bool) ObjectType {
	if i.IsFolder {
		return ObjectTypeFolder
	}
	if parentIsLibrary {
		return ObjectTypeFile
	}
	return ObjectTypeItem
}
