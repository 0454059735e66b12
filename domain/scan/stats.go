package scan

// Stats accumulates the per-scan statistics reported in the archive
// metadata and the terminal result.
type Stats struct {
	ObjectsScanned    int `json:"objects_scanned"`
	GroupsFound       int `json:"groups_found"`
	UsersFound        int `json:"users_found"`
	BrokenInheritance int `json:"broken_inheritance"`
	SubsitesScanned   int `json:"subsites_scanned"`
	CacheHits         int `json:"cache_hits"`
	CacheMisses       int `json:"cache_misses"`
	Errors            int `json:"errors"`
}
