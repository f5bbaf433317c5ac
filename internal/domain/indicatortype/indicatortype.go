// Package indicatortype translates OTX indicator type strings into CRITs
// indicator types.
package indicatortype

// CRITs indicator type vocabulary, limited to the types this importer emits.
const (
	MD5          = "MD5"
	SHA1         = "SHA1"
	SHA256       = "SHA256"
	URI          = "URI"
	Domain       = "Domain"
	IPv4Address  = "IPv4 Address"
	IPv6Address  = "IPv6 Address"
	EmailAddress = "Email Address"
	FilePath     = "File Path"
	Imphash      = "IMPHASH"
	IPv4Subnet   = "IPv4 Subnet"
	Mutex        = "Mutex"
)

// Result classifies a feed type string.
type Result int

const (
	// Mapped means the feed type has a concrete CRITs equivalent.
	Mapped Result = iota
	// Unmapped means the feed type is known but has no CRITs equivalent;
	// callers skip the record silently.
	Unmapped
	// Unsupported means the feed type is not in the table at all; callers
	// log and skip the record.
	Unsupported
)

// The feed's type vocabulary is fixed externally, so the table is an
// explicit enumeration rather than anything inferred. Entries mapping to ""
// are known types with no CRITs equivalent.
var table = map[string]string{
	"FileHash-SHA256": SHA256,
	"FileHash-SHA1":   SHA1,
	"FileHash-MD5":    MD5,
	"URI":             URI,
	"URL":             URI,
	"hostname":        Domain,
	"domain":          Domain,
	"IPv4":            IPv4Address,
	"IPv6":            IPv6Address,
	"email":           EmailAddress,
	"Email":           EmailAddress,
	"filepath":        FilePath,
	"Filepath":        FilePath,
	"FilePath":        FilePath,
	"Imphash":         Imphash,
	"CIDR":            IPv4Subnet,
	"mutex":           Mutex,
	"Mutex":           Mutex,
	"PEhash":          "",
	"CVE":             "",
	"Yara":            "",
}

// Map resolves an OTX type string to a CRITs type. The returned string is
// meaningful only when Result is Mapped.
func Map(feedType string) (string, Result) {
	critsType, ok := table[feedType]
	if !ok {
		return "", Unsupported
	}
	if critsType == "" {
		return "", Unmapped
	}
	return critsType, Mapped
}

// Known returns every feed type string present in the table. Used by the
// feed simulator to emit realistic records.
func Known() []string {
	out := make([]string, 0, len(table))
	for k := range table {
		out = append(out, k)
	}
	return out
}
