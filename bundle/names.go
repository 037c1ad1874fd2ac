package bundle

import "github.com/contentlake/bundledb/proto"

// Well-known names used by the single-byte name encoding. The table is
// part of the wire format: indices are stable forever, the null-name
// sentinel occupies index 0, and additions are only permitted at the end
// together with a bump of the bundle format version.
var wellKnownNames = []proto.Name{
	{}, // index 0: the null name, used as the end-of-list sentinel

	proto.MustName(proto.NSJCRURI, "primaryType"),
	proto.MustName(proto.NSJCRURI, "mixinTypes"),
	proto.MustName(proto.NSJCRURI, "uuid"),
	proto.MustName(proto.NSJCRURI, "created"),
	proto.MustName(proto.NSJCRURI, "createdBy"),
	proto.MustName(proto.NSJCRURI, "lastModified"),
	proto.MustName(proto.NSJCRURI, "lastModifiedBy"),
	proto.MustName(proto.NSJCRURI, "content"),
	proto.MustName(proto.NSJCRURI, "data"),
	proto.MustName(proto.NSJCRURI, "title"),
	proto.MustName(proto.NSJCRURI, "description"),
	proto.MustName(proto.NSJCRURI, "encoding"),
	proto.MustName(proto.NSJCRURI, "mimeType"),
	proto.MustName(proto.NSJCRURI, "language"),
	proto.MustName(proto.NSJCRURI, "name"),
	proto.MustName(proto.NSJCRURI, "path"),
	proto.MustName(proto.NSJCRURI, "system"),
	proto.MustName(proto.NSJCRURI, "root"),
	proto.MustName(proto.NSJCRURI, "versionStorage"),
	proto.MustName(proto.NSJCRURI, "versionHistory"),
	proto.MustName(proto.NSJCRURI, "versionLabels"),
	proto.MustName(proto.NSJCRURI, "baseVersion"),
	proto.MustName(proto.NSJCRURI, "predecessors"),
	proto.MustName(proto.NSJCRURI, "successors"),
	proto.MustName(proto.NSJCRURI, "isCheckedOut"),
	proto.MustName(proto.NSJCRURI, "mergeFailed"),
	proto.MustName(proto.NSJCRURI, "frozenNode"),
	proto.MustName(proto.NSJCRURI, "frozenUuid"),
	proto.MustName(proto.NSJCRURI, "frozenPrimaryType"),
	proto.MustName(proto.NSJCRURI, "frozenMixinTypes"),
	proto.MustName(proto.NSJCRURI, "rootVersion"),
	proto.MustName(proto.NSJCRURI, "lockOwner"),
	proto.MustName(proto.NSJCRURI, "lockIsDeep"),
	proto.MustName(proto.NSJCRURI, "nodeTypes"),
	proto.MustName(proto.NSJCRURI, "childNodeDefinition"),
	proto.MustName(proto.NSJCRURI, "propertyDefinition"),

	proto.MustName(proto.NSNTURI, "base"),
	proto.MustName(proto.NSNTURI, "unstructured"),
	proto.MustName(proto.NSNTURI, "hierarchyNode"),
	proto.MustName(proto.NSNTURI, "folder"),
	proto.MustName(proto.NSNTURI, "file"),
	proto.MustName(proto.NSNTURI, "resource"),
	proto.MustName(proto.NSNTURI, "version"),
	proto.MustName(proto.NSNTURI, "versionHistory"),
	proto.MustName(proto.NSNTURI, "versionLabels"),
	proto.MustName(proto.NSNTURI, "frozenNode"),
	proto.MustName(proto.NSNTURI, "versionedChild"),
	proto.MustName(proto.NSNTURI, "nodeType"),
	proto.MustName(proto.NSNTURI, "propertyDefinition"),
	proto.MustName(proto.NSNTURI, "childNodeDefinition"),
	proto.MustName(proto.NSNTURI, "query"),

	proto.MustName(proto.NSMixURI, "referenceable"),
	proto.MustName(proto.NSMixURI, "lockable"),
	proto.MustName(proto.NSMixURI, "versionable"),
	proto.MustName(proto.NSMixURI, "shareable"),
	proto.MustName(proto.NSMixURI, "created"),
	proto.MustName(proto.NSMixURI, "lastModified"),
	proto.MustName(proto.NSMixURI, "title"),
	proto.MustName(proto.NSMixURI, "language"),
	proto.MustName(proto.NSMixURI, "mimeType"),

	proto.MustName(proto.NSInternalURI, "root"),
	proto.MustName(proto.NSInternalURI, "system"),
	proto.MustName(proto.NSInternalURI, "versionStorage"),
	proto.MustName(proto.NSInternalURI, "nodeTypes"),
}

var nameIndex map[proto.Name]int

func init() {
	if len(wellKnownNames) > 0x80 {
		panic("well-known name table exceeds 128 entries")
	}
	nameIndex = make(map[proto.Name]int, len(wellKnownNames))
	for i, n := range wellKnownNames {
		nameIndex[n] = i
	}
}

// nameToIndex returns the table index of a well-known name, or -1. The
// null name maps to index 0.
func nameToIndex(name proto.Name) int {
	if i, ok := nameIndex[name]; ok {
		return i
	}
	return -1
}

// indexToName resolves a table index; ok is false for unassigned indices.
func indexToName(i int) (proto.Name, bool) {
	if i < 0 || i >= len(wellKnownNames) {
		return proto.Name{}, false
	}
	return wellKnownNames[i], true
}

// Names the writer treats as redundant: they duplicate bundle fields.
var (
	namePrimaryType = proto.MustName(proto.NSJCRURI, "primaryType")
	nameMixinTypes  = proto.MustName(proto.NSJCRURI, "mixinTypes")
	nameUUID        = proto.MustName(proto.NSJCRURI, "uuid")
)
