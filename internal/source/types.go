package source

type (
	// FileID uniquely identifies a script file within a FileSet.
	FileID uint32 // просто ID источника
	// FileFlags encodes metadata about a script file.
	FileFlags uint8
)

// NoFileID marks spans that do not belong to any loaded file (built-in scenarios).
const NoFileID FileID = 0

const (
	// FileVirtual indicates the file was added from memory (built-in scenario, test, stdin).
	FileVirtual FileFlags = 1 << iota
	FileHadBOM
	FileNormalizedCRLF
)

// File captures metadata and content for a single script file.
type File struct {
	ID      FileID
	Path    string
	Content []byte
	LineIdx []uint32
	Hash    [32]byte
	Flags   FileFlags
}

// LineCol represents a human-readable position in a script file.
type LineCol struct {
	Line uint32 // 1-based
	Col  uint32 // 1-based
}
