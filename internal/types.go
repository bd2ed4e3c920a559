package internal

// ResourceKind tells whether an identifier names a file or a folder
type ResourceKind int

const (
	KindUnknown ResourceKind = iota
	KindFile
	KindFolder
)

// String returns the string representation of ResourceKind
func (k ResourceKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindFolder:
		return "folder"
	default:
		return "unknown"
	}
}

// ResourceRef is an identifier resolved from a shared URL
type ResourceRef struct {
	ID   string
	Kind ResourceKind
}

// ConfirmState carries the tokens scraped from a confirmation page between attempts
type ConfirmState struct {
	Confirm string
	UUID    string
}

// FolderEntry is one child parsed out of a folder listing page
type FolderEntry struct {
	URL      string
	Title    string
	Modified string
}

// DownloadConfig contains the per-run switches consumed by the retrieval engine
type DownloadConfig struct {
	OutputName    string // explicit file name, only honored for a single file target
	Quiet         bool
	Overwrite     bool
	HonorModTimes bool
	FailFast      bool
}
