package types

// ScanRequest asks for a full rescan of a registered directory
type ScanRequest struct {
	DirectoryID uint   `json:"directoryId" binding:"required"`
	Path        string `json:"path" binding:"required"`
}

// DirectoryRequest registers a scan root
type DirectoryRequest struct {
	Path string `json:"path" binding:"required"`
}

// RenameRequest renames a file or folder within its parent directory
type RenameRequest struct {
	OldPath string `json:"oldPath"`
	NewName string `json:"newName"`
}

// DeleteFilesRequest lists files to unlink
type DeleteFilesRequest struct {
	FilePaths []string `json:"filePaths" binding:"required"`
}

// SubfolderFixRequest names the album whose single subfolder is hoisted
type SubfolderFixRequest struct {
	AlbumPath string `json:"albumPath" binding:"required"`
}

// BrowseRequest lists the subdirectories of a path
type BrowseRequest struct {
	Path string `json:"path"`
}

// BrowseEntry is one subdirectory returned by browse
type BrowseEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Path string `json:"path"`
}

// BrowseResponse is the result of browsing a path
type BrowseResponse struct {
	Path     string        `json:"path"`
	Parent   string        `json:"parent"`
	Contents []BrowseEntry `json:"contents"`
}

// DeleteFailure names a file that could not be removed
type DeleteFailure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// DeleteResult reports a best-effort delete
type DeleteResult struct {
	Deleted []string        `json:"deleted"`
	Failed  []DeleteFailure `json:"failed"`
}

// ConvertAddRequest enqueues a track for conversion
type ConvertAddRequest struct {
	Track           Track           `json:"track"`
	QualitySettings QualitySettings `json:"qualitySettings"`
}

// ConvertRemoveRequest drops a job from the queue
type ConvertRemoveRequest struct {
	Path string `json:"path" binding:"required"`
}

// CompareRequest classifies the stored library against target settings
type CompareRequest struct {
	QualitySettings QualitySettings `json:"qualitySettings"`
}
