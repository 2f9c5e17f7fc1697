package types

import "time"

// NotAvailable is reported for quality properties a container does not carry
const NotAvailable = "N/A"

// Anomaly reasons recorded while classifying and scanning folders
const (
	ReasonMetadataUnreadable = "Could not read metadata."
	ReasonUnsupportedType    = "Unsupported file type."
	ReasonArtistFile         = "File found in artist directory."
	ReasonAlbumFile          = "Unsupported file in album directory."
	ReasonNestedDisc         = "Contains nested subdirectories."
	ReasonUnreadableDir      = "Could not read directory."
	reasonDiscFilePrefix     = "Unsupported file in disc folder: "
)

// DiscFileReason returns the anomaly reason for a stray file inside a disc folder
func DiscFileReason(folder string) string {
	return reasonDiscFilePrefix + folder
}

// UnexpectedItem is a filesystem entry that is not a playable track
type UnexpectedItem struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Quality holds the technical properties read from one audio file
type Quality struct {
	Bitrate    string `json:"bitrate"`
	BitDepth   string `json:"bitDepth"`
	SampleRate string `json:"sampleRate"`
	Extension  string `json:"extension"`
}

// Track is a playable audio file
type Track struct {
	ID         uint   `json:"id,omitempty"`
	Name       string `json:"name"`
	Path       string `json:"path"`
	Extension  string `json:"extension"`
	BitDepth   string `json:"bitDepth"`
	SampleRate string `json:"sampleRate"`
	Bitrate    string `json:"bitrate"`
	DiscID     uint   `json:"discId,omitempty"`
}

// Disc groups the tracks of one folder. A root disc stands for tracks that
// live directly in the album folder.
type Disc struct {
	ID      uint    `json:"id,omitempty"`
	Name    string  `json:"name"`
	Path    string  `json:"path"`
	IsRoot  bool    `json:"isRoot"`
	AlbumID uint    `json:"albumId,omitempty"`
	Tracks  []Track `json:"tracks"`
}

// Album is a folder directly below an artist folder
type Album struct {
	ID              uint             `json:"id,omitempty"`
	Title           string           `json:"title"`
	Path            string           `json:"path"`
	ArtistID        uint             `json:"artistId,omitempty"`
	UnexpectedItems []UnexpectedItem `json:"unexpectedItems"`
	Discs           []Disc           `json:"discs"`
	// Converted lists tracks found in the album's converted folder. They are
	// linkage candidates, never discs.
	Converted []Track `json:"converted,omitempty"`
}

// Artist is a folder directly below a registered directory
type Artist struct {
	ID              uint             `json:"id,omitempty"`
	Name            string           `json:"name"`
	Path            string           `json:"path"`
	DirectoryID     uint             `json:"directoryId,omitempty"`
	UnexpectedItems []UnexpectedItem `json:"unexpectedItems"`
	Albums          []Album          `json:"albums"`
}

// Directory is a registered scan root
type Directory struct {
	ID   uint   `json:"id"`
	Path string `json:"path"`
}

// ConvertedFile links a transcode output back to its source track
type ConvertedFile struct {
	ID              uint      `json:"id"`
	OriginalPath    string    `json:"originalPath"`
	ConvertedPath   string    `json:"convertedPath"`
	OriginalTrackID *uint     `json:"originalTrackId"`
	ConversionDate  time.Time `json:"conversionDate"`
}

// FlatTrack is a track with its artist, album and disc fields merged in
type FlatTrack struct {
	Track
	DiscName    string `json:"discName"`
	IsRootDisc  bool   `json:"isRootDisc"`
	AlbumTitle  string `json:"albumTitle"`
	AlbumPath   string `json:"albumPath"`
	ArtistName  string `json:"artistName"`
	ArtistPath  string `json:"artistPath"`
	DirectoryID uint   `json:"directoryId"`
}

// Flatten returns every track of the library in tree order
func Flatten(library []Artist) []FlatTrack {
	flat := make([]FlatTrack, 0)
	for _, artist := range library {
		for _, album := range artist.Albums {
			for _, disc := range album.Discs {
				for _, track := range disc.Tracks {
					flat = append(flat, FlatTrack{
						Track:       track,
						DiscName:    disc.Name,
						IsRootDisc:  disc.IsRoot,
						AlbumTitle:  album.Title,
						AlbumPath:   album.Path,
						ArtistName:  artist.Name,
						ArtistPath:  artist.Path,
						DirectoryID: artist.DirectoryID,
					})
				}
			}
		}
	}
	return flat
}
