package store

import (
	"time"

	"cadence/types"
)

// Directory is a registered scan root
type Directory struct {
	ID      uint     `gorm:"primaryKey"`
	Path    string   `gorm:"not null;uniqueIndex"`
	Artists []Artist `gorm:"foreignKey:DirectoryID;constraint:OnDelete:CASCADE"`
}

// Artist rows are replaced wholesale on every scan of their directory
type Artist struct {
	ID              uint                   `gorm:"primaryKey"`
	Name            string                 `gorm:"not null"`
	Path            string                 `gorm:"not null;uniqueIndex"`
	DirectoryID     uint                   `gorm:"not null;index"`
	UnexpectedItems []types.UnexpectedItem `gorm:"serializer:json"`
	Albums          []Album                `gorm:"foreignKey:ArtistID;constraint:OnDelete:CASCADE"`
}

// Album belongs to an artist
type Album struct {
	ID              uint                   `gorm:"primaryKey"`
	Title           string                 `gorm:"not null"`
	Path            string                 `gorm:"not null;uniqueIndex"`
	ArtistID        uint                   `gorm:"not null;index"`
	UnexpectedItems []types.UnexpectedItem `gorm:"serializer:json"`
	Discs           []Disc                 `gorm:"foreignKey:AlbumID;constraint:OnDelete:CASCADE"`
}

// Disc has no uniqueness constraint beyond its album
type Disc struct {
	ID      uint    `gorm:"primaryKey"`
	Name    string  `gorm:"not null"`
	Path    string  `gorm:"not null"`
	IsRoot  bool    `gorm:"not null;default:false"`
	AlbumID uint    `gorm:"not null;index"`
	Tracks  []Track `gorm:"foreignKey:DiscID;constraint:OnDelete:CASCADE"`
}

// Track is unique by path
type Track struct {
	ID         uint   `gorm:"primaryKey"`
	Name       string `gorm:"not null"`
	Path       string `gorm:"not null;uniqueIndex"`
	Extension  string
	BitDepth   string
	SampleRate string
	Bitrate    string
	DiscID     uint `gorm:"not null;index"`
}

// ConvertedFile survives rescans. The track link is cleared when the
// track row is deleted and restored by the next link call.
type ConvertedFile struct {
	ID              uint      `gorm:"primaryKey"`
	OriginalPath    string    `gorm:"not null;uniqueIndex"`
	ConvertedPath   string    `gorm:"not null"`
	OriginalTrackID *uint     `gorm:"index"`
	OriginalTrack   *Track    `gorm:"foreignKey:OriginalTrackID;constraint:OnDelete:SET NULL"`
	ConversionDate  time.Time `gorm:"not null"`
}

func (d Directory) toType() types.Directory {
	return types.Directory{ID: d.ID, Path: d.Path}
}

func (t Track) toType() types.Track {
	return types.Track{
		ID:         t.ID,
		Name:       t.Name,
		Path:       t.Path,
		Extension:  t.Extension,
		BitDepth:   t.BitDepth,
		SampleRate: t.SampleRate,
		Bitrate:    t.Bitrate,
		DiscID:     t.DiscID,
	}
}

func (d Disc) toType() types.Disc {
	tracks := make([]types.Track, 0, len(d.Tracks))
	for _, t := range d.Tracks {
		tracks = append(tracks, t.toType())
	}
	return types.Disc{ID: d.ID, Name: d.Name, Path: d.Path, IsRoot: d.IsRoot, AlbumID: d.AlbumID, Tracks: tracks}
}

func (a Album) toType() types.Album {
	discs := make([]types.Disc, 0, len(a.Discs))
	for _, d := range a.Discs {
		discs = append(discs, d.toType())
	}
	return types.Album{
		ID:              a.ID,
		Title:           a.Title,
		Path:            a.Path,
		ArtistID:        a.ArtistID,
		UnexpectedItems: nonNilItems(a.UnexpectedItems),
		Discs:           discs,
	}
}

func (a Artist) toType() types.Artist {
	albums := make([]types.Album, 0, len(a.Albums))
	for _, al := range a.Albums {
		albums = append(albums, al.toType())
	}
	return types.Artist{
		ID:              a.ID,
		Name:            a.Name,
		Path:            a.Path,
		DirectoryID:     a.DirectoryID,
		UnexpectedItems: nonNilItems(a.UnexpectedItems),
		Albums:          albums,
	}
}

func (c ConvertedFile) toType() types.ConvertedFile {
	return types.ConvertedFile{
		ID:              c.ID,
		OriginalPath:    c.OriginalPath,
		ConvertedPath:   c.ConvertedPath,
		OriginalTrackID: c.OriginalTrackID,
		ConversionDate:  c.ConversionDate,
	}
}

func nonNilItems(items []types.UnexpectedItem) []types.UnexpectedItem {
	if items == nil {
		return []types.UnexpectedItem{}
	}
	return items
}
