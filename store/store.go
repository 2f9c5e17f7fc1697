package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cadence/types"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Store persists the artist, album, disc and track tree along with
// directory registrations and conversion history.
type Store struct {
	db  *gorm.DB
	log zerolog.Logger
}

// Open opens or creates the library database at path and migrates the schema
func Open(path string, log zerolog.Logger) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := path + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	// one connection keeps pragmas and transactions on the same handle
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Directory{}, &Artist{}, &Album{}, &Disc{}, &Track{}, &ConvertedFile{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	log.Debug().Str("path", path).Msg("library database ready")
	return &Store{db: db, log: log}, nil
}

// Close releases the database handle
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks that the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// ListDirectories returns every registered directory ordered by id
func (s *Store) ListDirectories(ctx context.Context) ([]types.Directory, error) {
	var rows []Directory
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list directories: %w", err)
	}
	dirs := make([]types.Directory, 0, len(rows))
	for _, r := range rows {
		dirs = append(dirs, r.toType())
	}
	return dirs, nil
}

// AddDirectory registers path. Registering an existing path returns the
// existing record.
func (s *Store) AddDirectory(ctx context.Context, path string) (types.Directory, error) {
	db := s.db.WithContext(ctx)
	row := Directory{Path: path}
	if err := db.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "path"}}, DoNothing: true}).Create(&row).Error; err != nil {
		return types.Directory{}, fmt.Errorf("add directory: %w", err)
	}
	var existing Directory
	if err := db.Where("path = ?", path).First(&existing).Error; err != nil {
		return types.Directory{}, fmt.Errorf("load directory: %w", err)
	}
	return existing.toType(), nil
}

// GetDirectory returns the directory with id or types.ErrNotFound
func (s *Store) GetDirectory(ctx context.Context, id uint) (types.Directory, error) {
	var row Directory
	err := s.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.Directory{}, types.ErrNotFound
	}
	if err != nil {
		return types.Directory{}, fmt.Errorf("get directory: %w", err)
	}
	return row.toType(), nil
}

// RemoveDirectory deletes a directory and, by cascade, its whole tree
func (s *Store) RemoveDirectory(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&Directory{}, id)
	if res.Error != nil {
		return fmt.Errorf("remove directory: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return types.ErrNotFound
	}
	return nil
}

// ClearDirectoryData deletes every artist owned by the directory. Albums,
// discs and tracks follow by cascade.
func (s *Store) ClearDirectoryData(ctx context.Context, directoryID uint) error {
	return clearDirectoryData(s.db.WithContext(ctx), directoryID)
}

// InsertArtist stores an artist row and returns its id. An existing path
// returns the existing id.
func (s *Store) InsertArtist(ctx context.Context, artist types.Artist, directoryID uint) (uint, error) {
	return insertArtist(s.db.WithContext(ctx), artist, directoryID)
}

// InsertAlbum stores an album row and returns its id. An existing path
// returns the existing id.
func (s *Store) InsertAlbum(ctx context.Context, album types.Album, artistID uint) (uint, error) {
	return insertAlbum(s.db.WithContext(ctx), album, artistID)
}

// InsertDisc stores a disc row unconditionally
func (s *Store) InsertDisc(ctx context.Context, disc types.Disc, albumID uint) (uint, error) {
	return insertDisc(s.db.WithContext(ctx), disc, albumID)
}

// InsertTrack stores a track row. An existing path is kept unchanged.
func (s *Store) InsertTrack(ctx context.Context, track types.Track, discID uint) error {
	return insertTrack(s.db.WithContext(ctx), track, discID)
}

// ReplaceDirectoryTree deletes the directory's stored tree and inserts
// artists in its place within one transaction.
func (s *Store) ReplaceDirectoryTree(ctx context.Context, directoryID uint, artists []types.Artist) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := clearDirectoryData(tx, directoryID); err != nil {
			return err
		}
		for _, artist := range artists {
			artistID, err := insertArtist(tx, artist, directoryID)
			if err != nil {
				return err
			}
			for _, album := range artist.Albums {
				albumID, err := insertAlbum(tx, album, artistID)
				if err != nil {
					return err
				}
				for _, disc := range album.Discs {
					discID, err := insertDisc(tx, disc, albumID)
					if err != nil {
						return err
					}
					for _, track := range disc.Tracks {
						if err := insertTrack(tx, track, discID); err != nil {
							return err
						}
					}
				}
			}
		}
		return nil
	})
}

// GetFullLibrary returns the stored tree. Artists and albums are ordered
// case-insensitively, discs and tracks by insertion.
func (s *Store) GetFullLibrary(ctx context.Context) ([]types.Artist, error) {
	var rows []Artist
	err := s.db.WithContext(ctx).
		Preload("Albums", func(db *gorm.DB) *gorm.DB { return db.Order("title COLLATE NOCASE") }).
		Preload("Albums.Discs", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Albums.Discs.Tracks", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Order("name COLLATE NOCASE").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load library: %w", err)
	}
	library := make([]types.Artist, 0, len(rows))
	for _, r := range rows {
		library = append(library, r.toType())
	}
	return library, nil
}

// FindTrack returns the stored track at path or types.ErrNotFound
func (s *Store) FindTrack(ctx context.Context, path string) (types.Track, error) {
	var row Track
	err := s.db.WithContext(ctx).Where("path = ?", path).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.Track{}, types.ErrNotFound
	}
	if err != nil {
		return types.Track{}, fmt.Errorf("find track: %w", err)
	}
	return row.toType(), nil
}

// AlbumPathForTrack returns the folder of the album owning the track at path
func (s *Store) AlbumPathForTrack(ctx context.Context, path string) (string, error) {
	var albumPath string
	err := s.db.WithContext(ctx).
		Table("tracks").
		Select("albums.path").
		Joins("JOIN discs ON discs.id = tracks.disc_id").
		Joins("JOIN albums ON albums.id = discs.album_id").
		Where("tracks.path = ?", path).
		Limit(1).
		Scan(&albumPath).Error
	if err != nil {
		return "", fmt.Errorf("resolve album for track: %w", err)
	}
	if albumPath == "" {
		return "", types.ErrNotFound
	}
	return albumPath, nil
}

// InsertConvertedFile records a conversion output. The record is linked to
// the stored track at originalPath when there is one.
func (s *Store) InsertConvertedFile(ctx context.Context, originalPath, convertedPath string) error {
	db := s.db.WithContext(ctx)

	row := ConvertedFile{
		OriginalPath:   originalPath,
		ConvertedPath:  convertedPath,
		ConversionDate: time.Now().UTC(),
	}
	var track Track
	err := db.Select("id").Where("path = ?", originalPath).First(&track).Error
	switch {
	case err == nil:
		row.OriginalTrackID = &track.ID
	case errors.Is(err, gorm.ErrRecordNotFound):
		s.log.Debug().Str("path", originalPath).Msg("storing unlinked conversion record")
	default:
		return fmt.Errorf("find original track: %w", err)
	}

	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "original_path"}},
		DoUpdates: clause.AssignmentColumns([]string{"converted_path", "original_track_id", "conversion_date"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("insert converted file: %w", err)
	}
	return nil
}

// ListConvertedFiles returns the conversion history, newest first
func (s *Store) ListConvertedFiles(ctx context.Context) ([]types.ConvertedFile, error) {
	var rows []ConvertedFile
	if err := s.db.WithContext(ctx).Order("conversion_date DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list converted files: %w", err)
	}
	files := make([]types.ConvertedFile, 0, len(rows))
	for _, r := range rows {
		files = append(files, r.toType())
	}
	return files, nil
}

func clearDirectoryData(db *gorm.DB, directoryID uint) error {
	if err := db.Where("directory_id = ?", directoryID).Delete(&Artist{}).Error; err != nil {
		return fmt.Errorf("clear directory %d: %w", directoryID, err)
	}
	return nil
}

func insertArtist(db *gorm.DB, artist types.Artist, directoryID uint) (uint, error) {
	row := Artist{
		Name:            artist.Name,
		Path:            artist.Path,
		DirectoryID:     directoryID,
		UnexpectedItems: nonNilItems(artist.UnexpectedItems),
	}
	if err := db.Where(Artist{Path: artist.Path}).Attrs(row).FirstOrCreate(&row).Error; err != nil {
		return 0, fmt.Errorf("insert artist %s: %w", artist.Path, err)
	}
	return row.ID, nil
}

func insertAlbum(db *gorm.DB, album types.Album, artistID uint) (uint, error) {
	row := Album{
		Title:           album.Title,
		Path:            album.Path,
		ArtistID:        artistID,
		UnexpectedItems: nonNilItems(album.UnexpectedItems),
	}
	if err := db.Where(Album{Path: album.Path}).Attrs(row).FirstOrCreate(&row).Error; err != nil {
		return 0, fmt.Errorf("insert album %s: %w", album.Path, err)
	}
	return row.ID, nil
}

func insertDisc(db *gorm.DB, disc types.Disc, albumID uint) (uint, error) {
	row := Disc{Name: disc.Name, Path: disc.Path, IsRoot: disc.IsRoot, AlbumID: albumID}
	if err := db.Create(&row).Error; err != nil {
		return 0, fmt.Errorf("insert disc %s: %w", disc.Path, err)
	}
	return row.ID, nil
}

func insertTrack(db *gorm.DB, track types.Track, discID uint) error {
	row := Track{
		Name:       track.Name,
		Path:       track.Path,
		Extension:  track.Extension,
		BitDepth:   track.BitDepth,
		SampleRate: track.SampleRate,
		Bitrate:    track.Bitrate,
		DiscID:     discID,
	}
	err := db.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "path"}}, DoNothing: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("insert track %s: %w", track.Path, err)
	}
	return nil
}
