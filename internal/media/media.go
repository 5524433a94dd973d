// Package media provides modality detection and file validation for
// audio/video files discovered under monitored folders.
package media

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// Modality is the semantic channel of a file or query.
type Modality string

const (
	// ModalityAudio covers audio-only content.
	ModalityAudio Modality = "audio"
	// ModalityVideo covers video content.
	ModalityVideo Modality = "video"
	// ModalityAudioVideo covers combined audio-video alignment.
	// Files are never tagged audio_video; it exists as a search target
	// and folder filter value.
	ModalityAudioVideo Modality = "audio_video"
	// ModalityAll matches every supported modality (folder filter only).
	ModalityAll Modality = "all"
)

// String returns the modality as a plain string.
func (m Modality) String() string { return string(m) }

// ValidFolderFilter reports whether m is an accepted folder modality filter.
func ValidFolderFilter(m Modality) bool {
	switch m {
	case ModalityAudio, ModalityVideo, ModalityAudioVideo, ModalityAll:
		return true
	}
	return false
}

// audioExtensions are the supported audio file extensions (lowercase).
var audioExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".flac": true,
	".aac":  true,
	".ogg":  true,
	".m4a":  true,
	".wma":  true,
	".opus": true,
}

// videoExtensions are the supported video file extensions (lowercase).
var videoExtensions = map[string]bool{
	".mp4":  true,
	".avi":  true,
	".mov":  true,
	".mkv":  true,
	".webm": true,
	".flv":  true,
	".wmv":  true,
	".m4v":  true,
}

// Detect returns the modality of the file at path based on its extension.
// The second return value is false for unsupported extensions.
func Detect(path string) (Modality, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case audioExtensions[ext]:
		return ModalityAudio, true
	case videoExtensions[ext]:
		return ModalityVideo, true
	}
	return "", false
}

// IsSupported reports whether the file at path has a supported extension.
func IsSupported(path string) bool {
	_, ok := Detect(path)
	return ok
}

// ExtensionsFor returns the set of extensions a folder with the given
// modality filter should enumerate. The audio_video filter selects video
// containers only: audio-only files carry no video channel to align against.
func ExtensionsFor(filter Modality) map[string]bool {
	exts := make(map[string]bool, len(audioExtensions)+len(videoExtensions))
	if filter == ModalityAll || filter == ModalityAudio {
		for ext := range audioExtensions {
			exts[ext] = true
		}
	}
	if filter == ModalityAll || filter == ModalityVideo || filter == ModalityAudioVideo {
		for ext := range videoExtensions {
			exts[ext] = true
		}
	}
	return exts
}

// MimeType returns the MIME type guessed from the file extension, or empty
// when unknown.
func MimeType(path string) string {
	return mime.TypeByExtension(filepath.Ext(path))
}

// Validate checks that path points at a non-empty, readable, supported
// regular file. A non-nil error describes the first failed check; callers
// treat any failure as a silent skip, never a fault.
func Validate(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("file not found: %s", path)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("file not readable: %s", path)
	}
	_ = f.Close()
	if info.Size() == 0 {
		return fmt.Errorf("file is empty: %s", path)
	}
	if !IsSupported(path) {
		return fmt.Errorf("unsupported file format: %s", path)
	}
	return nil
}

// FileInfo is the metadata captured when a file record is first created.
type FileInfo struct {
	Path     string
	Filename string
	Modality Modality
	Size     int64
	MimeType string
}

// Stat gathers FileInfo for a supported file. It does not validate; call
// Validate first when skip-on-failure semantics are needed.
func Stat(path string) (FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, err
	}
	modality, ok := Detect(path)
	if !ok {
		return FileInfo{}, fmt.Errorf("unsupported file format: %s", path)
	}
	return FileInfo{
		Path:     path,
		Filename: filepath.Base(path),
		Modality: modality,
		Size:     info.Size(),
		MimeType: MimeType(path),
	}, nil
}
