package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// GetFileExtension returns the file extension without the dot
func GetFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// SanitizeFilename removes or replaces invalid characters in filenames
func SanitizeFilename(filename string) string {
	// Replace invalid characters with underscores
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := filename

	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}

	// Remove leading/trailing spaces and dots
	result = strings.Trim(result, " .")

	return result
}

// CropFilename builds the output path of one annotation crop:
// {dir}/img{index}_crop_{annotationID}_{className}.{format}
func CropFilename(dir string, imageIndex int, annotationID int64, className, format string) string {
	name := fmt.Sprintf("img%d_crop_%d_%s.%s", imageIndex, annotationID, SanitizeFilename(className), format)
	return filepath.Join(dir, name)
}

// PanelPath inserts _image_{index} before the extension of template. A
// template without an extension gets _image_{index}.png appended.
func PanelPath(template string, imageIndex int) string {
	dir, base := filepath.Split(template)
	if i := strings.LastIndex(base, "."); i >= 0 {
		return dir + fmt.Sprintf("%s_image_%d.%s", base[:i], imageIndex, base[i+1:])
	}
	return fmt.Sprintf("%s_image_%d.png", template, imageIndex)
}

// FormatFileSize formats file size in human-readable format
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
