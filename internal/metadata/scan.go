package metadata

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// supportedExtensions covers JPEG plus the TIFF-based RAW containers the
// writer knows how to stage.
var supportedExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".nef":  {},
	".cr2":  {},
	".arw":  {},
	".dng":  {},
	".tif":  {},
	".tiff": {},
}

func supportedExt(path string) bool {
	_, ok := supportedExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Scan walks root and returns supported photo files in lexical walk order.
// Sibling .backup copies from earlier runs are excluded so a re-sync never
// touches the preserved originals.
func Scan(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("photo folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("photo folder %s is not a directory", root)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".backup") || !supportedExt(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	return files, nil
}
