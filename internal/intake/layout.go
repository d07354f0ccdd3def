package intake

import (
	"bytes"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ClassPrefix starts every folder name inside an uploaded dataset.
const ClassPrefix = "class_"

// Layout summarizes an uploaded dataset archive.
type Layout struct {
	Root    string
	Classes []string
	Files   int
}

// InspectArchive reads a zipped dataset folder. A single enclosing folder
// (the dataset name) is allowed; below it every folder must be named
// class_<label>.
func InspectArchive(data []byte) (Layout, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Layout{}, fmt.Errorf("%w: %v", ErrUnsupportedArchive, err)
	}

	var entries []archiveEntry
	for _, f := range zr.File {
		name := strings.ReplaceAll(f.Name, "\\", "/")
		if strings.HasPrefix(name, "__MACOSX/") {
			continue
		}
		isDir := strings.HasSuffix(name, "/") || f.FileInfo().IsDir()
		clean := path.Clean(name)
		if clean == "." {
			continue
		}
		if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
			return Layout{}, fmt.Errorf("%w: unsafe path %q", ErrInvalidLayout, f.Name)
		}
		entries = append(entries, archiveEntry{parts: strings.Split(clean, "/"), dir: isDir})
	}

	layout := Layout{Root: commonRoot(entries)}
	classes := make(map[string]struct{})
	for _, e := range entries {
		parts := e.parts
		if layout.Root != "" {
			parts = parts[1:]
		}
		dirs := parts
		if !e.dir {
			layout.Files++
			dirs = parts[:len(parts)-1]
		}
		for _, d := range dirs {
			if !strings.HasPrefix(d, ClassPrefix) {
				return Layout{}, fmt.Errorf("%w: folder %q is not named %s<label>", ErrInvalidLayout, d, ClassPrefix)
			}
		}
		if len(dirs) > 0 {
			classes[dirs[0]] = struct{}{}
		}
	}
	if layout.Files == 0 {
		return Layout{}, fmt.Errorf("%w: archive holds no files", ErrInvalidLayout)
	}
	for c := range classes {
		layout.Classes = append(layout.Classes, c)
	}
	sort.Strings(layout.Classes)
	return layout, nil
}

type archiveEntry struct {
	parts []string
	dir   bool
}

// commonRoot returns the single enclosing folder shared by every entry, or
// "" when there is none or it is itself a class folder.
func commonRoot(entries []archiveEntry) string {
	if len(entries) == 0 {
		return ""
	}
	root := entries[0].parts[0]
	for _, e := range entries {
		if e.parts[0] != root {
			return ""
		}
		if len(e.parts) == 1 && !e.dir {
			return ""
		}
	}
	if strings.HasPrefix(root, ClassPrefix) {
		return ""
	}
	return root
}
