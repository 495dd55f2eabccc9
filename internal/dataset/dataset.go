// Package dataset loads COCO caption annotations and resolves the image
// files they refer to.
package dataset

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Annotation is one caption of one image. An image usually has several.
type Annotation struct {
	ID      int64  `json:"id"`
	ImageID int64  `json:"image_id"`
	Caption string `json:"caption"`
}

type cocoCaptions struct {
	Annotations []Annotation `json:"annotations"`
}

// Load reads a COCO captions file.
func Load(file string) ([]Annotation, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer func() { _ = f.Close() }()

	anns, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", file, err)
	}
	return anns, nil
}

// Decode parses COCO captions JSON. Only the "annotations" array is used.
func Decode(r io.Reader) ([]Annotation, error) {
	var doc cocoCaptions
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode captions: %w", err)
	}
	if doc.Annotations == nil {
		return nil, fmt.Errorf("decode captions: missing annotations array")
	}
	return doc.Annotations, nil
}

// ImageFilename formats the COCO file name for an image id (9 -> 000000000009.jpg).
func ImageFilename(imageID int64) string {
	return fmt.Sprintf("%012d.jpg", imageID)
}

// Resolver maps image ids to a local file and to the path served over HTTP.
type Resolver struct {
	imageDir string
	webDir   string
}

// NewResolver creates a resolver. webDir is the URL-relative directory
// returned to clients, e.g. "data/val2017".
func NewResolver(imageDir, webDir string) *Resolver {
	return &Resolver{
		imageDir: imageDir,
		webDir:   strings.TrimSuffix(filepath.ToSlash(webDir), "/"),
	}
}

// AbsPath returns the filesystem path of the image.
func (r *Resolver) AbsPath(imageID int64) string {
	return filepath.Join(r.imageDir, ImageFilename(imageID))
}

// WebPath returns the web-relative path of the image, always with forward slashes.
func (r *Resolver) WebPath(imageID int64) string {
	return path.Join(r.webDir, ImageFilename(imageID))
}

// WebRoot is the URL prefix under which the dataset root is served.
const WebRoot = "data"

// Paths derives the dataset file, image dir and web dir for a split
// under root ("/srv/coco", "val" -> /srv/coco/annotations/captions_val2017.json,
// /srv/coco/val2017, data/val2017).
func Paths(root, split string) (captions, imageDir, webDir string) {
	dir := split + "2017"
	captions = filepath.Join(root, "annotations", "captions_"+split+"2017.json")
	imageDir = filepath.Join(root, dir)
	webDir = path.Join(WebRoot, dir)
	return captions, imageDir, webDir
}
