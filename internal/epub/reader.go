package epub

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/yuanying/epub2pdf/internal/stage"
)

// EPUBMimetype is the content of the mimetype entry of a valid EPUB.
const EPUBMimetype = "application/epub+zip"

var (
	ErrContainerNotFound = errors.New("META-INF/container.xml not found")
	ErrOPFPathNotFound   = errors.New("OPF path not found in container.xml")
	ErrUnsafePath        = errors.New("archive entry escapes the extraction directory")
)

// Archive is an EPUB unpacked into a directory.
type Archive struct {
	Root     string   // absolute extraction directory
	Files    []string // extracted files, slash separated, in archive order
	Mimetype string   // content of the mimetype entry, empty if absent
}

// container.xml structure
type container struct {
	Rootfiles struct {
		Rootfile []struct {
			FullPath  string `xml:"full-path,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"rootfile"`
	} `xml:"rootfiles"`
}

// Extract unpacks the EPUB at epubPath into dir. Entries that would land
// outside dir are rejected. Symbolic links are skipped.
func Extract(epubPath, dir string) (*Archive, error) {
	zr, err := zip.OpenReader(epubPath)
	if err != nil && !(errors.Is(err, zip.ErrInsecurePath) && zr != nil) {
		return nil, stage.New(stage.ErrExtraction, "open "+epubPath, err)
	}
	defer zr.Close()

	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, stage.New(stage.ErrExtraction, "resolve "+dir, err)
	}

	a := &Archive{Root: root}
	for _, f := range zr.File {
		name := normalizePath(f.Name)
		if name == "" {
			continue
		}

		target, ok := safeJoin(root, name)
		if !ok {
			return nil, stage.New(stage.ErrExtraction, "extract "+f.Name, ErrUnsafePath)
		}

		if f.Mode()&fs.ModeSymlink != 0 {
			continue
		}
		if f.FileInfo().IsDir() || strings.HasSuffix(name, "/") {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, stage.New(stage.ErrExtraction, "extract "+f.Name, err)
			}
			continue
		}

		if err := extractFile(f, target); err != nil {
			return nil, stage.New(stage.ErrExtraction, "extract "+f.Name, err)
		}
		a.Files = append(a.Files, name)

		if name == "mimetype" {
			data, err := os.ReadFile(target)
			if err == nil {
				a.Mimetype = strings.TrimSpace(string(data))
			}
		}
	}

	return a, nil
}

// Path returns the file system path of a slash separated archive path.
func (a *Archive) Path(name string) string {
	return filepath.Join(a.Root, filepath.FromSlash(name))
}

// OPFPath reads container.xml and returns the archive path of the package
// document.
func (a *Archive) OPFPath() (string, error) {
	content, err := os.ReadFile(a.Path("META-INF/container.xml"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrContainerNotFound
		}
		return "", fmt.Errorf("failed to read container.xml: %w", err)
	}

	var c container
	if err := xml.Unmarshal(content, &c); err != nil {
		return "", fmt.Errorf("failed to parse container.xml: %w", err)
	}

	for _, rf := range c.Rootfiles.Rootfile {
		if rf.FullPath != "" && (rf.MediaType == "application/oebps-package+xml" || rf.MediaType == "") {
			return normalizePath(rf.FullPath), nil
		}
	}

	// If no media-type match, use the first one
	for _, rf := range c.Rootfiles.Rootfile {
		if rf.FullPath != "" {
			return normalizePath(rf.FullPath), nil
		}
	}

	return "", ErrOPFPathNotFound
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// safeJoin joins an archive entry name onto root and reports whether the
// result stays inside root.
func safeJoin(root, name string) (string, bool) {
	if path.IsAbs(name) || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", false
	}

	target := filepath.Join(root, filepath.FromSlash(name))
	cleanRoot := filepath.Clean(root)
	if target != cleanRoot && !strings.HasPrefix(target, cleanRoot+string(os.PathSeparator)) {
		return "", false
	}
	return target, true
}

// normalizePath normalizes archive paths (backslashes, ./ prefix)
func normalizePath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	p = strings.TrimPrefix(p, "./")
	return p
}
