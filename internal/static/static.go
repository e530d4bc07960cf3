// Package static 은 프론트엔드 빌드 산출물 디렉터리를 제공하고,
// 정적 파일이 없을 때 SPA 엔트리 파일로 fallback 합니다.
package static

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrAssetMissing 은 요청 경로에 해당하는 일반 파일이 없을 때 반환됩니다.
// 디렉터리는 정적 파일 hit 로 보지 않습니다.
var ErrAssetMissing = errors.New("static asset missing")

// Server 는 루트 디렉터리의 파일을 정확한 경로로만 제공합니다.
type Server struct {
	root      string
	realRoot  string // 심볼릭 링크를 해석한 root
	entryPath string
	entryName string
}

// New 는 root 디렉터리와 그 안의 엔트리 파일로 Server 를 만듭니다.
// 엔트리 파일은 시작 시점에 존재해야 합니다.
func New(root, entry string) (*Server, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("static root %q: %w", root, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("static root %q is not a directory", root)
	}

	entryPath := filepath.Join(root, filepath.FromSlash(entry))
	efi, err := os.Stat(entryPath)
	if err != nil {
		return nil, fmt.Errorf("spa entry %q: %w", entryPath, err)
	}
	if !efi.Mode().IsRegular() {
		return nil, fmt.Errorf("spa entry %q is not a regular file", entryPath)
	}

	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("static root %q: %w", root, err)
	}

	return &Server{root: root, realRoot: realRoot, entryPath: entryPath, entryName: path.Base(entry)}, nil
}

// Resolve 는 URL 경로를 루트 아래의 일반 파일 경로로 변환합니다.
// 파일이 없거나 디렉터리이면 ErrAssetMissing 을 반환합니다.
func (s *Server) Resolve(urlPath string) (string, error) {
	// path.Clean("/" + p) 는 ".." 를 루트 위로 올라가지 못하게 정리합니다.
	clean := path.Clean("/" + urlPath)
	if strings.Contains(clean, "\x00") {
		return "", ErrAssetMissing
	}
	full := filepath.Join(s.root, filepath.FromSlash(clean))

	fi, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrInvalid) || errors.Is(err, os.ErrPermission) {
			return "", ErrAssetMissing
		}
		// ENOTDIR 등 경로 중간이 파일인 경우도 miss 로 취급합니다.
		return "", fmt.Errorf("%w: %v", ErrAssetMissing, err)
	}
	if !fi.Mode().IsRegular() {
		return "", ErrAssetMissing
	}
	if !s.withinRoot(full) {
		return "", ErrAssetMissing
	}
	return full, nil
}

// withinRoot 는 심볼릭 링크를 따라간 실제 경로가 루트 밖을 가리키지 않는지 확인합니다.
func (s *Server) withinRoot(full string) bool {
	real, err := filepath.EvalSymlinks(full)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(s.realRoot, real)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// ServeFile 은 요청 경로에 해당하는 파일을 제공합니다.
// 파일이 없으면 아무것도 쓰지 않고 ErrAssetMissing 을 반환합니다.
func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request) error {
	full, err := s.Resolve(r.URL.Path)
	if err != nil {
		return err
	}
	return serveContent(w, r, full, path.Base(r.URL.Path))
}

// ServeEntry 는 SPA 엔트리 파일을 200 으로 제공합니다.
func (s *Server) ServeEntry(w http.ResponseWriter, r *http.Request) error {
	// 엔트리는 항상 최신 빌드를 가리켜야 하므로 캐시하지 않습니다.
	w.Header().Set("Cache-Control", "no-cache")
	return serveContent(w, r, s.entryPath, s.entryName)
}

// EntryPath returns the resolved on-disk path of the SPA entry file.
func (s *Server) EntryPath() string { return s.entryPath }

func serveContent(w http.ResponseWriter, r *http.Request, full, name string) error {
	f, err := os.Open(full)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAssetMissing, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAssetMissing, err)
	}
	// ServeContent 는 Range, If-Modified-Since 를 처리하고 확장자로 Content-Type 을 정합니다.
	// http.ServeFile 과 달리 index.html 리다이렉트를 하지 않습니다.
	http.ServeContent(w, r, name, fi.ModTime(), f)
	return nil
}
