// Package assets downloads images that notes only reference remotely into
// the output tree, next to the images the export shipped with.
package assets

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/everzim/internal/apperr"
	"github.com/starford/everzim/internal/checksum"
	"github.com/starford/everzim/internal/sanitize"
	"github.com/starford/everzim/internal/storage"
)

// FetchedDir is the directory, below the asset directory, that downloaded
// images are saved in.
const FetchedDir = "fetched"

// DefaultMaxSize caps a single image.
const DefaultMaxSize = 10 << 20 // 10 MB

const maxRedirects = 5

// ErrExists means a named image is already saved with different content.
var ErrExists = errors.New("image exists with different content")

var (
	// typeExt maps the content types kept to the extension used when a
	// name has to be made up.
	typeExt = map[string]string{
		"image/png":     ".png",
		"image/jpeg":    ".jpg",
		"image/gif":     ".gif",
		"image/webp":    ".webp",
		"image/svg+xml": ".svg",
	}

	// extType maps accepted extensions to the content they must hold.
	extType = map[string]string{
		".png":  "image/png",
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".gif":  "image/gif",
		".webp": "image/webp",
		".svg":  "image/svg+xml",
	}
)

// Image describes a saved image.
type Image struct {
	Name   string // file name inside Dir
	Path   string // path relative to the output root
	Type   string
	Reused bool // an identical copy was already saved
}

// Fetcher saves remote images into <asset dir>/fetched of an output tree.
type Fetcher struct {
	store   storage.Provider
	dir     string
	client  *http.Client
	maxSize int64
	guard   func(host string) error
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient sets the HTTP client used for downloads.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithMaxSize overrides DefaultMaxSize.
func WithMaxSize(n int64) Option {
	return func(f *Fetcher) { f.maxSize = n }
}

// WithHostGuard replaces PublicHost as the check run on every host before
// it is contacted. nil allows every host.
func WithHostGuard(fn func(host string) error) Option {
	return func(f *Fetcher) { f.guard = fn }
}

// New returns a Fetcher saving into store under assetDir.
func New(store storage.Provider, assetDir string, opts ...Option) *Fetcher {
	f := &Fetcher{
		store:   store,
		dir:     path.Join(strings.Trim(assetDir, "/"), FetchedDir),
		maxSize: DefaultMaxSize,
		guard:   PublicHost,
	}
	for _, opt := range opts {
		opt(f)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	if f.client != nil {
		c := *f.client
		client = &c
	}
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("assets: more than %d redirects", maxRedirects)
		}
		return f.checkHost(req.URL.Hostname())
	}
	f.client = client
	return f
}

// Dir is where images are saved, relative to the output root.
func (f *Fetcher) Dir() string { return f.dir }

// Fetch downloads src, an http(s) URL or a base64 data URI, and saves it
// under Dir. name overrides the file name taken from src. An unnamed image
// whose URL name is taken by other content is saved under a name derived
// from src instead; a named one fails with ErrExists.
func (f *Fetcher) Fetch(ctx context.Context, src, name string) (Image, error) {
	data, err := f.load(ctx, src)
	if err != nil {
		return Image{}, err
	}
	ctype, err := sniff(data)
	if err != nil {
		return Image{}, err
	}

	explicit := name != ""
	if !explicit {
		name = nameFromURL(src)
	}
	name = fileName(name)
	if name == "" || (!explicit && extType[strings.ToLower(path.Ext(name))] == "") {
		name = stableName(src) + typeExt[ctype]
	}

	ext := strings.ToLower(path.Ext(name))
	want, ok := extType[ext]
	if !ok {
		return Image{}, fmt.Errorf("assets: unsupported extension %q (png, jpg, jpeg, gif, webp, svg): %w", ext, apperr.ErrInvalidInput)
	}
	if want != ctype {
		return Image{}, fmt.Errorf("assets: %s holds %s, not %s: %w", name, ctype, want, apperr.ErrInvalidInput)
	}

	img := Image{Name: name, Path: f.dir + "/" + name, Type: ctype}
	img.Reused, err = f.save(img.Path, data)
	if errors.Is(err, ErrExists) && !explicit {
		img.Name = stableName(src) + ext
		img.Path = f.dir + "/" + img.Name
		img.Reused, err = f.save(img.Path, data)
	}
	if err != nil {
		return Image{}, err
	}
	return img, nil
}

// save writes data to p unless p already holds it.
func (f *Fetcher) save(p string, data []byte) (bool, error) {
	if old, err := f.store.Read(p); err == nil {
		if checksum.Sum(old) == checksum.Sum(data) {
			return true, nil
		}
		return false, fmt.Errorf("assets: %s: %w", p, ErrExists)
	}
	if err := f.store.Write(p, data); err != nil {
		return false, fmt.Errorf("assets: save %s: %w", p, err)
	}
	return false, nil
}

func (f *Fetcher) load(ctx context.Context, src string) ([]byte, error) {
	if strings.HasPrefix(src, "data:") {
		data, err := decodeDataURI(src)
		if err != nil {
			return nil, err
		}
		if int64(len(data)) > f.maxSize {
			return nil, fmt.Errorf("assets: image larger than %d bytes: %w", f.maxSize, apperr.ErrInvalidInput)
		}
		return data, nil
	}

	u, err := url.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("assets: %w: %v", apperr.ErrInvalidInput, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("assets: unsupported scheme %q: %w", u.Scheme, apperr.ErrInvalidInput)
	}
	if err := f.checkHost(u.Hostname()); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("assets: %w: %v", apperr.ErrInvalidInput, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("assets: download %s: %w", src, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("assets: download %s: HTTP %d", src, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("assets: download %s: %w", src, err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, fmt.Errorf("assets: image larger than %d bytes: %w", f.maxSize, apperr.ErrInvalidInput)
	}
	return data, nil
}

func (f *Fetcher) checkHost(host string) error {
	if f.guard == nil {
		return nil
	}
	return f.guard(host)
}

// PublicHost rejects hosts that resolve to loopback, link-local (where
// cloud metadata services live) or unspecified addresses. Hosts that do not
// resolve are let through for the download to fail on.
func PublicHost(host string) error {
	if strings.EqualFold(host, "localhost") || strings.EqualFold(host, "metadata.google.internal") {
		return fmt.Errorf("assets: blocked host %s: %w", host, apperr.ErrInvalidInput)
	}
	ips := []net.IP{net.ParseIP(host)}
	if ips[0] == nil {
		resolved, err := net.LookupIP(host)
		if err != nil {
			return nil //nolint:nilerr // the download reports DNS failures
		}
		ips = resolved
	}
	for _, ip := range ips {
		if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return fmt.Errorf("assets: blocked host %s (%s): %w", host, ip, apperr.ErrInvalidInput)
		}
	}
	return nil
}

// decodeDataURI decodes data:image/<type>[;params];base64,<payload>.
func decodeDataURI(src string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(src, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("assets: data URI without payload: %w", apperr.ErrInvalidInput)
	}
	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, fmt.Errorf("assets: only base64 data URIs are supported: %w", apperr.ErrInvalidInput)
	}
	mediaType, _, _ = strings.Cut(mediaType, ";")
	if !strings.HasPrefix(mediaType, "image/") {
		return nil, fmt.Errorf("assets: data URI holds %q, not an image: %w", mediaType, apperr.ErrInvalidInput)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return nil, fmt.Errorf("assets: bad base64 payload: %w", apperr.ErrInvalidInput)
		}
	}
	return data, nil
}

// sniff returns the image type of data, judged by content only.
func sniff(data []byte) (string, error) {
	ctype, _, _ := strings.Cut(http.DetectContentType(data), ";")
	if _, ok := typeExt[ctype]; ok {
		return ctype, nil
	}
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	if bytes.Contains(head, []byte("<svg")) {
		return "image/svg+xml", nil
	}
	return "", fmt.Errorf("assets: content is %s, not an image: %w", ctype, apperr.ErrInvalidInput)
}

// nameFromURL returns the last path segment of an http(s) URL when it looks
// like a file name.
func nameFromURL(src string) string {
	if strings.HasPrefix(src, "data:") {
		return ""
	}
	u, err := url.Parse(src)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if !strings.Contains(base, ".") {
		return ""
	}
	return base
}

// fileName reduces name to a single sanitized path segment.
func fileName(name string) string {
	name = sanitize.Full(path.Base(strings.ReplaceAll(name, `\`, "/")))
	if name == "." || name == ".." || name == "&" {
		return ""
	}
	return name
}

// stableName names an image after its source, so every note embedding the
// same URL shares one copy.
func stableName(src string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(src)).String()
}
