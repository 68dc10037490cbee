// Package download fetches intro and outro clips next to the episode being
// processed.
package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"

	"episodic/internal/logging"
	"episodic/internal/services"
)

// StageDownload names the download step in errors and logs.
const StageDownload = "download"

// sniffLen is how much of the body is buffered for type detection.
const sniffLen = 3072

// Fetcher stores the resource at url. resolve maps the detected file
// extension (without the dot) to the destination path.
type Fetcher interface {
	Fetch(ctx context.Context, url string, resolve func(ext string) string) (string, error)
}

// HTTPFetcher is the default Fetcher.
type HTTPFetcher struct {
	Client    *http.Client
	UserAgent string
}

// NewHTTPFetcher returns a fetcher with a per-request timeout.
func NewHTTPFetcher(timeout time.Duration, userAgent string) *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: timeout}, UserAgent: userAgent}
}

// Fetch downloads url, sniffing the payload type to choose the extension.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, resolve func(ext string) string) (string, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("get %s: unexpected status %s", rawURL, resp.Status)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(resp.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read %s: %w", rawURL, err)
	}
	head = head[:n]

	dest := resolve(Extension(head, rawURL))
	file, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(file, io.MultiReader(bytes.NewReader(head), resp.Body)); err != nil {
		_ = file.Close()
		_ = os.Remove(dest)
		return "", fmt.Errorf("write %s: %w", dest, err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(dest)
		return "", fmt.Errorf("close %s: %w", dest, err)
	}
	return dest, nil
}

// Extension picks the file extension for a payload: the sniffed type, then
// the URL path extension, then "bin".
func Extension(head []byte, rawURL string) string {
	if mtype := mimetype.Detect(head); mtype != nil {
		if ext := strings.TrimPrefix(mtype.Extension(), "."); ext != "" {
			return ext
		}
	}
	if parsed, err := url.Parse(rawURL); err == nil {
		if ext := strings.TrimPrefix(path.Ext(parsed.Path), "."); ext != "" {
			return strings.ToLower(ext)
		}
	}
	return "bin"
}

// Mirror rewrites URLs on Host onto Base, keeping only the file name.
type Mirror struct {
	Host string
	Base string
}

// Rewrite applies the mirror to rawURL.
func (m Mirror) Rewrite(rawURL string) string {
	if m.Host == "" || m.Base == "" || !strings.Contains(rawURL, m.Host) {
		return rawURL
	}
	name := path.Base(rawURL)
	if parsed, err := url.Parse(rawURL); err == nil {
		name = path.Base(parsed.Path)
	}
	return strings.TrimRight(m.Base, "/") + "/" + name
}

// Request names the clips to fetch and the file they are stored beside.
type Request struct {
	IntroURL string
	OutroURL string
	// RefPath is the episode file; clips are saved as <base>_intro.<ext>
	// and <base>_outro.<ext> next to it.
	RefPath string
	Mirror  Mirror
}

// Result holds the downloaded paths. Shared is set when one download
// serves as both intro and outro.
type Result struct {
	IntroPath string
	OutroPath string
	Shared    bool
}

// SavePath builds the destination for a clip role ("intro" or "outro").
func SavePath(ref, role, ext string) string {
	return strings.TrimSuffix(ref, filepath.Ext(ref)) + "_" + role + "." + ext
}

// IntroOutro fetches the requested clips concurrently. Identical URLs are
// fetched once. Every fetch must succeed; on failure any completed download
// is removed and the errors of all failed fetches are returned together.
func IntroOutro(ctx context.Context, fetcher Fetcher, req Request, logger *slog.Logger) (Result, error) {
	logger = logging.WithContext(services.WithStage(ctx, StageDownload), logging.NewComponentLogger(logger, "download"))
	if strings.TrimSpace(req.RefPath) == "" {
		return Result{}, services.Wrap(services.ErrMissingInput, StageDownload, "", "Saving reference path is missing", nil)
	}
	intro := strings.TrimSpace(req.IntroURL)
	outro := strings.TrimSpace(req.OutroURL)
	if intro == "" && outro == "" {
		return Result{}, nil
	}

	type job struct {
		role string
		url  string
		dest string
		err  error
	}
	var jobs []*job
	if intro != "" {
		jobs = append(jobs, &job{role: "intro", url: intro})
	}
	shared := intro != "" && intro == outro
	if outro != "" && !shared {
		jobs = append(jobs, &job{role: "outro", url: outro})
	}

	var group errgroup.Group
	for _, j := range jobs {
		group.Go(func() error {
			source := req.Mirror.Rewrite(j.url)
			logger.Info("downloading clip",
				logging.String("role", j.role),
				logging.String("url", source),
			)
			j.dest, j.err = fetcher.Fetch(ctx, source, func(ext string) string {
				return SavePath(req.RefPath, j.role, ext)
			})
			if j.err == nil {
				logger.Info("clip downloaded", logging.String("role", j.role), logging.String("clip_path", j.dest))
			}
			return j.err
		})
	}
	_ = group.Wait()

	var errs []error
	urls := make([]string, 0, len(jobs))
	for _, j := range jobs {
		urls = append(urls, j.url)
		if j.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", j.role, j.err))
		}
	}
	if len(errs) > 0 {
		for _, j := range jobs {
			if j.err == nil && j.dest != "" {
				_ = os.Remove(j.dest)
			}
		}
		return Result{}, services.Wrap(services.ErrDownload, StageDownload, "fetch",
			fmt.Sprintf("Unable to download intro/outro file %s", strings.Join(urls, ", ")), errors.Join(errs...))
	}

	var result Result
	for _, j := range jobs {
		switch j.role {
		case "intro":
			result.IntroPath = j.dest
		case "outro":
			result.OutroPath = j.dest
		}
	}
	if shared {
		result.OutroPath = result.IntroPath
		result.Shared = true
	}
	return result, nil
}
