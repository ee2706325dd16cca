package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/tingold/geocouple/internal/failure"
	"github.com/tingold/geocouple/internal/geodata"
	"github.com/tingold/geocouple/internal/logger"
)

// Defaults applied by New when an option is left zero.
const (
	DefaultMaxBytes  int64 = 256 << 20
	DefaultUserAgent       = "geocouple"
)

// Options configure an Acquirer.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	MaxBytes  int64
	// TempDir is the parent of the per-call scratch directories. Empty
	// means the system temp dir.
	TempDir string
	Logger  *slog.Logger
}

// Acquirer fetches and decodes datasets.
type Acquirer struct {
	fetch    *fetcher
	tempDir  string
	maxBytes int64
	log      *slog.Logger
}

// New returns an Acquirer. Zero options take their defaults.
func New(opts Options) *Acquirer {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	return &Acquirer{
		fetch:    newFetcher(opts.Timeout, opts.UserAgent, opts.MaxBytes),
		tempDir:  opts.TempDir,
		maxBytes: opts.MaxBytes,
		log:      logger.Or(opts.Logger),
	}
}

// Acquire loads the dataset d points at. The returned dataset carries the
// CRS declared by the source, which may be nil.
func (a *Acquirer) Acquire(ctx context.Context, d Descriptor) (*geodata.Dataset, error) {
	start := time.Now()
	a.log.Debug("acquire_start", "source", d.String())

	sc := &scratch{parent: a.tempDir, limit: a.maxBytes}
	defer sc.cleanup()

	var (
		ds  *geodata.Dataset
		err error
	)
	switch d.Kind {
	case Local:
		ds, err = a.local(d, sc)
	case URL:
		ds, err = a.url(ctx, d, sc)
	case API:
		ds, err = a.api(ctx, d, sc)
	default:
		err = failure.New(failure.ErrAcquisitionFailed, "unknown source kind %q", d.Kind)
	}
	if err != nil {
		a.log.Warn("acquire_failed", "source", d.String(), "error", err)
		return nil, err
	}

	a.log.Info("acquire_ok",
		"source", d.String(),
		"features", ds.Len(),
		"crs", ds.CRS.String(),
		"took", time.Since(start).Round(time.Millisecond),
	)
	return ds, nil
}

// Fields acquires d and lists its attribute names.
func (a *Acquirer) Fields(ctx context.Context, d Descriptor) ([]string, error) {
	ds, err := a.Acquire(ctx, d)
	if err != nil {
		return nil, err
	}
	return ds.Fields(), nil
}

func (a *Acquirer) local(d Descriptor, sc *scratch) (*geodata.Dataset, error) {
	p := strings.TrimSpace(d.Location)
	if p == "" {
		return nil, failure.New(failure.ErrNotFound, "no file given")
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, failure.New(failure.ErrNotFound, "%s does not exist", p)
		}
		return nil, failure.Wrap(failure.ErrNotFound, err, "%s is not accessible", p)
	}
	if info.IsDir() {
		return nil, failure.New(failure.ErrNotFound, "%s is a directory", p)
	}

	f := FormatFromPath(p)
	if f == FormatUnknown {
		return nil, failure.New(failure.ErrUnsupportedFormat, "unrecognized extension of %s", p)
	}
	if f == FormatShapefile {
		return decodeShapefile(p)
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return nil, failure.Wrap(failure.ErrNotFound, err, "%s is not readable", p)
	}
	return decodeBytes(data, f, sc)
}

func (a *Acquirer) url(ctx context.Context, d Descriptor, sc *scratch) (*geodata.Dataset, error) {
	resp, err := a.fetch.get(ctx, d.Location, nil)
	if err != nil {
		return nil, failure.Wrap(failure.ErrAcquisitionFailed, err, "GET %s", d.Location)
	}

	f := formatFromContentType(resp.ContentType)
	if f == FormatUnknown && resp.FinalURL != nil {
		f = formatFromURL(resp.FinalURL.Path)
	}
	if f == FormatUnknown {
		if u, perr := url.Parse(d.Location); perr == nil {
			f = formatFromURL(u.Path)
		}
	}
	if f == FormatUnknown {
		return nil, failure.New(failure.ErrUnsupportedFormat,
			"cannot tell the format of %s (content type %q)", d.Location, resp.ContentType)
	}

	a.log.Debug("acquire_fetched", "source", d.String(), "format", f.String(), "bytes", len(resp.Body))
	return decodeBytes(resp.Body, f, sc)
}

func (a *Acquirer) api(ctx context.Context, d Descriptor, sc *scratch) (*geodata.Dataset, error) {
	method := "GET"
	params := url.Values{}
	for k, v := range d.Params {
		if strings.EqualFold(k, MethodParam) {
			method = strings.ToUpper(strings.TrimSpace(v))
			continue
		}
		params.Set(k, v)
	}

	var (
		resp *response
		err  error
	)
	switch method {
	case "", "GET":
		resp, err = a.fetch.get(ctx, d.Location, params)
	case "POST":
		resp, err = a.fetch.postForm(ctx, d.Location, params)
	default:
		return nil, failure.New(failure.ErrAcquisitionFailed, "unsupported request method %q", method)
	}
	if err != nil {
		return nil, failure.Wrap(failure.ErrAcquisitionFailed, err, "%s %s", method, d.Location)
	}

	f := formatFromAPIContentType(resp.ContentType)
	if f == FormatUnknown {
		return nil, failure.New(failure.ErrUnsupportedFormat,
			"unsupported api response content type %q", resp.ContentType)
	}
	return decodeBytes(resp.Body, f, sc)
}

// decodeBytes dispatches a body of a known format to its decoder.
// Archives are unpacked into a scratch directory first.
func decodeBytes(data []byte, f Format, sc *scratch) (ds *geodata.Dataset, err error) {
	defer func() {
		if r := recover(); r != nil {
			ds, err = nil, failure.New(failure.ErrAcquisitionFailed, "malformed %s input: %v", f, r)
		}
	}()

	switch f {
	case FormatGeoJSON:
		return decodeGeoJSON(data)
	case FormatKML:
		return decodeKML(bytes.NewReader(data))
	case FormatKMZ:
		return decodeKMZ(data, sc.budget())
	case FormatFlatGeobuf:
		return decodeFlatGeobuf(data)
	case FormatOSMXML:
		return decodeOSM(data)
	case FormatArchive:
		return decodeArchive(data, sc)
	}
	return nil, failure.New(failure.ErrUnsupportedFormat, "%s input must be a local file", f)
}

func decodeArchive(data []byte, sc *scratch) (*geodata.Dataset, error) {
	dir, err := sc.dir()
	if err != nil {
		return nil, failure.Wrap(failure.ErrAcquisitionFailed, err, "create extraction directory")
	}
	if err := extractZip(data, dir, sc.budget()); err != nil {
		return nil, failure.Wrap(failure.ErrAcquisitionFailed, err, "extract archive")
	}

	p, f, err := findGeometryFile(dir)
	if err != nil {
		return nil, err
	}
	if f == FormatShapefile {
		return decodeShapefile(p)
	}
	inner, err := os.ReadFile(p)
	if err != nil {
		return nil, failure.Wrap(failure.ErrAcquisitionFailed, err, "read %s from archive", f)
	}
	return decodeBytes(inner, f, sc)
}

// scratch owns the temporary directories of one acquisition. limit caps
// the bytes unpacked from archives.
type scratch struct {
	parent string
	limit  int64
	dirs   []string
}

func (s *scratch) budget() int64 {
	if s.limit <= 0 {
		return DefaultMaxBytes
	}
	return s.limit
}

func (s *scratch) dir() (string, error) {
	if s.parent != "" {
		if err := os.MkdirAll(s.parent, 0o755); err != nil {
			return "", err
		}
	}
	d, err := os.MkdirTemp(s.parent, "acquire-*")
	if err != nil {
		return "", fmt.Errorf("mkdir temp: %w", err)
	}
	s.dirs = append(s.dirs, d)
	return d, nil
}

func (s *scratch) cleanup() {
	for _, d := range s.dirs {
		_ = os.RemoveAll(d)
	}
	s.dirs = nil
}
