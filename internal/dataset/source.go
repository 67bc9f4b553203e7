package dataset

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"sensortrend/internal/model"
)

// Load opens the source of a spec and returns its cleaned table. fetcher is
// only needed for s3:// sources and may be nil otherwise.
func Load(ctx context.Context, spec Spec, fetcher Fetcher) (*model.Table, error) {
	opts, err := spec.Options()
	if err != nil {
		return nil, err
	}

	var r io.Reader
	if strings.HasPrefix(spec.Source, "s3://") {
		if fetcher == nil {
			return nil, fmt.Errorf("dataset %q: no S3 client configured", spec.Name)
		}
		bucket, key, err := parseS3URI(spec.Source)
		if err != nil {
			return nil, err
		}
		data, err := fetcher.Fetch(ctx, bucket, key)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(data)
	} else {
		f, err := os.Open(spec.Source)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	switch strings.ToLower(path.Ext(spec.Source)) {
	case ".csv", ".txt":
		return LoadCSVFromReader(r, spec.Name, opts)
	case ".tsv":
		if opts.Delimiter == 0 {
			opts.Delimiter = '\t'
		}
		return LoadCSVFromReader(r, spec.Name, opts)
	case ".xlsx", ".xlsm":
		return LoadXLSXFromReader(r, spec.Name, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, spec.Source)
	}
}

// HasS3Sources reports whether any spec reads from S3.
func HasS3Sources(specs []Spec) bool {
	for _, s := range specs {
		if strings.HasPrefix(s.Source, "s3://") {
			return true
		}
	}
	return false
}
