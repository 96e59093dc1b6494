package bus

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"

	"github.com/palletscan/palletscan/pkg/types"
)

const (
	contentTypeJSON = "application/json"
	contentEncGzip  = "gzip"
)

// encodeJob serializes a job for publication, optionally gzip
// compressing the body. Returns the body and the content encoding
// ("" or "gzip").
func encodeJob(job *types.Job, compress bool) ([]byte, string, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode job: %w", err)
	}
	if !compress {
		return body, "", nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, "", fmt.Errorf("failed to compress job: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to compress job: %w", err)
	}
	return buf.Bytes(), contentEncGzip, nil
}

// decodeJob deserializes a job body, transparently decompressing
// gzip-encoded payloads.
func decodeJob(body []byte, contentEncoding string) (*types.Job, error) {
	if contentEncoding == contentEncGzip {
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to open compressed job: %w", err)
		}
		defer zr.Close()
		body, err = io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress job: %w", err)
		}
	}

	var job types.Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	if job.TaskID == "" {
		return nil, fmt.Errorf("job missing task_id")
	}
	return &job, nil
}
