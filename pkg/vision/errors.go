package vision

import "fmt"

// FileNotFoundError reports that the image source is missing from the
// local blob store. The message is surfaced verbatim to API clients.
type FileNotFoundError struct {
	Path string
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("Imagem não encontrada: %s", e.Path)
}

// DecodeError reports undecodable image bytes
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode image %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DetectionError reports a model invocation failure
type DetectionError struct {
	Err error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("detection failed: %v", e.Err)
}

func (e *DetectionError) Unwrap() error { return e.Err }
