package dataset

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"path"
	"strings"
)

const defaultUploadContentType = "application/octet-stream"

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// WriteMultipart encodes r the way a browser submits the dataset form:
// the file part is always present (empty filename and body when nothing was
// chosen) and the selection field is omitted when no radio is checked.
// It returns the Content-Type header value for the body.
func (r Request) WriteMultipart(w io.Writer) (string, error) {
	mw := multipart.NewWriter(w)
	if err := writeUploadPart(mw, r.Upload); err != nil {
		return "", err
	}
	if r.HasDataset() {
		if err := mw.WriteField(FieldSelection, string(r.Dataset)); err != nil {
			return "", fmt.Errorf("write %s field: %w", FieldSelection, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}
	return mw.FormDataContentType(), nil
}

// Body returns the encoded request as a reader along with its content type.
func (r Request) Body() (io.Reader, string, error) {
	var buf bytes.Buffer
	contentType, err := r.WriteMultipart(&buf)
	if err != nil {
		return nil, "", err
	}
	return &buf, contentType, nil
}

func writeUploadPart(mw *multipart.Writer, u *Upload) error {
	filename, contentType := "", defaultUploadContentType
	var data []byte
	if u != nil {
		filename = u.Filename
		data = u.Data
		if u.ContentType != "" {
			contentType = u.ContentType
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(FieldUpload), quoteEscaper.Replace(filename)))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create %s part: %w", FieldUpload, err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("write %s part: %w", FieldUpload, err)
	}
	return nil
}

// FromMultipart rebuilds a Request from a parsed multipart form. An empty
// file part (no filename, no bytes) counts as no upload. Only the preset
// literal is validated; policy checks are left to the caller.
func FromMultipart(form *multipart.Form) (Request, error) {
	var req Request
	if form == nil {
		return req, nil
	}
	if values := form.Value[FieldSelection]; len(values) > 0 && values[0] != "" {
		p, err := ParsePreset(values[0])
		if err != nil {
			return Request{}, err
		}
		req.Dataset = p
	}
	headers := form.File[FieldUpload]
	if len(headers) == 0 {
		return req, nil
	}
	header := headers[0]
	if header.Filename == "" && header.Size == 0 {
		return req, nil
	}
	upload, err := readUpload(header)
	if err != nil {
		return Request{}, err
	}
	req.Upload = &upload
	return req, nil
}

// CleanFilename reduces a client-supplied name to its last path element.
// Names that are empty, "." or ".." after reduction are refused.
func CleanFilename(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", ErrEmptyUpload
	}
	name := path.Base(strings.ReplaceAll(raw, "\\", "/"))
	switch name {
	case ".", "..", "/":
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, raw)
	}
	return name, nil
}

func readUpload(header *multipart.FileHeader) (Upload, error) {
	f, err := header.Open()
	if err != nil {
		return Upload{}, fmt.Errorf("open %s: %w", FieldUpload, err)
	}
	defer f.Close() //nolint:errcheck // read-only
	data, err := io.ReadAll(f)
	if err != nil {
		return Upload{}, fmt.Errorf("read %s: %w", FieldUpload, err)
	}
	name, err := CleanFilename(header.Filename)
	if err != nil {
		return Upload{}, err
	}
	return Upload{
		Filename:    name,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
