package outbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/folio/internal/model"
)

// LastModifiedHeader carries a file's last-modified time (unix ms) in its
// multipart part headers.
const LastModifiedHeader = "X-Last-Modified"

// DefaultFileType is used for file parts submitted without a content type.
const DefaultFileType = "application/octet-stream"

// MaxBodyBytes bounds a captured submission.
const MaxBodyBytes = 32 << 20

// ErrUnsupportedContentType is returned for bodies that are not HTML form encodings.
var ErrUnsupportedContentType = errors.New("unsupported content type")

// FieldsFromRequest captures the fields of a form submission in the order
// they were sent. multipart/form-data and application/x-www-form-urlencoded
// bodies are supported.
func FieldsFromRequest(r *http.Request) ([]model.Field, error) {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedContentType, err)
	}

	body := io.LimitReader(r.Body, MaxBodyBytes+1)
	switch mediaType {
	case "multipart/form-data":
		boundary := params["boundary"]
		if boundary == "" {
			return nil, fmt.Errorf("%w: missing boundary", ErrUnsupportedContentType)
		}
		return FieldsFromMultipart(multipart.NewReader(body, boundary))
	case "application/x-www-form-urlencoded":
		raw, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("read form body: %w", err)
		}
		if len(raw) > MaxBodyBytes {
			return nil, fmt.Errorf("read form body: exceeds %d bytes", MaxBodyBytes)
		}
		return FieldsFromURLEncoded(string(raw))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedContentType, mediaType)
	}
}

// FieldsFromMultipart reads every part in order. Parts with a filename
// parameter become file fields, even when the filename is empty.
func FieldsFromMultipart(mr *multipart.Reader) ([]model.Field, error) {
	fields := []model.Field{}
	total := 0
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return fields, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read multipart: %w", err)
		}

		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return nil, fmt.Errorf("read part %q: %w", part.FormName(), err)
		}
		total += len(data)
		if total > MaxBodyBytes {
			return nil, fmt.Errorf("read multipart: exceeds %d bytes", MaxBodyBytes)
		}

		name := part.FormName()
		if name == "" {
			continue
		}
		if !isFilePart(part) {
			fields = append(fields, model.TextField(name, string(data)))
			continue
		}

		fileType := part.Header.Get("Content-Type")
		if fileType == "" {
			fileType = DefaultFileType
		}
		lastModified, _ := strconv.ParseInt(part.Header.Get(LastModifiedHeader), 10, 64)
		fields = append(fields, model.FileField(name, part.FileName(), fileType, lastModified, data))
	}
}

// isFilePart reports whether the part's Content-Disposition carries a
// filename parameter. An empty file input still sends filename="".
func isFilePart(part *multipart.Part) bool {
	_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	if err != nil {
		return false
	}
	_, ok := params["filename"]
	return ok
}

// FieldsFromURLEncoded parses a urlencoded body keeping pair order.
func FieldsFromURLEncoded(body string) ([]model.Field, error) {
	fields := []model.Field{}
	for _, pair := range strings.Split(body, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		name, err := url.QueryUnescape(key)
		if err != nil {
			return nil, fmt.Errorf("decode field name %q: %w", key, err)
		}
		val, err := url.QueryUnescape(value)
		if err != nil {
			return nil, fmt.Errorf("decode field %q: %w", name, err)
		}
		fields = append(fields, model.TextField(name, val))
	}
	return fields, nil
}

// FieldsFromValues converts parsed form values. Names are sorted since
// url.Values does not keep submission order; values keep their order.
func FieldsFromValues(values url.Values) []model.Field {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := []model.Field{}
	for _, name := range names {
		for _, v := range values[name] {
			fields = append(fields, model.TextField(name, v))
		}
	}
	return fields
}

// FieldsFromForm converts a parsed multipart form. Text fields come first,
// then files, each group sorted by name.
func FieldsFromForm(form *multipart.Form) ([]model.Field, error) {
	if form == nil {
		return []model.Field{}, nil
	}
	fields := FieldsFromValues(form.Value)

	names := make([]string, 0, len(form.File))
	for name := range form.File {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, fh := range form.File[name] {
			f, err := fh.Open()
			if err != nil {
				return nil, fmt.Errorf("open file %q: %w", name, err)
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return nil, fmt.Errorf("read file %q: %w", name, err)
			}
			fileType := fh.Header.Get("Content-Type")
			if fileType == "" {
				fileType = DefaultFileType
			}
			lastModified, _ := strconv.ParseInt(fh.Header.Get(LastModifiedHeader), 10, 64)
			fields = append(fields, model.FileField(name, fh.Filename, fileType, lastModified, data))
		}
	}
	return fields, nil
}

// EncodeBody rebuilds a multipart/form-data payload from captured fields.
// File parts carry their name, content type and last-modified time.
func EncodeBody(fields []model.Field) ([]byte, string, error) {
	return encodeBody(fields, "")
}

// EncodeBodyWithBoundary is EncodeBody with a fixed boundary.
func EncodeBodyWithBoundary(fields []model.Field, boundary string) ([]byte, string, error) {
	return encodeBody(fields, boundary)
}

func encodeBody(fields []model.Field, boundary string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if boundary != "" {
		if err := w.SetBoundary(boundary); err != nil {
			return nil, "", fmt.Errorf("encode body: %w", err)
		}
	}

	for _, f := range fields {
		switch f.Kind {
		case model.FieldFile:
			h := make(textproto.MIMEHeader)
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
				escapeQuotes(f.Name), escapeQuotes(f.FileName)))
			fileType := f.FileType
			if fileType == "" {
				fileType = DefaultFileType
			}
			h.Set("Content-Type", fileType)
			if f.LastModified != 0 {
				h.Set(LastModifiedHeader, strconv.FormatInt(f.LastModified, 10))
			}
			part, err := w.CreatePart(h)
			if err != nil {
				return nil, "", fmt.Errorf("encode file %q: %w", f.Name, err)
			}
			if _, err := part.Write(f.Blob); err != nil {
				return nil, "", fmt.Errorf("encode file %q: %w", f.Name, err)
			}
		default:
			if err := w.WriteField(f.Name, f.Value); err != nil {
				return nil, "", fmt.Errorf("encode field %q: %w", f.Name, err)
			}
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("encode body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
