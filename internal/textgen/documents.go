package textgen

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"remindbot/internal/domain"
)

var (
	ErrNoDocument = errors.New("no reference document")
	ErrNotPDF     = errors.New("file is not a PDF")
)

// Documents stores one reference PDF per destination as <dir>/<id>.pdf.
type Documents struct {
	dir      string
	maxChars int
}

func NewDocuments(dir string, maxChars int) *Documents {
	if maxChars <= 0 {
		maxChars = 10000
	}
	return &Documents{dir: dir, maxChars: maxChars}
}

func (d *Documents) path(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return "", &domain.ValidationError{Field: "id", Reason: fmt.Sprintf("invalid destination id %q", id)}
	}
	return filepath.Join(d.dir, id+".pdf"), nil
}

// Has reports whether a document exists for id.
func (d *Documents) Has(id string) bool {
	p, err := d.path(id)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// Save stores r as the document for id, replacing any previous one.
// The body must start with the PDF signature.
func (d *Documents) Save(id string, r io.Reader) (int64, error) {
	p, err := d.path(id)
	if err != nil {
		return 0, err
	}
	head := make([]byte, 5)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, ErrNotPDF
	}
	if !bytes.Equal(head[:n], []byte("%PDF-")) {
		return 0, ErrNotPDF
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return 0, err
	}

	tmp := p + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}
	written, err := io.Copy(f, io.MultiReader(bytes.NewReader(head[:n]), r))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	return written, nil
}

// Text extracts the document's plain text, trimmed and capped at maxChars
// characters. ErrNoDocument when there is none.
func (d *Documents) Text(id string) (string, error) {
	p, err := d.path(id)
	if err != nil {
		return "", err
	}
	f, r, err := pdf.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNoDocument
	}
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	return clip(strings.TrimSpace(string(b)), d.maxChars), nil
}

// clip keeps the first n characters (runes) of s.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
