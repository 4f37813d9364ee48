package source

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/teranos/rota/errors"
)

// fileBook is the on-disk layout of a YAML workbook:
//
//	tabs:
//	  Roster:
//	    - [employee_id, name, role]
//	    - [e1, Alice, nurse]
type fileBook struct {
	Tabs map[string][][]string `yaml:"tabs"`
}

// FileWorkbook stores workbooks as YAML files, one file per workbook.
type FileWorkbook struct {
	mu sync.Mutex // serializes read-modify-write of a file within this process
}

// NewFileWorkbook creates a YAML file backend
func NewFileWorkbook() *FileWorkbook {
	return &FileWorkbook{}
}

func (w *FileWorkbook) load(path string) (*fileBook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.SourceFormat(err, "workbook "+path)
		}
		return nil, errors.SourceUnavailable(err, "read workbook "+path)
	}
	var book fileBook
	if err := yaml.Unmarshal(data, &book); err != nil {
		return nil, errors.SourceFormat(err, "parse workbook "+path)
	}
	if book.Tabs == nil {
		book.Tabs = map[string][][]string{}
	}
	return &book, nil
}

// ReadTable implements Workbook
func (w *FileWorkbook) ReadTable(ctx context.Context, loc Locator) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, classifyContext(err, loc)
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	book, err := w.load(loc.Book)
	if err != nil {
		return nil, err
	}
	rows, ok := book.Tabs[loc.Tab]
	if !ok {
		return nil, errors.NewSourceFormat("tab %q not found in %s", loc.Tab, loc.Book)
	}
	return rows, nil
}

// WriteTable implements Workbook. The file is replaced atomically so a
// concurrent reader sees either the old or the new workbook.
func (w *FileWorkbook) WriteTable(ctx context.Context, loc Locator, rows [][]string) error {
	if err := ctx.Err(); err != nil {
		return classifyContext(err, loc)
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	book := &fileBook{Tabs: map[string][][]string{}}
	if _, err := os.Stat(loc.Book); err == nil {
		if book, err = w.load(loc.Book); err != nil {
			return err
		}
	}
	book.Tabs[loc.Tab] = rows

	data, err := yaml.Marshal(book)
	if err != nil {
		return errors.Wrap(err, "encode workbook")
	}
	if err := os.MkdirAll(filepath.Dir(loc.Book), 0o755); err != nil {
		return errors.SourceUnavailable(err, "create workbook directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(loc.Book), ".rota-*.yaml")
	if err != nil {
		return errors.SourceUnavailable(err, "write workbook "+loc.Book)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.SourceUnavailable(err, "write workbook "+loc.Book)
	}
	if err := tmp.Close(); err != nil {
		return errors.SourceUnavailable(err, "write workbook "+loc.Book)
	}
	if err := os.Rename(tmp.Name(), loc.Book); err != nil {
		return errors.SourceUnavailable(err, "replace workbook "+loc.Book)
	}
	return nil
}
