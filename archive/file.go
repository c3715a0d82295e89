package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// maxFileExchanges bounds the file archive; the oldest exchanges are dropped first.
const maxFileExchanges = 1000

type fileContents struct {
	Exchanges []Exchange `json:"exchanges"`
}

// FileStore keeps exchanges in a local JSON file, for running without a cluster.
type FileStore struct {
	mu    sync.Mutex
	path  string
	limit int
}

func NewFile(path string) *FileStore {
	return &FileStore{path: path, limit: maxFileExchanges}
}

func (f *FileStore) Record(_ context.Context, exchange Exchange) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	contents, err := f.load()
	if err != nil {
		return err
	}

	contents.Exchanges = append(contents.Exchanges, exchange)
	if extra := len(contents.Exchanges) - f.limit; extra > 0 {
		contents.Exchanges = contents.Exchanges[extra:]
	}

	return f.update(contents)
}

// Recent returns up to size exchanges, newest first.
func (f *FileStore) Recent(_ context.Context, size int) ([]Exchange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	contents, err := f.load()
	if err != nil {
		return nil, err
	}

	exchanges := make([]Exchange, 0, size)
	for i := len(contents.Exchanges) - 1; i >= 0 && len(exchanges) < size; i-- {
		exchanges = append(exchanges, contents.Exchanges[i])
	}
	return exchanges, nil
}

func (f *FileStore) load() (*fileContents, error) {
	var contents fileContents
	fileBytes, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		// first write creates it
		return &contents, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unexpected error reading archive file: %w", err)
	}

	if err := json.Unmarshal(fileBytes, &contents); err != nil {
		return nil, fmt.Errorf("unexpected error parsing archive file: %w", err)
	}
	return &contents, nil
}

func (f *FileStore) update(contents *fileContents) error {
	fileBytes, err := json.MarshalIndent(contents, "", " ")
	if err != nil {
		return fmt.Errorf("failed to marshal archive file: %w", err)
	}
	if err := os.WriteFile(f.path, fileBytes, 0644); err != nil {
		return fmt.Errorf("failed to write archive file: %w", err)
	}
	return nil
}
