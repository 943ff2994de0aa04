package storage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func SkippedPagesPath(dir, prefix string) string {
	return filepath.Join(dir, prefix+"_skipped_pages.txt")
}

// AppendSkippedPages adds one page number per line, keeping earlier runs.
func AppendSkippedPages(dir, prefix string, pages []int) (string, error) {
	path := SkippedPagesPath(dir, prefix)
	if len(pages) == 0 {
		return path, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, p := range pages {
		fmt.Fprintf(w, "%d\n", p)
	}
	if err := w.Flush(); err != nil {
		return "", err
	}
	return path, nil
}

func ReadSkippedPages(dir, prefix string) ([]int, error) {
	data, err := os.ReadFile(SkippedPagesPath(dir, prefix))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var pages []int
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		p, err := strconv.Atoi(line)
		if err != nil {
			return nil, fmt.Errorf("bad page number %q", line)
		}
		pages = append(pages, p)
	}
	return pages, nil
}
