package cli

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LoadError is a command-level failure to locate or read rule files.
type LoadError struct {
	Code    string
	Message string
	Path    string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// isRuleFile reports whether name has a YAML extension.
func isRuleFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// ResolveRuleFiles expands the command arguments into rule file paths.
// Files are taken as given; directories are scanned recursively for
// .yaml/.yml files in lexical order. Duplicates are dropped.
func ResolveRuleFiles(args []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if os.IsNotExist(err) {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("path not found: %s", arg), Path: arg}
		}
		if err != nil {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing %s: %v", arg, err), Path: arg}
		}
		if !info.IsDir() {
			add(filepath.Clean(arg))
			continue
		}

		found, err := findRuleFiles(arg)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err), Path: arg}
		}
		for _, p := range found {
			add(p)
		}
	}

	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no rule files found in %s", strings.Join(args, ", "))}
	}
	return files, nil
}

func findRuleFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isRuleFile(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
