package infra

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
)

const defaultDotDir = "~/.ngwarden"

// GetWorkDir expands and creates the working directory rooted at dotPath,
// falling back to ~/.ngwarden when dotPath is empty.
func GetWorkDir(dotPath string, path ...string) (string, error) {
	if dotPath == "" {
		dotPath = defaultDotDir
	}
	workDir, err := homedir.Expand(filepath.Join(append([]string{dotPath}, path...)...))
	if err != nil {
		return "", errors.Wrap(err, "expand work dir")
	}
	if err = os.MkdirAll(workDir, os.ModePerm); err != nil {
		return "", errors.Wrap(err, "create work dir")
	}
	return workDir, nil
}
