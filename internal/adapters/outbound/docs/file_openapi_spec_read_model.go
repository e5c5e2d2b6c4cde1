package docs

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	apperrors "depositwatch/internal/shared_kernel/errors"
)

// FileOpenAPISpecReadModel serves the API contract from disk. The file is read
// on every request so edits show up without a restart.
type FileOpenAPISpecReadModel struct {
	path string
}

func NewFileOpenAPISpecReadModel(path string) *FileOpenAPISpecReadModel {
	return &FileOpenAPISpecReadModel{
		path: path,
	}
}

func (r *FileOpenAPISpecReadModel) Read(ctx context.Context) ([]byte, string, *apperrors.AppError) {
	if err := ctx.Err(); err != nil {
		return nil, "", apperrors.NewUnavailable(
			"openapi_read_canceled",
			"request canceled before the api contract was read",
			nil,
		)
	}

	content, err := os.ReadFile(r.path)
	if err != nil {
		return nil, "", apperrors.NewInternal(
			"openapi_file_read_failed",
			"failed to read OpenAPI spec file",
			map[string]any{"path": r.path},
		)
	}

	return content, contentTypeFor(r.path), nil
}

func contentTypeFor(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return "application/json; charset=utf-8"
	}
	return "application/yaml; charset=utf-8"
}
