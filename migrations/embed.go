// SPDX-License-Identifier: Apache-2.0

// Package migrations embeds the workflow engine's SQL schema. Files are
// applied in lexical order by their numeric prefix.
package migrations

import (
	"embed"
	"io/fs"
	"sort"
)

//go:embed *.sql
var schemaFiles embed.FS

type File struct {
	Name string
	SQL  string
}

// Ordered returns every embedded migration in apply order.
func Ordered() ([]File, error) {
	names, err := fs.Glob(schemaFiles, "*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	files := make([]File, 0, len(names))
	for _, name := range names {
		body, err := schemaFiles.ReadFile(name)
		if err != nil {
			return nil, err
		}
		files = append(files, File{Name: name, SQL: string(body)})
	}
	return files, nil
}
