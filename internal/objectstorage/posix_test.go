// Copyright 2024 Sorint.lab
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied
// See the License for the specific language governing permissions and
// limitations under the License.

package objectstorage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

func TestPosixReadWriteObject(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	ls, err := NewPosix(dir)
	assert.NilError(t, err)

	content := []byte("<html>report</html>")
	err = ls.WriteObject(ctx, "etf_data/report_20240102.html", bytes.NewReader(content), int64(len(content)), true)
	assert.NilError(t, err)

	oi, err := ls.Stat(ctx, "etf_data/report_20240102.html")
	assert.NilError(t, err)
	assert.Equal(t, oi.Size, int64(len(content)))

	f, err := ls.ReadObject(ctx, "etf_data/report_20240102.html")
	assert.NilError(t, err)
	defer f.Close()

	read, err := io.ReadAll(f)
	assert.NilError(t, err)
	assert.DeepEqual(t, read, content)

	_, err = ls.ReadObject(ctx, "etf_data/report_20240101.html")
	assert.Assert(t, IsNotExist(err))
}

func TestPosixDeleteObject(t *testing.T) {
	t.Parallel()

	objects := []string{"index.html", "etf_data/report_20240102.html", "etf_data/raw/00981A/page.html"}

	ctx := context.Background()
	dir := t.TempDir()

	ls, err := NewPosix(dir)
	assert.NilError(t, err)

	for _, obj := range objects {
		err := ls.WriteObject(ctx, obj, bytes.NewReader([]byte{}), 0, true)
		assert.NilError(t, err)

		err = ls.DeleteObject(ctx, obj)
		assert.NilError(t, err)
	}

	// no files and directories should be left
	bd, err := os.Open(filepath.Join(dir, dataDirName))
	assert.NilError(t, err)

	files, err := bd.Readdirnames(0)
	assert.NilError(t, err)

	assert.Assert(t, cmp.Len(files, 0), "number of files")
}

func TestPosixList(t *testing.T) {
	t.Parallel()

	objects := []string{"index.html", "etf_data/holdings_20240101.csv", "etf_data/report_20240101.html", "etf_data/report_20240102.html"}

	ctx := context.Background()
	dir := t.TempDir()

	ls, err := NewPosix(dir)
	assert.NilError(t, err)

	for _, obj := range objects {
		err := ls.WriteObject(ctx, obj, bytes.NewReader([]byte{}), 0, true)
		assert.NilError(t, err)
	}

	paths := []string{}
	for oi := range ls.List(ctx, "etf_data/report_", "", true) {
		assert.NilError(t, oi.Err)
		paths = append(paths, oi.Path)
	}

	assert.DeepEqual(t, paths, []string{"etf_data/report_20240101.html", "etf_data/report_20240102.html"})
}
