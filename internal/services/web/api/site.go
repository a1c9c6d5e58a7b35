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

package api

import (
	"net/http"
	"path"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"

	"etfmon.io/etfmon/internal/objectstorage"
	"etfmon.io/etfmon/internal/report"
	"etfmon.io/etfmon/internal/util"
)

// SiteHandler serves the published site (index page, reports and csv
// exports) straight from the object storage.
type SiteHandler struct {
	log zerolog.Logger
	ost objectstorage.Storage
}

func NewSiteHandler(log zerolog.Logger, ost objectstorage.Storage) *SiteHandler {
	return &SiteHandler{log: log, ost: ost}
}

func (h *SiteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.do(w, r); err != nil {
		if util.HTTPError(w, err) {
			h.log.Err(err).Send()
		}
	}
}

func (h *SiteHandler) do(w http.ResponseWriter, r *http.Request) error {
	p := path.Clean("/" + r.URL.Path)
	if p == "/" {
		p = "/" + report.IndexObjectPath
	}
	p = strings.TrimPrefix(p, "/")

	// only the index page and the published artifacts are exposed
	if p != report.IndexObjectPath && !strings.HasPrefix(p, report.DataDir+"/") {
		return util.NewAPIError(util.ErrNotExist, errors.Errorf("unknown path %q", p))
	}

	oi, err := h.ost.Stat(r.Context(), p)
	if err != nil {
		if objectstorage.IsNotExist(err) {
			return util.NewAPIError(util.ErrNotExist, err)
		}
		return errors.WithStack(err)
	}

	f, err := h.ost.ReadObject(r.Context(), p)
	if err != nil {
		if objectstorage.IsNotExist(err) {
			return util.NewAPIError(util.ErrNotExist, err)
		}
		return errors.WithStack(err)
	}
	defer f.Close()

	http.ServeContent(w, r, path.Base(p), oi.LastModified, f)

	return nil
}
