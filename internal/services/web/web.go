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

package web

import (
	"context"
	"crypto/tls"
	"net/http"

	ghandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"

	"etfmon.io/etfmon/internal/db"
	"etfmon.io/etfmon/internal/objectstorage"
	"etfmon.io/etfmon/internal/services/common"
	"etfmon.io/etfmon/internal/services/config"
	"etfmon.io/etfmon/internal/services/web/api"
	"etfmon.io/etfmon/internal/util"
	"etfmon.io/etfmon/types"
)

type WebService struct {
	log zerolog.Logger
	gc  *config.Config
	c   *config.Web

	d   *db.DB
	ost objectstorage.Storage

	funds []types.Fund

	trigger api.CollectionTrigger
}

// NewWebService creates the web service. trigger may be nil when no collector
// is running in the same process, manual collection requests will be refused.
func NewWebService(ctx context.Context, log zerolog.Logger, gc *config.Config, trigger api.CollectionTrigger) (*WebService, error) {
	c := &gc.Web

	if c.Debug {
		log = log.Level(zerolog.DebugLevel)
	}

	d, err := common.NewDB(ctx, log, &c.DB)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	ost, err := common.NewObjectStorage(ctx, &c.ObjectStorage)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	funds := make([]types.Fund, 0, len(gc.Funds))
	for _, cf := range gc.Funds {
		funds = append(funds, types.Fund{
			Code:        cf.Code,
			Name:        cf.Name,
			Provider:    cf.Provider,
			ProviderRef: cf.ProviderRef,
		})
	}

	return &WebService{
		log:     log,
		gc:      gc,
		c:       c,
		d:       d,
		ost:     ost,
		funds:   funds,
		trigger: trigger,
	}, nil
}

func (s *WebService) setupRouter() http.Handler {
	fundsHandler := api.NewFundsHandler(s.log, s.funds)
	snapshotsHandler := api.NewSnapshotsHandler(s.log, s.d)
	snapshotHandler := api.NewSnapshotHandler(s.log, s.d)
	changeEventHandler := api.NewChangeEventHandler(s.log, s.d)
	collectionCreateHandler := api.NewCollectionCreateHandler(s.log, s.trigger)
	siteHandler := api.NewSiteHandler(s.log, s.ost)

	router := mux.NewRouter()
	apirouter := router.PathPrefix("/api/v1alpha").Subrouter().UseEncodedPath()

	// don't return 404 on a call to an undefined handler but 400 to distinguish between a non existent resource and a wrong method
	apirouter.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadRequest) })

	apirouter.Handle("/funds", fundsHandler).Methods("GET")
	apirouter.Handle("/funds/{fundcode}/snapshots", snapshotsHandler).Methods("GET")
	apirouter.Handle("/funds/{fundcode}/snapshots/{date}", snapshotHandler).Methods("GET")
	apirouter.Handle("/funds/{fundcode}/changes/{date}", changeEventHandler).Methods("GET")
	apirouter.Handle("/collections", collectionCreateHandler).Methods("POST")

	router.PathPrefix("/").Handler(siteHandler).Methods("GET")

	mainrouter := mux.NewRouter()
	mainhandler := ghandlers.CORS(
		ghandlers.AllowedOrigins(s.c.AllowedOrigins),
		ghandlers.AllowedMethods([]string{"GET", "POST"}),
	)(router)
	mainrouter.PathPrefix("/").Handler(mainhandler)

	return mainrouter
}

func (s *WebService) Run(ctx context.Context) error {
	var tlsConfig *tls.Config
	if s.c.TLS {
		var err error
		tlsConfig, err = util.NewTLSConfig(s.c.TLSCertFile, s.c.TLSKeyFile, "", false)
		if err != nil {
			return errors.WithStack(err)
		}
	}

	httpServer := http.Server{
		Addr:      s.c.ListenAddress,
		Handler:   s.setupRouter(),
		TLSConfig: tlsConfig,
	}

	lerrCh := make(chan error, 1)
	go func() {
		if s.c.TLS {
			lerrCh <- httpServer.ListenAndServeTLS("", "")
		} else {
			lerrCh <- httpServer.ListenAndServe()
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("web service exiting")
		httpServer.Close()
	case err := <-lerrCh:
		if err != nil {
			s.log.Err(err).Msg("http server listen error")
			return errors.WithStack(err)
		}
	}

	return nil
}
