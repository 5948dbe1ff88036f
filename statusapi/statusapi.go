/*
Package statusapi serves the prometheus metrics and the health of the nodes
and the report DB while the scenarios run.
*/
package statusapi

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/txverifier/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func handleNoRoute(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"error": "404 page not found",
	})
}

// StatusAPI is an http API with the metrics and health endpoints
type StatusAPI struct {
	addr   string
	health http.Handler
}

// NewStatusAPI creates a new StatusAPI that serves health at /health
func NewStatusAPI(addr string, health http.Handler) *StatusAPI {
	return &StatusAPI{
		addr:   addr,
		health: health,
	}
}

// Handler returns the router of the endpoints
func (a *StatusAPI) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	api := gin.New()
	api.Use(gin.Recovery())
	api.NoRoute(handleNoRoute)
	api.Use(cors.Default())
	api.GET("/metrics", gin.WrapH(promhttp.Handler()))
	api.GET("/health", gin.WrapH(a.health))
	return api
}

// Run starts the http server of the StatusAPI.  To stop it, pass a context
// with cancellation.
func (a *StatusAPI) Run(ctx context.Context) error {
	server := &http.Server{
		Handler:        a.Handler(),
		ReadTimeout:    30 * time.Second, //nolint:gomnd
		WriteTimeout:   30 * time.Second, //nolint:gomnd
		MaxHeaderBytes: 1 << 20,          //nolint:gomnd
	}
	listener, err := net.Listen("tcp", a.addr)
	if err != nil {
		return tracerr.Wrap(err)
	}
	log.Infof("StatusAPI is ready at %v", listener.Addr())
	go func() {
		if err := server.Serve(listener); err != nil &&
			tracerr.Unwrap(err) != http.ErrServerClosed {
			log.Errorw("StatusAPI", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("Stopping StatusAPI...")
	ctxTimeout, cancel := context.WithTimeout(context.Background(), 10*time.Second) //nolint:gomnd
	defer cancel()
	if err := server.Shutdown(ctxTimeout); err != nil {
		return tracerr.Wrap(err)
	}
	log.Info("StatusAPI done")
	return nil
}
