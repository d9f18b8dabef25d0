package testtool

import (
	"net/http"
	_ "net/http/pprof" // registers the pprof endpoints on import

	"nova_messaging_service/pkg/config"
	"nova_messaging_service/pkg/logger"
)

// StartPprof start the pprof server outside of production
func StartPprof() {
	if config.IsProduction() {
		logger.Log.Info("Production environment detected, pprof is disabled.")
		return
	}

	go func() {
		logger.Log.Info("Starting pprof server on :6060")
		if err := http.ListenAndServe(":6060", nil); err != nil {
			logger.Log.Infof("pprof server failed: ", err)
		}
	}()
}
