package main

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"

	"github.com/yoanarobeva/book-reads-app-server/core/backend"
	"github.com/yoanarobeva/book-reads-app-server/core/logger"
	"github.com/yoanarobeva/book-reads-app-server/core/seed"
	"github.com/yoanarobeva/book-reads-app-server/core/storage"
)

// Service holds the configuration for this service
type Service struct {
	Port             string `env:"PORT,default=3030" description:"the port to listen on"`
	DataDir          string `env:"DATA_DIR,default=./data" description:"directory with seed files for the general store"`
	ProtectedDataDir string `env:"PROTECTED_DATA_DIR,optional" description:"directory with seed files for the protected store"`
	Identity         string `env:"IDENTITY,default=email" description:"the account property used for login"`
	Secret           string `env:"SECRET,optional" description:"the HMAC secret for tokens and password hashes"`
	LogLevel         string `env:"LOG_LEVEL,default=info" description:"logrus log level"`
	Throttle         bool   `env:"THROTTLE,default=false" description:"start with the artificial response delay enabled"`
}

func main() {
	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		panic(err)
	}

	logLevel, err := logrus.ParseLevel(service.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.InitLogger(logLevel)
	rlog := logger.Default()

	seedData, err := seed.LoadDir(service.DataDir)
	if err != nil {
		rlog.WithError(err).Fatal("cannot load seed data")
	}
	protectedData := map[string]map[string]storage.Record{}
	if service.ProtectedDataDir != "" {
		protectedData, err = seed.LoadDir(service.ProtectedDataDir)
		if err != nil {
			rlog.WithError(err).Fatal("cannot load protected seed data")
		}
	}

	store := storage.NewFromSeed(seedData)
	protected := storage.NewFromSeed(protectedData)
	rlog.Infof("loaded collections: %v", store.Collections())

	router := mux.NewRouter()
	backend.New(&backend.Builder{
		Storage:   store,
		Protected: protected,
		Router:    router,
		Identity:  service.Identity,
		Secret:    service.Secret,
		Throttle:  service.Throttle,
	})

	handler := handlers.CompressHandler(router)
	handler = handlers.CombinedLoggingHandler(rlog.Writer(), handler)

	rlog.Infof("listen on port :%s", service.Port)
	if err := http.ListenAndServe(":"+service.Port, handler); err != nil {
		rlog.WithError(err).Fatal("server stopped")
	}
}
